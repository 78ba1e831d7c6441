/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"fmt"
	"reflect"

	"github.com/tomoncle/crudkit/types"
	"github.com/uptrace/bun"
)

// StartupState reports which lifecycle steps ran during Startup.
type StartupState struct {
	WasDropped  bool `json:"was_dropped"`
	WasCreated  bool `json:"was_created"`
	WasMigrated bool `json:"was_migrated"`
	WasSeeded   bool `json:"was_seeded"`
}

// SeedFunc populates the store once schema steps are done. It receives the
// state of the steps that already ran.
type SeedFunc func(ctx context.Context, db bun.IDB, state StartupState) error

// Seed adapts a callback that does not care about the startup state.
func Seed(fn func(ctx context.Context, db bun.IDB) error) SeedFunc {
	if fn == nil {
		return nil
	}
	return func(ctx context.Context, db bun.IDB, _ StartupState) error {
		return fn(ctx, db)
	}
}

// NoSeed is a SeedFunc that does nothing.
func NoSeed(context.Context, bun.IDB, StartupState) error { return nil }

// SQLFileSeed seeds from the SQL files under root for the given environment.
func SQLFileSeed(root string, env types.Environment) SeedFunc {
	return func(ctx context.Context, db bun.IDB, _ StartupState) error {
		_, err := NewSQLInitManager(db, env).SetSQLRootPath(root).ExecuteInitialization(ctx)
		return err
	}
}

// Startup runs the database lifecycle in a fixed order:
//
//  1. drop the schema (DropDatabase, development only)
//  2. create the schema (EnsureCreated, or after a drop)
//  3. apply pending migrations (ApplyMigrations)
//  4. seed (SeedDatabase, development only)
//
// Steps outside development that would destroy or seed data are skipped with
// a warning. Errors from store or seed are returned as-is and stop the
// sequence; nothing is retried.
func Startup(ctx context.Context, store Store, env types.Environment, opts StartupOptions, seed SeedFunc) (StartupState, error) {
	var state StartupState
	if isNil(store) {
		return state, fmt.Errorf("startup store: %w", ErrNilArgument)
	}
	if seed == nil {
		return state, fmt.Errorf("startup seed: %w", ErrNilArgument)
	}

	logger := GetLogger()

	if opts.DropDatabase {
		if env.IsDevelopment() {
			logger.Warn("Dropping database schema", "environment", env)
			if err := store.EnsureDeleted(ctx); err != nil {
				return state, err
			}
			state.WasDropped = true
		} else {
			logger.Warn("Ignoring drop request outside development", "environment", env)
		}
	}

	if opts.EnsureCreated || state.WasDropped {
		if err := store.EnsureCreated(ctx); err != nil {
			return state, err
		}
		state.WasCreated = true
	}

	if opts.ApplyMigrations {
		if err := store.RunMigrations(ctx); err != nil {
			return state, err
		}
		state.WasMigrated = true
	}

	if opts.SeedDatabase {
		if env.IsDevelopment() {
			if err := seed(ctx, store.GetDB(), state); err != nil {
				return state, err
			}
			state.WasSeeded = true
		} else {
			logger.Warn("Ignoring seed request outside development", "environment", env)
		}
	}

	if opts.Any() {
		logger.Info("Database startup completed",
			"environment", env,
			"dropped", state.WasDropped,
			"created", state.WasCreated,
			"migrated", state.WasMigrated,
			"seeded", state.WasSeeded,
		)
	}
	return state, nil
}

// isNil also catches a nil pointer stored in a non-nil interface.
func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
