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
	"sort"
	"sync"
	"time"

	"github.com/uptrace/bun"
)

var defaultMigrations = NewMigrationRegistry()

// Migration is an applied migration record stored in the tracking table.
type Migration struct {
	bun.BaseModel `bun:"table:schema_migrations"`

	Version     string    `bun:"version,pk"`
	Name        string    `bun:"name"`
	AppliedAt   time.Time `bun:"applied_at"`
	Description string    `bun:"description"`
}

// MigrationFunc is a migration step executed within a transaction.
type MigrationFunc func(ctx context.Context, db bun.IDB) error

// MigrationItem describes a single migration version with up/down functions.
// Versions are compared as strings, so zero-pad them ("001", "002").
type MigrationItem struct {
	Version     string
	Name        string
	Description string
	Up          MigrationFunc
	Down        MigrationFunc
}

// MigrationRegistry stores versioned migrations.
type MigrationRegistry interface {
	Register(items ...MigrationItem)
	Migrations() []MigrationItem
}

type migrationRegistry struct {
	items []MigrationItem
	mutex sync.RWMutex
}

func NewMigrationRegistry() MigrationRegistry {
	return &migrationRegistry{}
}

func (r *migrationRegistry) Register(items ...MigrationItem) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.items = append(r.items, items...)
}

// Migrations returns a copy sorted by ascending version.
func (r *migrationRegistry) Migrations() []MigrationItem {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	result := make([]MigrationItem, len(r.items))
	copy(result, r.items)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Version < result[j].Version
	})
	return result
}

// RegisterMigration adds migrations to the default registry.
func RegisterMigration(items ...MigrationItem) {
	defaultMigrations.Register(items...)
}

func RegisteredMigrations() []MigrationItem {
	return defaultMigrations.Migrations()
}

// MigrationManager applies registered migrations and records them in the
// schema_migrations table.
type MigrationManager struct {
	db       *bun.DB
	registry MigrationRegistry
	logger   Logger
}

// NewMigrationManager constructs a MigrationManager. A nil registry falls back
// to the default one and a nil logger discards output.
func NewMigrationManager(db *bun.DB, registry MigrationRegistry, logger Logger) *MigrationManager {
	if registry == nil {
		registry = defaultMigrations
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &MigrationManager{
		db:       db,
		registry: registry,
		logger:   logger,
	}
}

// RunMigrations creates the tracking table if needed and executes every
// pending migration in ascending version order, each in its own transaction.
// It stops at the first failure; earlier migrations stay applied.
func (mm *MigrationManager) RunMigrations(ctx context.Context) error {
	if mm.db == nil {
		return ErrNotConnected
	}

	if err := mm.createMigrationTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations := mm.registry.Migrations()
	if err := checkMigrations(migrations); err != nil {
		return err
	}

	applied := 0
	for _, migration := range migrations {
		ran, err := mm.runMigration(ctx, migration)
		if err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", migration.Version, err)
		}
		if ran {
			applied++
		}
	}

	mm.logger.Info("Database migrations completed", "applied", applied, "registered", len(migrations))
	return nil
}

func checkMigrations(migrations []MigrationItem) error {
	seen := make(map[string]struct{}, len(migrations))
	for _, m := range migrations {
		if m.Version == "" {
			return fmt.Errorf("migration %q has an empty version", m.Name)
		}
		if m.Up == nil {
			return fmt.Errorf("migration %s has no up function", m.Version)
		}
		if _, ok := seen[m.Version]; ok {
			return fmt.Errorf("duplicate migration version %s", m.Version)
		}
		seen[m.Version] = struct{}{}
	}
	return nil
}

func (mm *MigrationManager) createMigrationTable(ctx context.Context) error {
	_, err := mm.db.NewCreateTable().
		Model((*Migration)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func (mm *MigrationManager) dropMigrationTable(ctx context.Context, db bun.IDB) error {
	_, err := db.NewDropTable().
		Model((*Migration)(nil)).
		IfExists().
		Exec(ctx)
	return err
}

func (mm *MigrationManager) runMigration(ctx context.Context, migration MigrationItem) (bool, error) {
	exists, err := mm.db.NewSelect().
		Model((*Migration)(nil)).
		Where("version = ?", migration.Version).
		Exists(ctx)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	tx, err := mm.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	var committed bool
	defer func(tx bun.Tx) {
		if !committed {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				mm.logger.Error("Failed to rollback transaction", "error", rollbackErr)
			}
		}
	}(tx)

	if err := migration.Up(ctx, tx); err != nil {
		return false, err
	}

	record := &Migration{
		Version:     migration.Version,
		Name:        migration.Name,
		AppliedAt:   time.Now(),
		Description: migration.Description,
	}
	if _, err = tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	committed = true
	mm.logger.Info("Migration executed successfully", "version", migration.Version, "name", migration.Name)
	return true, nil
}

// GetAppliedMigrations returns migration records ordered by version.
func (mm *MigrationManager) GetAppliedMigrations(ctx context.Context) ([]Migration, error) {
	if mm.db == nil {
		return nil, ErrNotConnected
	}
	if err := mm.createMigrationTable(ctx); err != nil {
		return nil, err
	}
	var migrations []Migration
	err := mm.db.NewSelect().
		Model(&migrations).
		Order("version ASC").
		Scan(ctx)
	return migrations, err
}

// RollbackMigration runs the down function of an applied migration and removes
// its record in the same transaction.
func (mm *MigrationManager) RollbackMigration(ctx context.Context, version string) error {
	if mm.db == nil {
		return ErrNotConnected
	}

	var item *MigrationItem
	for _, m := range mm.registry.Migrations() {
		if m.Version == version {
			m := m
			item = &m
			break
		}
	}
	if item == nil {
		return fmt.Errorf("migration %s is not registered", version)
	}
	if item.Down == nil {
		return fmt.Errorf("migration %s has no down function", version)
	}

	return mm.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*Migration)(nil)).
			Where("version = ?", version).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("migration %s is not applied", version)
		}
		if err := item.Down(ctx, tx); err != nil {
			return err
		}
		mm.logger.Info("Migration rolled back", "version", version, "name", item.Name)
		return nil
	})
}
