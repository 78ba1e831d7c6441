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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/crudkit/types"
	"github.com/uptrace/bun"
)

type fakeStore struct {
	calls      []string
	failOn     string
	err        error
	seedCalled bool
}

func (s *fakeStore) GetDB() *bun.DB { return nil }

func (s *fakeStore) EnsureDeleted(ctx context.Context) error { return s.record("drop") }

func (s *fakeStore) EnsureCreated(ctx context.Context) error { return s.record("create") }

func (s *fakeStore) RunMigrations(ctx context.Context) error { return s.record("migrate") }

func (s *fakeStore) record(call string) error {
	s.calls = append(s.calls, call)
	if call == s.failOn {
		return s.err
	}
	return nil
}

func recordingSeed(store *fakeStore, seen *StartupState) SeedFunc {
	return func(ctx context.Context, db bun.IDB, state StartupState) error {
		store.seedCalled = true
		store.calls = append(store.calls, "seed")
		*seen = state
		return nil
	}
}

func TestStartupDropMigrateSeedInDevelopment(t *testing.T) {
	store := &fakeStore{}
	var seen StartupState
	opts := StartupOptions{DropDatabase: true, ApplyMigrations: true, SeedDatabase: true}

	state, err := Startup(context.Background(), store, types.Development, opts, recordingSeed(store, &seen))
	require.NoError(t, err)

	assert.Equal(t, []string{"drop", "create", "migrate", "seed"}, store.calls)
	assert.True(t, seen.WasDropped)
	assert.True(t, seen.WasCreated)
	assert.True(t, seen.WasMigrated)
	assert.False(t, seen.WasSeeded)
	assert.True(t, state.WasSeeded)
}

func TestStartupAllFlagsOff(t *testing.T) {
	for _, env := range []types.Environment{types.Development, types.Staging, types.Production} {
		store := &fakeStore{}
		var seen StartupState
		state, err := Startup(context.Background(), store, env, StartupOptions{}, recordingSeed(store, &seen))
		require.NoError(t, err)
		assert.Empty(t, store.calls, env.String())
		assert.False(t, store.seedCalled, env.String())
		assert.Equal(t, StartupState{}, state)
	}
}

func TestStartupDestructiveStepsOutsideDevelopment(t *testing.T) {
	for _, env := range []types.Environment{types.Staging, types.Production} {
		store := &fakeStore{}
		var seen StartupState
		opts := StartupOptions{DropDatabase: true, SeedDatabase: true}

		state, err := Startup(context.Background(), store, env, opts, recordingSeed(store, &seen))
		require.NoError(t, err)
		assert.Empty(t, store.calls, env.String())
		assert.False(t, store.seedCalled)
		assert.False(t, state.WasDropped)
		assert.False(t, state.WasCreated)
	}
}

func TestStartupEnsureCreatedAndMigrateInProduction(t *testing.T) {
	store := &fakeStore{}
	var seen StartupState
	opts := StartupOptions{EnsureCreated: true, ApplyMigrations: true}

	state, err := Startup(context.Background(), store, types.Production, opts, recordingSeed(store, &seen))
	require.NoError(t, err)
	assert.Equal(t, []string{"create", "migrate"}, store.calls)
	assert.Equal(t, StartupState{WasCreated: true, WasMigrated: true}, state)
}

func TestStartupStopsOnFirstError(t *testing.T) {
	boom := errors.New("boom")
	store := &fakeStore{failOn: "create", err: boom}
	var seen StartupState
	opts := StartupOptions{EnsureCreated: true, ApplyMigrations: true, SeedDatabase: true}

	state, err := Startup(context.Background(), store, types.Development, opts, recordingSeed(store, &seen))
	assert.Same(t, boom, err)
	assert.Equal(t, []string{"create"}, store.calls)
	assert.False(t, state.WasCreated)
	assert.False(t, store.seedCalled)
}

func TestStartupSeedErrorIsReturned(t *testing.T) {
	boom := errors.New("seed failed")
	store := &fakeStore{}
	seed := Seed(func(ctx context.Context, db bun.IDB) error { return boom })

	_, err := Startup(context.Background(), store, types.Development, StartupOptions{SeedDatabase: true}, seed)
	assert.Same(t, boom, err)
}

func TestStartupNilArguments(t *testing.T) {
	store := &fakeStore{}

	_, err := Startup(context.Background(), nil, types.Development, StartupOptions{DropDatabase: true}, NoSeed)
	assert.ErrorIs(t, err, ErrNilArgument)

	_, err = Startup(context.Background(), store, types.Development, StartupOptions{DropDatabase: true}, nil)
	assert.ErrorIs(t, err, ErrNilArgument)
	assert.Empty(t, store.calls)

	var nilManager *defaultDatabaseManager
	_, err = Startup(context.Background(), nilManager, types.Development, StartupOptions{EnsureCreated: true}, NoSeed)
	assert.ErrorIs(t, err, ErrNilArgument)

	var nilFake *fakeStore
	_, err = Startup(context.Background(), nilFake, types.Development, StartupOptions{}, NoSeed)
	assert.ErrorIs(t, err, ErrNilArgument)

	assert.Nil(t, Seed(nil))
}
