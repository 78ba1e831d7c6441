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
	"sync"

	"github.com/uptrace/bun"
)

var (
	globalMu      sync.RWMutex
	globalFactory *BaseDatabaseFactory
	globalConfig  *Config
	globalState   StartupState
)

// GetDB returns the global Bun database instance, or nil before InitDB.
func GetDB() *bun.DB {
	if f := GetDatabaseFactory(); f != nil {
		return f.GetDB()
	}
	return nil
}

// GetDatabaseManager returns the global database manager.
func GetDatabaseManager() AbstractDatabaseManager {
	if f := GetDatabaseFactory(); f != nil {
		return f.GetManager()
	}
	return nil
}

// GetDatabaseFactory returns the global database factory.
func GetDatabaseFactory() *BaseDatabaseFactory {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalFactory
}

// GetConfig returns the configuration InitDB was called with.
func GetConfig() *Config {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalConfig
}

// GetStartupState returns what the last InitDB startup run did.
func GetStartupState() StartupState {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalState
}

// InitDB initializes the global database from cfg and runs the startup
// lifecycle with cfg.Startup in cfg.Environment. A nil seed seeds from the
// SQL files under cfg.DataInitConfig.Filepath.
func InitDB(cfg *Config, seed SeedFunc) (*bun.DB, error) {
	return InitDBContext(context.Background(), cfg, seed)
}

// InitDBContext is InitDB with a caller supplied context.
func InitDBContext(ctx context.Context, cfg *Config, seed SeedFunc) (*bun.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration: %w", ErrNilArgument)
	}
	if seed == nil {
		seed = SQLFileSeed(cfg.DataInitConfig.Filepath, cfg.Environment)
	}

	factory := NewDatabaseFactory()
	manager, err := factory.CreateFromConfig(&cfg.ConnectionConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database manager: %w", err)
	}
	manager.SetSQLRootPath(cfg.DataInitConfig.Filepath)

	state, err := factory.InitializeDatabase(ctx, cfg.Environment, cfg.Startup, seed)
	if err != nil {
		_ = factory.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	db := manager.GetDB()
	db.RegisterModel(RegisteredModelInstances()...)

	globalMu.Lock()
	old := globalFactory
	globalFactory = factory
	globalConfig = cfg
	globalState = state
	globalMu.Unlock()

	if old != nil && old != factory {
		_ = old.Close()
	}
	return db, nil
}

// CloseDB closes the global database connection.
func CloseDB() error {
	globalMu.Lock()
	f := globalFactory
	globalFactory = nil
	globalMu.Unlock()

	if f != nil {
		return f.Close()
	}
	return nil
}

// GetHealthStatus returns the current database health status.
func GetHealthStatus(ctx context.Context) *HealthStatus {
	if f := GetDatabaseFactory(); f != nil {
		return f.GetHealthStatus(ctx)
	}
	return &HealthStatus{LastError: ErrNotConnected.Error()}
}

// GetDatabaseStats returns global database statistics.
func GetDatabaseStats() *DBStats {
	if f := GetDatabaseFactory(); f != nil {
		return f.GetStats()
	}
	return &DBStats{}
}

// RunMigrations applies pending migrations on the global database.
func RunMigrations(ctx context.Context) error {
	manager := GetDatabaseManager()
	if manager == nil {
		return ErrNotConnected
	}
	return manager.RunMigrations(ctx)
}

// InitData seeds the global database from SQL files for the configured
// environment.
func InitData(ctx context.Context) error {
	manager := GetDatabaseManager()
	if manager == nil {
		return ErrNotConnected
	}
	env := DefaultConfig().Environment
	if cfg := GetConfig(); cfg != nil {
		env = cfg.Environment
	}
	return manager.InitData(ctx, env)
}
