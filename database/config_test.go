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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/crudkit/types"
)

const testConfigYAML = `
environment: dev
connection:
  type: sqlite
  dbname: app
  max_open_conns: 5
  slow_query_time: 500ms
startup:
  ensure_created: true
  apply_migrations: true
data_init:
  filepath: seeds
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigFromYAML(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, testConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, types.Development, cfg.Environment)
	assert.Equal(t, "sqlite", cfg.ConnectionConfig.Type)
	assert.Equal(t, "app", cfg.ConnectionConfig.DBName)
	assert.Equal(t, 5, cfg.ConnectionConfig.MaxOpenConns)
	assert.Equal(t, 500*time.Millisecond, cfg.ConnectionConfig.SlowQueryTime)
	// defaults survive fields missing from the file
	assert.Equal(t, 10, cfg.ConnectionConfig.MaxIdleConns)
	assert.Equal(t, StartupOptions{EnsureCreated: true, ApplyMigrations: true}, cfg.Startup)
	assert.Equal(t, "seeds", cfg.DataInitConfig.Filepath)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DB_DROP_DATABASE", "true")
	t.Setenv("DB_APPLY_MIGRATIONS", "false")
	t.Setenv("DB_TYPE", "PGX")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_CONN_MAX_LIFETIME", "60")
	t.Setenv("DB_ENABLE_METRICS", "1")

	cfg, err := LoadConfig(writeConfig(t, testConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, types.Production, cfg.Environment)
	assert.True(t, cfg.Startup.DropDatabase)
	assert.False(t, cfg.Startup.ApplyMigrations)
	assert.True(t, cfg.Startup.EnsureCreated)
	assert.Equal(t, "pgx", cfg.ConnectionConfig.Type)
	assert.Equal(t, 6543, cfg.ConnectionConfig.Port)
	assert.Equal(t, time.Minute, cfg.ConnectionConfig.ConnMaxLifetime)
	assert.True(t, cfg.ConnectionConfig.EnableMetrics)
}

func TestLoadConfigRejectsUnknownType(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "connection:\n  type: oracle\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type")

	_, err = LoadConfig(writeConfig(t, "environment: dev\n"))
	require.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestDefaultConfigIsSafe(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, types.Production, cfg.Environment)
	assert.False(t, cfg.Startup.Any())
}
