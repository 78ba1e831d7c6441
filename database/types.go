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
	"database/sql"
	"time"

	"github.com/tomoncle/crudkit/types"
	"github.com/uptrace/bun"
)

// Store is the part of a database manager the startup lifecycle drives.
type Store interface {
	GetDB() *bun.DB
	EnsureDeleted(ctx context.Context) error
	EnsureCreated(ctx context.Context) error
	RunMigrations(ctx context.Context) error
}

// AbstractDatabaseManager defines the operations for managing a database
// connection, its schema lifecycle, and reporting health.
type AbstractDatabaseManager interface {
	Store
	Connect(ctx context.Context) error
	Disconnect() error
	Reconnect(ctx context.Context) error
	Ping(ctx context.Context) error
	HealthCheck(ctx context.Context) *HealthStatus
	GetSQLDB() *sql.DB
	InitData(ctx context.Context, environment types.Environment) error
	GetStats() *DBStats
	SetLogger(logger Logger)
	SetModelRegistry(registry ModelRegistry)
	SetMigrationRegistry(registry MigrationRegistry)
	SetSQLRootPath(path string)
}

// AbstractDatabaseConfigProvider exposes configuration loading.
type AbstractDatabaseConfigProvider interface {
	ConfigLoader() *Config
}

// HealthStatus holds the result of a health check against the database.
type HealthStatus struct {
	Healthy       bool          `json:"healthy"`
	Connected     bool          `json:"connected"`
	ResponseTime  time.Duration `json:"response_time"`
	ActiveConns   int           `json:"active_conns"`
	IdleConns     int           `json:"idle_conns"`
	MaxOpenConns  int           `json:"max_open_conns"`
	LastError     string        `json:"last_error,omitempty"`
	LastCheckTime time.Time     `json:"last_check_time"`
}

// DBStats mirrors database/sql stats returned by the manager.
type DBStats struct {
	MaxOpenConns      int           `json:"max_open_conns"`
	OpenConns         int           `json:"open_conns"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxIdleTimeClosed int64         `json:"max_idle_time_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
}

// ConnectionConfig describes how to connect to a database and tune its pool.
type ConnectionConfig struct {
	Type                string        `json:"type" yaml:"type"` // mysql, postgres, pgx, sqlite
	Host                string        `json:"host" yaml:"host"`
	Port                int           `json:"port" yaml:"port"`
	Username            string        `json:"username" yaml:"username"`
	Password            string        `json:"password" yaml:"password"`
	DBName              string        `json:"dbname" yaml:"dbname"`
	DSN                 string        `json:"dsn" yaml:"dsn"` // overrides the fields above when set
	SSLMode             string        `json:"sslmode" yaml:"sslmode"`
	MaxIdleConns        int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	MaxOpenConns        int           `json:"max_open_conns" yaml:"max_open_conns"`
	ConnMaxLifetime     time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime     time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	ConnectTimeout      time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	ReadTimeout         time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout        time.Duration `json:"write_timeout" yaml:"write_timeout"`
	EnableReconnect     bool          `json:"enable_reconnect" yaml:"enable_reconnect"`
	ReconnectInterval   time.Duration `json:"reconnect_interval" yaml:"reconnect_interval"`
	MaxReconnectTries   int           `json:"max_reconnect_tries" yaml:"max_reconnect_tries"`
	HealthCheckInterval time.Duration `json:"health_check_interval" yaml:"health_check_interval"`
	EnableQueryLog      bool          `json:"enable_query_log" yaml:"enable_query_log"`
	EnableMetrics       bool          `json:"enable_metrics" yaml:"enable_metrics"`
	SlowQueryTime       time.Duration `json:"slow_query_time" yaml:"slow_query_time"`
}

// StartupOptions are the four switches of the startup lifecycle.
type StartupOptions struct {
	ApplyMigrations bool `json:"apply_migrations" yaml:"apply_migrations"`
	EnsureCreated   bool `json:"ensure_created" yaml:"ensure_created"`
	DropDatabase    bool `json:"drop_database" yaml:"drop_database"`
	SeedDatabase    bool `json:"seed_database" yaml:"seed_database"`
}

// Any reports whether at least one startup step is enabled.
func (o StartupOptions) Any() bool {
	return o.ApplyMigrations || o.EnsureCreated || o.DropDatabase || o.SeedDatabase
}

// DataInitConfig controls SQL file seeding.
type DataInitConfig struct {
	Filepath string `json:"filepath" yaml:"filepath"`
}

// Config aggregates connection, startup, and data initialization settings.
type Config struct {
	Environment      types.Environment `json:"environment" yaml:"environment"`
	ConnectionConfig ConnectionConfig  `json:"connection_config" yaml:"connection"`
	Startup          StartupOptions    `json:"startup" yaml:"startup"`
	DataInitConfig   DataInitConfig    `json:"data_init_config" yaml:"data_init"`
}

// DefaultConnectionConfig returns a connection config with sensible defaults.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		MaxIdleConns:        10,
		MaxOpenConns:        100,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     time.Minute * 30,
		ConnectTimeout:      time.Second * 10,
		ReadTimeout:         time.Second * 30,
		WriteTimeout:        time.Second * 30,
		EnableReconnect:     true,
		ReconnectInterval:   time.Second * 5,
		MaxReconnectTries:   3,
		HealthCheckInterval: time.Minute * 5,
		EnableQueryLog:      false,
		SlowQueryTime:       time.Second * 2,
	}
}

// DefaultConfig returns a production config with default pool settings and
// every startup step disabled.
func DefaultConfig() *Config {
	return &Config{
		Environment:      types.Production,
		ConnectionConfig: *DefaultConnectionConfig(),
		DataInitConfig:   DataInitConfig{Filepath: "configs/sql"},
	}
}
