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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tomoncle/crudkit/types"
	"gopkg.in/yaml.v3"
)

// LoadConfig builds a Config from defaults, an optional YAML file and the
// process environment, in that order of precedence (environment wins).
// A .env file in the working directory is loaded first when present.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides overrides configuration values from environment variables.
func (c *Config) ApplyEnvOverrides() {
	if v, ok := lookupEnv("APP_ENV"); ok {
		c.Environment = types.ParseEnvironment(v)
	}
	if v, ok := lookupEnvBool("DB_APPLY_MIGRATIONS"); ok {
		c.Startup.ApplyMigrations = v
	}
	if v, ok := lookupEnvBool("DB_ENSURE_CREATED"); ok {
		c.Startup.EnsureCreated = v
	}
	if v, ok := lookupEnvBool("DB_DROP_DATABASE"); ok {
		c.Startup.DropDatabase = v
	}
	if v, ok := lookupEnvBool("DB_SEED_DATABASE"); ok {
		c.Startup.SeedDatabase = v
	}
	if v, ok := lookupEnv("DB_SEED_PATH"); ok {
		c.DataInitConfig.Filepath = v
	}
	overrideConnectionFromEnv(&c.ConnectionConfig)
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	if c.ConnectionConfig.Type == "" {
		return fmt.Errorf("database type is required, supported types: %v", supportedTypes)
	}
	if !isSupportedType(c.ConnectionConfig.Type) {
		return fmt.Errorf("unsupported database type: %s, supported types: %v", c.ConnectionConfig.Type, supportedTypes)
	}
	return nil
}

// overrideConnectionFromEnv overrides connection values from environment variables.
func overrideConnectionFromEnv(cfg *ConnectionConfig) {
	if v, ok := lookupEnv("DB_TYPE"); ok {
		cfg.Type = strings.ToLower(v)
	}
	if v, ok := lookupEnv("DB_HOST"); ok {
		cfg.Host = v
	}
	if v, ok := lookupEnvInt("DB_PORT"); ok {
		cfg.Port = v
	}
	if v, ok := lookupEnv("DB_USERNAME"); ok {
		cfg.Username = v
	}
	if v, ok := lookupEnv("DB_PASSWORD"); ok {
		cfg.Password = v
	}
	if v, ok := lookupEnv("DB_NAME"); ok {
		cfg.DBName = v
	}
	if v, ok := lookupEnv("DB_DSN"); ok {
		cfg.DSN = v
	}
	if v, ok := lookupEnv("DB_SSLMODE"); ok {
		cfg.SSLMode = v
	}

	// Connection pool
	if v, ok := lookupEnvInt("DB_MAX_IDLE_CONNS"); ok {
		cfg.MaxIdleConns = v
	}
	if v, ok := lookupEnvInt("DB_MAX_OPEN_CONNS"); ok {
		cfg.MaxOpenConns = v
	}
	if v, ok := lookupEnvInt("DB_CONN_MAX_LIFETIME"); ok {
		cfg.ConnMaxLifetime = time.Duration(v) * time.Second
	}

	// Reconnect
	if v, ok := lookupEnvBool("DB_ENABLE_RECONNECT"); ok {
		cfg.EnableReconnect = v
	}
	if v, ok := lookupEnvInt("DB_RECONNECT_INTERVAL"); ok {
		cfg.ReconnectInterval = time.Duration(v) * time.Second
	}

	// Observability
	if v, ok := lookupEnvBool("DB_ENABLE_QUERY_LOG"); ok {
		cfg.EnableQueryLog = v
	}
	if v, ok := lookupEnvBool("DB_ENABLE_METRICS"); ok {
		cfg.EnableMetrics = v
	}
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func lookupEnvInt(key string) (int, bool) {
	if s, ok := lookupEnv(key); ok {
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
	}
	return 0, false
}

func lookupEnvBool(key string) (bool, bool) {
	if s, ok := lookupEnv(key); ok {
		if b, err := strconv.ParseBool(s); err == nil {
			return b, true
		}
	}
	return false, false
}
