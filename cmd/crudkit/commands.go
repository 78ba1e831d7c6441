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

package main

import (
	"github.com/spf13/cobra"
	"github.com/tomoncle/crudkit/database"
)

func (c *cli) startupCmd() *cobra.Command {
	var drop, create, migrate, seed bool

	cmd := &cobra.Command{
		Use:   "startup",
		Short: "Run the startup lifecycle (drop, create, migrate, seed) from config and flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("drop") {
				cfg.Startup.DropDatabase = drop
			}
			if flags.Changed("create") {
				cfg.Startup.EnsureCreated = create
			}
			if flags.Changed("migrate") {
				cfg.Startup.ApplyMigrations = migrate
			}
			if flags.Changed("seed") {
				cfg.Startup.SeedDatabase = seed
			}

			c.log.WithField("environment", cfg.Environment).Info("running database startup")
			if _, err := database.InitDBContext(cmd.Context(), cfg, nil); err != nil {
				c.log.WithError(err).Error("database startup failed")
				return err
			}
			defer func() { _ = database.CloseDB() }()
			return c.print(database.GetStartupState())
		},
	}
	cmd.Flags().BoolVar(&drop, "drop", false, "drop all tables first (development only)")
	cmd.Flags().BoolVar(&create, "create", false, "create missing tables")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations")
	cmd.Flags().BoolVar(&seed, "seed", false, "seed from SQL files (development only)")
	return cmd
}

func (c *cli) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			factory, err := c.connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = factory.Close() }()

			if err := factory.GetManager().RunMigrations(cmd.Context()); err != nil {
				c.log.WithError(err).Error("migration failed")
				return err
			}
			return c.printApplied(cmd, factory)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			factory, err := c.connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = factory.Close() }()
			return c.printApplied(cmd, factory)
		},
	})
	return cmd
}

func (c *cli) printApplied(cmd *cobra.Command, factory *database.BaseDatabaseFactory) error {
	mm := database.NewMigrationManager(factory.GetDB(), nil, database.GetLogger())
	applied, err := mm.GetAppliedMigrations(cmd.Context())
	if err != nil {
		return err
	}
	return c.print(applied)
}

func (c *cli) seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the database from SQL files (development only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			factory, err := c.connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = factory.Close() }()

			state, err := database.Startup(cmd.Context(), factory.GetManager(), cfg.Environment,
				database.StartupOptions{SeedDatabase: true},
				database.SQLFileSeed(cfg.DataInitConfig.Filepath, cfg.Environment))
			if err != nil {
				c.log.WithError(err).Error("seeding failed")
				return err
			}
			return c.print(state)
		},
	}
}

func (c *cli) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check database connectivity and pool statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			factory, err := c.connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = factory.Close() }()

			status := factory.GetHealthStatus(cmd.Context())
			if err := c.print(struct {
				Health database.HealthStatus `json:"health"`
				Stats  database.DBStats      `json:"stats"`
			}{*status, *factory.GetStats()}); err != nil {
				return err
			}
			if !status.Healthy {
				return database.ErrNotConnected
			}
			return nil
		},
	}
}
