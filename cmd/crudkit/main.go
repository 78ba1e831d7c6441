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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tomoncle/crudkit/database"
	"github.com/tomoncle/crudkit/types"
	"github.com/tomoncle/crudkit/utils"
)

type cli struct {
	configPath string
	env        string
	format     string
	stdout     io.Writer
	log        *logrus.Entry
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{
		configPath: utils.EnvDefaultString("CRUDKIT_CONFIG", ""),
		format:     "text",
	}

	root := &cobra.Command{
		Use:          "crudkit",
		Short:        "Database lifecycle tooling: startup, migrations, seeding and health checks",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.format != "json" && c.format != "text" {
				return fmt.Errorf("invalid --out %q: want json or text", c.format)
			}
			c.stdout = cmd.OutOrStdout()
			c.log = utils.NewLogger("CRUDKIT").WithField("run_id", uuid.NewString())
			database.InitLogger(database.NewDefaultLogger(utils.NewLogger("DATABASE")))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", c.configPath, "YAML config file (env CRUDKIT_CONFIG)")
	root.PersistentFlags().StringVar(&c.env, "env", "", "environment override: development|staging|production (env APP_ENV)")
	root.PersistentFlags().StringVar(&c.format, "out", c.format, "output format: json|text")

	root.AddCommand(
		c.startupCmd(),
		c.migrateCmd(),
		c.seedCmd(),
		c.healthCmd(),
	)
	return root
}

func (c *cli) loadConfig() (*database.Config, error) {
	cfg, err := database.LoadConfig(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.env != "" {
		cfg.Environment = types.ParseEnvironment(c.env)
	}
	return cfg, nil
}

// connect builds a manager from cfg and opens its connection.
func (c *cli) connect(ctx context.Context, cfg *database.Config) (*database.BaseDatabaseFactory, error) {
	factory := database.NewDatabaseFactory()
	manager, err := factory.CreateFromConfig(&cfg.ConnectionConfig)
	if err != nil {
		return nil, err
	}
	manager.SetSQLRootPath(cfg.DataInitConfig.Filepath)
	if err := manager.Connect(ctx); err != nil {
		return nil, err
	}
	return factory, nil
}

func (c *cli) print(v interface{}) error {
	if c.format == "json" {
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintf(c.stdout, "%+v\n", v)
	return err
}
