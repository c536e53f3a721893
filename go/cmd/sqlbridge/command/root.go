// Copyright 2025 The Sqlbridge Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package command

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sqlbridge/sqlbridge/go/bridge"
	"github.com/sqlbridge/sqlbridge/go/dbconn"
	"github.com/sqlbridge/sqlbridge/go/engine"
	"github.com/sqlbridge/sqlbridge/go/pools/connpool"
)

// RootCommand holds the configuration shared by all subcommands. Flag
// values are bound to a viper instance so they can also come from
// SQLBRIDGE_* environment variables or a YAML config file.
type RootCommand struct {
	v *viper.Viper

	url            string
	username       string
	password       string
	minConns       int
	maxConns       int
	acquireTimeout time.Duration
	idleTimeout    time.Duration
	maxLifetime    time.Duration
	logLevel       string
	configFile     string
	dumpConfig     bool
}

// GetRootCommand builds the root command with all subcommands attached.
func GetRootCommand() *cobra.Command {
	rc := &RootCommand{v: viper.New()}

	root := &cobra.Command{
		Use:   "sqlbridge",
		Short: "Asynchronous SQL client utilities",
		Long: `sqlbridge exercises the sqlbridge client library against a live SQL
server: check connectivity, run a bench workload, dump the effective
configuration.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rc.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&rc.url, "url", "postgres://localhost:5432/postgres", "connection URL (postgres://, pgx://, sqlite3://)")
	flags.StringVar(&rc.username, "username", "", "username, overrides the URL's credentials")
	flags.StringVar(&rc.password, "password", "", "password, overrides the URL's credentials")
	flags.IntVar(&rc.minConns, "min-conns", 1, "connections opened eagerly at startup")
	flags.IntVar(&rc.maxConns, "max-conns", 10, "maximum open connections")
	flags.DurationVar(&rc.acquireTimeout, "acquire-timeout", 30*time.Second, "how long to wait for a free connection, 0 fails immediately")
	flags.DurationVar(&rc.idleTimeout, "idle-timeout", 10*time.Minute, "close connections idle longer than this, 0 disables")
	flags.DurationVar(&rc.maxLifetime, "max-lifetime", 30*time.Minute, "close connections older than this, 0 disables")
	flags.StringVar(&rc.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&rc.configFile, "config", "", "YAML config file")
	flags.BoolVar(&rc.dumpConfig, "dump-config", false, "print the effective configuration as YAML and exit")

	if err := rc.v.BindPFlags(flags); err != nil {
		panic(err)
	}

	root.AddCommand(rc.pingCommand())
	root.AddCommand(rc.benchCommand())
	return root
}

// setup wires viper sources, installs the slog handler and handles
// --dump-config.
func (rc *RootCommand) setup(cmd *cobra.Command) error {
	rc.v.SetEnvPrefix("SQLBRIDGE")
	rc.v.AutomaticEnv()

	if rc.configFile != "" {
		rc.v.SetConfigFile(rc.configFile)
		if err := rc.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
	}

	// Re-read everything through viper so env and file values win over
	// flag defaults but not over flags set on the command line.
	rc.url = rc.v.GetString("url")
	rc.username = rc.v.GetString("username")
	rc.password = rc.v.GetString("password")
	rc.minConns = rc.v.GetInt("min-conns")
	rc.maxConns = rc.v.GetInt("max-conns")
	rc.acquireTimeout = rc.v.GetDuration("acquire-timeout")
	rc.idleTimeout = rc.v.GetDuration("idle-timeout")
	rc.maxLifetime = rc.v.GetDuration("max-lifetime")
	rc.logLevel = rc.v.GetString("log-level")

	var level slog.Level
	if err := level.UnmarshalText([]byte(rc.logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", rc.logLevel, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if rc.dumpConfig {
		if err := rc.printEffectiveConfig(cmd); err != nil {
			return err
		}
		os.Exit(0)
	}
	return nil
}

// printEffectiveConfig renders the merged configuration as YAML. The
// password is masked.
func (rc *RootCommand) printEffectiveConfig(cmd *cobra.Command) error {
	effective := map[string]any{
		"url":             rc.url,
		"username":        rc.username,
		"password":        mask(rc.password),
		"min-conns":       rc.minConns,
		"max-conns":       rc.maxConns,
		"acquire-timeout": rc.acquireTimeout.String(),
		"idle-timeout":    rc.idleTimeout.String(),
		"max-lifetime":    rc.maxLifetime.String(),
		"log-level":       rc.logLevel,
	}
	out, err := yaml.Marshal(effective)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), string(out))
	return err
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

// engineConfig translates the CLI configuration into the library's.
func (rc *RootCommand) engineConfig() engine.Config {
	return engine.Config{
		Params: dbconn.Params{
			URL:      rc.url,
			Username: rc.username,
			Password: rc.password,
		},
		Pool: &connpool.Config{
			Name:           "sqlbridge",
			MinConns:       rc.minConns,
			Capacity:       rc.maxConns,
			AcquireTimeout: rc.acquireTimeout,
			IdleTimeout:    rc.idleTimeout,
			MaxLifetime:    rc.maxLifetime,
			Logger:         slog.Default(),
		},
	}
}

// openClient connects and logs how long the dial took.
func (rc *RootCommand) openClient(ctx context.Context) (*bridge.Client, error) {
	start := time.Now()
	client, err := bridge.Open(ctx, rc.engineConfig())
	if err != nil {
		return nil, err
	}
	slog.Info("connected", "url", rc.url, "dial_time", time.Since(start))
	return client, nil
}
