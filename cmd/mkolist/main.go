package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/darianmavgo/mkolist/config"
	"github.com/darianmavgo/mkolist/importer"
	"github.com/darianmavgo/mkolist/logging"
)

type rootFlags struct {
	configPath string
	dataDir    string
	database   string
	logLevel   string
	logFormat  string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "mkolist",
		Short: "Load the Olist CSV files into a fresh SQLite database",
		Long: `mkolist deletes the destination database, creates it again and imports every
configured source file into its own table, in order.

A file that is missing or cannot be parsed is reported and skipped; the other
tables are still imported. Without --config the built-in Olist mapping is used.

Settings are layered: built-in mapping, then --config, then the environment
(MKOLIST_DATA_DIR, MKOLIST_DATABASE, MKOLIST_BATCH_SIZE, MKOLIST_LOG_LEVEL,
MKOLIST_LOG_FORMAT, also read from a .env file), then flags.

Examples:
  # Import data/*.csv into olist.db
  mkolist

  # Use another data directory and database
  mkolist --data-dir ./olist --db ./out/olist.db

  # Start from an exported specification
  mkolist export-config olist.hcl
  mkolist --config olist.hcl`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, envCfg, err := loadConfig(cmd, &flags)
			if err != nil {
				return err
			}

			level, format := envCfg.LogLevel, envCfg.LogFormat
			if cmd.Flags().Changed("log-level") {
				level = flags.logLevel
			}
			if cmd.Flags().Changed("log-format") {
				format = flags.logFormat
			}
			log := logging.WithRun(logging.Setup(level, format, stderr))
			log.Info("import started", "database", cfg.Database, "data_dir", cfg.DataDir, "tables", len(cfg.Tables))

			im, err := importer.New(cfg, stdout, log)
			if err != nil {
				return err
			}
			_, err = im.Run(cmd.Context())
			return err
		},
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "HCL import specification (default: built-in Olist mapping)")
	cmd.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "directory holding the source files")
	cmd.PersistentFlags().StringVar(&flags.database, "db", "", "destination SQLite database")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "info", "log level: debug, info, warn, error (env MKOLIST_LOG_LEVEL)")
	cmd.Flags().StringVar(&flags.logFormat, "log-format", "text", "log format: text or json (env MKOLIST_LOG_FORMAT)")

	cmd.AddCommand(newExportConfigCmd(&flags, stdout))
	return cmd
}

func newExportConfigCmd(flags *rootFlags, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "export-config <file>",
		Short: "Write the effective import specification as HCL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			if err := config.Export(args[0], cfg); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Configuration written to '%s'.\n", args[0])
			return nil
		},
	}
}

// loadConfig starts from the built-in specification or --config, applies the
// environment and then the directory and database flags, and validates the result.
func loadConfig(cmd *cobra.Command, flags *rootFlags) (*config.Config, config.Env, error) {
	_ = godotenv.Load()

	envCfg, err := config.ParseEnv()
	if err != nil {
		return nil, config.Env{}, err
	}

	cfg := config.DefaultConfig()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return nil, config.Env{}, err
		}
		cfg = loaded
	}
	envCfg.Apply(cfg)

	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = flags.dataDir
	}
	if cmd.Flags().Changed("db") {
		cfg.Database = flags.database
	}
	if err := cfg.Validate(); err != nil {
		return nil, config.Env{}, err
	}
	return cfg, envCfg, nil
}

func main() {
	cmd := newRootCmd(os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
