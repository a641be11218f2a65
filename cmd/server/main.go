package main

import (
	"fmt"
	"os"

	"github.com/npezzotti/nodechat/internal/config"
	"github.com/npezzotti/nodechat/internal/database"
	"github.com/npezzotti/nodechat/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

var (
	configPath  string
	configFlags *pflag.FlagSet
)

func main() {
	configFlags = config.FlagSet()

	rootCmd := &cobra.Command{
		Use:          "nodechat",
		Short:        "Anonymous room-hopping chat server",
		SilenceUsage: true,
		RunE:         runServe,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().AddFlagSet(configFlags)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().Bool("migrate", false, "apply postgres migrations before serving")
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending postgres migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}

	hotCmd := &cobra.Command{
		Use:   "hot",
		Short: "Print the hot rooms ranking as JSON",
		Args:  cobra.NoArgs,
		RunE:  runHot,
	}
	hotCmd.Flags().Int("window-hours", 0, "ranking window in hours")
	hotCmd.Flags().Int("limit", 0, "maximum number of rooms")
	hotCmd.Flags().Int("min-visits", 0, "minimum visits in the window")

	rootCmd.AddCommand(serveCmd, migrateCmd, hotCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger shared by every
// subcommand.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath, configFlags)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}

	return cfg, logger, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Store.Type != config.StorePostgres {
		return fmt.Errorf("migrations only apply to the %s store, got %q", config.StorePostgres, cfg.Store.Type)
	}

	if err := database.MigratePostgres(cfg.Store.DSN); err != nil {
		return err
	}

	logger.Info("migrations applied")
	return nil
}
