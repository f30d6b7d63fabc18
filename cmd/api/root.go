package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/storefront/storefront-go/internal/config"
	"github.com/storefront/storefront-go/internal/logging"
)

// app is the state shared by the subcommands once configuration is loaded.
type app struct {
	cfg config.Config
}

// NewRootCmd creates the root command. Without a subcommand it serves HTTP.
func NewRootCmd() *cobra.Command {
	a := &app{}
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:          "storefront",
		Short:        "Storefront API - accounts and catalogue categories",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context(), *opts)
		},
	}
	opts.register(cmd)

	cmd.AddCommand(a.newServeCmd())
	cmd.AddCommand(a.newMigrateCmd())
	cmd.AddCommand(a.newSeedCmd())

	return cmd
}

func (a *app) init() error {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	logging.SetDefault("storefront", version, cfg.LogFormat, cfg.LogLevel)
	return nil
}
