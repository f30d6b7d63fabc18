package main

import (
	"github.com/spf13/cobra"

	"github.com/storefront/storefront-go/internal/repository"
)

func (a *app) newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Run database migrations",
		Long:      `Apply (up), roll back one step (down) or list (status) the embedded MySQL migrations. Defaults to up.`,
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}

			db, err := repository.NewDB(a.cfg.DatabaseDSN)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := repository.Migrate(cmd.Context(), db, command); err != nil {
				return err
			}

			cmd.Printf("migrate %s completed\n", command)
			return nil
		},
	}
}
