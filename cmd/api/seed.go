package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/storefront/storefront-go/internal/repository"
	"github.com/storefront/storefront-go/internal/service"
)

const defaultSeedTimeout = 30 * time.Second

func (a *app) newSeedCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the admin account and default categories",
		Long: `Creates the admin account from SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD and
the default catalogue categories. Existing rows are left untouched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			db, err := repository.NewDB(a.cfg.DatabaseDSN)
			if err != nil {
				return err
			}
			defer db.Close()

			return a.seed(ctx, stores{
				users:      repository.NewUserRepository(db),
				categories: repository.NewCategoryRepository(db),
			})
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")
	return cmd
}

func (a *app) seed(ctx context.Context, st stores) error {
	seeder := service.NewSeeder(st.users, st.categories)

	if _, err := seeder.SeedAdmin(ctx, a.cfg.SeedAdminEmail, a.cfg.SeedAdminPassword, "Store", "Admin"); err != nil {
		return err
	}
	_, err := seeder.SeedCategories(ctx)
	return err
}
