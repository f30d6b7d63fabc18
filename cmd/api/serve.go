package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/storefront/storefront-go/internal/handler"
	"github.com/storefront/storefront-go/internal/mailer"
	"github.com/storefront/storefront-go/internal/metrics"
	"github.com/storefront/storefront-go/internal/repository"
	"github.com/storefront/storefront-go/internal/service"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	inMemory bool
	migrate  bool
}

func (o *serveOptions) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.inMemory, "in-memory", false, "use process-local stores instead of MySQL (data is lost on exit)")
	cmd.Flags().BoolVar(&o.migrate, "migrate", false, "apply pending migrations before serving")
}

func (a *app) newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context(), *opts)
		},
	}
	opts.register(cmd)
	return cmd
}

// stores bundles the persistence backends chosen at startup.
type stores struct {
	users      service.UserStore
	categories service.CategoryStore
	db         *sql.DB
}

func (s stores) Close() {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Error("closing database", "error", err)
		}
	}
}

func (a *app) openStores(ctx context.Context, opts serveOptions) (stores, error) {
	if opts.inMemory {
		s := stores{
			users:      repository.NewMemoryUserRepository(),
			categories: repository.NewMemoryCategoryRepository(),
		}
		return s, a.seed(ctx, s)
	}

	db, err := repository.NewDB(a.cfg.DatabaseDSN)
	if err != nil {
		return stores{}, err
	}

	if opts.migrate {
		if err := repository.Migrate(ctx, db, "up"); err != nil {
			db.Close()
			return stores{}, err
		}
	}

	return stores{
		users:      repository.NewUserRepository(db),
		categories: repository.NewCategoryRepository(db),
		db:         db,
	}, nil
}

// notifier returns the SMTP mailer, or a LogMailer when SMTP is not configured.
func (a *app) notifier() (service.Notifier, func(), error) {
	if a.cfg.SMTPHost == "" {
		slog.Warn("SMTP_HOST not set, emails will be logged instead of sent")
		return mailer.LogMailer{FrontendURL: a.cfg.FrontendURL}, func() {}, nil
	}

	m, err := mailer.New(mailer.Config{
		Host:        a.cfg.SMTPHost,
		Port:        a.cfg.SMTPPort,
		Username:    a.cfg.SMTPUser,
		Password:    a.cfg.SMTPPass,
		From:        a.cfg.MailFrom,
		FrontendURL: a.cfg.FrontendURL,
		Timeout:     a.cfg.MailTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	return m, m.Close, nil
}

func (a *app) serve(ctx context.Context, opts serveOptions) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := a.openStores(ctx, opts)
	if err != nil {
		return err
	}
	defer st.Close()

	notifier, closeNotifier, err := a.notifier()
	if err != nil {
		return err
	}
	defer closeNotifier()

	m := metrics.New()

	authService := service.NewAuthService(st.users, notifier, service.AuthConfig{
		JWTSecret:     a.cfg.JWTSecret,
		JWTExpiry:     a.cfg.JWTExpiry,
		ResetTokenTTL: a.cfg.ResetTokenTTL,
		MailTimeout:   a.cfg.MailTimeout,
		Metrics:       m,
	})
	defer authService.Wait()

	srv := &http.Server{
		Addr: ":" + a.cfg.Port,
		Handler: handler.NewRouter(handler.RouterConfig{
			Auth:        authService,
			Categories:  service.NewCategoryService(st.categories),
			JWTSecret:   a.cfg.JWTSecret,
			Metrics:     m,
			CORSOrigins: a.cfg.CORSOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", a.cfg.Port, "env", a.cfg.Env, "in_memory", opts.inMemory)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
		return err
	}

	slog.Info("server stopped, draining outgoing email")
	return nil
}
