package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/storefront/storefront-go/internal/metrics"
	"github.com/storefront/storefront-go/internal/middleware"
	"github.com/storefront/storefront-go/internal/service"
)

// RouterConfig carries the dependencies of NewRouter.
type RouterConfig struct {
	Auth        *service.AuthService
	Categories  *service.CategoryService
	JWTSecret   string
	Metrics     *metrics.Metrics
	CORSOrigins []string
}

// NewRouter builds the HTTP routing tree.
func NewRouter(cfg RouterConfig) http.Handler {
	authHandler := NewAuthHandler(cfg.Auth)
	categoryHandler := NewCategoryHandler(cfg.Categories)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Metrics(cfg.Metrics))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", cfg.Metrics.Handler())

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Get("/verify-email", authHandler.HandleVerifyEmail)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/admin-login", authHandler.HandleAdminLogin)
		r.Post("/forgot-password", authHandler.HandleForgotPassword)
		r.Post("/reset-password", authHandler.HandleResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(cfg.JWTSecret))
			r.Post("/change-password", authHandler.HandleChangePassword)
			r.Get("/me", authHandler.HandleMe)
		})
	})

	r.Route("/api/categories", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWTSecret))
			r.Get("/", categoryHandler.HandleList)
			r.Get("/{id}", categoryHandler.HandleGet)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin(cfg.JWTSecret))
			r.Post("/", categoryHandler.HandleCreate)
			r.Put("/{id}", categoryHandler.HandleUpdate)
			r.Delete("/{id}", categoryHandler.HandleDelete)
		})
	})

	return r
}
