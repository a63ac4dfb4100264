package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/herderhub/herderhub-api/internal/api/handlers"
	"github.com/herderhub/herderhub-api/internal/auth"
	"github.com/herderhub/herderhub-api/internal/config"
	"github.com/herderhub/herderhub-api/internal/metrics"
	"github.com/herderhub/herderhub-api/internal/middleware"
	"github.com/herderhub/herderhub-api/internal/services"
)

type RouterDeps struct {
	Cfg        config.Config
	Tokens     *auth.TokenManager
	Users      *services.UserService
	Payments   *services.PaymentService
	Reconciler *services.Reconciler
	Txns       *services.TransactionService
	Logger     *slog.Logger
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover, middleware.HTTPMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	authMW := middleware.NewAuthMiddleware(d.Tokens, d.Cfg.Env)
	authH := handlers.NewAuthHandler(d.Users)
	txH := handlers.NewTransactionHandler(d.Txns)
	mpH := handlers.NewMpesaHandler(d.Payments, d.Reconciler, d.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		// Daraja cannot authenticate and posts from a few fixed IPs, so the
		// callback is neither authenticated nor rate limited.
		r.Post("/mpesa/callback", mpH.Callback)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(d.Cfg.RateRPS))

			r.Post("/auth/register", authH.Register)
			r.Post("/auth/login", authH.Login)
			r.Post("/auth/refresh", authH.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(authMW.Auth)

				r.Post("/mpesa/stkpush", mpH.STKPush)
				r.Get("/mpesa/transaction-status/{checkoutRequestId}", mpH.TransactionStatus)

				r.Post("/transactions", txH.Create)
				r.Get("/transactions/user", txH.ListMine)
				r.Get("/transactions/{id}", txH.Get)
				r.Patch("/transactions/{id}", txH.Patch)
				r.With(middleware.RequireRole(services.RoleAdmin)).Get("/transactions", txH.ListAll)
			})
		})
	})

	return r
}
