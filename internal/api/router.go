package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gantry-app/gantry/internal/auth"
	"github.com/gantry-app/gantry/internal/config"
	"github.com/gantry-app/gantry/internal/metrics"
)

// Pinger reports backing-store liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Sessions SessionService
	Accounts auth.AccountLookup
	Issuer   *auth.Issuer
	Resolver AccessService
	Projects ProjectWriter
	Metrics  *metrics.Metrics
	Config   *config.Config
	DB       Pinger
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.Config.CORS.AllowedOrigins))
	r.Use(slogRequestLogger)
	r.Use(metricsMiddleware(deps.Metrics))

	// Handlers.
	authh := newAuthHandler(deps.Sessions, deps.Config.Auth, deps.Metrics)
	resources := newResourcesHandler(deps.Resolver, deps.Projects, deps.Metrics)

	authenticate := auth.Middleware(deps.Issuer, deps.Accounts, deps.Config.Auth.AccessCookieName)

	// Health check with a bounded DB ping.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := deps.DB.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "unavailable", "database unreachable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Prometheus exposition.
	r.Handle("/metrics", deps.Metrics.Handler())

	// Authentication boundary.
	r.Route("/api/v1/auth", func(ar chi.Router) {
		ar.Post("/register", authh.Register)
		ar.Post("/login", authh.Login)
		ar.Post("/refresh", authh.Refresh)
		ar.Post("/logout", authh.Logout)
		ar.Get("/verify-email", authh.VerifyEmail)
		ar.Post("/forgot-password", authh.ForgotPassword)
		ar.Post("/reset-password", authh.ResetPassword)

		ar.Group(func(pr chi.Router) {
			pr.Use(authenticate)
			pr.Use(auth.RequireActive)
			pr.Get("/me", authh.Me)
			pr.Post("/send-verification-email", authh.SendVerificationEmail)
		})
	})

	// Protected resource reads, all through access resolution.
	r.Route("/api/v1", func(pr chi.Router) {
		pr.Use(authenticate)
		pr.Use(auth.RequireActive)

		pr.Get("/organizations/{id}", resources.GetOrganization)
		pr.Get("/projects/{id}", resources.GetProject)
		pr.Delete("/projects/{id}", resources.DeleteProject)
		pr.Get("/tasks/{id}", resources.GetTask)
		pr.Get("/assignments/{id}", resources.GetAssignment)
	})

	return r
}
