package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/tokenops/capguard/app"
	"github.com/tokenops/capguard/handlers"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	transferHandler := handlers.NewTransferHandler(deps.GuardService, deps.Logger)
	governanceHandler := handlers.NewGovernanceHandler(deps.GovernanceService, deps.Logger)
	auditHandler := handlers.NewAuditHandler(deps.AuditEvents, deps.Logger)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", healthHandler.HandleLiveness)
	r.Get("/readyz", healthHandler.HandleReadiness)

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Transfer evaluation (called by the ledger integration)
		r.Route("/transfers", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Post("/check", transferHandler.HandleCheckTransfer)
			r.Post("/apply", transferHandler.HandleApplyTransfer)
		})

		// Policy governance
		r.Route("/policies", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Post("/", governanceHandler.HandleInitializePolicy)
			r.Get("/{token}", governanceHandler.HandleGetPolicy)
			r.Post("/{token}/cap/propose", governanceHandler.HandleProposeCap)
			r.Post("/{token}/cap/execute", governanceHandler.HandleExecuteCapUpdate)
			r.Post("/{token}/cap/cancel", governanceHandler.HandleCancelCapUpdate)
			r.Post("/{token}/authority", governanceHandler.HandleRotateAuthority)
			r.Post("/{token}/migrate", governanceHandler.HandleMigrate)
		})

		// Audit trail
		r.Route("/audit", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Get("/events", auditHandler.HandleListEvents)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
