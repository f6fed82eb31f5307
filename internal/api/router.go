package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	mw "github.com/kiranshivaraju/labelscan/internal/api/middleware"
	"github.com/kiranshivaraju/labelscan/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler
	SignupHandler  http.HandlerFunc
	LoginHandler   http.HandlerFunc

	CreateScan    http.HandlerFunc
	ListScans     http.HandlerFunc
	DeleteScan    http.HandlerFunc
	ClearScans    http.HandlerFunc
	ScanSocket    http.HandlerFunc
	LookupHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public routes
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Post("/api/v1/auth/signup", orNotImplemented(deps.SignupHandler))
	r.Post("/api/v1/auth/login", orNotImplemented(deps.LoginHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/scans", orNotImplemented(deps.CreateScan))
		r.Get("/api/v1/scans", orNotImplemented(deps.ListScans))
		r.Delete("/api/v1/scans", orNotImplemented(deps.ClearScans))
		r.Get("/api/v1/scans/ws", orNotImplemented(deps.ScanSocket))
		r.Delete("/api/v1/scans/{scanID}", orNotImplemented(deps.DeleteScan))

		r.Get("/api/v1/ingredients/{name}", orNotImplemented(deps.LookupHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
