package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/taxdesk/taxdesk/internal/documents"
	"github.com/taxdesk/taxdesk/internal/extraction"
	"github.com/taxdesk/taxdesk/internal/observability"
	"github.com/taxdesk/taxdesk/internal/orders"
	"github.com/taxdesk/taxdesk/internal/shared"
	"github.com/taxdesk/taxdesk/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	OrdersHandler     *orders.Handler
	DocumentsHandler  *documents.Handler
	ExtractionHandler *extraction.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with TaxDesk defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Vendor callbacks authenticate nothing; the handler drops what it
		// cannot match.
		params.ExtractionHandler.MountWebhookRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(shared.RequireRole(shared.RoleClient))
			params.OrdersHandler.MountClientRoutes(r)
			params.DocumentsHandler.MountClientRoutes(r)
			params.ExtractionHandler.MountClientRoutes(r)
		})

		r.Route("/accountant", func(r chi.Router) {
			r.Use(shared.RequireRole(shared.RoleAccountant))
			params.OrdersHandler.MountAccountantRoutes(r)
			params.ExtractionHandler.MountAccountantRoutes(r)
		})
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
