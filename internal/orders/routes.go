package orders

import (
	"github.com/go-chi/chi/v5"
)

// MountClientRoutes attaches the client-facing order routes. The caller wraps
// them with the CLIENT role requirement.
func (h *Handler) MountClientRoutes(r chi.Router) {
	r.Post("/orders", h.Create)
	r.Get("/orders", h.List)
	r.Get("/orders/{id}", h.Show)
	r.Post("/orders/{id}/submit", h.Submit)
	r.Post("/orders/{id}/cancel", h.Cancel)
}

// MountAccountantRoutes attaches the accountant order routes.
func (h *Handler) MountAccountantRoutes(r chi.Router) {
	r.Get("/orders", h.Search)
	r.Get("/orders/{id}", h.ShowAny)
	r.Patch("/orders/{id}/status", h.UpdateStatus)
	r.Post("/orders/bulk-status", h.BulkUpdateStatus)
	r.Get("/dashboard", h.Dashboard)
}
