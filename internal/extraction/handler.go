package extraction

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/taxdesk/taxdesk/internal/platform/httpx"
	"github.com/taxdesk/taxdesk/internal/shared"
)

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

func (h *Handler) MountClientRoutes(r chi.Router) {
	r.Get("/orders/{orderID}/extractions", h.ShowOwned)
}

func (h *Handler) MountAccountantRoutes(r chi.Router) {
	r.Get("/orders/{orderID}/extractions", h.Show)
	r.Post("/orders/{orderID}/documents/{documentID}/retry-extraction", h.Retry)
	r.Put("/documents/{documentID}/extraction", h.Override)
	r.Get("/documents/{documentID}/extraction/history", h.History)
}

// MountWebhookRoutes is mounted outside the authenticated API surface.
func (h *Handler) MountWebhookRoutes(r chi.Router) {
	r.Post("/webhooks/ocr", h.Webhook)
}

func (h *Handler) ShowOwned(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}

	agg, err := h.service.OwnedOrderExtractions(r.Context(), id.UserID, orderID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, agg)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}

	agg, err := h.service.OrderExtractions(r.Context(), orderID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, agg)
}

func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	documentID, err := uuid.Parse(chi.URLParam(r, "documentID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return
	}

	res, err := h.service.RetryFailed(r.Context(), orderID, documentID)
	if err != nil && res == nil {
		httpx.RespondError(w, err)
		return
	}
	// A retry that failed again still answers with the FAILED result; the
	// outcome lives on the row, not in the HTTP status.
	if err != nil {
		h.logger.Warn("extraction retry failed", "document_id", documentID, "error", err)
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) Override(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	documentID, err := uuid.Parse(chi.URLParam(r, "documentID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return
	}

	var req OverrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	res, err := h.service.Override(r.Context(), id.UserID, documentID, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	documentID, err := uuid.Parse(chi.URLParam(r, "documentID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return
	}

	overrides, err := h.service.OverrideHistory(r.Context(), documentID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, overrides)
}

// Webhook always acknowledges with 200: the vendor retries on anything else,
// and a malformed or unknown callback is not something a retry can fix.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var payload WebhookPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		h.logger.Warn("undecodable webhook body dropped", "error", err)
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if err := h.service.ProcessCallback(r.Context(), payload); err != nil {
		h.logger.Error("webhook processing failed", "error", err)
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
