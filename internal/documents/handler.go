package documents

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/taxdesk/taxdesk/internal/platform/httpx"
	"github.com/taxdesk/taxdesk/internal/shared"
)

const maxUploadBytes = 25 << 20 // 25 MiB

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountClientRoutes(r chi.Router) {
	r.Post("/orders/{orderID}/documents", h.Upload)
	r.Get("/orders/{orderID}/documents", h.List)
	r.Get("/orders/{orderID}/documents/{documentID}/download", h.Download)
	r.Delete("/orders/{orderID}/documents/{documentID}", h.Delete)
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "file part is required")
		return
	}
	defer file.Close()

	req := UploadRequest{
		OriginalFileName: header.Filename,
		MimeType:         header.Header.Get("Content-Type"),
	}
	if st := r.FormValue("slip_type"); st != "" {
		req.SlipType = &st
	}

	doc, err := h.service.Upload(r.Context(), id.UserID, orderID, req, file)
	if err != nil {
		h.logger.Error("document upload failed", "order_id", orderID, "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}

	docs, err := h.service.ListByOrder(r.Context(), id.UserID, orderID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if docs == nil {
		docs = []Document{}
	}
	httpx.JSON(w, http.StatusOK, docs)
}

func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
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

	doc, rc, err := h.service.Download(r.Context(), id.UserID, orderID, documentID)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("document download failed", "document_id", documentID, "error", err)
		}
		httpx.RespondError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", doc.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.OriginalFileName))
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("document stream interrupted", "document_id", documentID, "error", err)
	}
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
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

	if err := h.service.Delete(r.Context(), id.UserID, orderID, documentID); err != nil {
		h.logger.Error("document delete failed", "document_id", documentID, "error", err)
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
