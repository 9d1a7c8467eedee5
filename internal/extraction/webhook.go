package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/taxdesk/taxdesk/internal/extraction/ocr"
	"github.com/taxdesk/taxdesk/internal/shared"
)

// WebhookPayload is the vendor's async callback body. Some vendor versions put
// the request id at the top level, others only inside the first result entry.
type WebhookPayload struct {
	Message       string             `json:"message,omitempty"`
	RequestFileID string             `json:"request_file_id,omitempty"`
	Results       []ocr.SubmitResult `json:"result,omitempty"`
}

func (p WebhookPayload) requestID() string {
	if p.RequestFileID != "" {
		return p.RequestFileID
	}
	if len(p.Results) > 0 {
		return p.Results[0].RequestFileID
	}
	return ""
}

// ProcessCallback reconciles a vendor webhook with the matching extraction
// result. Unknown or missing request ids are logged and dropped; replays for
// an already-finished result are no-ops. A vendor-reported error lands on the
// result row as FAILED; anything else completes it, predictions or not.
// Callers acknowledge the vendor regardless of outcome.
func (s *Service) ProcessCallback(ctx context.Context, payload WebhookPayload) error {
	requestID := payload.requestID()
	if requestID == "" {
		s.logger.Warn("webhook without request id dropped", "message", payload.Message)
		return nil
	}

	res, err := s.repo.GetByVendorRequestID(ctx, requestID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("webhook for unknown request id dropped", "vendor_request_id", requestID)
			return nil
		}
		return fmt.Errorf("resolve webhook request id: %w", err)
	}
	if res.Status.Terminal() {
		s.logger.Info("webhook replay ignored",
			"vendor_request_id", requestID, "result_id", res.ID, "status", res.Status)
		return nil
	}

	if vendorFailed(payload) {
		msg := payload.Message
		if msg == "" {
			msg = "vendor reported a failed extraction"
		}
		_, _ = s.fail(ctx, res, fmt.Errorf("%w: %s", shared.ErrUpstream, msg))
		s.logger.Warn("webhook marked extraction failed",
			"result_id", res.ID, "vendor_request_id", requestID, "reason", msg)
	} else {
		// A callback with no predictions still completes: FAILED is reserved
		// for an explicit vendor error, and an empty document legitimately
		// extracts to nothing.
		predictions := flattenPredictions(payload.Results)
		resp := &ocr.SubmitResponse{Message: payload.Message, Results: payload.Results}
		if _, err := s.complete(ctx, res, predictions, resp); err != nil {
			s.logger.Error("webhook completion failed", "result_id", res.ID, "error", err)
			_, _ = s.fail(ctx, res, err)
		}
	}

	return s.CheckOrderCompletion(ctx, res.OrderID)
}

func vendorFailed(p WebhookPayload) bool {
	for _, r := range p.Results {
		if strings.EqualFold(r.Status, "error") || strings.EqualFold(r.Status, "failed") {
			return true
		}
	}
	return false
}
