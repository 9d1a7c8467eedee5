package extraction

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taxdesk/taxdesk/internal/extraction/ocr"
	"github.com/taxdesk/taxdesk/internal/orders"
)

func (f *fixture) seedProcessing(t *testing.T, orderID uuid.UUID, requestID string) *Result {
	t.Helper()
	doc := f.seedDocument(orderID)
	f.client.async = true
	f.client.responses[doc.ID] = &ocr.SubmitResponse{
		Results: []ocr.SubmitResult{{RequestFileID: requestID}},
	}
	res, err := f.svc.SubmitDocument(context.Background(), *doc)
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, res.Status)
	return res
}

func TestProcessCallback(t *testing.T) {
	t.Run("completes the matching result via top-level request id", func(t *testing.T) {
		f := newFixture()
		o := f.seedOrder(orders.StatusSubmitted)
		res := f.seedProcessing(t, o.ID, "req-1")

		err := f.svc.ProcessCallback(context.Background(), WebhookPayload{
			Message:       "Success",
			RequestFileID: "req-1",
			Results: []ocr.SubmitResult{{
				RequestFileID: "req-1",
				Predictions:   []ocr.Prediction{{Label: "employment_income", OcrText: "52000.00"}},
			}},
		})
		require.NoError(t, err)

		got, err := f.repo.GetByDocument(context.Background(), res.DocumentID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, got.Status)
		assert.Equal(t, "52000.00", got.ExtractedData["employment_income"])
		require.NotNil(t, got.CompletedAt)

		// Last terminal event, so the completion check fired.
		assert.Equal(t, orders.StatusInReview, f.repo.orders[o.ID].Status)
	})

	t.Run("falls back to the first result's request id", func(t *testing.T) {
		f := newFixture()
		o := f.seedOrder(orders.StatusSubmitted)
		res := f.seedProcessing(t, o.ID, "req-2")

		err := f.svc.ProcessCallback(context.Background(), WebhookPayload{
			Results: []ocr.SubmitResult{{
				RequestFileID: "req-2",
				Predictions:   []ocr.Prediction{{Label: "box_14", OcrText: "77.00"}},
			}},
		})
		require.NoError(t, err)

		got, _ := f.repo.GetByDocument(context.Background(), res.DocumentID)
		assert.Equal(t, StatusCompleted, got.Status)
	})

	t.Run("missing request id is dropped without touching anything", func(t *testing.T) {
		f := newFixture()
		o := f.seedOrder(orders.StatusSubmitted)
		res := f.seedProcessing(t, o.ID, "req-3")

		require.NoError(t, f.svc.ProcessCallback(context.Background(), WebhookPayload{Message: "Success"}))

		got, _ := f.repo.GetByDocument(context.Background(), res.DocumentID)
		assert.Equal(t, StatusProcessing, got.Status)
		assert.Equal(t, orders.StatusSubmitted, f.repo.orders[o.ID].Status)
	})

	t.Run("unknown request id is dropped", func(t *testing.T) {
		f := newFixture()
		o := f.seedOrder(orders.StatusSubmitted)
		res := f.seedProcessing(t, o.ID, "req-4")

		require.NoError(t, f.svc.ProcessCallback(context.Background(), WebhookPayload{
			RequestFileID: "never-heard-of-it",
		}))

		got, _ := f.repo.GetByDocument(context.Background(), res.DocumentID)
		assert.Equal(t, StatusProcessing, got.Status)
	})

	t.Run("vendor-reported error fails the result", func(t *testing.T) {
		f := newFixture()
		o := f.seedOrder(orders.StatusSubmitted)
		res := f.seedProcessing(t, o.ID, "req-5")

		err := f.svc.ProcessCallback(context.Background(), WebhookPayload{
			Message:       "File could not be processed",
			RequestFileID: "req-5",
			Results:       []ocr.SubmitResult{{RequestFileID: "req-5", Status: "error"}},
		})
		require.NoError(t, err)

		got, _ := f.repo.GetByDocument(context.Background(), res.DocumentID)
		assert.Equal(t, StatusFailed, got.Status)
		require.NotNil(t, got.ErrorMessage)
		assert.Contains(t, *got.ErrorMessage, "File could not be processed")

		// Failure still counts as terminal for the order.
		assert.Equal(t, orders.StatusInReview, f.repo.orders[o.ID].Status)
	})

	t.Run("callback without predictions completes with no fields", func(t *testing.T) {
		f := newFixture()
		o := f.seedOrder(orders.StatusSubmitted)
		res := f.seedProcessing(t, o.ID, "req-7")

		err := f.svc.ProcessCallback(context.Background(), WebhookPayload{
			Message:       "Success",
			RequestFileID: "req-7",
		})
		require.NoError(t, err)

		got, _ := f.repo.GetByDocument(context.Background(), res.DocumentID)
		assert.Equal(t, StatusCompleted, got.Status)
		assert.Empty(t, got.ExtractedData)
		assert.Nil(t, got.ErrorMessage)
		require.NotNil(t, got.CompletedAt)
		assert.Equal(t, orders.StatusInReview, f.repo.orders[o.ID].Status)
	})

	t.Run("replay for a finished result is a no-op", func(t *testing.T) {
		f := newFixture()
		o := f.seedOrder(orders.StatusSubmitted)
		res := f.seedProcessing(t, o.ID, "req-6")

		payload := WebhookPayload{
			RequestFileID: "req-6",
			Results: []ocr.SubmitResult{{
				RequestFileID: "req-6",
				Predictions:   []ocr.Prediction{{Label: "box_14", OcrText: "1.00"}},
			}},
		}
		require.NoError(t, f.svc.ProcessCallback(context.Background(), payload))
		first, _ := f.repo.GetByDocument(context.Background(), res.DocumentID)

		// Replay with different data must not change the stored outcome.
		payload.Results[0].Predictions[0].OcrText = "999.00"
		require.NoError(t, f.svc.ProcessCallback(context.Background(), payload))
		second, _ := f.repo.GetByDocument(context.Background(), res.DocumentID)

		assert.Equal(t, first.ExtractedData, second.ExtractedData)
		assert.Equal(t, []uuid.UUID{o.ID}, f.notifier.ready, "notice sent once")
	})
}

func TestWebhookEndpoint(t *testing.T) {
	newRouter := func(f *fixture) chi.Router {
		r := chi.NewRouter()
		NewHandler(slog.Default(), f.svc).MountWebhookRoutes(r)
		return r
	}

	t.Run("malformed body is acknowledged with 200", func(t *testing.T) {
		f := newFixture()
		o := f.seedOrder(orders.StatusSubmitted)
		res := f.seedProcessing(t, o.ID, "req-h1")

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhooks/ocr", strings.NewReader("not json"))
		newRouter(f).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		got, _ := f.repo.GetByDocument(context.Background(), res.DocumentID)
		assert.Equal(t, StatusProcessing, got.Status)
	})

	t.Run("unknown request id is acknowledged with 200", func(t *testing.T) {
		f := newFixture()
		o := f.seedOrder(orders.StatusSubmitted)
		res := f.seedProcessing(t, o.ID, "req-h2")

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhooks/ocr",
			strings.NewReader(`{"request_file_id":"never-seen","message":"Success"}`))
		newRouter(f).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		got, _ := f.repo.GetByDocument(context.Background(), res.DocumentID)
		assert.Equal(t, StatusProcessing, got.Status)
		assert.Equal(t, orders.StatusSubmitted, f.repo.orders[o.ID].Status)
	})
}
