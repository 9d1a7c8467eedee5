package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/taxdesk/taxdesk/internal/documents"
	"github.com/taxdesk/taxdesk/internal/documents/storage"
	"github.com/taxdesk/taxdesk/internal/extraction/ocr"
	"github.com/taxdesk/taxdesk/internal/orders"
	"github.com/taxdesk/taxdesk/internal/shared"
)

// submitConcurrency caps parallel vendor submissions per order.
const submitConcurrency = 4

// DocumentSource is the slice of the document store the coordinator needs.
type DocumentSource interface {
	Get(ctx context.Context, id uuid.UUID) (*documents.Document, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]documents.Document, error)
}

// OrderSource resolves orders for ownership checks and trigger guards.
type OrderSource interface {
	Get(ctx context.Context, id uuid.UUID) (*orders.Order, error)
}

// Notifier is told when an order becomes ready for review. Implemented by the
// notifications gate.
type Notifier interface {
	ReviewReady(ctx context.Context, order orders.Order) error
}

// MetricsSink counts finished extraction attempts by outcome.
type MetricsSink interface {
	ExtractionFinished(outcome string)
}

type OverrideRequest struct {
	NewData map[string]any `json:"new_data" validate:"required,min=1"`
	Reason  *string        `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// Service coordinates document extraction: vendor submission, result
// bookkeeping, webhook reconciliation and the order completion check.
type Service struct {
	repo     Repository
	docs     DocumentSource
	ords     OrderSource
	files    storage.FileStore
	client   ocr.Client
	notifier Notifier
	metrics  MetricsSink
	clock    shared.Clock
	logger   *slog.Logger
}

func NewService(
	repo Repository,
	docs DocumentSource,
	ords OrderSource,
	files storage.FileStore,
	client ocr.Client,
	notifier Notifier,
	clock shared.Clock,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		docs:     docs,
		ords:     ords,
		files:    files,
		client:   client,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
	}
}

// SetMetrics attaches outcome counters. Safe to leave unset; the worker runs
// without the HTTP registry.
func (s *Service) SetMetrics(m MetricsSink) {
	s.metrics = m
}

// TriggerForOrder submits every document on the order for extraction. One
// document failing never stops the others; each failure is recorded on its own
// result row. The order completion check runs once at the end regardless.
func (s *Service) TriggerForOrder(ctx context.Context, orderID uuid.UUID) error {
	docs, err := s.docs.ListByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	if len(docs) == 0 {
		s.logger.Warn("extraction trigger for order without documents", "order_id", orderID)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(submitConcurrency)
	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			if _, err := s.SubmitDocument(gctx, doc); err != nil {
				s.logger.Error("document extraction failed",
					"order_id", orderID, "document_id", doc.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return s.CheckOrderCompletion(ctx, orderID)
}

// SubmitDocument sends one document to the vendor. Idempotent per document:
// any prior result is returned as-is, FAILED included. Re-running a failed
// attempt goes through RetryFailed.
func (s *Service) SubmitDocument(ctx context.Context, doc documents.Document) (*Result, error) {
	existing, err := s.repo.GetByDocument(ctx, doc.ID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	res, err := s.repo.Create(ctx, Result{
		DocumentID: doc.ID,
		OrderID:    doc.OrderID,
		Status:     StatusProcessing,
	})
	if err != nil {
		if errors.Is(err, shared.ErrConflict) {
			// Lost the race to a concurrent trigger; that attempt owns the row.
			return s.repo.GetByDocument(ctx, doc.ID)
		}
		return nil, err
	}

	return s.submit(ctx, res, doc)
}

// RetryFailed re-runs extraction for a document whose previous attempt FAILED.
// A document on a different order is indistinguishable from a missing one.
func (s *Service) RetryFailed(ctx context.Context, orderID, documentID uuid.UUID) (*Result, error) {
	res, err := s.repo.GetByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if res.OrderID != orderID {
		return nil, shared.ErrNotFound
	}
	if res.Status != StatusFailed {
		return nil, fmt.Errorf("%w: extraction is %s, only FAILED can be retried", shared.ErrInvalidState, res.Status)
	}
	doc, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.ResetForRetry(ctx, res.ID); err != nil {
		return nil, err
	}
	res.Status = StatusProcessing
	res.ErrorMessage = nil
	res.ExtractedData = nil
	res.CompletedAt = nil

	out, err := s.submit(ctx, res, *doc)
	if cerr := s.CheckOrderCompletion(ctx, res.OrderID); cerr != nil {
		s.logger.Error("completion check after retry failed", "order_id", res.OrderID, "error", cerr)
	}
	return out, err
}

// submit performs the vendor call for an already-PROCESSING result. A vendor
// answer with inline predictions completes the result here; an async accept
// leaves it PROCESSING for the webhook. Any failure lands on the result row as
// FAILED rather than propagating.
func (s *Service) submit(ctx context.Context, res *Result, doc documents.Document) (*Result, error) {
	rc, err := s.files.Load(ctx, doc.FilePath)
	if err != nil {
		return s.fail(ctx, res, fmt.Errorf("load document file: %w", err))
	}
	defer rc.Close()

	resp, err := s.client.Submit(ctx, rc, doc.OriginalFileName, doc.ID, doc.OrderID)
	if err != nil {
		return s.fail(ctx, res, err)
	}

	if len(resp.Results) > 0 && resp.Results[0].RequestFileID != "" {
		reqID := resp.Results[0].RequestFileID
		if err := s.repo.SetVendorRequestID(ctx, res.ID, reqID); err != nil {
			return nil, err
		}
		res.VendorRequestID = &reqID
	}

	predictions := flattenPredictions(resp.Results)
	if len(predictions) == 0 {
		if s.client.Async() {
			// Accepted; the webhook finishes this one.
			return res, nil
		}
		return s.fail(ctx, res, fmt.Errorf("%w: vendor returned no predictions", shared.ErrUpstream))
	}

	return s.complete(ctx, res, predictions, resp)
}

func (s *Service) complete(ctx context.Context, res *Result, predictions []ocr.Prediction, resp *ocr.SubmitResponse) (*Result, error) {
	data := toExtractedData(ParseFields(predictions))
	raw, err := toRawResponse(resp)
	if err != nil {
		return s.fail(ctx, res, err)
	}
	now := s.clock.Now()
	if err := s.repo.MarkCompleted(ctx, res.ID, data, raw, now); err != nil {
		if errors.Is(err, shared.ErrInvalidState) {
			// Already finished through another path; keep the existing outcome.
			return s.repo.GetByDocument(ctx, res.DocumentID)
		}
		return nil, err
	}
	res.Status = StatusCompleted
	res.ExtractedData = data
	res.RawResponse = raw
	res.CompletedAt = &now
	if s.metrics != nil {
		s.metrics.ExtractionFinished("completed")
	}
	return res, nil
}

// fail records the attempt's error on the result. The original error is
// returned so callers can log it, but it never bubbles into an HTTP failure.
func (s *Service) fail(ctx context.Context, res *Result, cause error) (*Result, error) {
	msg := cause.Error()
	if err := s.repo.MarkFailed(ctx, res.ID, msg); err != nil && !errors.Is(err, shared.ErrInvalidState) {
		s.logger.Error("could not record extraction failure", "result_id", res.ID, "error", err)
	}
	res.Status = StatusFailed
	res.ErrorMessage = &msg
	if s.metrics != nil {
		s.metrics.ExtractionFinished("failed")
	}
	return res, cause
}

// CheckOrderCompletion moves a SUBMITTED order to IN_REVIEW once every one of
// its extractions is terminal, and raises the review-ready notice on the first
// such transition. This is the only path that performs that move.
func (s *Service) CheckOrderCompletion(ctx context.Context, orderID uuid.UUID) error {
	order, transitioned, err := s.repo.CompleteOrderIfProcessed(ctx, orderID, orders.StatusSubmitted, orders.StatusInReview)
	if err != nil {
		return fmt.Errorf("completion check: %w", err)
	}
	if !transitioned {
		return nil
	}
	s.logger.Info("order ready for review", "order_id", orderID)
	if err := s.notifier.ReviewReady(ctx, *order); err != nil {
		s.logger.Error("review-ready notification failed", "order_id", orderID, "error", err)
	}
	return nil
}

// OrderExtractions returns an order's aggregated extraction progress.
func (s *Service) OrderExtractions(ctx context.Context, orderID uuid.UUID) (*OrderExtractions, error) {
	if _, err := s.ords.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return s.aggregate(ctx, orderID)
}

// OwnedOrderExtractions is the client-facing variant: an order belonging to
// someone else is indistinguishable from a missing one.
func (s *Service) OwnedOrderExtractions(ctx context.Context, clientID, orderID uuid.UUID) (*OrderExtractions, error) {
	order, err := s.ords.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.ClientID != clientID {
		return nil, shared.ErrNotFound
	}
	return s.aggregate(ctx, orderID)
}

func (s *Service) aggregate(ctx context.Context, orderID uuid.UUID) (*OrderExtractions, error) {
	docs, err := s.docs.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	results, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	agg := &OrderExtractions{
		OrderID:        orderID,
		TotalDocuments: len(docs),
		Results:        results,
	}
	if agg.Results == nil {
		agg.Results = []Result{}
	}
	for _, r := range results {
		switch r.Status {
		case StatusCompleted:
			agg.CompletedExtractions++
		case StatusFailed:
			agg.FailedExtractions++
		default:
			agg.PendingExtractions++
		}
	}
	// Documents the trigger never reached count as pending too.
	agg.PendingExtractions += len(docs) - len(results)
	return agg, nil
}

// Override replaces a completed extraction's data with an accountant's
// correction, keeping the previous data in an append-only history.
func (s *Service) Override(ctx context.Context, accountantID, documentID uuid.UUID, req OverrideRequest) (*Result, error) {
	res, err := s.repo.GetByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if res.Status != StatusCompleted {
		return nil, fmt.Errorf("%w: only completed extractions can be overridden", shared.ErrInvalidState)
	}

	if _, err := s.repo.CreateOverride(ctx, Override{
		ResultID:     res.ID,
		PreviousData: res.ExtractedData,
		NewData:      req.NewData,
		Reason:       req.Reason,
		OverriddenBy: accountantID,
	}); err != nil {
		return nil, fmt.Errorf("record override: %w", err)
	}
	if err := s.repo.UpdateData(ctx, res.ID, req.NewData); err != nil {
		return nil, fmt.Errorf("apply override: %w", err)
	}
	res.ExtractedData = req.NewData
	return res, nil
}

// OverrideHistory lists a document's corrections, newest first.
func (s *Service) OverrideHistory(ctx context.Context, documentID uuid.UUID) ([]Override, error) {
	res, err := s.repo.GetByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	overrides, err := s.repo.ListOverrides(ctx, res.ID)
	if err != nil {
		return nil, err
	}
	if overrides == nil {
		overrides = []Override{}
	}
	return overrides, nil
}

// Sweep reconciles state the webhook may have missed. Extractions stuck in
// PROCESSING beyond staleAfter are reported, not failed: whether a silent
// vendor means failure is a product call nobody has made yet, so the record
// keeps waiting for its webhook. Then every SUBMITTED order gets a fresh
// completion check.
func (s *Service) Sweep(ctx context.Context, staleAfter time.Duration) error {
	cutoff := s.clock.Now().Add(-staleAfter)
	stale, err := s.repo.StaleProcessing(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list stale extractions: %w", err)
	}
	for _, res := range stale {
		s.logger.Warn("extraction stuck in PROCESSING",
			"result_id", res.ID,
			"document_id", res.DocumentID,
			"order_id", res.OrderID,
			"age", s.clock.Now().Sub(res.CreatedAt).String())
	}

	// Re-running the trigger is safe: existing results are returned as-is,
	// only documents without one get submitted. This also recovers orders
	// whose original trigger enqueue was lost.
	orderIDs, err := s.repo.OrdersAwaitingReview(ctx)
	if err != nil {
		return fmt.Errorf("list submitted orders: %w", err)
	}
	for _, id := range orderIDs {
		if err := s.TriggerForOrder(ctx, id); err != nil {
			s.logger.Error("sweep re-trigger failed", "order_id", id, "error", err)
		}
	}
	return nil
}

func toExtractedData(fields map[string]string) map[string]any {
	data := make(map[string]any, len(fields))
	for k, v := range fields {
		data[k] = v
	}
	return data
}

func toRawResponse(resp *ocr.SubmitResponse) (map[string]any, error) {
	b, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode raw response: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decode raw response: %w", err)
	}
	return raw, nil
}
