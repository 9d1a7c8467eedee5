package extraction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taxdesk/taxdesk/internal/documents"
	"github.com/taxdesk/taxdesk/internal/extraction/ocr"
	"github.com/taxdesk/taxdesk/internal/orders"
	"github.com/taxdesk/taxdesk/internal/shared"
)

// ============================================================================
// MOCKS
// ============================================================================

type mockRepo struct {
	mu        sync.Mutex
	results   map[uuid.UUID]*Result    // by result id
	byDoc     map[uuid.UUID]uuid.UUID  // document id -> result id
	byVendor  map[string]uuid.UUID     // vendor request id -> result id
	orders    map[uuid.UUID]*orders.Order
	overrides map[uuid.UUID][]Override

	createErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		results:   make(map[uuid.UUID]*Result),
		byDoc:     make(map[uuid.UUID]uuid.UUID),
		byVendor:  make(map[string]uuid.UUID),
		orders:    make(map[uuid.UUID]*orders.Order),
		overrides: make(map[uuid.UUID][]Override),
	}
}

func (m *mockRepo) Create(ctx context.Context, r Result) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	if _, ok := m.byDoc[r.DocumentID]; ok {
		return nil, fmt.Errorf("%w: extraction already exists", shared.ErrConflict)
	}
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	m.results[r.ID] = &r
	m.byDoc[r.DocumentID] = r.ID
	cp := r
	return &cp, nil
}

func (m *mockRepo) GetByDocument(ctx context.Context, documentID uuid.UUID) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byDoc[documentID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *m.results[id]
	return &cp, nil
}

func (m *mockRepo) GetByVendorRequestID(ctx context.Context, requestID string) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byVendor[requestID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *m.results[id]
	return &cp, nil
}

func (m *mockRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Result
	for _, r := range m.results {
		if r.OrderID == orderID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockRepo) SetVendorRequestID(ctx context.Context, id uuid.UUID, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[id]
	if !ok {
		return shared.ErrNotFound
	}
	r.VendorRequestID = &requestID
	m.byVendor[requestID] = id
	return nil
}

func (m *mockRepo) MarkCompleted(ctx context.Context, id uuid.UUID, data, raw map[string]any, completedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[id]
	if !ok || r.Status != StatusProcessing {
		return fmt.Errorf("%w: not processing", shared.ErrInvalidState)
	}
	r.Status = StatusCompleted
	r.ExtractedData = data
	r.RawResponse = raw
	r.CompletedAt = &completedAt
	r.ErrorMessage = nil
	return nil
}

func (m *mockRepo) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[id]
	if !ok || r.Status.Terminal() {
		return fmt.Errorf("%w: not in flight", shared.ErrInvalidState)
	}
	r.Status = StatusFailed
	r.ErrorMessage = &message
	return nil
}

func (m *mockRepo) ResetForRetry(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[id]
	if !ok || r.Status != StatusFailed {
		return fmt.Errorf("%w: only failed extractions can be retried", shared.ErrInvalidState)
	}
	r.Status = StatusProcessing
	r.ErrorMessage = nil
	r.ExtractedData = nil
	r.CompletedAt = nil
	return nil
}

func (m *mockRepo) UpdateData(ctx context.Context, id uuid.UUID, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[id]
	if !ok {
		return shared.ErrNotFound
	}
	r.ExtractedData = data
	return nil
}

func (m *mockRepo) CompleteOrderIfProcessed(ctx context.Context, orderID uuid.UUID, from, to orders.OrderStatus) (*orders.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, false, shared.ErrNotFound
	}
	if o.Status != from {
		cp := *o
		return &cp, false, nil
	}
	total, processed := 0, 0
	for _, r := range m.results {
		if r.OrderID != orderID {
			continue
		}
		total++
		if r.Status.Terminal() {
			processed++
		}
	}
	if total == 0 || processed < total {
		cp := *o
		return &cp, false, nil
	}
	o.Status = to
	cp := *o
	return &cp, true, nil
}

func (m *mockRepo) CreateOverride(ctx context.Context, o Override) (*Override, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.ID = uuid.New()
	o.CreatedAt = time.Now()
	m.overrides[o.ResultID] = append([]Override{o}, m.overrides[o.ResultID]...)
	cp := o
	return &cp, nil
}

func (m *mockRepo) ListOverrides(ctx context.Context, resultID uuid.UUID) ([]Override, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Override(nil), m.overrides[resultID]...), nil
}

func (m *mockRepo) StaleProcessing(ctx context.Context, cutoff time.Time) ([]Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Result
	for _, r := range m.results {
		if r.Status == StatusProcessing && r.UpdatedAt.Before(cutoff) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockRepo) OrdersAwaitingReview(ctx context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []uuid.UUID
	for id, o := range m.orders {
		if o.Status == orders.StatusSubmitted {
			out = append(out, id)
		}
	}
	return out, nil
}

type mockDocs struct {
	docs map[uuid.UUID]*documents.Document
}

func (m *mockDocs) Get(ctx context.Context, id uuid.UUID) (*documents.Document, error) {
	d, ok := m.docs[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockDocs) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]documents.Document, error) {
	var out []documents.Document
	for _, d := range m.docs {
		if d.OrderID == orderID {
			out = append(out, *d)
		}
	}
	return out, nil
}

type mockStore struct {
	missing map[string]bool
}

func (m *mockStore) Save(ctx context.Context, orderID uuid.UUID, name string, r io.Reader) (string, int64, error) {
	return orderID.String() + "/" + name, 0, nil
}

func (m *mockStore) Load(ctx context.Context, path string) (io.ReadCloser, error) {
	if m.missing[path] {
		return nil, shared.ErrNotFound
	}
	return io.NopCloser(strings.NewReader("%PDF-1.4")), nil
}

func (m *mockStore) Delete(ctx context.Context, path string) error { return nil }

func (m *mockStore) DeleteAll(ctx context.Context, orderID uuid.UUID) error { return nil }

type mockOCR struct {
	mu        sync.Mutex
	async     bool
	responses map[uuid.UUID]*ocr.SubmitResponse // by document id
	errs      map[uuid.UUID]error
	calls     map[uuid.UUID]int
}

func newMockOCR() *mockOCR {
	return &mockOCR{
		responses: make(map[uuid.UUID]*ocr.SubmitResponse),
		errs:      make(map[uuid.UUID]error),
		calls:     make(map[uuid.UUID]int),
	}
}

func (m *mockOCR) Submit(ctx context.Context, file io.Reader, filename string, documentID, orderID uuid.UUID) (*ocr.SubmitResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[documentID]++
	if err := m.errs[documentID]; err != nil {
		return nil, err
	}
	if resp := m.responses[documentID]; resp != nil {
		return resp, nil
	}
	return &ocr.SubmitResponse{}, nil
}

func (m *mockOCR) Async() bool { return m.async }

type reviewNotifier struct {
	mu    sync.Mutex
	ready []uuid.UUID
	err   error
}

func (m *reviewNotifier) ReviewReady(ctx context.Context, order orders.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.ready = append(m.ready, order.ID)
	return nil
}

// ============================================================================
// FIXTURE
// ============================================================================

type fixture struct {
	repo     *mockRepo
	docs     *mockDocs
	store    *mockStore
	client   *mockOCR
	notifier *reviewNotifier
	svc      *Service
}

func newFixture() *fixture {
	repo := newMockRepo()
	docs := &mockDocs{docs: make(map[uuid.UUID]*documents.Document)}
	store := &mockStore{missing: make(map[string]bool)}
	client := newMockOCR()
	notifier := &reviewNotifier{}
	clock := shared.FixedClock{Instant: time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)}
	svc := NewService(repo, docs, &orderSource{repo: repo}, store, client, notifier, clock, slog.Default())
	return &fixture{repo: repo, docs: docs, store: store, client: client, notifier: notifier, svc: svc}
}

type orderSource struct {
	repo *mockRepo
}

func (s *orderSource) Get(ctx context.Context, id uuid.UUID) (*orders.Order, error) {
	s.repo.mu.Lock()
	defer s.repo.mu.Unlock()
	o, ok := s.repo.orders[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fixture) seedOrder(status orders.OrderStatus) *orders.Order {
	o := &orders.Order{ID: uuid.New(), ClientID: uuid.New(), TaxYear: 2024, Status: status}
	f.repo.orders[o.ID] = o
	return o
}

func (f *fixture) seedDocument(orderID uuid.UUID) *documents.Document {
	d := &documents.Document{
		ID:               uuid.New(),
		OrderID:          orderID,
		FileName:         "stored.pdf",
		OriginalFileName: "t4.pdf",
		FilePath:         orderID.String() + "/stored.pdf",
		MimeType:         "application/pdf",
	}
	f.docs.docs[d.ID] = d
	return d
}

func inlineResponse(label, text string) *ocr.SubmitResponse {
	return &ocr.SubmitResponse{
		Message: "Success",
		Results: []ocr.SubmitResult{{
			RequestFileID: uuid.NewString(),
			Predictions:   []ocr.Prediction{{Label: label, OcrText: text}},
		}},
	}
}

// ============================================================================
// TESTS
// ============================================================================

func TestSubmitDocument(t *testing.T) {
	t.Run("inline response completes the result", func(t *testing.T) {
		f := newFixture()
		o := f.seedOrder(orders.StatusSubmitted)
		doc := f.seedDocument(o.ID)
		f.client.responses[doc.ID] = inlineResponse("employment_income", " 52000.00 ")

		res, err := f.svc.SubmitDocument(context.Background(), *doc)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, res.Status)
		assert.Equal(t, "52000.00", res.ExtractedData["employment_income"])
		require.NotNil(t, res.CompletedAt)
		require.NotNil(t, res.VendorRequestID)
	})

	t.Run("vendor failure lands on the row as FAILED", func(t *testing.T) {
		f := newFixture()
		o := f.seedOrder(orders.StatusSubmitted)
		doc := f.seedDocument(o.ID)
		f.client.errs[doc.ID] = fmt.Errorf("%w: vendor returned 503", shared.ErrUpstream)

		res, err := f.svc.SubmitDocument(context.Background(), *doc)
		require.Error(t, err)
		require.NotNil(t, res)
		assert.Equal(t, StatusFailed, res.Status)
		require.NotNil(t, res.ErrorMessage)
	})

	t.Run("second submit is a no-op returning the existing result", func(t *testing.T) {
		f := newFixture()
		o := f.seedOrder(orders.StatusSubmitted)
		doc := f.seedDocument(o.ID)
		f.client.responses[doc.ID] = inlineResponse("employment_income", "52000.00")

		first, err := f.svc.SubmitDocument(context.Background(), *doc)
		require.NoError(t, err)
		second, err := f.svc.SubmitDocument(context.Background(), *doc)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 1, f.client.calls[doc.ID], "vendor hit once")
	})

	t.Run("async accept stays PROCESSING for the webhook", func(t *testing.T) {
		f := newFixture()
		f.client.async = true
		o := f.seedOrder(orders.StatusSubmitted)
		doc := f.seedDocument(o.ID)
		f.client.responses[doc.ID] = &ocr.SubmitResponse{
			Message: "Success",
			Results: []ocr.SubmitResult{{RequestFileID: "req-77"}},
		}

		res, err := f.svc.SubmitDocument(context.Background(), *doc)
		require.NoError(t, err)
		assert.Equal(t, StatusProcessing, res.Status)
		require.NotNil(t, res.VendorRequestID)
		assert.Equal(t, "req-77", *res.VendorRequestID)
	})

	t.Run("missing file fails the result", func(t *testing.T) {
		f := newFixture()
		o := f.seedOrder(orders.StatusSubmitted)
		doc := f.seedDocument(o.ID)
		f.store.missing[doc.FilePath] = true

		res, err := f.svc.SubmitDocument(context.Background(), *doc)
		require.Error(t, err)
		assert.Equal(t, StatusFailed, res.Status)
	})
}

func TestTriggerForOrder(t *testing.T) {
	t.Run("one failing document never blocks the others", func(t *testing.T) {
		f := newFixture()
		o := f.seedOrder(orders.StatusSubmitted)
		docA := f.seedDocument(o.ID)
		docB := f.seedDocument(o.ID)
		f.client.errs[docA.ID] = errors.New("vendor exploded")
		f.client.responses[docB.ID] = inlineResponse("box_14", "1200.00")

		require.NoError(t, f.svc.TriggerForOrder(context.Background(), o.ID))

		resA, err := f.repo.GetByDocument(context.Background(), docA.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, resA.Status)
		resB, err := f.repo.GetByDocument(context.Background(), docB.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, resB.Status)
	})

	t.Run("all terminal moves SUBMITTED to IN_REVIEW and notifies once", func(t *testing.T) {
		f := newFixture()
		o := f.seedOrder(orders.StatusSubmitted)
		docA := f.seedDocument(o.ID)
		docB := f.seedDocument(o.ID)
		f.client.errs[docA.ID] = errors.New("bad scan")
		f.client.responses[docB.ID] = inlineResponse("box_14", "1200.00")

		require.NoError(t, f.svc.TriggerForOrder(context.Background(), o.ID))
		assert.Equal(t, orders.StatusInReview, f.repo.orders[o.ID].Status)
		assert.Equal(t, []uuid.UUID{o.ID}, f.notifier.ready)

		// A second check is idempotent: no second transition, no second notice.
		require.NoError(t, f.svc.CheckOrderCompletion(context.Background(), o.ID))
		assert.Equal(t, []uuid.UUID{o.ID}, f.notifier.ready)
	})

	t.Run("order with in-flight extraction stays SUBMITTED", func(t *testing.T) {
		f := newFixture()
		f.client.async = true
		o := f.seedOrder(orders.StatusSubmitted)
		doc := f.seedDocument(o.ID)
		f.client.responses[doc.ID] = &ocr.SubmitResponse{
			Results: []ocr.SubmitResult{{RequestFileID: "req-1"}},
		}

		require.NoError(t, f.svc.TriggerForOrder(context.Background(), o.ID))
		assert.Equal(t, orders.StatusSubmitted, f.repo.orders[o.ID].Status)
		assert.Empty(t, f.notifier.ready)
	})

	t.Run("order without documents is left alone", func(t *testing.T) {
		f := newFixture()
		o := f.seedOrder(orders.StatusSubmitted)

		require.NoError(t, f.svc.TriggerForOrder(context.Background(), o.ID))
		assert.Equal(t, orders.StatusSubmitted, f.repo.orders[o.ID].Status)
	})

	t.Run("notification failure does not undo the transition", func(t *testing.T) {
		f := newFixture()
		f.notifier.err = errors.New("smtp down")
		o := f.seedOrder(orders.StatusSubmitted)
		doc := f.seedDocument(o.ID)
		f.client.responses[doc.ID] = inlineResponse("box_14", "1.00")

		require.NoError(t, f.svc.TriggerForOrder(context.Background(), o.ID))
		assert.Equal(t, orders.StatusInReview, f.repo.orders[o.ID].Status)
	})
}

func TestRetryFailed(t *testing.T) {
	t.Run("retries a failed extraction to completion", func(t *testing.T) {
		f := newFixture()
		o := f.seedOrder(orders.StatusSubmitted)
		doc := f.seedDocument(o.ID)
		f.client.errs[doc.ID] = errors.New("flaky vendor")
		_, err := f.svc.SubmitDocument(context.Background(), *doc)
		require.Error(t, err)

		delete(f.client.errs, doc.ID)
		f.client.responses[doc.ID] = inlineResponse("box_14", "900.00")

		res, err := f.svc.RetryFailed(context.Background(), o.ID, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, res.Status)
		assert.Nil(t, res.ErrorMessage)

		// Retry success was the last terminal event, so the order moved on.
		assert.Equal(t, orders.StatusInReview, f.repo.orders[o.ID].Status)
	})

	t.Run("retry can fail again", func(t *testing.T) {
		f := newFixture()
		o := f.seedOrder(orders.StatusSubmitted)
		doc := f.seedDocument(o.ID)
		f.client.errs[doc.ID] = errors.New("still broken")
		_, _ = f.svc.SubmitDocument(context.Background(), *doc)

		res, err := f.svc.RetryFailed(context.Background(), o.ID, doc.ID)
		require.Error(t, err)
		assert.Equal(t, StatusFailed, res.Status)
		assert.Equal(t, 2, f.client.calls[doc.ID])
	})

	t.Run("only FAILED extractions can be retried", func(t *testing.T) {
		f := newFixture()
		o := f.seedOrder(orders.StatusSubmitted)
		doc := f.seedDocument(o.ID)
		f.client.responses[doc.ID] = inlineResponse("box_14", "900.00")
		_, err := f.svc.SubmitDocument(context.Background(), *doc)
		require.NoError(t, err)

		_, err = f.svc.RetryFailed(context.Background(), o.ID, doc.ID)
		assert.True(t, errors.Is(err, shared.ErrInvalidState))
	})

	t.Run("document without a result has nothing to retry", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.RetryFailed(context.Background(), uuid.New(), uuid.New())
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})

	t.Run("document on another order looks missing", func(t *testing.T) {
		f := newFixture()
		o := f.seedOrder(orders.StatusSubmitted)
		doc := f.seedDocument(o.ID)
		f.client.errs[doc.ID] = errors.New("broken")
		_, _ = f.svc.SubmitDocument(context.Background(), *doc)

		_, err := f.svc.RetryFailed(context.Background(), uuid.New(), doc.ID)
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})
}

func TestOrderExtractionsAggregate(t *testing.T) {
	f := newFixture()
	o := f.seedOrder(orders.StatusSubmitted)
	docA := f.seedDocument(o.ID)
	docB := f.seedDocument(o.ID)
	f.seedDocument(o.ID) // never triggered

	f.client.responses[docA.ID] = inlineResponse("box_14", "1.00")
	f.client.errs[docB.ID] = errors.New("nope")
	_, _ = f.svc.SubmitDocument(context.Background(), *docA)
	_, _ = f.svc.SubmitDocument(context.Background(), *docB)

	agg, err := f.svc.OrderExtractions(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, agg.TotalDocuments)
	assert.Equal(t, 1, agg.CompletedExtractions)
	assert.Equal(t, 1, agg.FailedExtractions)
	assert.Equal(t, 1, agg.PendingExtractions)
	assert.Len(t, agg.Results, 2)
}

func TestOwnedOrderExtractions(t *testing.T) {
	f := newFixture()
	o := f.seedOrder(orders.StatusSubmitted)

	_, err := f.svc.OwnedOrderExtractions(context.Background(), uuid.New(), o.ID)
	assert.True(t, errors.Is(err, shared.ErrNotFound), "wrong owner looks like missing")

	agg, err := f.svc.OwnedOrderExtractions(context.Background(), o.ClientID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, agg.OrderID)
}

func TestOverride(t *testing.T) {
	t.Run("replaces data and keeps history", func(t *testing.T) {
		f := newFixture()
		o := f.seedOrder(orders.StatusInReview)
		doc := f.seedDocument(o.ID)
		f.client.responses[doc.ID] = inlineResponse("employment_income", "52000.00")
		_, err := f.svc.SubmitDocument(context.Background(), *doc)
		require.NoError(t, err)

		accountantID := uuid.New()
		reason := "client provided amended slip"
		res, err := f.svc.Override(context.Background(), accountantID, doc.ID, OverrideRequest{
			NewData: map[string]any{"employment_income": "53000.00"},
			Reason:  &reason,
		})
		require.NoError(t, err)
		assert.Equal(t, "53000.00", res.ExtractedData["employment_income"])

		history, err := f.svc.OverrideHistory(context.Background(), doc.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, "52000.00", history[0].PreviousData["employment_income"])
		assert.Equal(t, accountantID, history[0].OverriddenBy)
	})

	t.Run("only completed extractions can be overridden", func(t *testing.T) {
		f := newFixture()
		o := f.seedOrder(orders.StatusInReview)
		doc := f.seedDocument(o.ID)
		f.client.errs[doc.ID] = errors.New("boom")
		_, _ = f.svc.SubmitDocument(context.Background(), *doc)

		_, err := f.svc.Override(context.Background(), uuid.New(), doc.ID, OverrideRequest{
			NewData: map[string]any{"x": "1"},
		})
		assert.True(t, errors.Is(err, shared.ErrInvalidState))
	})
}

func TestSweep(t *testing.T) {
	t.Run("stale processing is reported but keeps waiting for its webhook", func(t *testing.T) {
		f := newFixture()
		f.client.async = true
		o := f.seedOrder(orders.StatusSubmitted)
		doc := f.seedDocument(o.ID)
		f.client.responses[doc.ID] = &ocr.SubmitResponse{
			Results: []ocr.SubmitResult{{RequestFileID: "req-9"}},
		}
		_, err := f.svc.SubmitDocument(context.Background(), *doc)
		require.NoError(t, err)

		// Age the row beyond the cutoff.
		f.repo.mu.Lock()
		for _, r := range f.repo.results {
			r.UpdatedAt = time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC)
		}
		f.repo.mu.Unlock()

		require.NoError(t, f.svc.Sweep(context.Background(), 30*time.Minute))

		res, err := f.repo.GetByDocument(context.Background(), doc.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusProcessing, res.Status)
		assert.Equal(t, orders.StatusSubmitted, f.repo.orders[o.ID].Status)
	})

	t.Run("recovers an order whose trigger was lost", func(t *testing.T) {
		f := newFixture()
		o := f.seedOrder(orders.StatusSubmitted)
		doc := f.seedDocument(o.ID)
		f.client.responses[doc.ID] = inlineResponse("box_14", "10.00")

		require.NoError(t, f.svc.Sweep(context.Background(), 30*time.Minute))

		res, err := f.repo.GetByDocument(context.Background(), doc.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, res.Status)
		assert.Equal(t, orders.StatusInReview, f.repo.orders[o.ID].Status)
	})
}
