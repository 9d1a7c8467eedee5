package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/taxdesk/taxdesk/internal/shared"
)

// FileCleaner removes an order's uploaded files from storage.
type FileCleaner interface {
	DeleteAll(ctx context.Context, orderID uuid.UUID) error
}

// Notifier receives lifecycle events. Delivery is best-effort and deduplicated
// downstream, so callers only log a returned error.
type Notifier interface {
	OrderFiled(ctx context.Context, order Order, recipientEmail string) error
}

// Extractor queues document extraction for a submitted order.
type Extractor interface {
	EnqueueExtractionTrigger(ctx context.Context, orderID uuid.UUID) error
}

type Service struct {
	repo      Repository
	files     FileCleaner
	notifier  Notifier
	extractor Extractor
	stats     *StatsCache
	clock     shared.Clock
	logger    *slog.Logger
}

func NewService(repo Repository, files FileCleaner, notifier Notifier, extractor Extractor, stats *StatsCache, clock shared.Clock, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		files:     files,
		notifier:  notifier,
		extractor: extractor,
		stats:     stats,
		clock:     clock,
		logger:    logger,
	}
}

func (s *Service) Create(ctx context.Context, clientID uuid.UUID, req CreateOrderRequest) (*Order, error) {
	id, err := s.repo.Create(ctx, Order{
		ClientID: clientID,
		TaxYear:  req.TaxYear,
		Status:   StatusOpen,
		Notes:    req.Notes,
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, clientID uuid.UUID, status *OrderStatus) ([]Order, error) {
	return s.repo.ListByClient(ctx, clientID, status)
}

// Get returns the order only when it belongs to clientID; other clients'
// orders are indistinguishable from missing ones.
func (s *Service) Get(ctx context.Context, clientID, orderID uuid.UUID) (*Order, error) {
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.ClientID != clientID {
		return nil, shared.ErrNotFound
	}
	return o, nil
}

// GetAny is the accountant variant of Get without an ownership scope.
func (s *Service) GetAny(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	return s.repo.Get(ctx, orderID)
}

// Submit moves an OPEN order to SUBMITTED. The order must have at least one
// document.
func (s *Service) Submit(ctx context.Context, clientID, orderID uuid.UUID) (*Order, error) {
	var updated *Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		o, err := repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.ClientID != clientID {
			return shared.ErrNotFound
		}
		if o.Status != StatusOpen {
			return fmt.Errorf("%w: order can only be submitted from OPEN", shared.ErrInvalidState)
		}
		docs, err := repo.CountDocuments(ctx, orderID)
		if err != nil {
			return fmt.Errorf("count documents: %w", err)
		}
		if docs == 0 {
			return fmt.Errorf("%w: no documents", shared.ErrPrecondition)
		}
		now := s.clock.Now()
		if err := repo.UpdateStatus(ctx, orderID, StatusSubmitted, &now, nil); err != nil {
			return err
		}
		o.Status = StatusSubmitted
		o.SubmittedAt = &now
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Fan-out happens off the request path; the sweep job picks up anything a
	// lost enqueue leaves behind.
	if s.extractor != nil {
		if err := s.extractor.EnqueueExtractionTrigger(ctx, orderID); err != nil {
			s.logger.Error("extraction trigger enqueue failed", "order_id", orderID, "error", err)
		}
	}
	return updated, nil
}

// Cancel aborts an OPEN order and cleans up its stored files. Cleanup failure
// does not roll back the cancellation.
func (s *Service) Cancel(ctx context.Context, clientID, orderID uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		o, err := repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.ClientID != clientID {
			return shared.ErrNotFound
		}
		if o.Status != StatusOpen {
			return fmt.Errorf("%w: only OPEN orders can be cancelled", shared.ErrInvalidState)
		}
		return repo.UpdateStatus(ctx, orderID, StatusCancelled, nil, nil)
	})
	if err != nil {
		return err
	}
	if err := s.files.DeleteAll(ctx, orderID); err != nil {
		s.logger.Warn("order file cleanup failed", "order_id", orderID, "error", err)
	}
	return nil
}

// UpdateStatus applies an accountant-driven transition through the state
// machine. The order row is locked for the duration so concurrent transitions
// on the same order serialize.
func (s *Service) UpdateStatus(ctx context.Context, orderID uuid.UUID, target OrderStatus) (*Order, error) {
	var updated *Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		o, err := repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := ValidateTransition(o.Status, target); err != nil {
			return err
		}

		var submittedAt, filedAt *time.Time
		now := s.clock.Now()
		if target == StatusSubmitted && o.SubmittedAt == nil {
			submittedAt = &now
		}
		if target == StatusFiled {
			filedAt = &now
		}
		if err := repo.UpdateStatus(ctx, orderID, target, submittedAt, filedAt); err != nil {
			return err
		}

		o.Status = target
		if submittedAt != nil {
			o.SubmittedAt = submittedAt
		}
		if filedAt != nil {
			o.FiledAt = filedAt
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	if target == StatusFiled {
		s.notifyFiled(ctx, *updated)
	}
	return updated, nil
}

func (s *Service) notifyFiled(ctx context.Context, o Order) {
	email, err := s.repo.ClientEmail(ctx, o.ClientID)
	if err != nil {
		s.logger.Error("resolve client email for filed notice", "order_id", o.ID, "error", err)
		return
	}
	if err := s.notifier.OrderFiled(ctx, o, email); err != nil {
		s.logger.Error("order filed notification", "order_id", o.ID, "error", err)
	}
}

// BulkUpdateStatus applies the transition to each order independently.
// A failure on one id never aborts or rolls back the others.
func (s *Service) BulkUpdateStatus(ctx context.Context, req BulkStatusUpdateRequest) BulkStatusUpdateResult {
	result := BulkStatusUpdateResult{Failures: []BulkFailure{}}
	for _, id := range req.OrderIDs {
		if _, err := s.UpdateStatus(ctx, id, req.Status); err != nil {
			result.Failures = append(result.Failures, BulkFailure{OrderID: id, Reason: err.Error()})
			continue
		}
		result.SuccessCount++
	}
	result.FailedCount = len(result.Failures)
	return result
}

func (s *Service) Search(ctx context.Context, req SearchOrdersRequest) (*SearchOrdersResponse, error) {
	results, total, err := s.repo.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	p := shared.NewPagination(req.Page, req.Size, total)
	return &SearchOrdersResponse{
		Orders:     results,
		Total:      total,
		Page:       p.Page,
		Size:       p.PerPage,
		TotalPages: p.TotalPages,
	}, nil
}

func (s *Service) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	if cached := s.stats.Get(ctx); cached != nil {
		return cached, nil
	}
	now := s.clock.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	yearStart := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	stats, err := s.repo.Stats(ctx, monthStart, yearStart)
	if err != nil {
		return nil, err
	}
	s.stats.Set(ctx, stats)
	return stats, nil
}
