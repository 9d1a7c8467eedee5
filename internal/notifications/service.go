package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/taxdesk/taxdesk/internal/orders"
	"github.com/taxdesk/taxdesk/internal/shared"
)

// Dispatcher hands a stored notification off for background delivery.
type Dispatcher interface {
	EnqueueSendMail(ctx context.Context, notificationID uuid.UUID) error
}

// MetricsSink counts delivery attempts by type and outcome.
type MetricsSink interface {
	NotificationDelivered(typ, outcome string)
}

// Service is the notification gate: every order event funnels through here,
// and the (order, type) unique index guarantees each notice goes out at most
// once no matter how many times an event fires.
type Service struct {
	repo            Repository
	mailer          MailSender
	dispatcher      Dispatcher
	accountantEmail string
	metrics         MetricsSink
	clock           shared.Clock
	logger          *slog.Logger
}

func NewService(
	repo Repository,
	mailer MailSender,
	dispatcher Dispatcher,
	accountantEmail string,
	clock shared.Clock,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:            repo,
		mailer:          mailer,
		dispatcher:      dispatcher,
		accountantEmail: accountantEmail,
		clock:           clock,
		logger:          logger,
	}
}

// SetMetrics attaches delivery counters. Safe to leave unset.
func (s *Service) SetMetrics(m MetricsSink) {
	s.metrics = m
}

// ReviewReady notifies the accountant inbox that an order finished extraction.
func (s *Service) ReviewReady(ctx context.Context, order orders.Order) error {
	subject := fmt.Sprintf("Order ready for review, tax year %d", order.TaxYear)
	body := fmt.Sprintf(
		"All documents for order %s (tax year %d) have finished extraction.\n"+
			"The order is now awaiting review.\n", order.ID, order.TaxYear)
	return s.send(ctx, order.ID, TypeReviewReady, s.accountantEmail, subject, body)
}

// OrderFiled notifies the client that their return was filed.
func (s *Service) OrderFiled(ctx context.Context, order orders.Order, recipientEmail string) error {
	subject := fmt.Sprintf("Your %d tax return has been filed", order.TaxYear)
	body := fmt.Sprintf(
		"Good news: your tax return for %d has been filed.\n"+
			"Order reference: %s\n", order.TaxYear, order.ID)
	return s.send(ctx, order.ID, TypeOrderFiled, recipientEmail, subject, body)
}

// PaymentReceived confirms a payment against an order.
func (s *Service) PaymentReceived(ctx context.Context, order orders.Order, recipientEmail string) error {
	subject := fmt.Sprintf("Payment received for your %d tax order", order.TaxYear)
	body := fmt.Sprintf(
		"We received your payment for order %s (tax year %d).\n"+
			"Preparation is now underway.\n", order.ID, order.TaxYear)
	return s.send(ctx, order.ID, TypePaymentReceived, recipientEmail, subject, body)
}

// send stores the notification and hands it to the dispatcher. A duplicate
// (order, type) means the notice already went out; that is success, not error.
func (s *Service) send(ctx context.Context, orderID uuid.UUID, typ Type, to, subject, body string) error {
	n, err := s.repo.Create(ctx, Notification{
		OrderID:        orderID,
		Type:           typ,
		RecipientEmail: to,
		Subject:        subject,
		Body:           body,
		Status:         StatusPending,
	})
	if err != nil {
		if errors.Is(err, shared.ErrConflict) {
			s.logger.Info("notification already sent", "order_id", orderID, "type", typ)
			return nil
		}
		return fmt.Errorf("store notification: %w", err)
	}

	if s.dispatcher != nil {
		if err := s.dispatcher.EnqueueSendMail(ctx, n.ID); err == nil {
			return nil
		} else {
			s.logger.Warn("mail enqueue failed, delivering inline",
				"notification_id", n.ID, "error", err)
		}
	}
	return s.Dispatch(ctx, n.ID)
}

// Dispatch delivers a stored notification and records the outcome. Delivery
// failure is recorded on the row, never propagated.
func (s *Service) Dispatch(ctx context.Context, notificationID uuid.UUID) error {
	n, err := s.repo.Get(ctx, notificationID)
	if err != nil {
		return err
	}
	if n.Status == StatusSent {
		return nil
	}

	if err := s.mailer.Send(ctx, n.RecipientEmail, n.Subject, n.Body); err != nil {
		s.logger.Error("mail delivery failed",
			"notification_id", n.ID, "type", n.Type, "error", err)
		if merr := s.repo.MarkFailed(ctx, n.ID); merr != nil {
			s.logger.Error("could not mark notification failed", "notification_id", n.ID, "error", merr)
		}
		if s.metrics != nil {
			s.metrics.NotificationDelivered(string(n.Type), "failed")
		}
		return nil
	}
	if s.metrics != nil {
		s.metrics.NotificationDelivered(string(n.Type), "sent")
	}
	return s.repo.MarkSent(ctx, n.ID, s.clock.Now())
}

// ListForOrder returns an order's notification history, newest first.
func (s *Service) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]Notification, error) {
	out, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Notification{}
	}
	return out, nil
}
