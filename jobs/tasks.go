package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/taxdesk/taxdesk/internal/jobs"
)

const (
	// QueueDefault carries extraction work.
	QueueDefault = "default"
	// QueueMail carries notification delivery, kept apart so a slow OCR
	// vendor cannot back up outbound mail.
	QueueMail = "mail"
	// TaskExtractionTrigger fans an order's documents out to the OCR vendor.
	TaskExtractionTrigger = "extraction:trigger"
	// TaskSendEmail delivers one stored notification.
	TaskSendEmail = "mail:send"
	// TaskExtractionSweep reconciles extractions the webhook may have missed.
	TaskExtractionSweep = "extraction:sweep"
)

// ExtractionTriggerPayload identifies the order to extract.
type ExtractionTriggerPayload struct {
	OrderID uuid.UUID `json:"order_id"`
}

// SendEmailPayload identifies the stored notification to deliver. The row
// carries recipient, subject and body; the payload stays a pointer so a retry
// always reads current state.
type SendEmailPayload struct {
	NotificationID uuid.UUID `json:"notification_id"`
}

func NewExtractionTriggerTask(payload ExtractionTriggerPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExtractionTrigger, data), nil
}

func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSendEmail, data), nil
}

func NewExtractionSweepTask() *asynq.Task {
	return asynq.NewTask(TaskExtractionSweep, nil)
}

// ExtractionRunner is the slice of the extraction service the worker needs.
type ExtractionRunner interface {
	TriggerForOrder(ctx context.Context, orderID uuid.UUID) error
	Sweep(ctx context.Context, staleAfter time.Duration) error
}

// MailDispatcher delivers a stored notification and records the outcome.
type MailDispatcher interface {
	Dispatch(ctx context.Context, notificationID uuid.UUID) error
}

// Handlers holds the services the task handlers run against.
type Handlers struct {
	extraction ExtractionRunner
	mail       MailDispatcher
	staleAfter time.Duration
	metrics    *jobmetrics.Metrics
	logger     *slog.Logger
}

func NewHandlers(extraction ExtractionRunner, mail MailDispatcher, staleAfter time.Duration, logger *slog.Logger) *Handlers {
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	return &Handlers{
		extraction: extraction,
		mail:       mail,
		staleAfter: staleAfter,
		metrics:    jobmetrics.NewMetrics(nil),
		logger:     logger,
	}
}

// HandleExtractionTrigger processes TaskExtractionTrigger tasks.
func (h *Handlers) HandleExtractionTrigger(ctx context.Context, t *asynq.Task) error {
	var payload ExtractionTriggerPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	h.logger.Info("extraction trigger", "order_id", payload.OrderID)
	tracker := h.metrics.Track(TaskExtractionTrigger)
	return tracker.End(h.extraction.TriggerForOrder(ctx, payload.OrderID))
}

// HandleSendEmail processes TaskSendEmail tasks.
func (h *Handlers) HandleSendEmail(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := h.metrics.Track(TaskSendEmail)
	return tracker.End(h.mail.Dispatch(ctx, payload.NotificationID))
}

// HandleExtractionSweep processes the cron sweep.
func (h *Handlers) HandleExtractionSweep(ctx context.Context, _ *asynq.Task) error {
	tracker := h.metrics.Track(TaskExtractionSweep)
	return tracker.End(h.extraction.Sweep(ctx, h.staleAfter))
}
