package notifications

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeReviewReady     Type = "REVIEW_READY"
	TypeOrderFiled      Type = "ORDER_FILED"
	TypePaymentReceived Type = "PAYMENT_RECEIVED"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

// Notification is one queued email tied to an order event. At most one row
// exists per (order, type); the unique index is the dedup.
type Notification struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	OrderID        uuid.UUID  `json:"order_id" db:"order_id"`
	Type           Type       `json:"type" db:"type"`
	RecipientEmail string     `json:"recipient_email" db:"recipient_email"`
	Subject        string     `json:"subject" db:"subject"`
	Body           string     `json:"body" db:"body"`
	Status         Status     `json:"status" db:"status"`
	SentAt         *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}
