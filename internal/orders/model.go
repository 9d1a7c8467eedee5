package orders

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	StatusOpen            OrderStatus = "OPEN"
	StatusSubmitted       OrderStatus = "SUBMITTED"
	StatusInReview        OrderStatus = "IN_REVIEW"
	StatusPendingApproval OrderStatus = "PENDING_APPROVAL"
	StatusFiled           OrderStatus = "FILED"
	StatusCancelled       OrderStatus = "CANCELLED"
)

// Valid reports whether s is one of the defined order statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusSubmitted, StatusInReview, StatusPendingApproval, StatusFiled, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s OrderStatus) Terminal() bool {
	return s == StatusFiled || s == StatusCancelled
}

// Order is the aggregate root for a client's tax filing. SubmittedAt is set
// once the order leaves OPEN; FiledAt is set if and only if status is FILED.
type Order struct {
	ID          uuid.UUID   `json:"id" db:"id"`
	ClientID    uuid.UUID   `json:"client_id" db:"client_id"`
	TaxYear     int         `json:"tax_year" db:"tax_year"`
	Status      OrderStatus `json:"status" db:"status"`
	Notes       *string     `json:"notes,omitempty" db:"notes"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
	SubmittedAt *time.Time  `json:"submitted_at,omitempty" db:"submitted_at"`
	FiledAt     *time.Time  `json:"filed_at,omitempty" db:"filed_at"`
}

// OrderWithClient joins the owning client's contact fields for accountant views.
type OrderWithClient struct {
	Order
	ClientEmail string  `json:"client_email" db:"client_email"`
	ClientName  *string `json:"client_name,omitempty" db:"client_name"`
}

// DashboardStats summarizes the order book for the accountant dashboard.
type DashboardStats struct {
	TotalOrders    int64                 `json:"total_orders"`
	OrdersByStatus map[OrderStatus]int64 `json:"orders_by_status"`
	PendingReview  int64                 `json:"pending_review"`
	FiledThisMonth int64                 `json:"filed_this_month"`
	FiledThisYear  int64                 `json:"filed_this_year"`
	TotalClients   int64                 `json:"total_clients"`
}
