package orders

import (
	"time"

	"github.com/google/uuid"
)

type CreateOrderRequest struct {
	TaxYear int     `json:"tax_year" validate:"required,gte=2000,lte=2100"`
	Notes   *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

type UpdateStatusRequest struct {
	Status OrderStatus `json:"status" validate:"required"`
}

type BulkStatusUpdateRequest struct {
	OrderIDs []uuid.UUID `json:"order_ids" validate:"required,min=1"`
	Status   OrderStatus `json:"status" validate:"required"`
}

// BulkFailure reports one order that could not be updated in a bulk request.
type BulkFailure struct {
	OrderID uuid.UUID `json:"order_id"`
	Reason  string    `json:"reason"`
}

type BulkStatusUpdateResult struct {
	SuccessCount int           `json:"success_count"`
	FailedCount  int           `json:"failed_count"`
	Failures     []BulkFailure `json:"failures"`
}

type SearchOrdersRequest struct {
	Status      *OrderStatus `json:"status,omitempty"`
	ClientEmail *string      `json:"client_email,omitempty"`
	TaxYear     *int         `json:"tax_year,omitempty"`
	FromDate    *time.Time   `json:"from_date,omitempty"`
	ToDate      *time.Time   `json:"to_date,omitempty"`
	SortBy      string       `json:"sort_by" validate:"omitempty,oneof=created_at tax_year status submitted_at"`
	SortDir     string       `json:"sort_dir" validate:"omitempty,oneof=asc desc"`
	Page        int          `json:"page" validate:"gte=0"`
	Size        int          `json:"size" validate:"gte=0,lte=200"`
}

type SearchOrdersResponse struct {
	Orders     []OrderWithClient `json:"orders"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	Size       int               `json:"size"`
	TotalPages int               `json:"total_pages"`
}
