package extraction

import (
	"time"

	"github.com/google/uuid"
)

type ResultStatus string

const (
	StatusPending    ResultStatus = "PENDING"
	StatusProcessing ResultStatus = "PROCESSING"
	StatusCompleted  ResultStatus = "COMPLETED"
	StatusFailed     ResultStatus = "FAILED"
)

// Terminal reports whether the extraction has finished, successfully or not.
func (s ResultStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Result tracks one document's trip through the OCR vendor. At most one
// Result exists per document; a retry reuses the row and starts a new attempt.
type Result struct {
	ID              uuid.UUID      `json:"id" db:"id"`
	DocumentID      uuid.UUID      `json:"document_id" db:"document_id"`
	OrderID         uuid.UUID      `json:"order_id" db:"order_id"`
	VendorRequestID *string        `json:"vendor_request_id,omitempty" db:"vendor_request_id"`
	Status          ResultStatus   `json:"status" db:"status"`
	ExtractedData   map[string]any `json:"extracted_data,omitempty" db:"extracted_data"`
	RawResponse     map[string]any `json:"raw_response,omitempty" db:"raw_response"`
	ErrorMessage    *string        `json:"error_message,omitempty" db:"error_message"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
}

// Override is one manual correction of extracted data. Append-only.
type Override struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	ResultID     uuid.UUID      `json:"result_id" db:"result_id"`
	PreviousData map[string]any `json:"previous_data" db:"previous_data"`
	NewData      map[string]any `json:"new_data" db:"new_data"`
	Reason       *string        `json:"reason,omitempty" db:"reason"`
	OverriddenBy uuid.UUID      `json:"overridden_by" db:"overridden_by"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}

// OrderExtractions aggregates an order's per-document extraction progress.
type OrderExtractions struct {
	OrderID              uuid.UUID `json:"order_id"`
	TotalDocuments       int       `json:"total_documents"`
	CompletedExtractions int       `json:"completed_extractions"`
	PendingExtractions   int       `json:"pending_extractions"`
	FailedExtractions    int       `json:"failed_extractions"`
	Results              []Result  `json:"results"`
}
