package documents

import (
	"time"

	"github.com/google/uuid"
)

// Document is an uploaded tax slip. Immutable after creation except for
// deletion while the owning order is still OPEN.
type Document struct {
	ID               uuid.UUID `json:"id" db:"id"`
	OrderID          uuid.UUID `json:"order_id" db:"order_id"`
	FileName         string    `json:"file_name" db:"file_name"`
	OriginalFileName string    `json:"original_file_name" db:"original_file_name"`
	FilePath         string    `json:"-" db:"file_path"`
	FileSize         int64     `json:"file_size" db:"file_size"`
	MimeType         string    `json:"mime_type" db:"mime_type"`
	SlipType         *string   `json:"slip_type,omitempty" db:"slip_type"`
	UploadedAt       time.Time `json:"uploaded_at" db:"uploaded_at"`
}
