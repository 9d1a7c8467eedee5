// Package storage persists uploaded slip files. The core only depends on the
// FileStore interface; the disk layout behind it is an implementation detail.
package storage

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// FileStore stores and retrieves uploaded document bytes.
type FileStore interface {
	// Save writes the file and returns its storage path and written size.
	Save(ctx context.Context, orderID uuid.UUID, name string, r io.Reader) (string, int64, error)
	// Load opens the file at path. Returns shared.ErrNotFound when missing.
	Load(ctx context.Context, path string) (io.ReadCloser, error)
	// Delete removes a single file.
	Delete(ctx context.Context, path string) error
	// DeleteAll removes every file stored for the order.
	DeleteAll(ctx context.Context, orderID uuid.UUID) error
}
