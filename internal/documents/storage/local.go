package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/taxdesk/taxdesk/internal/shared"
)

// LocalStore keeps uploads on the local filesystem, one directory per order.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, fmt.Errorf("storage: root directory required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) Save(ctx context.Context, orderID uuid.UUID, name string, r io.Reader) (string, int64, error) {
	dir := filepath.Join(s.root, orderID.String())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", 0, fmt.Errorf("storage: create order dir: %w", err)
	}

	// Base strips any path components a client may smuggle into the name.
	path := filepath.Join(dir, filepath.Base(name))
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("storage: create file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("storage: write file: %w", err)
	}
	return path, n, nil
}

func (s *LocalStore) Load(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", shared.ErrNotFound, path)
		}
		return nil, fmt.Errorf("storage: open file: %w", err)
	}
	return f, nil
}

func (s *LocalStore) Delete(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", shared.ErrNotFound, path)
		}
		return fmt.Errorf("storage: remove file: %w", err)
	}
	return nil
}

func (s *LocalStore) DeleteAll(ctx context.Context, orderID uuid.UUID) error {
	dir := filepath.Join(s.root, orderID.String())
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("storage: remove order dir: %w", err)
	}
	return nil
}
