package documents

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/taxdesk/taxdesk/internal/documents/storage"
	"github.com/taxdesk/taxdesk/internal/orders"
	"github.com/taxdesk/taxdesk/internal/shared"
)

// OrderGetter resolves the owning order for state and ownership checks.
type OrderGetter interface {
	GetAny(ctx context.Context, orderID uuid.UUID) (*orders.Order, error)
}

type Service struct {
	repo   Repository
	ordrs  OrderGetter
	store  storage.FileStore
	logger *slog.Logger
}

func NewService(repo Repository, ordrs OrderGetter, store storage.FileStore, logger *slog.Logger) *Service {
	return &Service{repo: repo, ordrs: ordrs, store: store, logger: logger}
}

// UploadRequest carries metadata for a new slip upload.
type UploadRequest struct {
	OriginalFileName string
	MimeType         string
	SlipType         *string
}

// Upload stores the file and records its metadata. Uploads are only accepted
// while the order is OPEN.
func (s *Service) Upload(ctx context.Context, clientID, orderID uuid.UUID, req UploadRequest, file io.Reader) (*Document, error) {
	order, err := s.ownedOrder(ctx, clientID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != orders.StatusOpen {
		return nil, fmt.Errorf("%w: documents can only be added to OPEN orders", shared.ErrInvalidState)
	}

	// Stored name is unique per upload; the original name survives as metadata.
	storedName := uuid.NewString() + filepath.Ext(req.OriginalFileName)
	path, size, err := s.store.Save(ctx, orderID, storedName, file)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	id, err := s.repo.Create(ctx, Document{
		OrderID:          orderID,
		FileName:         storedName,
		OriginalFileName: req.OriginalFileName,
		FilePath:         path,
		FileSize:         size,
		MimeType:         req.MimeType,
		SlipType:         req.SlipType,
	})
	if err != nil {
		if derr := s.store.Delete(ctx, path); derr != nil {
			s.logger.Warn("orphaned upload cleanup failed", "path", path, "error", derr)
		}
		return nil, fmt.Errorf("record document: %w", err)
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByOrder(ctx context.Context, clientID, orderID uuid.UUID) ([]Document, error) {
	if _, err := s.ownedOrder(ctx, clientID, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListByOrder(ctx, orderID)
}

// Download streams the stored bytes of an owned document.
func (s *Service) Download(ctx context.Context, clientID, orderID, documentID uuid.UUID) (*Document, io.ReadCloser, error) {
	if _, err := s.ownedOrder(ctx, clientID, orderID); err != nil {
		return nil, nil, err
	}
	doc, err := s.document(ctx, orderID, documentID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.store.Load(ctx, doc.FilePath)
	if err != nil {
		return nil, nil, err
	}
	return doc, rc, nil
}

// Delete removes a document from an OPEN order. The stored file is removed
// best-effort after the record.
func (s *Service) Delete(ctx context.Context, clientID, orderID, documentID uuid.UUID) error {
	order, err := s.ownedOrder(ctx, clientID, orderID)
	if err != nil {
		return err
	}
	if order.Status != orders.StatusOpen {
		return fmt.Errorf("%w: documents can only be removed from OPEN orders", shared.ErrInvalidState)
	}
	doc, err := s.document(ctx, orderID, documentID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, documentID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, doc.FilePath); err != nil {
		s.logger.Warn("stored file removal failed", "document_id", documentID, "error", err)
	}
	return nil
}

func (s *Service) ownedOrder(ctx context.Context, clientID, orderID uuid.UUID) (*orders.Order, error) {
	order, err := s.ordrs.GetAny(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.ClientID != clientID {
		return nil, shared.ErrNotFound
	}
	return order, nil
}

func (s *Service) document(ctx context.Context, orderID, documentID uuid.UUID) (*Document, error) {
	doc, err := s.repo.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.OrderID != orderID {
		return nil, shared.ErrNotFound
	}
	return doc, nil
}
