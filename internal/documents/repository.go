package documents

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taxdesk/taxdesk/internal/shared"
)

type Repository interface {
	Create(ctx context.Context, d Document) (uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) (*Document, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]Document, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const documentColumns = `id, order_id, file_name, original_file_name, file_path, file_size, mime_type, slip_type, uploaded_at`

func (r *repository) Create(ctx context.Context, d Document) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO documents (order_id, file_name, original_file_name, file_path, file_size, mime_type, slip_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, d.OrderID, d.FileName, d.OriginalFileName, d.FilePath, d.FileSize, d.MimeType, d.SlipType).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	d, err := scanDocument(r.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]Document, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE order_id = $1 ORDER BY uploaded_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	var slipType pgtype.Text
	err := row.Scan(
		&d.ID, &d.OrderID, &d.FileName, &d.OriginalFileName, &d.FilePath,
		&d.FileSize, &d.MimeType, &slipType, &d.UploadedAt,
	)
	if err != nil {
		return nil, err
	}
	if slipType.Valid {
		d.SlipType = &slipType.String
	}
	return &d, nil
}
