package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taxdesk/taxdesk/internal/shared"
)

type Repository interface {
	// Create inserts the notification. A second insert for the same
	// (order, type) returns ErrConflict via the unique index.
	Create(ctx context.Context, n Notification) (*Notification, error)
	Get(ctx context.Context, id uuid.UUID) (*Notification, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]Notification, error)
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const notificationColumns = `id, order_id, type, recipient_email, subject, body, status, sent_at, created_at`

func (r *repository) Create(ctx context.Context, n Notification) (*Notification, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO notifications (order_id, type, recipient_email, subject, body, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+notificationColumns+`
	`, n.OrderID, n.Type, n.RecipientEmail, n.Subject, n.Body, n.Status)
	created, err := scanNotification(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: %s notification already exists for order %s",
				shared.ErrConflict, n.Type, n.OrderID)
		}
		return nil, err
	}
	return created, nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Notification, error) {
	n, err := scanNotification(r.pool.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return n, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]Notification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE order_id = $1 ORDER BY created_at DESC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (r *repository) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET status = $1, sent_at = $2 WHERE id = $3`,
		StatusSent, sentAt, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET status = $1 WHERE id = $2`, StatusFailed, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	var sentAt pgtype.Timestamptz
	err := row.Scan(&n.ID, &n.OrderID, &n.Type, &n.RecipientEmail,
		&n.Subject, &n.Body, &n.Status, &sentAt, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	if sentAt.Valid {
		t := sentAt.Time
		n.SentAt = &t
	}
	return &n, nil
}
