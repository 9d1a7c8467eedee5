package extraction

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

	"github.com/taxdesk/taxdesk/internal/orders"
	"github.com/taxdesk/taxdesk/internal/platform/db"
	"github.com/taxdesk/taxdesk/internal/shared"
)

type Repository interface {
	Create(ctx context.Context, r Result) (*Result, error)
	GetByDocument(ctx context.Context, documentID uuid.UUID) (*Result, error)
	GetByVendorRequestID(ctx context.Context, requestID string) (*Result, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]Result, error)
	SetVendorRequestID(ctx context.Context, id uuid.UUID, requestID string) error
	// MarkCompleted and MarkFailed only fire from PROCESSING; MarkFailed also
	// fires from PENDING. A stale call races a concurrent transition and
	// returns ErrInvalidState.
	MarkCompleted(ctx context.Context, id uuid.UUID, data, raw map[string]any, completedAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
	// ResetForRetry moves FAILED back to PROCESSING, clearing the previous
	// attempt's error and data.
	ResetForRetry(ctx context.Context, id uuid.UUID) error
	UpdateData(ctx context.Context, id uuid.UUID, data map[string]any) error
	// CompleteOrderIfProcessed atomically checks, under a row lock on the
	// order, whether every extraction for the order is terminal, and if so
	// applies the from → to transition. Returns the order and whether the
	// transition happened.
	CompleteOrderIfProcessed(ctx context.Context, orderID uuid.UUID, from, to orders.OrderStatus) (*orders.Order, bool, error)
	CreateOverride(ctx context.Context, o Override) (*Override, error)
	ListOverrides(ctx context.Context, resultID uuid.UUID) ([]Override, error)
	// StaleProcessing lists PROCESSING results older than the cutoff, for the
	// reconciliation sweep.
	StaleProcessing(ctx context.Context, cutoff time.Time) ([]Result, error)
	// OrdersAwaitingReview lists ids of SUBMITTED orders, for the sweep's
	// completion re-check.
	OrdersAwaitingReview(ctx context.Context) ([]uuid.UUID, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const resultColumns = `id, document_id, order_id, vendor_request_id, status, extracted_data, raw_response, error_message, created_at, updated_at, completed_at`

func (r *repository) Create(ctx context.Context, res Result) (*Result, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO extraction_results (document_id, order_id, status, error_message)
		VALUES ($1, $2, $3, $4)
		RETURNING `+resultColumns+`
	`, res.DocumentID, res.OrderID, res.Status, res.ErrorMessage)
	created, err := scanResult(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: extraction already exists for document %s", shared.ErrConflict, res.DocumentID)
		}
		return nil, err
	}
	return created, nil
}

func (r *repository) GetByDocument(ctx context.Context, documentID uuid.UUID) (*Result, error) {
	res, err := scanResult(r.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM extraction_results WHERE document_id = $1`, documentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return res, nil
}

func (r *repository) GetByVendorRequestID(ctx context.Context, requestID string) (*Result, error) {
	res, err := scanResult(r.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM extraction_results WHERE vendor_request_id = $1`, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return res, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]Result, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+resultColumns+` FROM extraction_results WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

func (r *repository) SetVendorRequestID(ctx context.Context, id uuid.UUID, requestID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE extraction_results SET vendor_request_id = $1, updated_at = NOW() WHERE id = $2`,
		requestID, id)
	return err
}

func (r *repository) MarkCompleted(ctx context.Context, id uuid.UUID, data, raw map[string]any, completedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE extraction_results
		SET status = $1, extracted_data = $2, raw_response = $3, completed_at = $4, error_message = NULL, updated_at = NOW()
		WHERE id = $5 AND status = $6
	`, StatusCompleted, data, raw, completedAt, id, StatusProcessing)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: extraction %s is not processing", shared.ErrInvalidState, id)
	}
	return nil
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE extraction_results
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3 AND status IN ($4, $5)
	`, StatusFailed, message, id, StatusProcessing, StatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: extraction %s is not in flight", shared.ErrInvalidState, id)
	}
	return nil
}

func (r *repository) ResetForRetry(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE extraction_results
		SET status = $1, error_message = NULL, extracted_data = NULL, completed_at = NULL, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, StatusProcessing, id, StatusFailed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: only failed extractions can be retried", shared.ErrInvalidState)
	}
	return nil
}

func (r *repository) UpdateData(ctx context.Context, id uuid.UUID, data map[string]any) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE extraction_results SET extracted_data = $1, updated_at = NOW() WHERE id = $2`,
		data, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) CompleteOrderIfProcessed(ctx context.Context, orderID uuid.UUID, from, to orders.OrderStatus) (*orders.Order, bool, error) {
	var order *orders.Order
	transitioned := false
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT id, client_id, tax_year, status, notes, created_at, updated_at, submitted_at, filed_at
			FROM orders WHERE id = $1 FOR UPDATE
		`, orderID)
		o, err := scanOrderRow(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			return err
		}
		order = o

		if order.Status != from {
			return nil
		}

		var total, processed int
		err = tx.QueryRow(ctx, `
			SELECT COUNT(*),
			       COUNT(*) FILTER (WHERE status IN ($2, $3))
			FROM extraction_results WHERE order_id = $1
		`, orderID, StatusCompleted, StatusFailed).Scan(&total, &processed)
		if err != nil {
			return err
		}
		if total == 0 || processed < total {
			return nil
		}

		if _, err := tx.Exec(ctx,
			`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`, to, orderID); err != nil {
			return err
		}
		order.Status = to
		transitioned = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return order, transitioned, nil
}

func (r *repository) CreateOverride(ctx context.Context, o Override) (*Override, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO extraction_overrides (result_id, previous_data, new_data, reason, overridden_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, result_id, previous_data, new_data, reason, overridden_by, created_at
	`, o.ResultID, o.PreviousData, o.NewData, o.Reason, o.OverriddenBy)
	return scanOverride(row)
}

func (r *repository) ListOverrides(ctx context.Context, resultID uuid.UUID) ([]Override, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, result_id, previous_data, new_data, reason, overridden_by, created_at
		FROM extraction_overrides WHERE result_id = $1 ORDER BY created_at DESC
	`, resultID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Override
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *repository) StaleProcessing(ctx context.Context, cutoff time.Time) ([]Result, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+resultColumns+` FROM extraction_results WHERE status = $1 AND updated_at < $2 ORDER BY updated_at`,
		StatusProcessing, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

func (r *repository) OrdersAwaitingReview(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM orders WHERE status = $1`, orders.StatusSubmitted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanResult(row pgx.Row) (*Result, error) {
	var res Result
	var vendorID, errMsg pgtype.Text
	var completedAt pgtype.Timestamptz
	err := row.Scan(
		&res.ID, &res.DocumentID, &res.OrderID, &vendorID, &res.Status,
		&res.ExtractedData, &res.RawResponse, &errMsg,
		&res.CreatedAt, &res.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	if vendorID.Valid {
		res.VendorRequestID = &vendorID.String
	}
	if errMsg.Valid {
		res.ErrorMessage = &errMsg.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		res.CompletedAt = &t
	}
	return &res, nil
}

func scanOverride(row pgx.Row) (*Override, error) {
	var o Override
	var reason pgtype.Text
	err := row.Scan(&o.ID, &o.ResultID, &o.PreviousData, &o.NewData, &reason, &o.OverriddenBy, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	if reason.Valid {
		o.Reason = &reason.String
	}
	return &o, nil
}

func scanOrderRow(row pgx.Row) (*orders.Order, error) {
	var o orders.Order
	var notes pgtype.Text
	var submittedAt, filedAt pgtype.Timestamptz
	err := row.Scan(&o.ID, &o.ClientID, &o.TaxYear, &o.Status, &notes,
		&o.CreatedAt, &o.UpdatedAt, &submittedAt, &filedAt)
	if err != nil {
		return nil, err
	}
	if notes.Valid {
		o.Notes = &notes.String
	}
	if submittedAt.Valid {
		t := submittedAt.Time
		o.SubmittedAt = &t
	}
	if filedAt.Valid {
		t := filedAt.Time
		o.FiledAt = &t
	}
	return &o, nil
}
