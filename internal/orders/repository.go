package orders

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

	"github.com/taxdesk/taxdesk/internal/platform/db"
	"github.com/taxdesk/taxdesk/internal/shared"
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Create(ctx context.Context, o Order) (uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) (*Order, error)
	// GetForUpdate locks the order row for the remainder of the surrounding
	// transaction. Callers must be inside WithTx.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Order, error)
	ListByClient(ctx context.Context, clientID uuid.UUID, status *OrderStatus) ([]Order, error)
	Search(ctx context.Context, req SearchOrdersRequest) ([]OrderWithClient, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status OrderStatus, submittedAt, filedAt *time.Time) error
	CountDocuments(ctx context.Context, orderID uuid.UUID) (int, error)
	ClientEmail(ctx context.Context, clientID uuid.UUID) (string, error)
	Stats(ctx context.Context, monthStart, yearStart time.Time) (*DashboardStats, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const orderColumns = `id, client_id, tax_year, status, notes, created_at, updated_at, submitted_at, filed_at`

func (r *repository) Create(ctx context.Context, o Order) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx, `
		INSERT INTO orders (client_id, tax_year, status, notes)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, o.ClientID, o.TaxYear, o.Status, o.Notes).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create order: %w", err)
	}
	return id, nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.scanOne(r.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

func (r *repository) GetForUpdate(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.scanOne(r.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
}

func (r *repository) scanOne(row pgx.Row) (*Order, error) {
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

func (r *repository) ListByClient(ctx context.Context, clientID uuid.UUID, status *OrderStatus) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE client_id = $1`
	args := []interface{}{clientID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

var sortColumns = map[string]string{
	"created_at":   "o.created_at",
	"tax_year":     "o.tax_year",
	"status":       "o.status",
	"submitted_at": "o.submitted_at",
}

func (r *repository) Search(ctx context.Context, req SearchOrdersRequest) ([]OrderWithClient, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("o.status = $%d", argPos))
		args = append(args, *req.Status)
		argPos++
	}
	if req.ClientEmail != nil && *req.ClientEmail != "" {
		conditions = append(conditions, fmt.Sprintf("c.email ILIKE $%d", argPos))
		args = append(args, "%"+*req.ClientEmail+"%")
		argPos++
	}
	if req.TaxYear != nil {
		conditions = append(conditions, fmt.Sprintf("o.tax_year = $%d", argPos))
		args = append(args, *req.TaxYear)
		argPos++
	}
	if req.FromDate != nil {
		conditions = append(conditions, fmt.Sprintf("o.created_at >= $%d", argPos))
		args = append(args, *req.FromDate)
		argPos++
	}
	if req.ToDate != nil {
		conditions = append(conditions, fmt.Sprintf("o.created_at < $%d", argPos))
		args = append(args, *req.ToDate)
		argPos++
	}

	whereClause := ""
	for i, cond := range conditions {
		if i == 0 {
			whereClause = "WHERE " + cond
		} else {
			whereClause += " AND " + cond
		}
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM orders o JOIN clients c ON o.client_id = c.id %s`, whereClause)
	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sortCol, ok := sortColumns[req.SortBy]
	if !ok {
		sortCol = "o.created_at"
	}
	dir := "DESC"
	if req.SortDir == "asc" {
		dir = "ASC"
	}

	size := req.Size
	if size <= 0 {
		size = 20
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}

	query := fmt.Sprintf(`
		SELECT o.id, o.client_id, o.tax_year, o.status, o.notes,
		       o.created_at, o.updated_at, o.submitted_at, o.filed_at,
		       c.email AS client_email, c.full_name AS client_name
		FROM orders o
		JOIN clients c ON o.client_id = c.id
		%s
		ORDER BY %s %s, o.id DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, sortCol, dir, argPos, argPos+1)
	args = append(args, size, (page-1)*size)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []OrderWithClient
	for rows.Next() {
		var o OrderWithClient
		var notes, clientName pgtype.Text
		var submittedAt, filedAt pgtype.Timestamptz
		err := rows.Scan(
			&o.ID, &o.ClientID, &o.TaxYear, &o.Status, &notes,
			&o.CreatedAt, &o.UpdatedAt, &submittedAt, &filedAt,
			&o.ClientEmail, &clientName,
		)
		if err != nil {
			return nil, 0, err
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
		if clientName.Valid {
			o.ClientName = &clientName.String
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status OrderStatus, submittedAt, filedAt *time.Time) error {
	query := `UPDATE orders SET status = $1, updated_at = NOW()`
	args := []interface{}{status}
	argPos := 2
	if submittedAt != nil {
		query += fmt.Sprintf(", submitted_at = $%d", argPos)
		args = append(args, *submittedAt)
		argPos++
	}
	if filedAt != nil {
		query += fmt.Sprintf(", filed_at = $%d", argPos)
		args = append(args, *filedAt)
		argPos++
	}
	query += fmt.Sprintf(" WHERE id = $%d", argPos)
	args = append(args, id)

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) CountDocuments(ctx context.Context, orderID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM documents WHERE order_id = $1`, orderID).Scan(&n)
	return n, err
}

func (r *repository) ClientEmail(ctx context.Context, clientID uuid.UUID) (string, error) {
	var email string
	err := r.db.QueryRow(ctx, `SELECT email FROM clients WHERE id = $1`, clientID).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", shared.ErrNotFound
		}
		return "", err
	}
	return email, nil
}

func (r *repository) Stats(ctx context.Context, monthStart, yearStart time.Time) (*DashboardStats, error) {
	stats := &DashboardStats{OrdersByStatus: make(map[OrderStatus]int64)}

	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status OrderStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.OrdersByStatus[status] = count
		stats.TotalOrders += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stats.PendingReview = stats.OrdersByStatus[StatusSubmitted] + stats.OrdersByStatus[StatusInReview]

	err = r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE status = $1 AND filed_at >= $2`,
		StatusFiled, monthStart).Scan(&stats.FiledThisMonth)
	if err != nil {
		return nil, err
	}
	err = r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE status = $1 AND filed_at >= $2`,
		StatusFiled, yearStart).Scan(&stats.FiledThisYear)
	if err != nil {
		return nil, err
	}
	err = r.db.QueryRow(ctx, `SELECT COUNT(*) FROM clients`).Scan(&stats.TotalClients)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var notes pgtype.Text
	var submittedAt, filedAt pgtype.Timestamptz
	err := row.Scan(
		&o.ID, &o.ClientID, &o.TaxYear, &o.Status, &notes,
		&o.CreatedAt, &o.UpdatedAt, &submittedAt, &filedAt,
	)
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
