package journal

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/joao-fontenele/doorpos/internal/domain"
)

// Sale is a journalled sale event plus the time the journal stored it.
type Sale struct {
	domain.SaleEvent
	RecordedAt time.Time `json:"recorded_at"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Record stores ev. Redelivered events are ignored and reported as not
// inserted.
func (r *Repository) Record(ctx context.Context, ev domain.SaleEvent) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO door_sales (id, order_id, status, method, amount, sold, admitted, username, event_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`, ev.ID, ev.OrderID, ev.Status, ev.Method, ev.Amount, ev.Sold, ev.Admitted, ev.Username, ev.EventID, ev.Timestamp)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

// List returns journalled sales, newest first. An empty statuses slice
// returns every sale.
func (r *Repository) List(ctx context.Context, statuses []domain.SaleStatus) ([]Sale, error) {
	if len(statuses) == 0 {
		return r.query(ctx, `
			SELECT id, order_id, status, method, amount, sold, admitted, username, event_id, occurred_at, recorded_at
			FROM door_sales
			ORDER BY occurred_at DESC
		`)
	}

	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	return r.query(ctx, `
		SELECT id, order_id, status, method, amount, sold, admitted, username, event_id, occurred_at, recorded_at
		FROM door_sales
		WHERE status = ANY($1)
		ORDER BY occurred_at DESC
	`, pq.Array(names))
}

// ByOrder returns every journalled outcome for one order, oldest first.
func (r *Repository) ByOrder(ctx context.Context, orderID int) ([]Sale, error) {
	return r.query(ctx, `
		SELECT id, order_id, status, method, amount, sold, admitted, username, event_id, occurred_at, recorded_at
		FROM door_sales
		WHERE order_id = $1
		ORDER BY occurred_at
	`, orderID)
}

func (r *Repository) query(ctx context.Context, query string, args ...any) ([]Sale, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	sales := []Sale{}
	for rows.Next() {
		var s Sale
		if err := rows.Scan(&s.ID, &s.OrderID, &s.Status, &s.Method, &s.Amount, &s.Sold, &s.Admitted,
			&s.Username, &s.EventID, &s.Timestamp, &s.RecordedAt); err != nil {
			return nil, err
		}
		sales = append(sales, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}
