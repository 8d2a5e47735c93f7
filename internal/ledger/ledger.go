package ledger

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/doorpos/internal/domain"
)

// Totals is a snapshot of the session counters. Amounts are in cents.
type Totals struct {
	Admitted int
	Sold     int
	Cash     int64
	Check    int64
}

// Ledger accumulates what was sold and admitted during one login session.
// It is only ever updated after the server has accepted the sale, and it is
// never persisted.
type Ledger struct {
	mu     sync.Mutex
	totals Totals

	sold     metric.Int64Counter
	admitted metric.Int64Counter
	amount   metric.Int64Counter
}

func New(meter metric.Meter) (*Ledger, error) {
	sold, err := meter.Int64Counter("doorpos.tickets.sold",
		metric.WithDescription("Items sold at the door, donations excluded"))
	if err != nil {
		return nil, err
	}
	admitted, err := meter.Int64Counter("doorpos.tickets.admitted",
		metric.WithDescription("Tickets admitted at the door"))
	if err != nil {
		return nil, err
	}
	amount, err := meter.Int64Counter("doorpos.payments.amount",
		metric.WithDescription("Payments taken at the door"),
		metric.WithUnit("{cent}"))
	if err != nil {
		return nil, err
	}
	return &Ledger{sold: sold, admitted: admitted, amount: amount}, nil
}

// RecordSale adds a completed sale. Only cash and check amounts are kept
// in the totals; card amounts go to the metrics alone.
func (l *Ledger) RecordSale(lines []domain.OrderLine, method domain.Method, amount int64) {
	var sold, admitted int
	for _, line := range lines {
		admitted += line.Used
		if !line.IsDonation() {
			sold += line.Quantity
		}
	}

	l.mu.Lock()
	l.totals.Sold += sold
	l.totals.Admitted += admitted
	switch method {
	case domain.MethodCash:
		l.totals.Cash += amount
	case domain.MethodCheck:
		l.totals.Check += amount
	}
	l.mu.Unlock()

	ctx := context.Background()
	l.sold.Add(ctx, int64(sold))
	l.admitted.Add(ctx, int64(admitted))
	l.amount.Add(ctx, amount, metric.WithAttributes(attribute.String("method", string(method))))
}

// RecordAdmission adds tickets admitted by scanning an existing order.
func (l *Ledger) RecordAdmission(n int) {
	if n <= 0 {
		return
	}
	l.mu.Lock()
	l.totals.Admitted += n
	l.mu.Unlock()

	l.admitted.Add(context.Background(), int64(n))
}

func (l *Ledger) Totals() Totals {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totals
}

func (l *Ledger) Reset() {
	l.mu.Lock()
	l.totals = Totals{}
	l.mu.Unlock()
}
