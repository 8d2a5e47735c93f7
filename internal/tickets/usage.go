package tickets

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/joao-fontenele/doorpos/internal/domain"
)

var (
	ErrEmptyLookup  = errors.New("scan a ticket or enter an order number")
	ErrUnknownClass = errors.New("unknown ticket class")
	ErrNothingToUse = errors.New("no tickets selected")
)

// API is the part of the orders server used at the scanning table.
type API interface {
	TicketUsage(ctx context.Context, eventID, tokenOrID string) (*domain.TicketUsage, error)
	UseTickets(ctx context.Context, eventID string, usage *domain.TicketUsage) error
	WillCall(ctx context.Context, eventID string) ([]domain.WillCallOrder, error)
}

// Admissions counts tickets admitted by scanning.
type Admissions interface {
	RecordAdmission(n int)
}

// Usage is the editable ticket usage of one order.
type Usage struct {
	u domain.TicketUsage
}

func (u *Usage) OrderID() int {
	return u.u.ID
}

func (u *Usage) Name() string {
	return u.u.Name
}

func (u *Usage) Classes() []domain.TicketClassUsage {
	return append([]domain.TicketClassUsage(nil), u.u.Classes...)
}

// SetUsed sets how many tickets of a class are used after this scan,
// counting tickets used earlier. It reports false when n is below what
// was already used or above what the order holds. Setting a single unused
// ticket to 1 twice toggles it back off.
func (u *Usage) SetUsed(class string, n int) (bool, error) {
	for i := range u.u.Classes {
		c := &u.u.Classes[i]
		if c.Name != class {
			continue
		}
		if n < c.Min || n > c.Max {
			return false, nil
		}
		c.Overflow = false
		if n == 1 && c.Min == 0 && c.Used == 1 {
			c.Used = 0
		} else {
			c.Used = n
		}
		return true, nil
	}
	return false, ErrUnknownClass
}

// Dirty reports whether any ticket would be admitted by committing.
func (u *Usage) Dirty() bool {
	for _, c := range u.u.Classes {
		if c.Used != c.Min {
			return true
		}
	}
	return false
}

// Admitting is the number of tickets this scan admits.
func (u *Usage) Admitting() int {
	var n int
	for _, c := range u.u.Classes {
		n += c.Used - c.Min
	}
	return n
}

// Desk looks up and admits tickets for one event.
type Desk struct {
	api        API
	admissions Admissions
	eventID    string
	logger     *slog.Logger
}

func NewDesk(api API, admissions Admissions, eventID string, logger *slog.Logger) *Desk {
	return &Desk{api: api, admissions: admissions, eventID: eventID, logger: logger}
}

// Lookup fetches an order's tickets by scanned token or typed order number.
func (d *Desk) Lookup(ctx context.Context, tokenOrID string) (*Usage, error) {
	tokenOrID = strings.TrimSpace(tokenOrID)
	if tokenOrID == "" {
		return nil, ErrEmptyLookup
	}
	usage, err := d.api.TicketUsage(ctx, d.eventID, tokenOrID)
	if err != nil {
		d.logger.Error("failed to fetch ticket usage", "error", err, "event_id", d.eventID)
		return nil, err
	}
	return &Usage{u: *usage}, nil
}

// Commit records the usage on the server and counts the admissions.
func (d *Desk) Commit(ctx context.Context, u *Usage) error {
	if !u.Dirty() {
		return ErrNothingToUse
	}
	if err := d.api.UseTickets(ctx, d.eventID, &u.u); err != nil {
		d.logger.Error("failed to use tickets", "error", err, "order_id", u.u.ID)
		return err
	}
	admitted := u.Admitting()
	d.admissions.RecordAdmission(admitted)
	d.logger.Info("tickets used", "order_id", u.u.ID, "admitted", admitted)
	return nil
}

// WillCall lists the event's orders held for pickup.
func (d *Desk) WillCall(ctx context.Context) ([]domain.WillCallOrder, error) {
	orders, err := d.api.WillCall(ctx, d.eventID)
	if err != nil {
		d.logger.Error("failed to fetch will call list", "error", err, "event_id", d.eventID)
		return nil, err
	}
	return orders, nil
}
