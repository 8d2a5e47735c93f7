package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/doorpos/internal/domain"
	"github.com/joao-fontenele/doorpos/internal/order"
	"github.com/joao-fontenele/doorpos/internal/terminal"
)

var tracer = otel.Tracer("payment/router")

var (
	ErrOrderInFlight        = errors.New("another order is already in progress")
	ErrCanceled             = errors.New("payment canceled")
	ErrInsufficientPayment  = errors.New("amount received is less than amount due")
	ErrNoTerminal           = errors.New("card reader not connected")
	ErrWrongPaymentType     = errors.New("order has the wrong payment type for this tender")
	ErrInvalidReceiptEmail  = errors.New("invalid email address")
	ErrMissingPaymentIntent = errors.New("server did not return a payment intent")
)

// API is the part of the orders server the router drives.
type API interface {
	PlaceOrder(ctx context.Context, o *domain.Order) (*domain.Order, error)
	CancelOrder(ctx context.Context, orderID int) error
	CapturePayment(ctx context.Context, orderID int) (*domain.Order, error)
	SendReceipt(ctx context.Context, orderID int, email string) error
}

// Terminal is the connected card reader.
type Terminal interface {
	Connected() bool
	RetrievePaymentIntent(ctx context.Context, clientSecret string) (*terminal.PaymentIntent, error)
	CollectPaymentMethod(ctx context.Context, intent *terminal.PaymentIntent) (*terminal.PaymentIntent, error)
	ProcessPayment(ctx context.Context, intent *terminal.PaymentIntent) (*terminal.PaymentIntent, error)
}

// Recorder receives every sale the server accepted.
type Recorder interface {
	RecordSale(lines []domain.OrderLine, method domain.Method, amount int64)
}

// Journal receives sale outcomes for back-office reconciliation.
type Journal interface {
	PublishSale(ctx context.Context, ev domain.SaleEvent) error
}

type State string

const (
	StateBuilding          State = "building"
	StateSubmitting        State = "submitting"
	StateAwaitingCardInput State = "awaiting_card_input"
	StateProcessing        State = "processing"
	StateCapturing         State = "capturing"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

// Result is a completed sale.
type Result struct {
	Order *domain.Order
	// OfferReceipt is set when the buyer gave no email address and the
	// payment was by card, so a receipt can still be emailed.
	OfferReceipt bool
	// CapturePending is set when the card was authorized but capture
	// failed. The sale stands and is left for back-office reconciliation.
	CapturePending bool
}

// Router drives an order through placement and payment. It handles one
// order at a time.
type Router struct {
	api      API
	ledger   Recorder
	terminal Terminal
	journal  Journal
	username string
	eventID  string
	observer func(State)
	logger   *slog.Logger

	busy atomic.Bool
}

type Option func(*Router)

func WithTerminal(t Terminal) Option {
	return func(r *Router) {
		r.terminal = t
	}
}

// WithJournal publishes sale outcomes, tagged with the operator and the
// selected event.
func WithJournal(j Journal, username, eventID string) Option {
	return func(r *Router) {
		r.journal = j
		r.username = username
		r.eventID = eventID
	}
}

// WithObserver is called on every state change. It must not block.
func WithObserver(fn func(State)) Option {
	return func(r *Router) {
		r.observer = fn
	}
}

func NewRouter(api API, ledger Recorder, logger *slog.Logger, opts ...Option) *Router {
	r := &Router{api: api, ledger: ledger, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) acquire() error {
	if !r.busy.CompareAndSwap(false, true) {
		return ErrOrderInFlight
	}
	return nil
}

func (r *Router) release() {
	r.busy.Store(false)
}

func (r *Router) setState(s State) {
	if r.observer != nil {
		r.observer(s)
	}
}

// PayCash places a cash order. When donate is set the change is added to
// the order as a donation. On failure the order is left as it was passed
// in so the operator can try again.
func (r *Router) PayCash(ctx context.Context, o *domain.Order, received int64, donate bool) (*Result, error) {
	if err := r.acquire(); err != nil {
		return nil, err
	}
	defer r.release()

	if p := o.Payment(); p == nil || p.LedgerMethod() != domain.MethodCash {
		return nil, ErrWrongPaymentType
	}
	due := o.Payment().Amount
	if !order.CanConfirmCash(due, received) {
		return nil, ErrInsufficientPayment
	}

	undo := func() {}
	if donate && order.CanDonateChange(due, received) {
		undo = order.AddDonation(o, order.CashChange(due, received))
	}
	res, err := r.placeAndRecord(ctx, o)
	if err != nil {
		undo()
		return nil, err
	}
	return res, nil
}

// PayCheck places a check order. Any amount written above the amount due
// becomes a donation.
func (r *Router) PayCheck(ctx context.Context, o *domain.Order, received int64) (*Result, error) {
	if err := r.acquire(); err != nil {
		return nil, err
	}
	defer r.release()

	if p := o.Payment(); p == nil || p.LedgerMethod() != domain.MethodCheck {
		return nil, ErrWrongPaymentType
	}
	donation, ok := order.CheckDonation(o.Payment().Amount, received)
	if !ok {
		return nil, ErrInsufficientPayment
	}

	undo := order.AddDonation(o, donation)
	res, err := r.placeAndRecord(ctx, o)
	if err != nil {
		undo()
		return nil, err
	}
	return res, nil
}

// PayCard places a manually keyed card order. token is the payment method
// obtained by the card tokenizing SDK.
func (r *Router) PayCard(ctx context.Context, o *domain.Order, token string) (*Result, error) {
	if err := r.acquire(); err != nil {
		return nil, err
	}
	defer r.release()

	if p := o.Payment(); p == nil || p.Type != domain.PaymentCard {
		return nil, ErrWrongPaymentType
	}
	prev := o.Payment().Method
	o.Payment().Method = token

	res, err := r.placeAndRecord(ctx, o)
	if err != nil {
		o.Payment().Method = prev
		return nil, err
	}
	res.OfferReceipt = res.Order.Email == ""
	return res, nil
}

func (r *Router) placeAndRecord(ctx context.Context, o *domain.Order) (*Result, error) {
	method := o.Payment().LedgerMethod()
	ctx, span := tracer.Start(ctx, "payment "+string(method),
		trace.WithAttributes(
			attribute.String("payment.method", string(method)),
			attribute.Int64("payment.amount", o.Payment().Amount),
		),
	)
	defer span.End()

	r.setState(StateSubmitting)
	placed, err := r.api.PlaceOrder(ctx, o)
	if err != nil {
		r.logger.Error("failed to place order", "error", err, "method", method)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.setState(StateFailed)
		return nil, err
	}
	span.SetAttributes(attribute.Int("order.id", placed.ID))

	r.ledger.RecordSale(o.Lines, method, o.Payment().Amount)
	r.publish(ctx, placed.ID, domain.SaleCompleted, o)
	r.logger.Info("order placed", "order_id", placed.ID, "method", method, "amount", o.Payment().Amount)
	r.setState(StateDone)
	return &Result{Order: placed}, nil
}

// SendReceipt emails the receipt for a completed order. A failure does not
// affect the sale.
func (r *Router) SendReceipt(ctx context.Context, orderID int, email string) error {
	if !order.ValidEmail(email) {
		return ErrInvalidReceiptEmail
	}
	if err := r.api.SendReceipt(ctx, orderID, email); err != nil {
		r.logger.Error("failed to send receipt", "error", err, "order_id", orderID)
		return fmt.Errorf("send receipt: %w", err)
	}
	r.logger.Info("receipt sent", "order_id", orderID)
	return nil
}

// cancelOrder asks the server to drop an order after a failed or abandoned
// payment. Failures are only logged.
func (r *Router) cancelOrder(ctx context.Context, o *domain.Order, placedID int) {
	ctx = context.WithoutCancel(ctx)
	if err := r.api.CancelOrder(ctx, placedID); err != nil {
		r.logger.Error("failed to cancel order", "error", err, "order_id", placedID)
		return
	}
	r.logger.Info("order cancelled", "order_id", placedID)
	r.publish(ctx, placedID, domain.SaleCancelled, o)
}

func (r *Router) publish(ctx context.Context, orderID int, status domain.SaleStatus, o *domain.Order) {
	if r.journal == nil {
		return
	}
	sold, admitted := o.Counts()
	ev := domain.SaleEvent{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Status:    status,
		Method:    o.Payment().LedgerMethod(),
		Amount:    o.Payment().Amount,
		Sold:      sold,
		Admitted:  admitted,
		Username:  r.username,
		EventID:   r.eventID,
		Timestamp: time.Now().UTC(),
	}
	if err := r.journal.PublishSale(context.WithoutCancel(ctx), ev); err != nil {
		r.logger.Error("failed to publish sale event", "error", err, "order_id", orderID, "status", status)
	}
}
