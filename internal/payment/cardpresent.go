package payment

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/doorpos/internal/domain"
	"github.com/joao-fontenele/doorpos/internal/terminal"
)

// Attempt is a card-present payment in progress.
type Attempt struct {
	stop context.CancelFunc
	done chan struct{}

	mu        sync.Mutex
	state     State
	captured  bool
	cancelled bool
	result    *Result
	err       error
}

// Cancel abandons the payment. It returns false, and the sale goes on,
// once the card has been authorized. Calling it again is harmless.
func (a *Attempt) Cancel() bool {
	a.mu.Lock()
	if a.captured {
		a.mu.Unlock()
		return false
	}
	a.cancelled = true
	a.mu.Unlock()
	a.stop()
	return true
}

func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Wait blocks until the attempt is over and returns its outcome.
// ErrCanceled means the order was abandoned and cancelled on the server.
func (a *Attempt) Wait() (*Result, error) {
	<-a.done
	return a.result, a.err
}

// lockIn marks the point after which the attempt can no longer be
// cancelled. It fails if a cancel got there first.
func (a *Attempt) lockIn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancelled {
		return false
	}
	a.captured = true
	return true
}

func (a *Attempt) wasCancelled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancelled
}

// PayCardPresent runs a card-present payment to completion. Cancelling ctx
// cancels the payment as Attempt.Cancel would.
func (r *Router) PayCardPresent(ctx context.Context, o *domain.Order) (*Result, error) {
	a, err := r.StartCardPresent(ctx, o)
	if err != nil {
		return nil, err
	}
	go func() {
		select {
		case <-ctx.Done():
			a.Cancel()
		case <-a.Done():
		}
	}()
	return a.Wait()
}

// StartCardPresent places the order and starts collecting payment from the
// card reader in the background. Only ctx's values are used; the attempt
// is stopped through Attempt.Cancel.
func (r *Router) StartCardPresent(ctx context.Context, o *domain.Order) (*Attempt, error) {
	if r.terminal == nil || !r.terminal.Connected() {
		return nil, ErrNoTerminal
	}
	if p := o.Payment(); p == nil || p.Type != domain.PaymentCardPresent {
		return nil, ErrWrongPaymentType
	}
	if err := r.acquire(); err != nil {
		return nil, err
	}

	runCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	a := &Attempt{stop: stop, done: make(chan struct{}), state: StateBuilding}

	go func() {
		defer close(a.done)
		defer r.release()
		defer stop()

		res, err := r.runCardPresent(runCtx, a, o)
		a.mu.Lock()
		a.result, a.err = res, err
		a.mu.Unlock()
	}()
	return a, nil
}

func (r *Router) runCardPresent(ctx context.Context, a *Attempt, o *domain.Order) (*Result, error) {
	ctx, span := tracer.Start(ctx, "payment card-present",
		trace.WithAttributes(attribute.Int64("payment.amount", o.Payment().Amount)),
	)
	defer span.End()

	setState := func(s State) {
		a.mu.Lock()
		a.state = s
		a.mu.Unlock()
		r.setState(s)
	}
	fail := func(err error) (*Result, error) {
		if !errors.Is(err, ErrCanceled) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		setState(StateFailed)
		return nil, err
	}

	setState(StateSubmitting)
	placed, err := r.api.PlaceOrder(context.WithoutCancel(ctx), o)
	if err != nil {
		r.logger.Error("failed to place order", "error", err, "method", domain.MethodCardPresent)
		return fail(err)
	}
	span.SetAttributes(attribute.Int("order.id", placed.ID))

	abandon := func(err error) (*Result, error) {
		r.cancelOrder(ctx, o, placed.ID)
		return fail(err)
	}
	if a.wasCancelled() {
		return abandon(ErrCanceled)
	}

	secret := ""
	if p := placed.Payment(); p != nil {
		secret = p.Method
	}
	if secret == "" {
		return abandon(ErrMissingPaymentIntent)
	}
	intent, err := r.terminal.RetrievePaymentIntent(ctx, secret)
	if err != nil {
		if a.wasCancelled() {
			return abandon(ErrCanceled)
		}
		r.logger.Error("failed to retrieve payment intent", "error", err, "order_id", placed.ID)
		return abandon(err)
	}

	for {
		setState(StateAwaitingCardInput)
		collected, err := r.terminal.CollectPaymentMethod(ctx, intent)
		if err != nil {
			if a.wasCancelled() || errors.Is(err, terminal.ErrCollectCanceled) {
				return abandon(ErrCanceled)
			}
			r.logger.Error("failed to collect payment method", "error", err, "order_id", placed.ID)
			return abandon(err)
		}

		setState(StateProcessing)
		processed, err := r.terminal.ProcessPayment(context.WithoutCancel(ctx), collected)
		if err != nil {
			var perr *terminal.ProcessError
			if errors.As(err, &perr) && perr.Declined() && !a.wasCancelled() {
				r.logger.Warn("card declined", "order_id", placed.ID, "decline_code", perr.DeclineCode)
				intent = perr.Intent
				continue
			}
			if a.wasCancelled() {
				return abandon(ErrCanceled)
			}
			r.logger.Error("failed to process payment", "error", err, "order_id", placed.ID)
			return abandon(err)
		}
		intent = processed
		break
	}

	if !a.lockIn() {
		return abandon(ErrCanceled)
	}

	setState(StateCapturing)
	r.ledger.RecordSale(o.Lines, domain.MethodCardPresent, o.Payment().Amount)

	captured, err := r.api.CapturePayment(context.WithoutCancel(ctx), placed.ID)
	if err != nil {
		r.logger.Error("failed to capture payment", "error", err, "order_id", placed.ID, "intent_id", intent.ID)
		span.RecordError(err)
		r.publish(ctx, placed.ID, domain.SaleCapturePending, o)
		setState(StateDone)
		return &Result{Order: placed, CapturePending: true}, nil
	}

	r.publish(ctx, placed.ID, domain.SaleCompleted, o)
	r.logger.Info("card payment captured", "order_id", placed.ID, "amount", o.Payment().Amount)
	setState(StateDone)
	return &Result{Order: captured, OfferReceipt: captured.Email == ""}, nil
}
