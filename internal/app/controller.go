// Package app wires the door client together: it owns the operator's
// session and builds the payment router, card reader and ticket desk for
// the selected event.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/doorpos/internal/backend"
	"github.com/joao-fontenele/doorpos/internal/config"
	"github.com/joao-fontenele/doorpos/internal/domain"
	"github.com/joao-fontenele/doorpos/internal/ledger"
	"github.com/joao-fontenele/doorpos/internal/messaging"
	"github.com/joao-fontenele/doorpos/internal/order"
	"github.com/joao-fontenele/doorpos/internal/payment"
	"github.com/joao-fontenele/doorpos/internal/session"
	"github.com/joao-fontenele/doorpos/internal/telemetry"
	"github.com/joao-fontenele/doorpos/internal/terminal"
	"github.com/joao-fontenele/doorpos/internal/tickets"
)

var (
	ErrNotLoggedIn    = errors.New("not logged in")
	ErrNoCardReader   = errors.New("card payments were not enabled at login")
	ErrEventNotLoaded = errors.New("select an event first")
)

// SaleJournal is a payment.Journal the controller owns and closes.
type SaleJournal interface {
	payment.Journal
	Close() error
}

type Controller struct {
	cfg        *config.Config
	httpClient *http.Client
	meter      metric.Meter
	driver     terminal.Driver
	journal    SaleJournal
	observer   func(payment.State)
	logger     *slog.Logger

	ownsJournal bool

	mu     sync.Mutex
	sess   *session.Session
	reader *terminal.Manager
	router *payment.Router
	desk   *tickets.Desk
}

type Option func(*Controller)

func WithHTTPClient(c *http.Client) Option {
	return func(ctl *Controller) {
		ctl.httpClient = c
	}
}

func WithMeter(m metric.Meter) Option {
	return func(ctl *Controller) {
		ctl.meter = m
	}
}

// WithDriver sets the card reader SDK. Without one, card-present payments
// are unavailable unless the config asks for the simulator.
func WithDriver(d terminal.Driver) Option {
	return func(ctl *Controller) {
		ctl.driver = d
	}
}

func WithSaleJournal(j SaleJournal) Option {
	return func(ctl *Controller) {
		ctl.journal = j
	}
}

func WithPaymentObserver(fn func(payment.State)) Option {
	return func(ctl *Controller) {
		ctl.observer = fn
	}
}

func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = telemetry.NewHTTPClient(cfg.API.Timeout)
	}
	if c.meter == nil {
		c.meter = otel.Meter("doorpos")
	}
	if c.driver == nil && cfg.Terminal.Simulated {
		c.driver = terminal.NewSimulator()
	}
	if c.journal == nil && len(cfg.Journal.Brokers) > 0 {
		c.journal = messaging.NewSaleProducer(cfg.Journal.Brokers, cfg.Journal.Topic)
		c.ownsJournal = true
	}
	return c
}

// Login starts a session against the live or test server. Any current
// session is logged out first.
func (c *Controller) Login(ctx context.Context, username, password string, allow domain.Allow, testMode bool) (*session.Session, error) {
	c.Logout()

	l, err := ledger.New(c.meter)
	if err != nil {
		return nil, err
	}
	client := backend.NewClient(c.cfg.API.BaseURL(testMode), c.httpClient, c.logger)

	sess, err := session.Login(ctx, client, username, password, allow, testMode, l, c.logger)
	if err != nil {
		return nil, err
	}

	var reader *terminal.Manager
	if allow.Card && c.driver != nil {
		reader = terminal.NewManager(c.driver, sess.Client().ConnectionToken, c.cfg.Terminal.Location(testMode), c.logger)
		sess.OnLogout(func() {
			if err := reader.Disconnect(context.Background()); err != nil {
				c.logger.Warn("card reader disconnect failed", "error", err)
			}
		})
	}
	sess.OnLogout(func() { c.forget(sess) })

	c.mu.Lock()
	c.sess = sess
	c.reader = reader
	c.router = nil
	c.desk = nil
	c.mu.Unlock()
	return sess, nil
}

func (c *Controller) forget(sess *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != sess {
		return
	}
	c.sess = nil
	c.reader = nil
	c.router = nil
	c.desk = nil
}

func (c *Controller) Logout() {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess != nil {
		sess.Logout()
	}
}

// Close ends the session and releases the sale journal.
func (c *Controller) Close() error {
	c.Logout()
	if c.journal != nil && c.ownsJournal {
		return c.journal.Close()
	}
	return nil
}

func (c *Controller) Session() (*session.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil, ErrNotLoggedIn
	}
	return c.sess, nil
}

// SelectEvent loads ev's products and readies a payment router and ticket
// desk for it.
func (c *Controller) SelectEvent(ctx context.Context, ev domain.Event) error {
	sess, err := c.Session()
	if err != nil {
		return err
	}
	if err := sess.SelectEvent(ctx, ev); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != sess {
		return ErrNotLoggedIn
	}

	var opts []payment.Option
	if c.reader != nil {
		opts = append(opts, payment.WithTerminal(c.reader))
	}
	if c.journal != nil {
		opts = append(opts, payment.WithJournal(c.journal, sess.Username, ev.ID))
	}
	if c.observer != nil {
		opts = append(opts, payment.WithObserver(c.observer))
	}
	c.router = payment.NewRouter(sess.Client(), sess.Ledger(), c.logger, opts...)
	c.desk = tickets.NewDesk(sess.Client(), sess.Ledger(), ev.ID, c.logger)
	return nil
}

func (c *Controller) Router() (*payment.Router, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil, ErrNotLoggedIn
	}
	if c.router == nil {
		return nil, ErrEventNotLoaded
	}
	return c.router, nil
}

func (c *Controller) Desk() (*tickets.Desk, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil, ErrNotLoggedIn
	}
	if c.desk == nil {
		return nil, ErrEventNotLoaded
	}
	return c.desk, nil
}

// CardReader returns the session's card reader manager.
func (c *Controller) CardReader() (*terminal.Manager, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil, ErrNotLoggedIn
	}
	if c.reader == nil {
		return nil, ErrNoCardReader
	}
	return c.reader, nil
}

func (c *Controller) ConnectReader(ctx context.Context) error {
	reader, err := c.CardReader()
	if err != nil {
		return err
	}
	return reader.Connect(ctx)
}

// ReaderConnected reports whether card-present payments can be taken now.
func (c *Controller) ReaderConnected() bool {
	reader, err := c.CardReader()
	return err == nil && reader.Connected()
}

// NewTicketOrder starts an order for the selected event.
func (c *Controller) NewTicketOrder() (*order.Builder, error) {
	sess, err := c.Session()
	if err != nil {
		return nil, err
	}
	ev, err := sess.Event()
	if err != nil {
		return nil, err
	}
	return order.NewTicketOrder(ev.ID, sess.Products()), nil
}

// NewMerchandiseOrder starts a wardrobe sale.
func (c *Controller) NewMerchandiseOrder() (*order.Builder, error) {
	if _, err := c.Session(); err != nil {
		return nil, err
	}
	return order.NewMerchandiseOrder(order.DefaultMerchandise, order.MerchandiseDonation), nil
}

// Totals is the running tally for the current session.
func (c *Controller) Totals() (ledger.Totals, error) {
	sess, err := c.Session()
	if err != nil {
		return ledger.Totals{}, err
	}
	return sess.Ledger().Totals(), nil
}
