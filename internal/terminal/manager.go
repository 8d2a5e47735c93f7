package terminal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// TokenFunc fetches a connection token for the reader. The token comes from
// the orders server, which holds the provider's secret key.
type TokenFunc func(ctx context.Context) (string, error)

// Manager owns the connection to a single card reader. It connects to the
// first reader discovered, reconnects after unexpected disconnects and fans
// reader events out to subscribers.
type Manager struct {
	driver   Driver
	token    TokenFunc
	location string
	logger   *slog.Logger

	mu          sync.Mutex
	status      Status
	wantConnect bool
	subs        map[int]func(Event)
	nextSub     int
	// stopRetry is set while a reconnect is pending.
	stopRetry context.CancelFunc
}

func NewManager(driver Driver, token TokenFunc, location string, logger *slog.Logger) *Manager {
	m := &Manager{
		driver:   driver,
		token:    token,
		location: location,
		logger:   logger,
		status:   Status{Connection: NotConnected},
		subs:     make(map[int]func(Event)),
	}
	driver.SetEventSink(m.handle)
	return m
}

// Connect discovers readers and connects to the first one. It is a no-op
// when a reader is already connected.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	m.wantConnect = true
	m.mu.Unlock()
	return m.attach(ctx)
}

func (m *Manager) attach(ctx context.Context) error {
	m.mu.Lock()
	if m.status.Connection != NotConnected {
		m.mu.Unlock()
		return nil
	}
	m.status.Connection = Connecting
	m.mu.Unlock()
	m.publish(Event{Kind: EventStatus, Connection: Connecting})

	reader, err := m.connect(ctx)
	if err != nil {
		m.setConnection(NotConnected, nil)
		return err
	}

	m.mu.Lock()
	abandoned := !m.wantConnect
	m.mu.Unlock()
	if abandoned {
		m.logger.Info("card reader disconnect requested while connecting", "serial", reader.SerialNumber)
		if err := m.driver.Disconnect(context.WithoutCancel(ctx)); err != nil {
			m.logger.Error("failed to disconnect card reader", "error", err)
		}
		m.setConnection(NotConnected, nil)
		return ErrNotConnected
	}

	m.logger.Info("card reader connected", "serial", reader.SerialNumber, "location", reader.LocationID)
	m.setConnection(Connected, &reader)
	return nil
}

func (m *Manager) connect(ctx context.Context) (Reader, error) {
	readers, err := m.driver.Discover(ctx)
	if err != nil {
		m.logger.Error("failed to discover card readers", "error", err)
		return Reader{}, fmt.Errorf("discover readers: %w", err)
	}
	if len(readers) == 0 {
		return Reader{}, ErrNoReaders
	}

	token, err := m.token(ctx)
	if err != nil {
		m.logger.Error("failed to get connection token", "error", err)
		return Reader{}, fmt.Errorf("connection token: %w", err)
	}

	location := readers[0].LocationID
	if location == "" {
		location = m.location
	}
	reader, err := m.driver.Connect(ctx, readers[0], ConnectConfig{LocationID: location, Token: token})
	if err != nil {
		m.logger.Error("failed to connect card reader", "error", err, "serial", readers[0].SerialNumber)
		return Reader{}, fmt.Errorf("connect reader: %w", err)
	}
	return reader, nil
}

// Disconnect drops the reader connection and stops any reconnection. It is
// called on logout, possibly from inside a reconnect, so it never waits for
// one: a connection still being set up is dropped when it completes.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	m.wantConnect = false
	connected := m.status.Connection == Connected
	if m.stopRetry != nil {
		m.stopRetry()
		m.stopRetry = nil
	}
	m.mu.Unlock()

	if !connected {
		return nil
	}
	err := m.driver.Disconnect(ctx)
	if err != nil {
		m.logger.Error("failed to disconnect card reader", "error", err)
	}
	m.setConnection(NotConnected, nil)
	return err
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager) Connected() bool {
	return m.Status().Connection == Connected
}

// Subscribe registers fn for every reader event, starting with the current
// status. The returned func removes the subscription.
func (m *Manager) Subscribe(fn func(Event)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	status := m.status
	m.mu.Unlock()

	fn(Event{Kind: EventStatus, Connection: status.Connection, BatteryLevel: status.BatteryLevel, Charging: status.Charging})

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

func (m *Manager) RetrievePaymentIntent(ctx context.Context, clientSecret string) (*PaymentIntent, error) {
	if !m.Connected() {
		return nil, ErrNotConnected
	}
	return m.driver.RetrievePaymentIntent(ctx, clientSecret)
}

// CollectPaymentMethod waits for the buyer to present a card. Cancelling ctx
// aborts the collection; the call returns ErrCollectCanceled once the
// reader has acknowledged.
func (m *Manager) CollectPaymentMethod(ctx context.Context, intent *PaymentIntent) (*PaymentIntent, error) {
	if !m.Connected() {
		return nil, ErrNotConnected
	}
	collected, err := m.driver.CollectPaymentMethod(ctx, intent)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return nil, ErrCollectCanceled
		}
		return nil, err
	}
	return collected, nil
}

func (m *Manager) ProcessPayment(ctx context.Context, intent *PaymentIntent) (*PaymentIntent, error) {
	if !m.Connected() {
		return nil, ErrNotConnected
	}
	return m.driver.ProcessPayment(ctx, intent)
}

func (m *Manager) setConnection(c ConnectionStatus, reader *Reader) {
	m.mu.Lock()
	m.status.Connection = c
	if c == NotConnected {
		m.status.Reader = nil
	} else if reader != nil {
		m.status.Reader = reader
	}
	m.mu.Unlock()
	m.publish(Event{Kind: EventStatus, Connection: c})
}

func (m *Manager) handle(ev Event) {
	m.mu.Lock()
	switch ev.Kind {
	case EventBattery:
		m.status.BatteryLevel = ev.BatteryLevel
		m.status.Charging = ev.Charging
		if ev.Charging {
			m.status.BatteryLow = false
		}
	case EventLowBattery:
		m.status.BatteryLow = true
	case EventUpdate:
		m.status.UpdateAvailable = ev.Update
	}
	reconnect := ev.Kind == EventDisconnected && m.wantConnect && m.stopRetry == nil
	if ev.Kind == EventDisconnected {
		m.status.Connection = NotConnected
		m.status.Reader = nil
	}
	var retryCtx context.Context
	var stop context.CancelFunc
	if reconnect {
		retryCtx, stop = context.WithCancel(context.Background())
		m.stopRetry = stop
	}
	m.mu.Unlock()

	switch ev.Kind {
	case EventDisconnected:
		m.logger.Warn("card reader disconnected unexpectedly")
	case EventLowBattery:
		m.logger.Warn("card reader battery low")
	case EventUpdate:
		m.logger.Info("card reader update available", "update", ev.Update)
	}
	m.publish(ev)

	if reconnect {
		go m.reconnect(retryCtx, stop)
	}
}

// reconnect runs at most once at a time; further disconnects seen while it
// is pending are absorbed by it.
func (m *Manager) reconnect(ctx context.Context, stop context.CancelFunc) {
	defer func() {
		m.mu.Lock()
		if ctx.Err() == nil {
			m.stopRetry = nil
		}
		m.mu.Unlock()
		stop()
	}()

	m.logger.Info("reconnecting card reader")
	if err := m.attach(ctx); err != nil {
		m.logger.Error("failed to reconnect card reader", "error", err)
	}
}

func (m *Manager) publish(ev Event) {
	m.mu.Lock()
	subs := make([]func(Event), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}
