package terminal

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Simulator is an in-process Driver used in development and tests. By
// default every card presented is approved immediately; tests script
// declines, failures and a buyer who takes their time.
type Simulator struct {
	mu        sync.Mutex
	sink      func(Event)
	connected bool
	location  string
	token     string

	declines    int
	processErr  error
	retrieveErr error
	hold        chan struct{}
	collecting  chan struct{}
}

func NewSimulator() *Simulator {
	return &Simulator{collecting: make(chan struct{}, 16)}
}

func (s *Simulator) SetEventSink(sink func(Event)) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

func (s *Simulator) emit(ev Event) {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink != nil {
		sink(ev)
	}
}

func (s *Simulator) Discover(ctx context.Context) ([]Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []Reader{{SerialNumber: "CHB20SIMULATOR", Label: "Simulated reader", Simulated: true}}, nil
}

func (s *Simulator) Connect(ctx context.Context, reader Reader, cfg ConnectConfig) (Reader, error) {
	if err := ctx.Err(); err != nil {
		return Reader{}, err
	}
	if cfg.Token == "" {
		return Reader{}, errors.New("missing connection token")
	}
	s.mu.Lock()
	s.connected = true
	s.location = cfg.LocationID
	s.token = cfg.Token
	s.mu.Unlock()

	reader.LocationID = cfg.LocationID
	s.emit(Event{Kind: EventBattery, BatteryLevel: 0.8})
	return reader, nil
}

func (s *Simulator) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return nil
}

// Location is the location id of the last connection.
func (s *Simulator) Location() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.location
}

func (s *Simulator) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// DropConnection simulates the reader going out of range.
func (s *Simulator) DropConnection() {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	s.emit(Event{Kind: EventDisconnected})
}

func (s *Simulator) ReportBattery(level float64, charging bool) {
	s.emit(Event{Kind: EventBattery, BatteryLevel: level, Charging: charging})
	if level < 0.1 && !charging {
		s.emit(Event{Kind: EventLowBattery})
	}
}

func (s *Simulator) ReportUpdate(version string) {
	s.emit(Event{Kind: EventUpdate, Update: version})
}

// Decline makes the next n processed payments fail as card declines.
func (s *Simulator) Decline(n int) {
	s.mu.Lock()
	s.declines = n
	s.mu.Unlock()
}

// FailProcessing makes processing fail without an intent, as when the
// provider cannot be reached.
func (s *Simulator) FailProcessing(err error) {
	s.mu.Lock()
	s.processErr = err
	s.mu.Unlock()
}

func (s *Simulator) FailRetrieve(err error) {
	s.mu.Lock()
	s.retrieveErr = err
	s.mu.Unlock()
}

// HoldCollect makes collection wait until PresentCard is called or the
// collection is canceled.
func (s *Simulator) HoldCollect() {
	s.mu.Lock()
	s.hold = make(chan struct{})
	s.mu.Unlock()
}

// PresentCard releases a held collection.
func (s *Simulator) PresentCard() {
	s.mu.Lock()
	hold := s.hold
	s.hold = nil
	s.mu.Unlock()
	if hold != nil {
		close(hold)
	}
}

// Collecting delivers a value every time a collection starts waiting for
// a card.
func (s *Simulator) Collecting() <-chan struct{} {
	return s.collecting
}

func (s *Simulator) RetrievePaymentIntent(ctx context.Context, clientSecret string) (*PaymentIntent, error) {
	s.mu.Lock()
	err := s.retrieveErr
	connected := s.connected
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if !connected {
		return nil, ErrNotConnected
	}
	if clientSecret == "" {
		return nil, errors.New("no such payment intent")
	}
	id, _, _ := strings.Cut(clientSecret, "_secret")
	return &PaymentIntent{ID: id, ClientSecret: clientSecret, Status: IntentRequiresPaymentMethod}, nil
}

func (s *Simulator) CollectPaymentMethod(ctx context.Context, intent *PaymentIntent) (*PaymentIntent, error) {
	s.mu.Lock()
	hold := s.hold
	s.mu.Unlock()

	s.emit(Event{Kind: EventInputRequired, Message: "Swipe, insert or tap card"})
	select {
	case s.collecting <- struct{}{}:
	default:
	}

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.emit(Event{Kind: EventDisplay, Message: "Remove card"})
	collected := *intent
	collected.Status = IntentRequiresConfirmation
	return &collected, nil
}

func (s *Simulator) ProcessPayment(ctx context.Context, intent *PaymentIntent) (*PaymentIntent, error) {
	s.mu.Lock()
	processErr := s.processErr
	decline := s.declines > 0
	if decline {
		s.declines--
	}
	s.mu.Unlock()

	if processErr != nil {
		return nil, &ProcessError{Message: processErr.Error()}
	}
	if decline {
		declined := *intent
		declined.Status = IntentRequiresPaymentMethod
		return nil, &ProcessError{Intent: &declined, DeclineCode: "card_declined", Message: "Your card was declined."}
	}
	processed := *intent
	processed.Status = IntentRequiresCapture
	return &processed, nil
}
