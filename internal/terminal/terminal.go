package terminal

import (
	"context"
	"errors"
)

var (
	ErrNotConnected    = errors.New("card reader not connected")
	ErrNoReaders       = errors.New("no card readers found")
	ErrCollectCanceled = errors.New("card collection canceled")
)

type ConnectionStatus string

const (
	NotConnected ConnectionStatus = "not_connected"
	Connecting   ConnectionStatus = "connecting"
	Connected    ConnectionStatus = "connected"
)

// IntentStatus mirrors the payment provider's payment intent states.
type IntentStatus string

const (
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentRequiresCapture       IntentStatus = "requires_capture"
	IntentProcessing            IntentStatus = "processing"
	IntentCanceled              IntentStatus = "canceled"
	IntentSucceeded             IntentStatus = "succeeded"
)

type Reader struct {
	SerialNumber string
	Label        string
	LocationID   string
	Simulated    bool
}

type PaymentIntent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Status       IntentStatus
}

// ProcessError is returned when the reader could not process a collected
// payment method. Intent is the intent as it stands after the failure and
// may be nil when the provider could not be reached.
type ProcessError struct {
	Intent      *PaymentIntent
	DeclineCode string
	Message     string
}

func (e *ProcessError) Error() string {
	return e.Message
}

// Declined reports whether the card was refused and another one may be
// presented for the same intent.
func (e *ProcessError) Declined() bool {
	return e.Intent != nil && e.Intent.Status != IntentRequiresConfirmation
}

type EventKind string

const (
	EventStatus        EventKind = "status"
	EventDisconnected  EventKind = "unexpected_disconnect"
	EventBattery       EventKind = "battery"
	EventLowBattery    EventKind = "low_battery"
	EventUpdate        EventKind = "update_available"
	EventDisplay       EventKind = "display_message"
	EventInputRequired EventKind = "input_required"
)

// Event is something the reader reported. Only the fields relevant to the
// kind are set.
type Event struct {
	Kind         EventKind
	Connection   ConnectionStatus
	BatteryLevel float64
	Charging     bool
	Update       string
	Message      string
}

// ConnectConfig carries what a driver needs to attach to a reader.
type ConnectConfig struct {
	LocationID string
	Token      string
}

// Driver is the boundary to the card terminal SDK. Implementations report
// asynchronous reader activity through the sink installed by SetEventSink.
type Driver interface {
	SetEventSink(sink func(Event))
	Discover(ctx context.Context) ([]Reader, error)
	Connect(ctx context.Context, reader Reader, cfg ConnectConfig) (Reader, error)
	Disconnect(ctx context.Context) error
	RetrievePaymentIntent(ctx context.Context, clientSecret string) (*PaymentIntent, error)
	CollectPaymentMethod(ctx context.Context, intent *PaymentIntent) (*PaymentIntent, error)
	ProcessPayment(ctx context.Context, intent *PaymentIntent) (*PaymentIntent, error)
}

// Status is the reader state shown in the status banner.
type Status struct {
	Connection      ConnectionStatus
	Reader          *Reader
	BatteryLevel    float64
	BatteryLow      bool
	Charging        bool
	UpdateAvailable string
}
