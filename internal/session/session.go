package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/joao-fontenele/doorpos/internal/backend"
	"github.com/joao-fontenele/doorpos/internal/domain"
	"github.com/joao-fontenele/doorpos/internal/ledger"
)

var (
	ErrCredentialsRequired = errors.New("Please enter username and password.")
	ErrNotAuthorized       = errors.New("Not authorized to use this app")
	ErrCannotSell          = errors.New("Not authorized to sell tickets")
	ErrCannotViewWillCall  = errors.New("Not authorized to view will call list")
	ErrNoEvent             = errors.New("no event selected")
	ErrLoggedOut           = errors.New("logged out")
)

// Session is one operator's login. All server calls for the session go
// through Client, which logs the session out if the server stops accepting
// its token.
type Session struct {
	Username        string
	Allow           domain.Allow
	StripePublicKey string
	TestMode        bool

	client *backend.Client
	ledger *ledger.Ledger
	logger *slog.Logger

	mu       sync.Mutex
	event    *domain.Event
	products []domain.Product
	hooks    []func()
	done     chan struct{}
	once     sync.Once
}

// Login authenticates with the server and checks the operator holds the
// privileges for every mode they asked for. No session exists unless all
// checks pass.
func Login(ctx context.Context, client *backend.Client, username, password string, allow domain.Allow, testMode bool, l *ledger.Ledger, logger *slog.Logger) (*Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrCredentialsRequired
	}

	result, err := client.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if err := authorize(result, allow); err != nil {
		logger.Warn("login refused", "username", username, "reason", err)
		return nil, err
	}

	s := &Session{
		Username:        username,
		Allow:           allow,
		StripePublicKey: result.StripePublicKey,
		TestMode:        testMode,
		ledger:          l,
		logger:          logger,
		done:            make(chan struct{}),
	}
	if result.Username != "" {
		s.Username = result.Username
	}
	s.client = client.WithSession(result.Token, s.Logout)

	logger.Info("logged in", "username", s.Username, "test_mode", testMode, "card", allow.Card, "cash", allow.Cash, "will_call", allow.WillCall)
	return s, nil
}

func authorize(result *domain.LoginResult, allow domain.Allow) error {
	if !result.PrivScanTickets {
		return ErrNotAuthorized
	}
	if allow.Sells() && !result.PrivInPersonSales {
		return ErrCannotSell
	}
	if allow.WillCall && !result.PrivViewOrders {
		return ErrCannotViewWillCall
	}
	return nil
}

func (s *Session) Client() *backend.Client {
	return s.client
}

func (s *Session) Ledger() *ledger.Ledger {
	return s.ledger
}

// Events lists the upcoming events an operator can choose from.
func (s *Session) Events(ctx context.Context) ([]domain.Event, error) {
	if s.LoggedOut() {
		return nil, ErrLoggedOut
	}
	return s.client.Events(ctx)
}

// SelectEvent makes ev the session's event and loads what is on sale for
// it. The previous selection is kept if loading fails.
func (s *Session) SelectEvent(ctx context.Context, ev domain.Event) error {
	if s.LoggedOut() {
		return ErrLoggedOut
	}
	products, err := s.client.Prices(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("load prices for %s: %w", ev.ID, err)
	}

	s.mu.Lock()
	s.event = &ev
	s.products = products
	s.mu.Unlock()

	s.logger.Info("event selected", "event_id", ev.ID, "products", len(products))
	return nil
}

func (s *Session) Event() (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.event == nil {
		return domain.Event{}, ErrNoEvent
	}
	return *s.event, nil
}

func (s *Session) Products() []domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Product(nil), s.products...)
}

// OnLogout registers fn to run when the session ends. Hooks run in
// registration order, once.
func (s *Session) OnLogout(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Logout ends the session. It is safe to call more than once and from
// any goroutine.
func (s *Session) Logout() {
	s.once.Do(func() {
		s.mu.Lock()
		hooks := s.hooks
		s.hooks = nil
		s.event = nil
		s.products = nil
		s.mu.Unlock()

		if s.ledger != nil {
			s.ledger.Reset()
		}
		for _, fn := range hooks {
			fn()
		}
		close(s.done)
		s.logger.Info("logged out", "username", s.Username)
	})
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) LoggedOut() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
