package session

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/joao-fontenele/doorpos/internal/backend"
	"github.com/joao-fontenele/doorpos/internal/domain"
	"github.com/joao-fontenele/doorpos/internal/ledger"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.New(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	return l
}

func loginServer(t *testing.T, result domain.LoginResult) *backend.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(result)
	})
	mux.HandleFunc("GET /prices", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Auth") != result.Token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"coupon":false,"products":[{"id":"ticket-general","name":"General","price":2000,"ticketCount":1}]}`))
	})
	mux.HandleFunc("GET /event", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return backend.NewClient(server.URL, server.Client(), discard())
}

var fullPrivileges = domain.LoginResult{Token: "tok-1", PrivScanTickets: true, PrivInPersonSales: true, PrivViewOrders: true}

func TestLogin(t *testing.T) {
	sellAll := domain.Allow{Card: true, Cash: true, WillCall: true}

	for _, tc := range []struct {
		name     string
		result   domain.LoginResult
		username string
		password string
		allow    domain.Allow
		wantErr  string
	}{
		{"missing username", fullPrivileges, " ", "secret", sellAll, "Please enter username and password."},
		{"missing password", fullPrivileges, "door", "", sellAll, "Please enter username and password."},
		{"wrong password", fullPrivileges, "door", "wrong", sellAll, "Login incorrect"},
		{"no scan privilege", domain.LoginResult{Token: "t", PrivInPersonSales: true, PrivViewOrders: true}, "door", "secret", sellAll, "Not authorized to use this app"},
		{"no sales privilege", domain.LoginResult{Token: "t", PrivScanTickets: true, PrivViewOrders: true}, "door", "secret", domain.Allow{Cash: true}, "Not authorized to sell tickets"},
		{"no will call privilege", domain.LoginResult{Token: "t", PrivScanTickets: true, PrivInPersonSales: true}, "door", "secret", sellAll, "Not authorized to view will call list"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			client := loginServer(t, tc.result)
			s, err := Login(context.Background(), client, tc.username, tc.password, tc.allow, false, newLedger(t), discard())
			assert.Nil(t, s)
			assert.EqualError(t, err, tc.wantErr)
		})
	}

	t.Run("scanning only needs scan privilege", func(t *testing.T) {
		client := loginServer(t, domain.LoginResult{Token: "t", PrivScanTickets: true})
		s, err := Login(context.Background(), client, "door", "secret", domain.Allow{}, false, newLedger(t), discard())
		require.NoError(t, err)
		assert.Equal(t, "door", s.Username)
	})
}

func TestSession(t *testing.T) {
	t.Run("select event loads products", func(t *testing.T) {
		client := loginServer(t, fullPrivileges)
		s, err := Login(context.Background(), client, "door", "secret", domain.Allow{Cash: true}, false, newLedger(t), discard())
		require.NoError(t, err)

		_, err = s.Event()
		assert.ErrorIs(t, err, ErrNoEvent)

		require.NoError(t, s.SelectEvent(context.Background(), domain.Event{ID: "2026-12-05", Name: "Winter Concert"}))
		ev, err := s.Event()
		require.NoError(t, err)
		assert.Equal(t, "2026-12-05", ev.ID)
		assert.Len(t, s.Products(), 1)
	})

	t.Run("logout is idempotent and resets state", func(t *testing.T) {
		client := loginServer(t, fullPrivileges)
		l := newLedger(t)
		s, err := Login(context.Background(), client, "door", "secret", domain.Allow{Cash: true}, false, l, discard())
		require.NoError(t, err)
		require.NoError(t, s.SelectEvent(context.Background(), domain.Event{ID: "2026-12-05"}))
		l.RecordAdmission(4)

		hooks := 0
		s.OnLogout(func() { hooks++ })

		s.Logout()
		s.Logout()

		assert.Equal(t, 1, hooks)
		assert.True(t, s.LoggedOut())
		assert.Equal(t, ledger.Totals{}, l.Totals())
		assert.Empty(t, s.Products())
		_, err = s.Event()
		assert.ErrorIs(t, err, ErrNoEvent)
		assert.ErrorIs(t, s.SelectEvent(context.Background(), domain.Event{ID: "x"}), ErrLoggedOut)
	})

	t.Run("401 mid-session logs out", func(t *testing.T) {
		client := loginServer(t, fullPrivileges)
		s, err := Login(context.Background(), client, "door", "secret", domain.Allow{}, false, newLedger(t), discard())
		require.NoError(t, err)

		_, err = s.Events(context.Background())
		assert.ErrorIs(t, err, backend.ErrSessionExpired)

		select {
		case <-s.Done():
		default:
			t.Fatal("session should have ended")
		}
	})
}
