package journal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/doorpos/internal/domain"
)

type memStore struct {
	sales   []Sale
	listed  [][]domain.SaleStatus
	failErr error
}

func (m *memStore) Record(ctx context.Context, ev domain.SaleEvent) (bool, error) {
	if m.failErr != nil {
		return false, m.failErr
	}
	for _, s := range m.sales {
		if s.ID == ev.ID {
			return false, nil
		}
	}
	m.sales = append(m.sales, Sale{SaleEvent: ev, RecordedAt: time.Now()})
	return true, nil
}

func (m *memStore) List(ctx context.Context, statuses []domain.SaleStatus) ([]Sale, error) {
	if m.failErr != nil {
		return nil, m.failErr
	}
	m.listed = append(m.listed, statuses)
	out := []Sale{}
	for _, s := range m.sales {
		if len(statuses) == 0 || containsStatus(statuses, s.Status) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) ByOrder(ctx context.Context, orderID int) ([]Sale, error) {
	var out []Sale
	for _, s := range m.sales {
		if s.OrderID == orderID {
			out = append(out, s)
		}
	}
	return out, nil
}

func containsStatus(statuses []domain.SaleStatus, s domain.SaleStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func newTestHandler(store Store) (*Handler, *http.ServeMux) {
	h := NewHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sales", h.HandleList)
	mux.HandleFunc("GET /sales/{orderId}", h.HandleGetByOrder)
	return h, mux
}

func sale(id string, orderID int, status domain.SaleStatus) domain.SaleEvent {
	return domain.SaleEvent{
		ID:        id,
		OrderID:   orderID,
		Status:    status,
		Method:    domain.MethodCash,
		Amount:    4500,
		Sold:      2,
		Admitted:  2,
		Timestamp: time.Date(2026, 12, 5, 19, 30, 0, 0, time.UTC),
	}
}

func TestHandler_Store(t *testing.T) {
	t.Run("records new events once", func(t *testing.T) {
		store := &memStore{}
		h, _ := newTestHandler(store)

		require.NoError(t, h.Store(context.Background(), sale("a", 1, domain.SaleCompleted)))
		require.NoError(t, h.Store(context.Background(), sale("a", 1, domain.SaleCompleted)))

		assert.Len(t, store.sales, 1)
	})

	t.Run("wraps store failures", func(t *testing.T) {
		dbErr := errors.New("connection refused")
		h, _ := newTestHandler(&memStore{failErr: dbErr})

		err := h.Store(context.Background(), sale("a", 1, domain.SaleCompleted))
		assert.ErrorIs(t, err, dbErr)
	})
}

func TestHandler_HandleList(t *testing.T) {
	store := &memStore{}
	h, mux := newTestHandler(store)
	require.NoError(t, h.Store(context.Background(), sale("a", 1, domain.SaleCompleted)))
	require.NoError(t, h.Store(context.Background(), sale("b", 2, domain.SaleCapturePending)))
	require.NoError(t, h.Store(context.Background(), sale("c", 3, domain.SaleCancelled)))

	t.Run("lists everything without a filter", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sales", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var got []Sale
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Len(t, got, 3)
	})

	t.Run("filters by status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sales?status=capture_pending,cancelled", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		var got []Sale
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		require.Len(t, got, 2)
		assert.Equal(t, 2, got[0].OrderID)
		assert.Equal(t, []domain.SaleStatus{domain.SaleCapturePending, domain.SaleCancelled}, store.listed[len(store.listed)-1])
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sales?status=refunded", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), `unknown status`)
	})

	t.Run("store failure is a 500", func(t *testing.T) {
		_, failing := newTestHandler(&memStore{failErr: errors.New("boom")})
		rec := httptest.NewRecorder()
		failing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sales", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
	})
}

func TestHandler_HandleGetByOrder(t *testing.T) {
	store := &memStore{}
	h, mux := newTestHandler(store)
	require.NoError(t, h.Store(context.Background(), sale("a", 17, domain.SaleCapturePending)))

	t.Run("returns outcomes for the order", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sales/17", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		var got []Sale
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		require.Len(t, got, 1)
		assert.Equal(t, domain.SaleCapturePending, got[0].Status)
		assert.Equal(t, int64(4500), got[0].Amount)
	})

	t.Run("unknown order", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sales/99", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sales/abc", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
