//go:build integration

package test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/joao-fontenele/doorpos/internal/app"
	"github.com/joao-fontenele/doorpos/internal/config"
	"github.com/joao-fontenele/doorpos/internal/domain"
	"github.com/joao-fontenele/doorpos/internal/journal"
	"github.com/joao-fontenele/doorpos/internal/messaging"
	"github.com/joao-fontenele/doorpos/internal/order"
	"github.com/joao-fontenele/doorpos/internal/stubapi"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func saleEvent(orderID int, status domain.SaleStatus, at time.Time) domain.SaleEvent {
	return domain.SaleEvent{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Status:    status,
		Method:    domain.MethodCardPresent,
		Amount:    2100,
		Sold:      1,
		Admitted:  1,
		Username:  "door",
		EventID:   "2026-12-05",
		Timestamp: at.UTC().Truncate(time.Microsecond),
	}
}

func TestJournalRepository(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	repo := journal.NewRepository(JournalDB(t, SetupPostgres(ctx, t)))
	base := time.Date(2026, 12, 5, 19, 0, 0, 0, time.UTC)

	completed := saleEvent(1, domain.SaleCompleted, base)
	pending := saleEvent(2, domain.SaleCapturePending, base.Add(time.Minute))
	cancelled := saleEvent(3, domain.SaleCancelled, base.Add(2*time.Minute))

	t.Run("records each event once", func(t *testing.T) {
		for _, ev := range []domain.SaleEvent{completed, pending, cancelled} {
			inserted, err := repo.Record(ctx, ev)
			require.NoError(t, err)
			assert.True(t, inserted)
		}

		inserted, err := repo.Record(ctx, pending)
		require.NoError(t, err)
		assert.False(t, inserted)
	})

	t.Run("lists newest first", func(t *testing.T) {
		sales, err := repo.List(ctx, nil)
		require.NoError(t, err)
		require.Len(t, sales, 3)
		assert.Equal(t, 3, sales[0].OrderID)
		assert.Equal(t, 1, sales[2].OrderID)
	})

	t.Run("filters by status", func(t *testing.T) {
		sales, err := repo.List(ctx, []domain.SaleStatus{domain.SaleCapturePending})
		require.NoError(t, err)
		require.Len(t, sales, 1)
		assert.Equal(t, pending.ID, sales[0].ID)
		assert.Equal(t, pending.Timestamp, sales[0].Timestamp.UTC())
		assert.False(t, sales[0].RecordedAt.IsZero())
	})

	t.Run("by order", func(t *testing.T) {
		sales, err := repo.ByOrder(ctx, 2)
		require.NoError(t, err)
		require.Len(t, sales, 1)
		assert.Equal(t, domain.MethodCardPresent, sales[0].Method)

		none, err := repo.ByOrder(ctx, 99)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestSaleJournalPipeline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	brokers := SetupKafka(ctx, t)
	repo := journal.NewRepository(JournalDB(t, SetupPostgres(ctx, t)))
	handler := journal.NewHandler(repo, discard())

	const topic = "door.sales"
	producer := messaging.NewSaleProducer(brokers, topic)
	defer func() { _ = producer.Close() }()

	logger := discard()
	server := httptest.NewServer(stubapi.NewServer(stubapi.DefaultSeed(), logger).Handler())
	defer server.Close()
	cfg := &config.Config{API: config.APIConfig{TestURL: server.URL}}

	ctl := app.New(cfg, logger,
		app.WithHTTPClient(server.Client()),
		app.WithMeter(noop.NewMeterProvider().Meter("test")),
		app.WithSaleJournal(producer),
	)
	defer func() { _ = ctl.Close() }()

	_, err := ctl.Login(ctx, "door", "door", domain.Allow{Cash: true}, true)
	require.NoError(t, err)
	require.NoError(t, ctl.SelectEvent(ctx, domain.Event{ID: "2026-12-05"}))

	b, err := ctl.NewTicketOrder()
	require.NoError(t, err)
	require.NoError(t, b.SellMore("ticket-general"))
	o, err := b.Build(order.TenderCash, domain.Allow{Cash: true}, false)
	require.NoError(t, err)

	router, err := ctl.Router()
	require.NoError(t, err)
	res, err := router.PayCash(ctx, o, 2500, true)
	require.NoError(t, err)

	pending := saleEvent(res.Order.ID+100, domain.SaleCapturePending, time.Now())
	require.NoError(t, producer.PublishSale(ctx, pending))
	require.NoError(t, producer.PublishSale(ctx, pending))

	consumer := messaging.NewSaleConsumer(brokers, topic, "journal-test", discard(),
		messaging.WithStartOffset(kafka.FirstOffset))
	defer func() { _ = consumer.Close() }()

	consumeCtx, stopConsuming := context.WithCancel(ctx)
	defer stopConsuming()
	go func() { _ = consumer.Consume(consumeCtx, handler.Store) }()

	require.Eventually(t, func() bool {
		sales, err := repo.List(ctx, nil)
		return err == nil && len(sales) == 2
	}, time.Minute, 500*time.Millisecond)

	sales, err := repo.ByOrder(ctx, res.Order.ID)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, domain.SaleCompleted, sales[0].Status)
	assert.Equal(t, int64(2500), sales[0].Amount)
	assert.Equal(t, domain.MethodCash, sales[0].Method)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /sales", handler.HandleList)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sales?status=capture_pending", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var listed []journal.Sale
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listed))
	require.Len(t, listed, 1)
	assert.Equal(t, pending.ID, listed[0].ID)
}
