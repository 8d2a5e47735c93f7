package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/joao-fontenele/doorpos/internal/domain"
)

type Store interface {
	Record(ctx context.Context, ev domain.SaleEvent) (bool, error)
	List(ctx context.Context, statuses []domain.SaleStatus) ([]Sale, error)
	ByOrder(ctx context.Context, orderID int) ([]Sale, error)
}

type Handler struct {
	store  Store
	logger *slog.Logger
}

func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger,
	}
}

// Store persists one consumed sale event. It satisfies messaging.SaleHandler.
func (h *Handler) Store(ctx context.Context, ev domain.SaleEvent) error {
	inserted, err := h.store.Record(ctx, ev)
	if err != nil {
		return fmt.Errorf("record sale %s: %w", ev.ID, err)
	}
	if !inserted {
		h.logger.Info("duplicate sale event ignored", "event_id", ev.ID, "order_id", ev.OrderID)
		return nil
	}
	if ev.Status == domain.SaleCapturePending {
		h.logger.Warn("sale authorized but not captured", "order_id", ev.OrderID, "amount", ev.Amount)
	}
	h.logger.Info("sale journalled", "event_id", ev.ID, "order_id", ev.OrderID, "status", ev.Status)
	return nil
}

// HandleList serves GET /sales. The optional status parameter takes a
// comma separated list of sale statuses.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	statuses, err := parseStatuses(r.URL.Query().Get("status"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sales, err := h.store.List(r.Context(), statuses)
	if err != nil {
		h.logger.Error("failed to list sales", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("sales listed", "count", len(sales))
	h.writeJSON(w, http.StatusOK, sales)
}

func (h *Handler) HandleGetByOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.Atoi(r.PathValue("orderId"))
	if err != nil || orderID <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	sales, err := h.store.ByOrder(r.Context(), orderID)
	if err != nil {
		h.logger.Error("failed to get sales for order", "error", err, "order_id", orderID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if len(sales) == 0 {
		h.writeError(w, http.StatusNotFound, "no sales for order")
		return
	}

	h.writeJSON(w, http.StatusOK, sales)
}

func parseStatuses(raw string) ([]domain.SaleStatus, error) {
	if raw == "" {
		return nil, nil
	}
	var statuses []domain.SaleStatus
	for _, part := range strings.Split(raw, ",") {
		s := domain.SaleStatus(strings.TrimSpace(part))
		switch s {
		case domain.SaleCompleted, domain.SaleCapturePending, domain.SaleCancelled:
			statuses = append(statuses, s)
		default:
			return nil, fmt.Errorf("unknown status %q", part)
		}
	}
	return statuses, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
