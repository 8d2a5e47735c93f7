// Package stubapi serves an in-memory copy of the orders API so the door
// client can be exercised without the production backend.
package stubapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strconv"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joao-fontenele/doorpos/internal/domain"
)

type Server struct {
	store  *store
	logger *slog.Logger

	registry  *prometheus.Registry
	placed    *prometheus.CounterVec
	cancelled prometheus.Counter
	captured  prometheus.Counter
	denied    prometheus.Counter
}

func NewServer(seed Seed, logger *slog.Logger) *Server {
	s := &Server{
		store:    newStore(seed),
		logger:   logger,
		registry: prometheus.NewRegistry(),
		placed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stubapi_orders_placed_total",
			Help: "Orders accepted, by payment type.",
		}, []string{"payment_type"}),
		cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stubapi_orders_cancelled_total",
			Help: "Orders deleted before payment completed.",
		}),
		captured: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stubapi_payments_captured_total",
			Help: "Card-present payments captured.",
		}),
		denied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stubapi_requests_unauthorized_total",
			Help: "Requests refused for a missing or unknown session token.",
		}),
	}
	s.registry.MustRegister(s.placed, s.cancelled, s.captured, s.denied)
	return s
}

// Routes registers the API under mux. wrap is applied to every handler,
// for route tagging in tracing.
func (s *Server) Routes(mux *http.ServeMux, wrap func(http.HandlerFunc) http.HandlerFunc) {
	if wrap == nil {
		wrap = func(h http.HandlerFunc) http.HandlerFunc { return h }
	}
	mux.HandleFunc("POST /login", wrap(s.handleLogin))
	mux.HandleFunc("GET /event", wrap(s.auth(s.handleEvents)))
	mux.HandleFunc("GET /prices", wrap(s.auth(s.handlePrices)))
	mux.HandleFunc("POST /order", wrap(s.auth(s.handlePlaceOrder)))
	mux.HandleFunc("DELETE /order/{id}", wrap(s.auth(s.handleCancelOrder)))
	mux.HandleFunc("POST /order/{id}/capturePayment", wrap(s.auth(s.handleCapture)))
	mux.HandleFunc("POST /order/{id}/sendReceipt", wrap(s.auth(s.handleSendReceipt)))
	mux.HandleFunc("GET /event/{id}/orders", wrap(s.auth(s.handleWillCall)))
	mux.HandleFunc("GET /event/{id}/ticket/{token}", wrap(s.auth(s.handleTicketUsage)))
	mux.HandleFunc("POST /event/{id}/ticket/{token}", wrap(s.auth(s.handleUseTickets)))
	mux.HandleFunc("GET /stripe/connectTerminal", wrap(s.auth(s.handleConnectTerminal)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
}

// Handler returns a mux serving the API with no middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Routes(mux, nil)
	return mux
}

// ExpireSessions invalidates every issued token.
func (s *Server) ExpireSessions() {
	s.store.expire()
}

// Order returns the server's copy of an order, if it still exists.
func (s *Server) Order(id int) (*domain.Order, bool) {
	return s.store.order(id)
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.store.authenticated(r.Header.Get("Auth")) {
			s.denied.Inc()
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeText(w, http.StatusBadRequest, "invalid form")
		return
	}
	result, ok := s.store.login(r.PostForm.Get("username"), r.PostForm.Get("password"))
	if !ok {
		s.logger.Info("login refused", "username", r.PostForm.Get("username"))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	s.logger.Info("login", "username", result.Username)
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.events)
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, domain.EventPrices{Products: s.store.prices(r.URL.Query().Get("event"))})
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var order domain.Order
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		s.writeText(w, http.StatusBadRequest, "invalid order")
		return
	}

	placed, err := s.store.place(order)
	if err != nil {
		s.logger.Info("order rejected", "error", err)
		s.writeText(w, http.StatusBadRequest, err.Error())
		return
	}

	s.placed.WithLabelValues(string(placed.Payment().Type)).Inc()
	s.logger.Info("order placed", "order_id", placed.ID, "amount", placed.Payment().Amount)
	s.writeJSON(w, http.StatusOK, placed)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := s.orderID(w, r)
	if !ok {
		return
	}
	if err := s.store.cancel(id); err != nil {
		s.writeText(w, http.StatusNotFound, err.Error())
		return
	}
	s.cancelled.Inc()
	s.logger.Info("order cancelled", "order_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	id, ok := s.orderID(w, r)
	if !ok {
		return
	}
	order, err := s.store.capture(id)
	switch {
	case errors.Is(err, errOrderNotFound):
		s.writeText(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		s.writeText(w, http.StatusBadRequest, err.Error())
		return
	}
	s.captured.Inc()
	s.logger.Info("payment captured", "order_id", id)
	s.writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleSendReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := s.orderID(w, r)
	if !ok {
		return
	}
	if _, found := s.store.order(id); !found {
		s.writeText(w, http.StatusNotFound, errOrderNotFound.Error())
		return
	}
	email := r.URL.Query().Get("email")
	if _, err := mail.ParseAddress(email); err != nil {
		s.writeText(w, http.StatusBadRequest, "invalid email")
		return
	}
	s.logger.Info("receipt sent", "order_id", id, "email", email)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWillCall(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.willCall(r.PathValue("id")))
}

func (s *Server) handleTicketUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := s.store.usage(r.PathValue("id"), r.PathValue("token"))
	if err != nil {
		s.writeJSON(w, http.StatusOK, domain.TicketUsage{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, usage)
}

func (s *Server) handleUseTickets(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("token"))
	if err != nil {
		s.writeText(w, http.StatusBadRequest, "invalid order id")
		return
	}
	if err := r.ParseForm(); err != nil {
		s.writeText(w, http.StatusBadRequest, "invalid form")
		return
	}

	classes := r.PostForm["class"]
	used := make([]int, 0, len(r.PostForm["used"]))
	for _, raw := range r.PostForm["used"] {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeText(w, http.StatusBadRequest, "invalid used count")
			return
		}
		used = append(used, n)
	}

	if err := s.store.use(r.PathValue("id"), id, classes, used); err != nil {
		s.writeText(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("tickets used", "order_id", id, "classes", classes, "used", used)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleConnectTerminal(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, "pst_test_"+uuid.NewString())
}

func (s *Server) orderID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		s.writeText(w, http.StatusBadRequest, "invalid order id")
		return 0, false
	}
	return id, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// writeText sends a plain-text error. The door client shows 400 bodies to
// the operator verbatim.
func (s *Server) writeText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message))
}
