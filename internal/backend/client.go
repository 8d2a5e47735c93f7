package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/joao-fontenele/doorpos/internal/domain"
)

// Client talks to the orders API. A Client without a token can only log
// in; WithSession returns an authenticated copy.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
	onExpired  func()
}

func NewClient(baseURL string, client *http.Client, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		logger:     logger,
	}
}

// WithSession returns a copy of c that sends token on every request and
// calls onExpired whenever the server answers 401.
func (c *Client) WithSession(token string, onExpired func()) *Client {
	cp := *c
	cp.token = token
	cp.onExpired = onExpired
	return &cp
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Login(ctx context.Context, username, password string) (*domain.LoginResult, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("login request failed", "error", err)
		return nil, &ServerError{Op: "login", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrLoginIncorrect
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("login request failed", "status", resp.StatusCode)
		return nil, &ServerError{Op: "login", Status: resp.StatusCode}
	}

	var result domain.LoginResult
	if err := c.decode(resp, "login", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Events(ctx context.Context) ([]domain.Event, error) {
	resp, err := c.call(ctx, "list events", http.MethodGet, "/event?future=1&freeEntries=1", nil, "")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.expect(resp, "list events", http.StatusOK); err != nil {
		return nil, err
	}
	var events []domain.Event
	if err := c.decode(resp, "list events", &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Prices returns the products on sale for an event. Older servers answer
// with a bare array (or null) instead of the wrapped form.
func (c *Client) Prices(ctx context.Context, eventID string) ([]domain.Product, error) {
	resp, err := c.call(ctx, "get prices", http.MethodGet, "/prices?event="+url.QueryEscape(eventID), nil, "")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.expect(resp, "get prices", http.StatusOK); err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.decode(resp, "get prices", &raw); err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var wrapped domain.EventPrices
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, &ServerError{Op: "get prices", Err: err}
		}
		return wrapped.Products, nil
	}
	var products []domain.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, &ServerError{Op: "get prices", Err: err}
	}
	return products, nil
}

// PlaceOrder creates the order on the server and returns the server's
// copy, which carries the assigned id and, for card-present payments, the
// payment intent client secret in the payment method.
func (c *Client) PlaceOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	data, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}

	resp, err := c.call(ctx, "place order", http.MethodPost, "/order", bytes.NewReader(data), "application/json")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusBadRequest {
		body, _ := io.ReadAll(resp.Body)
		return nil, &RejectedError{Message: strings.TrimSpace(string(body))}
	}
	if err := c.expect(resp, "place order", http.StatusOK); err != nil {
		return nil, err
	}

	var placed domain.Order
	if err := c.decode(resp, "place order", &placed); err != nil {
		return nil, err
	}
	if placed.Error != "" {
		return nil, &RejectedError{Message: placed.Error}
	}
	return &placed, nil
}

// CancelOrder deletes an unpaid order. Callers are already on an error
// path and normally only log the result.
func (c *Client) CancelOrder(ctx context.Context, orderID int) error {
	resp, err := c.call(ctx, "cancel order", http.MethodDelete, "/order/"+strconv.Itoa(orderID), nil, "")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	return c.expect(resp, "cancel order", http.StatusNoContent)
}

func (c *Client) CapturePayment(ctx context.Context, orderID int) (*domain.Order, error) {
	resp, err := c.call(ctx, "capture payment", http.MethodPost, fmt.Sprintf("/order/%d/capturePayment", orderID), nil, "")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.expect(resp, "capture payment", http.StatusOK); err != nil {
		return nil, err
	}
	var captured domain.Order
	if err := c.decode(resp, "capture payment", &captured); err != nil {
		return nil, err
	}
	return &captured, nil
}

func (c *Client) SendReceipt(ctx context.Context, orderID int, email string) error {
	path := fmt.Sprintf("/order/%d/sendReceipt?email=%s", orderID, url.QueryEscape(email))
	resp, err := c.call(ctx, "send receipt", http.MethodPost, path, nil, "")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	return c.expect(resp, "send receipt", http.StatusNoContent)
}

func (c *Client) WillCall(ctx context.Context, eventID string) ([]domain.WillCallOrder, error) {
	resp, err := c.call(ctx, "will call list", http.MethodGet, "/event/"+url.PathEscape(eventID)+"/orders", nil, "")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.expect(resp, "will call list", http.StatusOK); err != nil {
		return nil, err
	}
	var orders []domain.WillCallOrder
	if err := c.decode(resp, "will call list", &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// TicketUsage looks up an order by scanned token or order number and
// returns its per-class ticket counts.
func (c *Client) TicketUsage(ctx context.Context, eventID, tokenOrID string) (*domain.TicketUsage, error) {
	path := "/event/" + url.PathEscape(eventID) + "/ticket/" + url.PathEscape(tokenOrID)
	resp, err := c.call(ctx, "get ticket usage", http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.expect(resp, "get ticket usage", http.StatusOK); err != nil {
		return nil, err
	}
	var usage domain.TicketUsage
	if err := c.decode(resp, "get ticket usage", &usage); err != nil {
		return nil, err
	}
	if usage.Error != "" {
		return nil, &RejectedError{Message: usage.Error}
	}
	return &usage, nil
}

func (c *Client) UseTickets(ctx context.Context, eventID string, usage *domain.TicketUsage) error {
	form := url.Values{}
	form.Set("scan", usage.Scan)
	for _, cl := range usage.Classes {
		form.Add("class", cl.Name)
		form.Add("used", strconv.Itoa(cl.Used))
	}

	path := fmt.Sprintf("/event/%s/ticket/%d", url.PathEscape(eventID), usage.ID)
	resp, err := c.call(ctx, "use tickets", http.MethodPost, path, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	return c.expect(resp, "use tickets", http.StatusOK)
}

// ConnectionToken fetches a card terminal connection token through the
// server, which holds the payment provider's secret key.
func (c *Client) ConnectionToken(ctx context.Context) (string, error) {
	resp, err := c.call(ctx, "connection token", http.MethodGet, "/stripe/connectTerminal", nil, "")
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.expect(resp, "connection token", http.StatusOK); err != nil {
		return "", err
	}
	var token string
	if err := c.decode(resp, "connection token", &token); err != nil {
		return "", err
	}
	return token, nil
}

func (c *Client) call(ctx context.Context, op, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	if c.token == "" {
		return nil, ErrNotLoggedIn
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("Auth", c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("request failed", "op", op, "error", err)
		return nil, &ServerError{Op: op, Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()
		c.logger.Warn("session expired", "op", op)
		if c.onExpired != nil {
			c.onExpired()
		}
		return nil, ErrSessionExpired
	}
	return resp, nil
}

func (c *Client) expect(resp *http.Response, op string, status int) error {
	if resp.StatusCode != status {
		c.logger.Error("unexpected status", "op", op, "status", resp.StatusCode)
		return &ServerError{Op: op, Status: resp.StatusCode}
	}
	return nil
}

func (c *Client) decode(resp *http.Response, op string, v any) error {
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		c.logger.Error("failed to decode response", "op", op, "error", err)
		return &ServerError{Op: op, Err: fmt.Errorf("decode %s response: %w", op, err)}
	}
	return nil
}
