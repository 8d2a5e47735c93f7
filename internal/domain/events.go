package domain

import "time"

type SaleStatus string

const (
	SaleCompleted      SaleStatus = "completed"
	SaleCapturePending SaleStatus = "capture_pending"
	SaleCancelled      SaleStatus = "cancelled"
)

// SaleEvent is published to the sale journal for every door sale outcome
// that reached the server.
type SaleEvent struct {
	ID        string     `json:"id"`
	OrderID   int        `json:"order_id"`
	Status    SaleStatus `json:"status"`
	Method    Method     `json:"method"`
	Amount    int64      `json:"amount"`
	Sold      int        `json:"sold"`
	Admitted  int        `json:"admitted"`
	Username  string     `json:"username,omitempty"`
	EventID   string     `json:"event_id,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}
