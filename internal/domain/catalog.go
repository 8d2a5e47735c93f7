package domain

type Event struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Start       string   `json:"start"`
	FreeEntries []string `json:"freeEntries,omitempty"`
}

type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Message     string `json:"message,omitempty"`
	Price       int64  `json:"price"`
	TicketCount int    `json:"ticketCount"`
}

// EventPrices is the body of GET /prices.
type EventPrices struct {
	Coupon   bool      `json:"coupon"`
	Products []Product `json:"products"`
}
