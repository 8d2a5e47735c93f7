package domain

type WillCallOrder struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// TicketClassUsage describes one ticket class on an order. Min is the
// number of tickets used in earlier scans, Max the total available (1000
// for unlimited free classes) and Used the count after this scan.
type TicketClassUsage struct {
	Name     string `json:"name"`
	Min      int    `json:"min"`
	Max      int    `json:"max"`
	Used     int    `json:"used"`
	Overflow bool   `json:"overflow,omitempty"`
}

type TicketUsage struct {
	ID      int                `json:"id"`
	Name    string             `json:"name,omitempty"`
	Error   string             `json:"error,omitempty"`
	Scan    string             `json:"scan"`
	Classes []TicketClassUsage `json:"classes"`
}
