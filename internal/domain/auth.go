package domain

// LoginResult is the body returned by POST /login.
type LoginResult struct {
	Token             string `json:"token"`
	Username          string `json:"username,omitempty"`
	StripePublicKey   string `json:"stripePublicKey"`
	PrivScanTickets   bool   `json:"privScanTickets"`
	PrivInPersonSales bool   `json:"privInPersonSales"`
	PrivViewOrders    bool   `json:"privViewOrders"`
}

// Allow lists the operating modes the operator asked for at login.
type Allow struct {
	Card     bool `json:"card"`
	Cash     bool `json:"cash"`
	WillCall bool `json:"willCall"`
}

// Sells reports whether any sales mode was requested.
func (a Allow) Sells() bool {
	return a.Card || a.Cash
}
