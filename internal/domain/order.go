package domain

// SourceInPerson tags orders created at the door.
const SourceInPerson = "inperson"

// DonationProduct is the product id used for donation lines.
const DonationProduct = "donation"

type PaymentType string

const (
	PaymentCard        PaymentType = "card"
	PaymentCardPresent PaymentType = "card-present"
	PaymentCash        PaymentType = "cash"
	PaymentCheck       PaymentType = "check"
	PaymentOther       PaymentType = "other"
)

const (
	SubtypeManual = "manual"
	SubtypeCash   = "cash"
	SubtypeCheck  = "check"
)

// Method is the ledger's view of how a sale was paid.
type Method string

const (
	MethodCash        Method = "cash"
	MethodCheck       Method = "check"
	MethodCard        Method = "card"
	MethodCardPresent Method = "card-present"
	MethodUnknown     Method = "unknown"
)

type OrderLine struct {
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
	Used     int    `json:"used,omitempty"`
	UsedAt   string `json:"usedAt,omitempty"`
	Price    int64  `json:"price"`
}

// Amount is the line's contribution to the order total.
func (l OrderLine) Amount() int64 {
	return int64(l.Quantity) * l.Price
}

func (l OrderLine) IsDonation() bool {
	return l.Product == DonationProduct
}

type OrderPayment struct {
	Type    PaymentType `json:"type"`
	Subtype string      `json:"subtype,omitempty"`
	Method  string      `json:"method,omitempty"`
	Amount  int64       `json:"amount"`
}

// LedgerMethod maps the wire payment type and subtype to a ledger method.
// Merchandise sales use type "other" with the tender in the subtype.
func (p OrderPayment) LedgerMethod() Method {
	switch p.Type {
	case PaymentCash:
		return MethodCash
	case PaymentCheck:
		return MethodCheck
	case PaymentCard:
		return MethodCard
	case PaymentCardPresent:
		return MethodCardPresent
	case PaymentOther:
		switch p.Subtype {
		case SubtypeCash:
			return MethodCash
		case SubtypeCheck:
			return MethodCheck
		}
	}
	return MethodUnknown
}

type Order struct {
	ID       int            `json:"id,omitempty"`
	Source   string         `json:"source"`
	Name     string         `json:"name,omitempty"`
	Email    string         `json:"email,omitempty"`
	Payments []OrderPayment `json:"payments"`
	Lines    []OrderLine    `json:"lines"`
	Error    string         `json:"error,omitempty"`
}

// LinesTotal sums the contributions of every line.
func (o *Order) LinesTotal() int64 {
	var total int64
	for _, l := range o.Lines {
		total += l.Amount()
	}
	return total
}

// Counts returns the number of items sold (donations excluded) and
// tickets admitted on this order.
func (o *Order) Counts() (sold, admitted int) {
	for _, l := range o.Lines {
		admitted += l.Used
		if !l.IsDonation() {
			sold += l.Quantity
		}
	}
	return sold, admitted
}

// Payment returns the order's single payment. Door orders always carry
// exactly one.
func (o *Order) Payment() *OrderPayment {
	if len(o.Payments) == 0 {
		return nil
	}
	return &o.Payments[0]
}

// Balanced reports whether the payment amount equals the line total.
func (o *Order) Balanced() bool {
	p := o.Payment()
	return p != nil && p.Amount == o.LinesTotal()
}

// Clone returns a deep copy so that a failed attempt can be retried
// from the original selection.
func (o *Order) Clone() *Order {
	c := *o
	c.Payments = append([]OrderPayment(nil), o.Payments...)
	c.Lines = append([]OrderLine(nil), o.Lines...)
	return &c
}

// ManualFallback turns a card-present order into a new anonymous
// manual-entry card order. The server-side order must already be cancelled.
func ManualFallback(o *Order) *Order {
	c := o.Clone()
	c.ID = 0
	c.Error = ""
	if p := c.Payment(); p != nil {
		p.Type = PaymentCard
		p.Subtype = SubtypeManual
		p.Method = ""
	}
	return c
}
