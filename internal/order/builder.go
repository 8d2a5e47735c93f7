package order

import (
	"errors"

	"github.com/joao-fontenele/doorpos/internal/domain"
)

var (
	ErrUnknownProduct = errors.New("unknown product")
	ErrNothingSold    = errors.New("nothing selected")
	ErrBuyerRequired  = errors.New("a valid name and email address are required")
	ErrTenderDisabled = errors.New("payment method not available")
)

// Tender is the payment button the operator pressed.
type Tender string

const (
	TenderCash  Tender = "cash"
	TenderCheck Tender = "check"
	TenderCard  Tender = "card"
)

type mode int

const (
	modeTickets mode = iota
	modeMerchandise
)

// Selection is the operator's choice for one product: how many to sell and
// how many tickets to admit right away.
type Selection struct {
	Product domain.Product
	Sell    int
	Use     int
}

// Limit is the most tickets this selection can admit.
func (s Selection) Limit() int {
	return s.Product.TicketCount * s.Sell
}

// Builder assembles a door order from per-product selections. It is not
// safe for concurrent use.
type Builder struct {
	mode     mode
	eventID  string
	items    []Selection
	donation map[string]bool
	name     string
	email    string
}

// NewTicketOrder starts an order for the given event's products.
func NewTicketOrder(eventID string, products []domain.Product) *Builder {
	b := &Builder{mode: modeTickets, eventID: eventID}
	for _, p := range products {
		b.items = append(b.items, Selection{Product: p})
	}
	return b
}

// NewMerchandiseOrder starts a merchandise order. Products named in
// donationIDs are sold as donation units and collapse into a single
// donation line.
func NewMerchandiseOrder(products []domain.Product, donationIDs ...string) *Builder {
	b := &Builder{mode: modeMerchandise, donation: make(map[string]bool)}
	for _, p := range products {
		b.items = append(b.items, Selection{Product: p})
	}
	for _, id := range donationIDs {
		b.donation[id] = true
	}
	return b
}

func (b *Builder) Selections() []Selection {
	return append([]Selection(nil), b.items...)
}

func (b *Builder) find(productID string) (*Selection, error) {
	for i := range b.items {
		if b.items[i].Product.ID == productID {
			return &b.items[i], nil
		}
	}
	return nil, ErrUnknownProduct
}

// SellMore sells one more of a product and admits one more ticket with it.
func (b *Builder) SellMore(productID string) error {
	s, err := b.find(productID)
	if err != nil {
		return err
	}
	s.Sell++
	if s.Use < s.Limit() {
		s.Use++
	}
	return nil
}

// SellLess sells one fewer, never going below zero.
func (b *Builder) SellLess(productID string) error {
	s, err := b.find(productID)
	if err != nil {
		return err
	}
	if s.Sell == 0 {
		return nil
	}
	s.Sell--
	if s.Use > 0 {
		s.Use--
	}
	if s.Use > s.Limit() {
		s.Use = s.Limit()
	}
	return nil
}

// UseMore admits one more ticket. It reports false when every ticket sold
// on this product is already being used.
func (b *Builder) UseMore(productID string) (bool, error) {
	s, err := b.find(productID)
	if err != nil {
		return false, err
	}
	if s.Use >= s.Limit() {
		return false, nil
	}
	s.Use++
	return true, nil
}

func (b *Builder) UseLess(productID string) (bool, error) {
	s, err := b.find(productID)
	if err != nil {
		return false, err
	}
	if s.Use == 0 {
		return false, nil
	}
	s.Use--
	return true, nil
}

func (b *Builder) SetBuyer(name, email string) {
	b.name = name
	b.email = email
}

// Total is the amount due in cents.
func (b *Builder) Total() int64 {
	var total int64
	for _, s := range b.items {
		total += int64(s.Sell) * s.Product.Price
	}
	return total
}

// NeedsBuyer reports whether the order must carry a name and email: always
// for merchandise, and for tickets when some are left for later use.
func (b *Builder) NeedsBuyer() bool {
	if b.mode == modeMerchandise {
		return true
	}
	for _, s := range b.items {
		if s.Use < s.Limit() {
			return true
		}
	}
	return false
}

// Availability tells which payment buttons may be pressed.
type Availability struct {
	Cash  bool
	Check bool
	Card  bool
}

func (a Availability) Allows(t Tender) bool {
	switch t {
	case TenderCash:
		return a.Cash
	case TenderCheck:
		return a.Check
	case TenderCard:
		return a.Card
	}
	return false
}

// Available computes the enabled tenders for the current selection, masked
// by what the operator is allowed to take.
func (b *Builder) Available(allow domain.Allow) Availability {
	var sold, priced bool
	for _, s := range b.items {
		if s.Sell > 0 {
			sold = true
			if s.Product.Price > 0 {
				priced = true
			}
		}
	}
	if b.NeedsBuyer() && !(ValidName(b.name) && ValidEmail(b.email)) {
		return Availability{}
	}
	return Availability{
		Cash:  sold && allow.Cash,
		Check: priced && allow.Cash,
		Card:  priced && allow.Card,
	}
}

// Build produces the order for a tender. readerConnected selects a
// card-present payment over a manually keyed card.
func (b *Builder) Build(t Tender, allow domain.Allow, readerConnected bool) (*domain.Order, error) {
	if !b.hasSales() {
		return nil, ErrNothingSold
	}
	if b.NeedsBuyer() && !(ValidName(b.name) && ValidEmail(b.email)) {
		return nil, ErrBuyerRequired
	}
	if !b.Available(allow).Allows(t) {
		return nil, ErrTenderDisabled
	}

	payment := b.payment(t, readerConnected)
	order := &domain.Order{Source: domain.SourceInPerson}
	if b.NeedsBuyer() {
		order.Name = b.name
		order.Email = b.email
	}

	var donationUnits int
	var donationUnitPrice int64
	for _, s := range b.items {
		if s.Sell == 0 {
			continue
		}
		if b.donation[s.Product.ID] {
			donationUnits += s.Sell
			donationUnitPrice = s.Product.Price
			continue
		}
		line := domain.OrderLine{Product: s.Product.ID, Quantity: s.Sell, Price: s.Product.Price}
		if b.mode == modeTickets {
			line.Used = s.Use
			line.UsedAt = b.eventID
		}
		order.Lines = append(order.Lines, line)
	}
	if donationUnits > 0 {
		order.Lines = append(order.Lines, domain.OrderLine{
			Product:  domain.DonationProduct,
			Quantity: 1,
			Price:    int64(donationUnits) * donationUnitPrice,
		})
	}

	payment.Amount = order.LinesTotal()
	order.Payments = []domain.OrderPayment{payment}
	return order, nil
}

func (b *Builder) hasSales() bool {
	for _, s := range b.items {
		if s.Sell > 0 {
			return true
		}
	}
	return false
}

func (b *Builder) payment(t Tender, readerConnected bool) domain.OrderPayment {
	switch t {
	case TenderCash:
		if b.mode == modeMerchandise {
			return domain.OrderPayment{Type: domain.PaymentOther, Subtype: domain.SubtypeCash}
		}
		return domain.OrderPayment{Type: domain.PaymentCash}
	case TenderCheck:
		if b.mode == modeMerchandise {
			return domain.OrderPayment{Type: domain.PaymentOther, Subtype: domain.SubtypeCheck}
		}
		return domain.OrderPayment{Type: domain.PaymentCheck}
	}
	if readerConnected {
		return domain.OrderPayment{Type: domain.PaymentCardPresent}
	}
	return domain.OrderPayment{Type: domain.PaymentCard, Subtype: domain.SubtypeManual}
}
