package stubapi

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/joao-fontenele/doorpos/internal/domain"
)

var (
	errOrderNotFound   = errors.New("Order not found")
	errNotCapturable   = errors.New("Order has no uncaptured card payment")
	errAmountMismatch  = errors.New("Payment amount does not match order total")
	errNoLines         = errors.New("Order has no lines")
	errOnePayment      = errors.New("Order must have exactly one payment")
	errUsageOutOfRange = errors.New("Ticket usage out of range")
)

// Account is a login the stub accepts.
type Account struct {
	Username string
	Password string
	Scan     bool
	Sell     bool
	View     bool
}

// Offer is a product on sale for one event. Class names the ticket class
// the product admits; the empty string is general admission.
type Offer struct {
	domain.Product
	Class string
}

type Seed struct {
	Accounts []Account
	Events   []domain.Event
	Offers   map[string][]Offer
}

// DefaultSeed is a single concert with general and student tickets, used
// by cmd/stubapi and the tests.
func DefaultSeed() Seed {
	return Seed{
		Accounts: []Account{
			{Username: "door", Password: "door", Scan: true, Sell: true, View: true},
			{Username: "scanner", Password: "scanner", Scan: true},
		},
		Events: []domain.Event{
			{ID: "2026-12-05", Name: "Christmas Concert", Start: "2026-12-05T20:00:00-08:00"},
		},
		Offers: map[string][]Offer{
			"2026-12-05": {
				{Product: domain.Product{ID: "ticket-general", Name: "General Admission", Price: 2100, TicketCount: 1}},
				{Product: domain.Product{ID: "ticket-student", Name: "Student", Price: 500, TicketCount: 1}, Class: "Student"},
				{Product: domain.Product{ID: "ticket-pair", Name: "Pair", Price: 3800, TicketCount: 2}},
			},
		},
	}
}

type storedOrder struct {
	order    domain.Order
	eventID  string
	scan     string
	captured bool
	// used counts admitted tickets per class.
	used map[string]int
}

// store is the stub's in-memory state. Every method takes the lock.
type store struct {
	mu       sync.Mutex
	accounts map[string]Account
	sessions map[string]string
	events   []domain.Event
	offers   map[string][]Offer
	orders   map[int]*storedOrder
	nextID   int
}

func newStore(seed Seed) *store {
	s := &store{
		accounts: make(map[string]Account),
		sessions: make(map[string]string),
		events:   seed.Events,
		offers:   seed.Offers,
		orders:   make(map[int]*storedOrder),
		nextID:   1,
	}
	for _, a := range seed.Accounts {
		s.accounts[a.Username] = a
	}
	return s
}

func (s *store) login(username, password string) (*domain.LoginResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[username]
	if !ok || a.Password != password {
		return nil, false
	}
	token := uuid.NewString()
	s.sessions[token] = username
	return &domain.LoginResult{
		Token:             token,
		Username:          username,
		StripePublicKey:   "pk_test_stub",
		PrivScanTickets:   a.Scan,
		PrivInPersonSales: a.Sell,
		PrivViewOrders:    a.View,
	}, true
}

func (s *store) authenticated(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[token]
	return ok
}

// expire drops every session, as a server restart would.
func (s *store) expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.sessions)
}

func (s *store) prices(eventID string) []domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	products := make([]domain.Product, 0, len(s.offers[eventID]))
	for _, o := range s.offers[eventID] {
		products = append(products, o.Product)
	}
	return products
}

func (s *store) findOffer(productID string) (Offer, string, bool) {
	for eventID, offers := range s.offers {
		for _, o := range offers {
			if o.ID == productID {
				return o, eventID, true
			}
		}
	}
	return Offer{}, "", false
}

func (s *store) place(o domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(o.Lines) == 0 {
		return nil, errNoLines
	}
	if len(o.Payments) != 1 {
		return nil, errOnePayment
	}

	var eventID string
	for _, l := range o.Lines {
		if l.IsDonation() {
			continue
		}
		offer, ev, ok := s.findOffer(l.Product)
		if !ok {
			return nil, fmt.Errorf("Unknown product %q", l.Product)
		}
		if l.Used > l.Quantity*offer.TicketCount {
			return nil, errUsageOutOfRange
		}
		eventID = ev
	}
	if !o.Balanced() {
		return nil, errAmountMismatch
	}

	o.ID = s.nextID
	s.nextID++

	stored := &storedOrder{eventID: eventID, scan: uuid.NewString(), used: make(map[string]int)}
	for _, l := range o.Lines {
		if offer, _, ok := s.findOffer(l.Product); ok {
			stored.used[offer.Class] += l.Used
		}
	}
	if p := o.Payment(); p.Type == domain.PaymentCardPresent {
		p.Method = fmt.Sprintf("pi_%d_secret_%s", o.ID, strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	} else {
		stored.captured = true
	}
	stored.order = o
	s.orders[o.ID] = stored

	placed := o.Clone()
	return placed, nil
}

func (s *store) cancel(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[id]; !ok {
		return errOrderNotFound
	}
	delete(s.orders, id)
	return nil
}

func (s *store) capture(id int) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.orders[id]
	if !ok {
		return nil, errOrderNotFound
	}
	if stored.captured {
		return nil, errNotCapturable
	}
	stored.captured = true
	return stored.order.Clone(), nil
}

func (s *store) order(id int) (*domain.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.orders[id]
	if !ok {
		return nil, false
	}
	return stored.order.Clone(), true
}

func (s *store) willCall(eventID string) []domain.WillCallOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	orders := []domain.WillCallOrder{}
	for id, stored := range s.orders {
		if stored.eventID == eventID && stored.order.Name != "" {
			orders = append(orders, domain.WillCallOrder{ID: id, Name: stored.order.Name})
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].Name != orders[j].Name {
			return orders[i].Name < orders[j].Name
		}
		return orders[i].ID < orders[j].ID
	})
	return orders
}

func (s *store) lookup(eventID, tokenOrID string) *storedOrder {
	if id, err := strconv.Atoi(tokenOrID); err == nil {
		if stored, ok := s.orders[id]; ok && stored.eventID == eventID {
			return stored
		}
		return nil
	}
	for _, stored := range s.orders {
		if stored.scan == tokenOrID && stored.eventID == eventID {
			return stored
		}
	}
	return nil
}

// usage builds the per-class view of an order. Max is the number of tickets
// the order holds in that class.
func (s *store) usage(eventID, tokenOrID string) (*domain.TicketUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.lookup(eventID, tokenOrID)
	if stored == nil {
		return nil, errOrderNotFound
	}
	return s.usageOf(stored), nil
}

func (s *store) usageOf(stored *storedOrder) *domain.TicketUsage {
	held := make(map[string]int)
	var order []string
	for _, l := range stored.order.Lines {
		offer, _, ok := s.findOffer(l.Product)
		if !ok || offer.TicketCount == 0 {
			continue
		}
		if _, seen := held[offer.Class]; !seen {
			order = append(order, offer.Class)
		}
		held[offer.Class] += l.Quantity * offer.TicketCount
	}

	u := &domain.TicketUsage{ID: stored.order.ID, Name: stored.order.Name, Scan: stored.scan}
	for _, class := range order {
		used := stored.used[class]
		u.Classes = append(u.Classes, domain.TicketClassUsage{
			Name: class,
			Min:  used,
			Max:  held[class],
			Used: used,
		})
	}
	return u
}

func (s *store) use(eventID string, id int, classes []string, used []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.lookup(eventID, strconv.Itoa(id))
	if stored == nil {
		return errOrderNotFound
	}
	if len(classes) != len(used) {
		return errUsageOutOfRange
	}

	current := s.usageOf(stored)
	limits := make(map[string]domain.TicketClassUsage, len(current.Classes))
	for _, c := range current.Classes {
		limits[c.Name] = c
	}
	for i, class := range classes {
		c, ok := limits[class]
		if !ok || used[i] < c.Min || used[i] > c.Max {
			return errUsageOutOfRange
		}
	}
	for i, class := range classes {
		stored.used[class] = used[i]
	}
	return nil
}
