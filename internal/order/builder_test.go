package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/doorpos/internal/domain"
)

var (
	general = domain.Product{ID: "ticket-general", Name: "General Admission", Price: 2000, TicketCount: 1}
	pair    = domain.Product{ID: "ticket-pair", Name: "Two Tickets", Price: 3500, TicketCount: 2}
	comp    = domain.Product{ID: "ticket-comp", Name: "Complimentary", Price: 0, TicketCount: 1}

	allowAll = domain.Allow{Card: true, Cash: true}
)

func selection(t *testing.T, b *Builder, id string) Selection {
	t.Helper()
	for _, s := range b.Selections() {
		if s.Product.ID == id {
			return s
		}
	}
	t.Fatalf("no selection for %s", id)
	return Selection{}
}

func TestBuilder_Stepping(t *testing.T) {
	t.Run("sell more admits one ticket each time", func(t *testing.T) {
		b := NewTicketOrder("2026-12-05", []domain.Product{general, pair})
		require.NoError(t, b.SellMore("ticket-pair"))
		require.NoError(t, b.SellMore("ticket-pair"))

		s := selection(t, b, "ticket-pair")
		assert.Equal(t, 2, s.Sell)
		assert.Equal(t, 2, s.Use)
		assert.Equal(t, 4, s.Limit())
	})

	t.Run("use more stops at ticket limit", func(t *testing.T) {
		b := NewTicketOrder("2026-12-05", []domain.Product{pair})
		require.NoError(t, b.SellMore("ticket-pair"))

		ok, err := b.UseMore("ticket-pair")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = b.UseMore("ticket-pair")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 2, selection(t, b, "ticket-pair").Use)
	})

	t.Run("use less stops at zero", func(t *testing.T) {
		b := NewTicketOrder("2026-12-05", []domain.Product{general})
		require.NoError(t, b.SellMore("ticket-general"))

		ok, _ := b.UseLess("ticket-general")
		assert.True(t, ok)
		ok, _ = b.UseLess("ticket-general")
		assert.False(t, ok)
	})

	t.Run("sell less never goes negative and clamps use", func(t *testing.T) {
		b := NewTicketOrder("2026-12-05", []domain.Product{pair})
		require.NoError(t, b.SellLess("ticket-pair"))
		assert.Equal(t, Selection{Product: pair}, selection(t, b, "ticket-pair"))

		require.NoError(t, b.SellMore("ticket-pair"))
		require.NoError(t, b.SellMore("ticket-pair"))
		for i := 0; i < 2; i++ {
			_, err := b.UseMore("ticket-pair")
			require.NoError(t, err)
		}
		require.NoError(t, b.SellLess("ticket-pair"))

		s := selection(t, b, "ticket-pair")
		assert.Equal(t, 1, s.Sell)
		assert.Equal(t, 2, s.Use)
	})

	t.Run("unknown product", func(t *testing.T) {
		b := NewTicketOrder("2026-12-05", []domain.Product{general})
		assert.ErrorIs(t, b.SellMore("nope"), ErrUnknownProduct)
	})
}

func TestBuilder_NeedsBuyer(t *testing.T) {
	b := NewTicketOrder("2026-12-05", []domain.Product{general})
	assert.False(t, b.NeedsBuyer())

	require.NoError(t, b.SellMore("ticket-general"))
	assert.False(t, b.NeedsBuyer())

	_, _ = b.UseLess("ticket-general")
	assert.True(t, b.NeedsBuyer())

	assert.True(t, NewMerchandiseOrder(DefaultMerchandise, MerchandiseDonation).NeedsBuyer())
}

func TestBuilder_Available(t *testing.T) {
	t.Run("nothing sold", func(t *testing.T) {
		b := NewTicketOrder("2026-12-05", []domain.Product{general})
		assert.Equal(t, Availability{}, b.Available(allowAll))
	})

	t.Run("free tickets take cash only", func(t *testing.T) {
		b := NewTicketOrder("2026-12-05", []domain.Product{comp})
		require.NoError(t, b.SellMore("ticket-comp"))
		assert.Equal(t, Availability{Cash: true}, b.Available(allowAll))
	})

	t.Run("priced tickets take everything allowed", func(t *testing.T) {
		b := NewTicketOrder("2026-12-05", []domain.Product{general})
		require.NoError(t, b.SellMore("ticket-general"))
		assert.Equal(t, Availability{Cash: true, Check: true, Card: true}, b.Available(allowAll))
		assert.Equal(t, Availability{Card: true}, b.Available(domain.Allow{Card: true}))
	})

	t.Run("invalid buyer disables all", func(t *testing.T) {
		b := NewTicketOrder("2026-12-05", []domain.Product{general})
		require.NoError(t, b.SellMore("ticket-general"))
		_, _ = b.UseLess("ticket-general")

		b.SetBuyer("   ", "pat@example.org")
		assert.Equal(t, Availability{}, b.Available(allowAll))

		b.SetBuyer("Pat Doe", "not-an-address")
		assert.Equal(t, Availability{}, b.Available(allowAll))

		b.SetBuyer("Pat Doe", "pat@example.org")
		assert.Equal(t, Availability{Cash: true, Check: true, Card: true}, b.Available(allowAll))
	})
}

func TestBuilder_Build(t *testing.T) {
	t.Run("ticket order lines and amount", func(t *testing.T) {
		b := NewTicketOrder("2026-12-05", []domain.Product{general, pair, comp})
		require.NoError(t, b.SellMore("ticket-general"))
		require.NoError(t, b.SellMore("ticket-general"))
		require.NoError(t, b.SellMore("ticket-pair"))
		_, _ = b.UseMore("ticket-pair")

		order, err := b.Build(TenderCash, allowAll, false)
		require.NoError(t, err)

		assert.Equal(t, domain.SourceInPerson, order.Source)
		assert.Empty(t, order.Name)
		assert.Equal(t, []domain.OrderLine{
			{Product: "ticket-general", Quantity: 2, Used: 2, UsedAt: "2026-12-05", Price: 2000},
			{Product: "ticket-pair", Quantity: 1, Used: 2, UsedAt: "2026-12-05", Price: 3500},
		}, order.Lines)
		require.Len(t, order.Payments, 1)
		assert.Equal(t, domain.OrderPayment{Type: domain.PaymentCash, Amount: 7500}, order.Payments[0])
		assert.True(t, order.Balanced())
		assert.Equal(t, b.Total(), order.Payments[0].Amount)
	})

	t.Run("buyer carried when tickets are left", func(t *testing.T) {
		b := NewTicketOrder("2026-12-05", []domain.Product{general})
		require.NoError(t, b.SellMore("ticket-general"))
		_, _ = b.UseLess("ticket-general")

		_, err := b.Build(TenderCash, allowAll, false)
		assert.ErrorIs(t, err, ErrBuyerRequired)

		b.SetBuyer("Pat Doe", "pat@example.org")
		order, err := b.Build(TenderCheck, allowAll, false)
		require.NoError(t, err)
		assert.Equal(t, "Pat Doe", order.Name)
		assert.Equal(t, "pat@example.org", order.Email)
		assert.Equal(t, domain.PaymentCheck, order.Payments[0].Type)
	})

	t.Run("card tender depends on reader", func(t *testing.T) {
		b := NewTicketOrder("2026-12-05", []domain.Product{general})
		require.NoError(t, b.SellMore("ticket-general"))

		present, err := b.Build(TenderCard, allowAll, true)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderPayment{Type: domain.PaymentCardPresent, Amount: 2000}, present.Payments[0])

		manual, err := b.Build(TenderCard, allowAll, false)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderPayment{Type: domain.PaymentCard, Subtype: domain.SubtypeManual, Amount: 2000}, manual.Payments[0])
	})

	t.Run("disabled tender", func(t *testing.T) {
		b := NewTicketOrder("2026-12-05", []domain.Product{comp})
		require.NoError(t, b.SellMore("ticket-comp"))

		_, err := b.Build(TenderCard, allowAll, true)
		assert.ErrorIs(t, err, ErrTenderDisabled)
	})

	t.Run("empty selection", func(t *testing.T) {
		b := NewTicketOrder("2026-12-05", []domain.Product{general})
		_, err := b.Build(TenderCash, allowAll, false)
		assert.ErrorIs(t, err, ErrNothingSold)
	})

	t.Run("merchandise collapses donation units", func(t *testing.T) {
		b := NewMerchandiseOrder(DefaultMerchandise, MerchandiseDonation)
		require.NoError(t, b.SellMore("wardrobe-dress-0-16"))
		for i := 0; i < 3; i++ {
			require.NoError(t, b.SellMore(MerchandiseDonation))
		}
		b.SetBuyer("Pat Doe", "pat@example.org")

		order, err := b.Build(TenderCheck, allowAll, false)
		require.NoError(t, err)

		assert.Equal(t, []domain.OrderLine{
			{Product: "wardrobe-dress-0-16", Quantity: 1, Price: 8500},
			{Product: domain.DonationProduct, Quantity: 1, Price: 1500},
		}, order.Lines)
		assert.Equal(t, domain.OrderPayment{Type: domain.PaymentOther, Subtype: domain.SubtypeCheck, Amount: 10000}, order.Payments[0])
		assert.Equal(t, domain.MethodCheck, order.Payments[0].LedgerMethod())

		sold, admitted := order.Counts()
		assert.Equal(t, 1, sold)
		assert.Zero(t, admitted)
	})
}

func TestBuilder_AmountMatchesLines(t *testing.T) {
	tickets := []domain.Product{general, pair, comp}
	for _, tc := range []struct {
		name    string
		builder func() *Builder
		sell    map[string]int
		useLess map[string]int
		tender  Tender
		reader  bool
		want    int64
	}{
		{
			name:    "free tickets only",
			builder: func() *Builder { return NewTicketOrder("2026-12-05", tickets) },
			sell:    map[string]int{"ticket-comp": 3},
			tender:  TenderCash,
			want:    0,
		},
		{
			name:    "free and priced tickets",
			builder: func() *Builder { return NewTicketOrder("2026-12-05", tickets) },
			sell:    map[string]int{"ticket-general": 2, "ticket-comp": 1, "ticket-pair": 1},
			tender:  TenderCheck,
			want:    2*2000 + 3500,
		},
		{
			name:    "multi-ticket products partly admitted",
			builder: func() *Builder { return NewTicketOrder("2026-12-05", tickets) },
			sell:    map[string]int{"ticket-pair": 3, "ticket-comp": 2},
			useLess: map[string]int{"ticket-pair": 2, "ticket-comp": 1},
			tender:  TenderCard,
			want:    3 * 3500,
		},
		{
			name:    "priced tickets on a connected reader",
			builder: func() *Builder { return NewTicketOrder("2026-12-05", tickets) },
			sell:    map[string]int{"ticket-general": 5},
			tender:  TenderCard,
			reader:  true,
			want:    5 * 2000,
		},
		{
			name:    "donation units only",
			builder: func() *Builder { return NewMerchandiseOrder(DefaultMerchandise, MerchandiseDonation) },
			sell:    map[string]int{MerchandiseDonation: 4},
			tender:  TenderCash,
			want:    4 * 500,
		},
		{
			name:    "dresses and donation units",
			builder: func() *Builder { return NewMerchandiseOrder(DefaultMerchandise, MerchandiseDonation) },
			sell:    map[string]int{"wardrobe-dress-0-16": 2, "wardrobe-dress-18-34": 1, MerchandiseDonation: 3},
			tender:  TenderCard,
			want:    2*8500 + 9500 + 3*500,
		},
		{
			name:    "dresses by check",
			builder: func() *Builder { return NewMerchandiseOrder(DefaultMerchandise, MerchandiseDonation) },
			sell:    map[string]int{"wardrobe-dress-18-34": 2},
			tender:  TenderCheck,
			want:    2 * 9500,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := tc.builder()
			for id, n := range tc.sell {
				for i := 0; i < n; i++ {
					require.NoError(t, b.SellMore(id))
				}
			}
			for id, n := range tc.useLess {
				for i := 0; i < n; i++ {
					ok, err := b.UseLess(id)
					require.NoError(t, err)
					require.True(t, ok)
				}
			}
			b.SetBuyer("Pat Doe", "pat@example.org")

			o, err := b.Build(tc.tender, allowAll, tc.reader)
			require.NoError(t, err)

			var sum int64
			for _, l := range o.Lines {
				sum += int64(l.Quantity) * l.Price
			}
			require.Len(t, o.Payments, 1)
			assert.Equal(t, tc.want, o.Payment().Amount)
			assert.Equal(t, sum, o.Payment().Amount)
			assert.Equal(t, o.LinesTotal(), o.Payment().Amount)
			assert.Equal(t, b.Total(), o.Payment().Amount)
			assert.True(t, o.Balanced())
		})
	}
}

func TestValidation(t *testing.T) {
	for _, tc := range []struct {
		email string
		want  bool
	}{
		{"pat@example.org", true},
		{"pat.o'neil+door@mail.example.org", true},
		{"pat@localhost", true},
		{"pat@", false},
		{"@example.org", false},
		{"pat doe@example.org", false},
		{"pat@-example.org", false},
		{"", false},
	} {
		t.Run(tc.email, func(t *testing.T) {
			assert.Equal(t, tc.want, ValidEmail(tc.email))
		})
	}

	assert.True(t, ValidName(" Pat "))
	assert.False(t, ValidName(" \t "))
	assert.False(t, ValidName(""))
}
