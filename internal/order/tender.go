package order

import "github.com/joao-fontenele/doorpos/internal/domain"

// CashSuggestions returns quick-tender amounts for a cash payment: the
// amount due rounded up to the next $5 and to the next $20, skipping
// values equal to the amount due or to each other.
func CashSuggestions(due int64) []int64 {
	var out []int64
	a5 := roundUp(due, 500)
	if a5 != due {
		out = append(out, a5)
	}
	a20 := roundUp(due, 2000)
	if a20 != due && a20 != a5 {
		out = append(out, a20)
	}
	return out
}

func roundUp(v, unit int64) int64 {
	return ((v + unit - 1) / unit) * unit
}

// CashChange is what is owed back to the buyer. A negative result means
// the buyer has not handed over enough.
func CashChange(due, received int64) int64 {
	return received - due
}

// CanConfirmCash reports whether the received amount covers the amount due.
func CanConfirmCash(due, received int64) bool {
	return CashChange(due, received) >= 0
}

// CanDonateChange reports whether there is change the buyer could donate.
func CanDonateChange(due, received int64) bool {
	return CashChange(due, received) > 0
}

// CheckDonation is the part of a check written above the amount due.
// ok is false when the check does not cover the amount due.
func CheckDonation(due, received int64) (donation int64, ok bool) {
	if received < due {
		return 0, false
	}
	return received - due, true
}

// AddDonation folds amount into the order's donation line, appending one
// if needed, and raises the payment amount to match. The returned func
// reverses exactly this adjustment, removing the line if it drops to zero.
// A non-positive amount leaves the order untouched.
func AddDonation(o *domain.Order, amount int64) (undo func()) {
	if amount <= 0 {
		return func() {}
	}
	found := false
	for i := range o.Lines {
		if o.Lines[i].IsDonation() {
			o.Lines[i].Price += amount
			found = true
			break
		}
	}
	if !found {
		o.Lines = append(o.Lines, domain.OrderLine{Product: domain.DonationProduct, Quantity: 1, Price: amount})
	}
	if p := o.Payment(); p != nil {
		p.Amount += amount
	}

	return func() {
		for i := range o.Lines {
			if !o.Lines[i].IsDonation() {
				continue
			}
			o.Lines[i].Price -= amount
			if o.Lines[i].Price <= 0 {
				o.Lines = append(o.Lines[:i], o.Lines[i+1:]...)
			}
			break
		}
		if p := o.Payment(); p != nil {
			p.Amount -= amount
		}
	}
}
