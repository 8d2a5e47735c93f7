package order

import (
	"regexp"

	"github.com/joao-fontenele/doorpos/internal/domain"
)

var (
	namePattern  = regexp.MustCompile(`\S`)
	emailPattern = regexp.MustCompile("^[a-zA-Z0-9.!#$%&'*+/=?^_`{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$")
)

// ValidName requires at least one non-space character.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// MerchandiseDonation is the catalogue entry sold in $5 donation units.
const MerchandiseDonation = "wardrobe-donation"

// DefaultMerchandise is the wardrobe table catalogue.
var DefaultMerchandise = []domain.Product{
	{ID: "wardrobe-dress-0-16", Name: "Concert Dress (sizes 0-16)", Price: 8500},
	{ID: "wardrobe-dress-18-34", Name: "Concert Dress (sizes 18-34)", Price: 9500},
	{ID: MerchandiseDonation, Name: "Donation ($5)", Price: 500},
}
