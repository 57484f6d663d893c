package domain

import "time"

// Address is a buyer's shipping address. Zone selects the applicable
// shipping rates.
type Address struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"ownerId"`
	FullName   string    `json:"fullName,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	StreetName string    `json:"streetName,omitempty"`
	City       string    `json:"city,omitempty"`
	Zone       string    `json:"zone"`
	CreatedAt  time.Time `json:"createdAt"`
}

type ShippingRate struct {
	ID        string `json:"id"`
	Zone      string `json:"zone"`
	Name      string `json:"name"`
	CostCents int64  `json:"costCents"`
}
