package types

import "strings"

// ShippingAddress is the destination of an order.
type ShippingAddress struct {
	Street  string `json:"street" validate:"required,min=3,max=200"`
	City    string `json:"city" validate:"required,max=100"`
	State   string `json:"state" validate:"required,max=100"`
	Country string `json:"country" validate:"required,max=100"`
	Zip     string `json:"zip" validate:"omitempty,max=20"`
}

// Normalized trims every field and normalizes letter case for comparisons.
func (a ShippingAddress) Normalized() ShippingAddress {
	return ShippingAddress{
		Street:  strings.TrimSpace(a.Street),
		City:    strings.ToLower(strings.TrimSpace(a.City)),
		State:   strings.ToLower(strings.TrimSpace(a.State)),
		Country: strings.ToLower(strings.TrimSpace(a.Country)),
		Zip:     strings.TrimSpace(a.Zip),
	}
}

// SameDestination reports whether both addresses resolve to the same shipping zone.
func (a ShippingAddress) SameDestination(other ShippingAddress) bool {
	x, y := a.Normalized(), other.Normalized()
	return x.City == y.City && x.State == y.State && x.Country == y.Country && x.Zip == y.Zip
}
