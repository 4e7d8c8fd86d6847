package enums

import (
	"fmt"
	"strings"
)

// PaymentMethodType is the discriminator for the supported payment modalities.
type PaymentMethodType string

const (
	PaymentMethodTypeCard      PaymentMethodType = "CARD"
	PaymentMethodTypePSE       PaymentMethodType = "PSE"
	PaymentMethodTypeNequi     PaymentMethodType = "NEQUI"
	PaymentMethodTypeDaviPlata PaymentMethodType = "DAVIPLATA"
)

var validPaymentMethodTypes = []PaymentMethodType{
	PaymentMethodTypeCard,
	PaymentMethodTypePSE,
	PaymentMethodTypeNequi,
	PaymentMethodTypeDaviPlata,
}

// PaymentMethodTypes lists every supported method in display order.
func PaymentMethodTypes() []PaymentMethodType {
	return append([]PaymentMethodType(nil), validPaymentMethodTypes...)
}

// String implements fmt.Stringer.
func (p PaymentMethodType) String() string {
	return string(p)
}

// Lower returns the lowercase form used in the order payload "method" field.
func (p PaymentMethodType) Lower() string {
	return strings.ToLower(string(p))
}

// IsValid reports whether the value is known.
func (p PaymentMethodType) IsValid() bool {
	for _, candidate := range validPaymentMethodTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentMethodType converts raw input into a PaymentMethodType. Matching
// is case-insensitive.
func ParsePaymentMethodType(value string) (PaymentMethodType, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validPaymentMethodTypes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method type %q", value)
}
