package backend

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/PixelDroid19/puntokoreano-app/pkg/types"
	"github.com/shopspring/decimal"
)

// LineItem is the product reference sent for shipping quotes and orders.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"price"`
}

type ShippingCostRequest struct {
	ShippingAddress types.ShippingAddress `json:"shipping_address"`
	ShippingMethod  string                `json:"shipping_method"`
	Items           []LineItem            `json:"items"`
}

// DayRange is an inclusive delivery estimate in days.
type DayRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

func (d DayRange) String() string {
	if d.Min == d.Max {
		return strconv.Itoa(d.Min)
	}
	return fmt.Sprintf("%d-%d", d.Min, d.Max)
}

// UnmarshalJSON accepts {"min":3,"max":5}, a bare number, or a "3-5" string.
func (d *DayRange) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		*d = DayRange{}
		return nil
	}
	if strings.HasPrefix(trimmed, "{") {
		type alias DayRange
		var out alias
		if err := json.Unmarshal(data, &out); err != nil {
			return err
		}
		*d = DayRange(out)
		return nil
	}
	if n, err := strconv.Atoi(trimmed); err == nil {
		*d = DayRange{Min: n, Max: n}
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("estimated days: %w", err)
	}
	lo, hi, found := strings.Cut(strings.TrimSpace(text), "-")
	minDays, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return fmt.Errorf("estimated days %q: %w", text, err)
	}
	maxDays := minDays
	if found {
		if maxDays, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
			return fmt.Errorf("estimated days %q: %w", text, err)
		}
	}
	*d = DayRange{Min: minDays, Max: maxDays}
	return nil
}

type ShippingCost struct {
	Cost          decimal.Decimal `json:"cost"`
	EstimatedDays DayRange        `json:"estimatedDays"`
	FreeShipping  bool            `json:"freeShipping"`
	Details       json.RawMessage `json:"details,omitempty"`
}

type ShippingMethodOption struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	BaseCost      decimal.Decimal `json:"baseCost"`
	EstimatedDays DayRange        `json:"estimatedDays"`
}

type ShippingConfig struct {
	Methods               []ShippingMethodOption `json:"methods"`
	Departments           []string               `json:"departments"`
	FreeShippingThreshold decimal.Decimal        `json:"freeShippingThreshold"`
}

type Customer struct {
	Name     string  `json:"name"`
	LastName string  `json:"last_name"`
	Email    string  `json:"email"`
	Phone    string  `json:"phone"`
	UserID   *string `json:"user_id,omitempty"`
}

type CreateOrderRequest struct {
	Items           []LineItem            `json:"items"`
	Customer        Customer              `json:"customer"`
	ShippingAddress types.ShippingAddress `json:"shipping_address"`
	ShippingMethod  string                `json:"shipping_method"`
	ShippingCost    decimal.Decimal       `json:"shipping_cost"`
	ExpectedTotal   decimal.Decimal       `json:"expected_total"`
	Payment         map[string]any        `json:"payment"`
}

type OrderPayment struct {
	Status        string `json:"status"`
	Method        string `json:"method"`
	TransactionID string `json:"transaction_id"`
}

type OrderLine struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"price"`
}

// Order is the server-owned order projection.
type Order struct {
	ID              string                `json:"id"`
	OrderNumber     string                `json:"order_number"`
	Status          string                `json:"status"`
	Items           []OrderLine           `json:"items"`
	ShippingAddress types.ShippingAddress `json:"shipping_address"`
	ShippingCost    decimal.Decimal       `json:"shipping_cost"`
	Subtotal        decimal.Decimal       `json:"subtotal"`
	Tax             decimal.Decimal       `json:"tax"`
	Total           decimal.Decimal       `json:"total"`
	Payment         OrderPayment          `json:"payment"`
}

// UnmarshalJSON accepts both "id" and "_id" for the order identifier.
func (o *Order) UnmarshalJSON(data []byte) error {
	type alias Order
	aux := struct {
		*alias
		MongoID string `json:"_id"`
	}{alias: (*alias)(o)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if o.ID == "" {
		o.ID = aux.MongoID
	}
	return nil
}

// PaymentResult is the payment section of an order creation response.
type PaymentResult struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	PaymentURL    string `json:"paymentUrl"`
	RedirectURL   string `json:"redirectUrl"`
}

// RedirectTarget returns the external URL the shopper must visit, if any.
func (p PaymentResult) RedirectTarget() string {
	if u := strings.TrimSpace(p.PaymentURL); u != "" {
		return u
	}
	return strings.TrimSpace(p.RedirectURL)
}

type CreateOrderResponse struct {
	Order   Order         `json:"order"`
	Payment PaymentResult `json:"payment"`
}

type PaymentConfig struct {
	PublicKey       string `json:"publicKey"`
	AcceptanceToken string `json:"acceptanceToken"`
	PermalinkURL    string `json:"permalink,omitempty"`
}

type Bank struct {
	Code string `json:"financial_institution_code"`
	Name string `json:"financial_institution_name"`
}

type PaymentMethodInfo struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

type PaymentMethods struct {
	Methods []PaymentMethodInfo `json:"methods"`
	Banks   []Bank              `json:"banks"`
}

type TokenizeCardRequest struct {
	Number     string `json:"number"`
	CVC        string `json:"cvc"`
	ExpMonth   string `json:"exp_month"`
	ExpYear    string `json:"exp_year"`
	CardHolder string `json:"card_holder"`
	PublicKey  string `json:"public_key"`
}

type CardToken struct {
	ID       string `json:"id"`
	Brand    string `json:"brand"`
	LastFour string `json:"last_four"`
}

type TokenizeNequiRequest struct {
	PhoneNumber     string `json:"phone_number"`
	AcceptanceToken string `json:"acceptance_token"`
}

type NequiToken struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	PhoneNumber string `json:"phone_number"`
}

type NequiPaymentSourceRequest struct {
	Token           string `json:"token"`
	CustomerEmail   string `json:"customer_email"`
	AcceptanceToken string `json:"acceptance_token"`
}

type PaymentSource struct {
	ID     json.Number `json:"id"`
	Status string      `json:"status"`
}
