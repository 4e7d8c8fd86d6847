package payment

import (
	"github.com/PixelDroid19/puntokoreano-app/pkg/enums"
	pkgerrors "github.com/PixelDroid19/puntokoreano-app/pkg/errors"
)

// Provider is the payment gateway every intent is routed through.
const Provider = "wompi"

// CardIntent carries the tokenized card.
type CardIntent struct {
	Token        string `json:"token"`
	Installments int    `json:"installments"`
	Brand        string `json:"brand,omitempty"`
	LastFour     string `json:"lastFour,omitempty"`
}

// PSEIntent carries the bank transfer fields passed straight to the order.
type PSEIntent struct {
	BankCode       string `json:"bankCode"`
	UserType       int    `json:"userType"`
	DocumentType   string `json:"documentType"`
	DocumentNumber string `json:"documentNumber"`
	FullName       string `json:"fullName"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
}

// NequiIntent carries the approved wallet payment source.
type NequiIntent struct {
	Phone           string `json:"phone"`
	Token           string `json:"token"`
	PaymentSourceID string `json:"paymentSourceId"`
	AcceptanceToken string `json:"acceptanceToken"`
}

// DaviPlataIntent carries the wallet holder document.
type DaviPlataIntent struct {
	DocumentType   string `json:"documentType"`
	DocumentNumber string `json:"documentNumber"`
}

// Intent is the normalized payment payload. Exactly one variant is set and it
// matches Type.
type Intent struct {
	Type      enums.PaymentMethodType `json:"type"`
	Card      *CardIntent             `json:"card,omitempty"`
	PSE       *PSEIntent              `json:"pse,omitempty"`
	Nequi     *NequiIntent            `json:"nequi,omitempty"`
	DaviPlata *DaviPlataIntent        `json:"daviplata,omitempty"`
}

// Check reports whether the intent is complete for its method.
func (i *Intent) Check() error {
	if i == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment method is not valid")
	}
	set := 0
	for _, present := range []bool{i.Card != nil, i.PSE != nil, i.Nequi != nil, i.DaviPlata != nil} {
		if present {
			set++
		}
	}
	var ok bool
	switch i.Type {
	case enums.PaymentMethodTypeCard:
		ok = i.Card != nil && i.Card.Token != ""
	case enums.PaymentMethodTypePSE:
		ok = i.PSE != nil && i.PSE.BankCode != ""
	case enums.PaymentMethodTypeNequi:
		ok = i.Nequi != nil && i.Nequi.PaymentSourceID != ""
	case enums.PaymentMethodTypeDaviPlata:
		ok = i.DaviPlata != nil && i.DaviPlata.DocumentNumber != ""
	}
	if !ok || set != 1 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment intent is incomplete").
			WithDetails(map[string]any{"method": i.Type})
	}
	return nil
}

// OrderPayload renders the payment object of the order request.
func (i *Intent) OrderPayload() map[string]any {
	out := map[string]any{
		"provider":            Provider,
		"method":              i.Type.Lower(),
		"payment_method_type": i.Type.String(),
	}
	switch i.Type {
	case enums.PaymentMethodTypeCard:
		out["token"] = i.Card.Token
		out["installments"] = i.Card.Installments
	case enums.PaymentMethodTypePSE:
		out["financial_institution_code"] = i.PSE.BankCode
		out["user_type"] = i.PSE.UserType
		out["user_legal_id_type"] = i.PSE.DocumentType
		out["user_legal_id"] = i.PSE.DocumentNumber
		out["full_name"] = i.PSE.FullName
		out["email"] = i.PSE.Email
		out["phone_number"] = i.PSE.Phone
	case enums.PaymentMethodTypeNequi:
		out["phone_number"] = i.Nequi.Phone
		out["token"] = i.Nequi.Token
		out["payment_source_id"] = i.Nequi.PaymentSourceID
		out["acceptance_token"] = i.Nequi.AcceptanceToken
	case enums.PaymentMethodTypeDaviPlata:
		out["user_legal_id_type"] = i.DaviPlata.DocumentType
		out["user_legal_id"] = i.DaviPlata.DocumentNumber
	}
	return out
}
