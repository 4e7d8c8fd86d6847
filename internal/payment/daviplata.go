package payment

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/PixelDroid19/puntokoreano-app/pkg/enums"
	"github.com/PixelDroid19/puntokoreano-app/pkg/validation"
)

// DaviPlataForm is the wallet holder document.
type DaviPlataForm struct {
	DocumentType   string `json:"documentType" validate:"required,oneof=CC CE NIT PP TI"`
	DocumentNumber string `json:"documentNumber" validate:"required,alphanum,min=5,max=20"`
}

type daviPlataMethod struct{}

func (daviPlataMethod) Type() enums.PaymentMethodType { return enums.PaymentMethodTypeDaviPlata }

func (daviPlataMethod) Schedule() Schedule { return ScheduleInline }

func (daviPlataMethod) Decode(raw json.RawMessage) (any, error) {
	var form DaviPlataForm
	if err := decodeForm(raw, &form); err != nil {
		return nil, err
	}
	form.DocumentType = strings.ToUpper(strings.TrimSpace(form.DocumentType))
	form.DocumentNumber = strings.TrimSpace(form.DocumentNumber)
	return &form, nil
}

func (daviPlataMethod) Validate(_ context.Context, raw any, _ Env, _ Progress) (*Intent, error) {
	form, err := formAs[DaviPlataForm](raw)
	if err != nil {
		return nil, err
	}
	if err := validation.Struct(form); err != nil {
		return nil, err
	}
	return &Intent{
		Type: enums.PaymentMethodTypeDaviPlata,
		DaviPlata: &DaviPlataIntent{
			DocumentType:   form.DocumentType,
			DocumentNumber: form.DocumentNumber,
		},
	}, nil
}
