package payment

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/PixelDroid19/puntokoreano-app/pkg/enums"
	"github.com/PixelDroid19/puntokoreano-app/pkg/validation"
)

// PSEForm is the bank transfer entry.
type PSEForm struct {
	BankCode       string `json:"bankCode" validate:"required,max=20"`
	UserType       *int   `json:"userType" validate:"required,oneof=0 1"`
	DocumentType   string `json:"documentType" validate:"required,oneof=CC CE NIT PP TI"`
	DocumentNumber string `json:"documentNumber" validate:"required,alphanum,min=5,max=20"`
	FullName       string `json:"fullName" validate:"required,max=120"`
	Email          string `json:"email" validate:"required,email"`
	Phone          string `json:"phone" validate:"required,digits,min=7,max=15"`
}

type pseMethod struct {
	catalog *Catalog
}

func (p *pseMethod) Type() enums.PaymentMethodType { return enums.PaymentMethodTypePSE }

func (p *pseMethod) Schedule() Schedule { return ScheduleInline }

func (p *pseMethod) Decode(raw json.RawMessage) (any, error) {
	var form PSEForm
	if err := decodeForm(raw, &form); err != nil {
		return nil, err
	}
	form.BankCode = strings.TrimSpace(form.BankCode)
	form.DocumentType = strings.ToUpper(strings.TrimSpace(form.DocumentType))
	form.DocumentNumber = strings.TrimSpace(form.DocumentNumber)
	form.FullName = strings.Join(strings.Fields(form.FullName), " ")
	form.Email = strings.TrimSpace(form.Email)
	form.Phone = stripSeparators(form.Phone)
	return &form, nil
}

// Validate checks the form locally. The bank code is checked against the
// cached bank list only when that list could be loaded.
func (p *pseMethod) Validate(ctx context.Context, raw any, _ Env, _ Progress) (*Intent, error) {
	form, err := formAs[PSEForm](raw)
	if err != nil {
		return nil, err
	}
	if err := validation.Struct(form); err != nil {
		return nil, err
	}
	if p.catalog != nil {
		if banks := p.catalog.Banks(ctx); len(banks) > 0 && !hasBank(banks, form.BankCode) {
			return nil, validation.Field("bankCode", "is not a participating bank")
		}
	}
	return &Intent{
		Type: enums.PaymentMethodTypePSE,
		PSE: &PSEIntent{
			BankCode:       form.BankCode,
			UserType:       *form.UserType,
			DocumentType:   form.DocumentType,
			DocumentNumber: form.DocumentNumber,
			FullName:       form.FullName,
			Email:          form.Email,
			Phone:          form.Phone,
		},
	}, nil
}
