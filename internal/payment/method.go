// Package payment validates the shopper's payment method and turns it into
// the intent sent with the order.
package payment

import (
	"context"
	"encoding/json"

	"github.com/PixelDroid19/puntokoreano-app/pkg/backend"
	"github.com/PixelDroid19/puntokoreano-app/pkg/enums"
	pkgerrors "github.com/PixelDroid19/puntokoreano-app/pkg/errors"
)

// Schedule is how the adapter runs a method's validation.
type Schedule int

const (
	// ScheduleInline validates synchronously within the update call.
	ScheduleInline Schedule = iota
	// ScheduleDebounced validates once the form has been stable for the debounce window.
	ScheduleDebounced
	// ScheduleAsync runs a multi-phase protocol in the background.
	ScheduleAsync
)

// Progress reports a human-readable status while a method validates.
type Progress func(status string)

// Env is checkout context a method may need beyond its own form.
type Env struct {
	CustomerEmail string
}

// Method is one payment modality.
type Method interface {
	Type() enums.PaymentMethodType
	Schedule() Schedule
	// Decode parses the raw form without validating it.
	Decode(raw json.RawMessage) (any, error)
	// Validate checks the form and returns a complete intent.
	Validate(ctx context.Context, form any, env Env, progress Progress) (*Intent, error)
}

// Backend is the subset of the REST client used by payment methods.
type Backend interface {
	PaymentConfig(ctx context.Context) (*backend.PaymentConfig, error)
	PaymentMethods(ctx context.Context) (*backend.PaymentMethods, error)
	TokenizeCard(ctx context.Context, req backend.TokenizeCardRequest) (*backend.CardToken, error)
	TokenizeNequi(ctx context.Context, req backend.TokenizeNequiRequest) (*backend.NequiToken, error)
	PollNequiToken(ctx context.Context, tokenID string) (*backend.NequiToken, error)
	CreateNequiPaymentSource(ctx context.Context, req backend.NequiPaymentSourceRequest) (*backend.PaymentSource, error)
}

func decodeForm(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment form is required")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment form").
			WithDetails(map[string]any{"error": err.Error()})
	}
	return nil
}

func formAs[T any](form any) (*T, error) {
	typed, ok := form.(*T)
	if !ok || typed == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "unexpected payment form type")
	}
	return typed, nil
}
