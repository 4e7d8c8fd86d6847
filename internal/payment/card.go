package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PixelDroid19/puntokoreano-app/pkg/backend"
	"github.com/PixelDroid19/puntokoreano-app/pkg/enums"
	pkgerrors "github.com/PixelDroid19/puntokoreano-app/pkg/errors"
	"github.com/PixelDroid19/puntokoreano-app/pkg/metrics"
	"github.com/PixelDroid19/puntokoreano-app/pkg/validation"
)

// CardForm is the raw card entry.
type CardForm struct {
	Number       string `json:"number" validate:"required,digits,min=13,max=19"`
	Expiry       string `json:"expiry" validate:"required,len=5"`
	CVV          string `json:"cvv" validate:"required,digits,min=3,max=4"`
	Holder       string `json:"holder" validate:"required,max=100,holder_name"`
	Installments int    `json:"installments" validate:"omitempty,min=1,max=36"`
}

type cardMethod struct {
	backend Backend
	metrics *metrics.CheckoutMetrics
	now     func() time.Time
}

func newCardMethod(b Backend, m *metrics.CheckoutMetrics) *cardMethod {
	return &cardMethod{backend: b, metrics: m, now: time.Now}
}

func (c *cardMethod) Type() enums.PaymentMethodType { return enums.PaymentMethodTypeCard }

func (c *cardMethod) Schedule() Schedule { return ScheduleDebounced }

func (c *cardMethod) Decode(raw json.RawMessage) (any, error) {
	var form CardForm
	if err := decodeForm(raw, &form); err != nil {
		return nil, err
	}
	form.Number = stripSeparators(form.Number)
	form.Expiry = strings.TrimSpace(form.Expiry)
	form.CVV = strings.TrimSpace(form.CVV)
	form.Holder = strings.Join(strings.Fields(form.Holder), " ")
	if form.Installments == 0 {
		form.Installments = 1
	}
	return &form, nil
}

func (c *cardMethod) Validate(ctx context.Context, raw any, _ Env, progress Progress) (*Intent, error) {
	form, err := formAs[CardForm](raw)
	if err != nil {
		return nil, err
	}
	if err := validation.Struct(form); err != nil {
		return nil, err
	}
	month, year, err := parseExpiry(form.Expiry, c.now())
	if err != nil {
		return nil, validation.Field("expiry", err.Error())
	}

	progress("tokenizing card")
	cfg, err := c.backend.PaymentConfig(ctx)
	if err != nil {
		c.metrics.IncCardTokenization("config_error")
		return nil, err
	}
	if strings.TrimSpace(cfg.PublicKey) == "" {
		c.metrics.IncCardTokenization("config_error")
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment public key is not configured")
	}
	token, err := c.backend.TokenizeCard(ctx, backend.TokenizeCardRequest{
		Number:     form.Number,
		CVC:        form.CVV,
		ExpMonth:   month,
		ExpYear:    year,
		CardHolder: form.Holder,
		PublicKey:  cfg.PublicKey,
	})
	if err != nil {
		c.metrics.IncCardTokenization("failed")
		if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			typed := pkgerrors.As(err)
			return nil, pkgerrors.Wrap(pkgerrors.CodePayment, err, typed.Message())
		}
		return nil, err
	}
	c.metrics.IncCardTokenization("tokenized")
	return &Intent{
		Type: enums.PaymentMethodTypeCard,
		Card: &CardIntent{
			Token:        token.ID,
			Installments: form.Installments,
			Brand:        token.Brand,
			LastFour:     token.LastFour,
		},
	}, nil
}

// parseExpiry accepts MM/YY and rejects cards that expired before the
// current month.
func parseExpiry(value string, now time.Time) (string, string, error) {
	mm, yy, ok := strings.Cut(value, "/")
	if !ok || len(mm) != 2 || len(yy) != 2 {
		return "", "", fmt.Errorf("must use MM/YY")
	}
	month, err := strconv.Atoi(mm)
	if err != nil || month < 1 || month > 12 {
		return "", "", fmt.Errorf("month must be between 01 and 12")
	}
	year, err := strconv.Atoi(yy)
	if err != nil {
		return "", "", fmt.Errorf("year must be numeric")
	}
	year += 2000
	if year < now.Year() || (year == now.Year() && month < int(now.Month())) {
		return "", "", fmt.Errorf("card is expired")
	}
	return mm, yy, nil
}

func stripSeparators(value string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, value)
}
