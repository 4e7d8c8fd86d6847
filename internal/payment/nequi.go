package payment

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/PixelDroid19/puntokoreano-app/pkg/backend"
	"github.com/PixelDroid19/puntokoreano-app/pkg/enums"
	pkgerrors "github.com/PixelDroid19/puntokoreano-app/pkg/errors"
	"github.com/PixelDroid19/puntokoreano-app/pkg/metrics"
	"github.com/PixelDroid19/puntokoreano-app/pkg/validation"
)

// Nequi progress messages shown while the chain runs.
const (
	NequiStatusAcceptance = "preparing payment"
	NequiStatusToken      = "sending authorization request to Nequi"
	NequiStatusWaiting    = "approve the payment in your Nequi app"
	NequiStatusSource     = "confirming payment source"
	NequiStatusApproved   = "Nequi payment approved"
)

// NequiForm is the wallet phone entry.
type NequiForm struct {
	Phone string `json:"phone" validate:"required,co_mobile"`
	Email string `json:"email" validate:"omitempty,email"`
}

type nequiMethod struct {
	backend     Backend
	metrics     *metrics.CheckoutMetrics
	interval    time.Duration
	maxAttempts int
}

func (n *nequiMethod) Type() enums.PaymentMethodType { return enums.PaymentMethodTypeNequi }

func (n *nequiMethod) Schedule() Schedule { return ScheduleAsync }

func (n *nequiMethod) Decode(raw json.RawMessage) (any, error) {
	var form NequiForm
	if err := decodeForm(raw, &form); err != nil {
		return nil, err
	}
	form.Phone = stripSeparators(form.Phone)
	form.Email = strings.TrimSpace(form.Email)
	return &form, nil
}

// Validate runs acceptance, wallet token, approval polling and payment source
// creation in order. Any failure aborts the chain.
func (n *nequiMethod) Validate(ctx context.Context, raw any, env Env, progress Progress) (*Intent, error) {
	form, err := formAs[NequiForm](raw)
	if err != nil {
		return nil, err
	}
	if err := validation.Struct(form); err != nil {
		return nil, err
	}
	email := form.Email
	if email == "" {
		email = env.CustomerEmail
	}
	if email == "" {
		return nil, validation.Field("email", "is required")
	}

	progress(NequiStatusAcceptance)
	cfg, err := n.backend.PaymentConfig(ctx)
	if err != nil {
		return nil, n.fail(ctx, err)
	}
	if strings.TrimSpace(cfg.AcceptanceToken) == "" {
		return nil, n.fail(ctx, pkgerrors.New(pkgerrors.CodeDependency, "acceptance token is not available"))
	}

	progress(NequiStatusToken)
	token, err := n.backend.TokenizeNequi(ctx, backend.TokenizeNequiRequest{
		PhoneNumber:     form.Phone,
		AcceptanceToken: cfg.AcceptanceToken,
	})
	if err != nil {
		return nil, n.fail(ctx, err)
	}

	progress(NequiStatusWaiting)
	if err := n.awaitApproval(ctx, token.ID); err != nil {
		return nil, err
	}

	progress(NequiStatusSource)
	source, err := n.backend.CreateNequiPaymentSource(ctx, backend.NequiPaymentSourceRequest{
		Token:           token.ID,
		CustomerEmail:   email,
		AcceptanceToken: cfg.AcceptanceToken,
	})
	if err != nil {
		return nil, n.fail(ctx, err)
	}

	n.metrics.IncNequiAuthorization("approved")
	progress(NequiStatusApproved)
	return &Intent{
		Type: enums.PaymentMethodTypeNequi,
		Nequi: &NequiIntent{
			Phone:           form.Phone,
			Token:           token.ID,
			PaymentSourceID: source.ID.String(),
			AcceptanceToken: cfg.AcceptanceToken,
		},
	}, nil
}

// awaitApproval polls up to maxAttempts times, sleeping interval between
// attempts. Rejection ends the loop at once; running out of attempts is a
// timeout.
func (n *nequiMethod) awaitApproval(ctx context.Context, tokenID string) error {
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		res, err := n.backend.PollNequiToken(ctx, tokenID)
		if err != nil {
			return n.fail(ctx, err)
		}
		status, _ := enums.ParseNequiTokenStatus(res.Status)
		switch status {
		case enums.NequiTokenStatusApproved:
			return nil
		case enums.NequiTokenStatusRejected:
			n.metrics.IncNequiAuthorization("rejected")
			return pkgerrors.New(pkgerrors.CodePayment, "the payment was rejected in Nequi").
				WithDetails(map[string]any{"status": status, "attempt": attempt})
		case enums.NequiTokenStatusError:
			n.metrics.IncNequiAuthorization("error")
			return pkgerrors.New(pkgerrors.CodePayment, "Nequi could not process the payment").
				WithDetails(map[string]any{"status": status, "attempt": attempt})
		}
		if attempt == n.maxAttempts {
			break
		}
		timer := time.NewTimer(n.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return n.fail(ctx, ctx.Err())
		case <-timer.C:
		}
	}
	n.metrics.IncNequiAuthorization("timeout")
	return pkgerrors.New(pkgerrors.CodeTimeout, "the Nequi approval window expired").
		WithDetails(map[string]any{"attempts": n.maxAttempts})
}

// fail counts a chain failure. A failure after the chain was torn down counts
// as canceled.
func (n *nequiMethod) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		n.metrics.IncNequiAuthorization("canceled")
		return err
	}
	n.metrics.IncNequiAuthorization("error")
	return err
}
