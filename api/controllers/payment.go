package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/PixelDroid19/puntokoreano-app/api/responses"
	"github.com/PixelDroid19/puntokoreano-app/api/validators"
	"github.com/PixelDroid19/puntokoreano-app/internal/checkout"
	"github.com/PixelDroid19/puntokoreano-app/internal/payment"
	"github.com/PixelDroid19/puntokoreano-app/pkg/enums"
	"github.com/PixelDroid19/puntokoreano-app/pkg/logger"
)

const maxSelectionWait = 10 * time.Second

// Payments is the payment adapter surface used by the HTTP layer.
type Payments interface {
	Update(ctx context.Context, sessionID, method string, raw json.RawMessage, env payment.Env) (*payment.Selection, error)
	Current(ctx context.Context, sessionID string) (*payment.Selection, error)
	Wait(ctx context.Context, sessionID string) error
	Teardown(ctx context.Context, sessionID string) error
}

// PaymentCatalog lists the enabled methods and PSE banks.
type PaymentCatalog interface {
	View(ctx context.Context, sessionID string) (*payment.CatalogView, error)
}

// StepGate confirms the checkout is at a given step.
type StepGate interface {
	RequireStep(ctx context.Context, sessionID string, step enums.CheckoutStep) (*checkout.Draft, error)
}

func PaymentMethods(catalog PaymentCatalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, err := sessionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := catalog.View(r.Context(), sid)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// PaymentCurrent returns the latest selection. With wait=<seconds> it blocks
// until a pending validation settles or the wait elapses.
func PaymentCurrent(svc Payments, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, err := sessionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if raw := r.URL.Query().Get("wait"); raw != "" {
			if secs, convErr := strconv.Atoi(raw); convErr == nil && secs > 0 {
				wait := min(time.Duration(secs)*time.Second, maxSelectionWait)
				ctx, cancel := context.WithTimeout(r.Context(), wait)
				_ = svc.Wait(ctx, sid)
				cancel()
			}
		}

		sel, err := svc.Current(r.Context(), sid)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sel)
	}
}

// PaymentUpdate validates the form for one method. Pending validations answer
// 202 and settle in the background.
func PaymentUpdate(svc Payments, gate StepGate, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, err := sessionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := pathParam(r, "method")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		draft, err := gate.RequireStep(r.Context(), sid, enums.CheckoutStepPayment)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		raw, err := validators.RawJSONBody(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		env := payment.Env{}
		if draft.Contact != nil {
			env.CustomerEmail = draft.Contact.Email
		}

		sel, err := svc.Update(r.Context(), sid, method, raw, env)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if sel.Pending {
			responses.WriteSuccessStatus(w, http.StatusAccepted, sel)
			return
		}
		responses.WriteSuccess(w, sel)
	}
}

// PaymentTeardown cancels in-flight validation for the session.
func PaymentTeardown(svc Payments, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, err := sessionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Teardown(r.Context(), sid); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
