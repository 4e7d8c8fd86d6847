package controllers

import (
	"context"
	"net/http"

	"github.com/PixelDroid19/puntokoreano-app/api/responses"
	"github.com/PixelDroid19/puntokoreano-app/api/validators"
	"github.com/PixelDroid19/puntokoreano-app/internal/checkout"
	"github.com/PixelDroid19/puntokoreano-app/pkg/enums"
	"github.com/PixelDroid19/puntokoreano-app/pkg/logger"
)

// Checkout is the step sequencer surface used by the HTTP layer.
type Checkout interface {
	State(ctx context.Context, sessionID string) (*checkout.Draft, error)
	Begin(ctx context.Context, sessionID string) (*checkout.Draft, error)
	SubmitContact(ctx context.Context, sessionID string, form checkout.ContactDraft) (*checkout.Draft, error)
	SubmitShipping(ctx context.Context, sessionID string, form checkout.ShippingDraft) (*checkout.Draft, error)
	EnterBilling(ctx context.Context, sessionID string) (*checkout.Draft, error)
	ConfirmReview(ctx context.Context, sessionID string) (*checkout.Draft, error)
	SetCurrent(ctx context.Context, sessionID string, n int) (*checkout.Draft, error)
	RequireStep(ctx context.Context, sessionID string, step enums.CheckoutStep) (*checkout.Draft, error)
	Cancel(ctx context.Context, sessionID string) error
}

type stepRequest struct {
	Step *int `json:"step" validate:"required"`
}

type draftAction func(ctx context.Context, sessionID string) (*checkout.Draft, error)

func CheckoutState(svc Checkout, logg *logger.Logger) http.HandlerFunc {
	return draftHandler(svc.State, logg)
}

// CheckoutBegin starts checkout, skipping Contact for signed-in shoppers.
func CheckoutBegin(svc Checkout, logg *logger.Logger) http.HandlerFunc {
	return draftHandler(svc.Begin, logg)
}

func CheckoutEnterBilling(svc Checkout, logg *logger.Logger) http.HandlerFunc {
	return draftHandler(svc.EnterBilling, logg)
}

func CheckoutConfirmReview(svc Checkout, logg *logger.Logger) http.HandlerFunc {
	return draftHandler(svc.ConfirmReview, logg)
}

// CheckoutSetStep navigates to an explicit step index.
func CheckoutSetStep(svc Checkout, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, err := sessionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload stepRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		draft, err := svc.SetCurrent(r.Context(), sid, *payload.Step)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, draft)
	}
}

func CheckoutContact(svc Checkout, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, err := sessionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkout.ContactDraft
		if err := validators.DecodeJSON(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		draft, err := svc.SubmitContact(r.Context(), sid, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, draft)
	}
}

func CheckoutShipping(svc Checkout, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, err := sessionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkout.ShippingDraft
		if err := validators.DecodeJSON(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		draft, err := svc.SubmitShipping(r.Context(), sid, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, draft)
	}
}

// CheckoutCancel discards the drafts and the payment selection.
func CheckoutCancel(svc Checkout, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, err := sessionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Cancel(r.Context(), sid); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func draftHandler(action draftAction, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, err := sessionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		draft, err := action(r.Context(), sid)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, draft)
	}
}
