package controllers

import (
	"net/http"
	"strings"

	"github.com/PixelDroid19/puntokoreano-app/api/middleware"
	"github.com/PixelDroid19/puntokoreano-app/api/responses"
	"github.com/PixelDroid19/puntokoreano-app/internal/orders"
	pkgerrors "github.com/PixelDroid19/puntokoreano-app/pkg/errors"
	"github.com/PixelDroid19/puntokoreano-app/pkg/logger"
)

type submitResponse struct {
	*orders.Outcome
	Next string `json:"next"`
}

// CheckoutSubmit places the order for the session's completed checkout.
func CheckoutSubmit(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, err := sessionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		key := strings.TrimSpace(r.Header.Get(middleware.IdempotencyHeader))
		outcome, err := svc.Submit(r.Context(), sid, key)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, submitResponse{Outcome: outcome, Next: outcome.Next()})
	}
}

func OrdersLast(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, err := sessionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		last, err := svc.LastOrder(r.Context(), sid)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if last == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "no order submitted in this session"))
			return
		}
		responses.WriteSuccess(w, last)
	}
}

func OrdersGet(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := pathParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Order(logg.WithOrderID(r.Context(), orderID), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
