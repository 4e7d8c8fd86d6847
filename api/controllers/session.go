package controllers

import (
	"net/http"

	"github.com/PixelDroid19/puntokoreano-app/api/responses"
	"github.com/PixelDroid19/puntokoreano-app/api/validators"
	"github.com/PixelDroid19/puntokoreano-app/internal/session"
	"github.com/PixelDroid19/puntokoreano-app/pkg/logger"
)

type signInRequest struct {
	User  session.User `json:"user" validate:"required"`
	Token string       `json:"token" validate:"required"`
}

type termsRequest struct {
	Accepted bool `json:"accepted"`
}

type sessionResponse struct {
	SessionID     string        `json:"sessionId"`
	Auth          *session.Auth `json:"auth"`
	TermsAccepted bool          `json:"termsAccepted"`
}

// SessionSignIn stores the auth session issued by the backend login flow.
func SessionSignIn(svc session.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, err := sessionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload signInRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		auth, err := svc.SignIn(r.Context(), sid, payload.User, payload.Token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		accepted, err := svc.TermsAccepted(r.Context(), sid)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sessionResponse{SessionID: sid, Auth: auth, TermsAccepted: accepted})
	}
}

func SessionCurrent(svc session.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, err := sessionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		auth, err := svc.Current(r.Context(), sid)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		accepted, err := svc.TermsAccepted(r.Context(), sid)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sessionResponse{SessionID: sid, Auth: auth, TermsAccepted: accepted})
	}
}

func SessionSignOut(svc session.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, err := sessionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.SignOut(r.Context(), sid); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func SessionTerms(svc session.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, err := sessionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload termsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.AcceptTerms(r.Context(), sid, payload.Accepted); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"termsAccepted": payload.Accepted})
	}
}
