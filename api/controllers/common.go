package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/PixelDroid19/puntokoreano-app/api/middleware"
	"github.com/PixelDroid19/puntokoreano-app/api/validators"
	pkgerrors "github.com/PixelDroid19/puntokoreano-app/pkg/errors"
)

const maxParamLen = 64

func sessionID(r *http.Request) (string, error) {
	sid := middleware.SessionIDFromContext(r.Context())
	if sid == "" {
		return "", pkgerrors.New(pkgerrors.CodeInternal, "session context missing")
	}
	return sid, nil
}

func pathParam(r *http.Request, name string) (string, error) {
	value := validators.SanitizeString(chi.URLParam(r, name), maxParamLen)
	if value == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "missing path parameter").WithDetails(map[string]string{name: "is required"})
	}
	return value, nil
}
