package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/PixelDroid19/puntokoreano-app/internal/session"
	"github.com/PixelDroid19/puntokoreano-app/pkg/backend"
	pkgerrors "github.com/PixelDroid19/puntokoreano-app/pkg/errors"
	"github.com/PixelDroid19/puntokoreano-app/pkg/logger"
)

// SessionHeader carries the storefront session id in both directions.
const SessionHeader = "X-Session-Id"

// AuthSource resolves the signed-in user for a session.
type AuthSource interface {
	Current(ctx context.Context, sessionID string) (*session.Auth, error)
}

// Session resolves the storefront session from the request, minting one when
// absent or malformed, and forwards the stored bearer token to backend calls.
func Session(auth AuthSource, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := strings.TrimSpace(r.Header.Get(SessionHeader))
			if _, err := uuid.Parse(sid); err != nil {
				sid = uuid.NewString()
			}
			w.Header().Set(SessionHeader, sid)

			ctx := WithSessionID(r.Context(), sid)
			if logg != nil {
				ctx = logg.WithSessionID(ctx, sid)
			}

			if auth != nil {
				current, err := auth.Current(ctx, sid)
				switch {
				case err == nil && current != nil && current.Token != "":
					ctx = backend.WithToken(ctx, current.Token)
				case err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) && logg != nil:
					logg.Error(ctx, "resolve auth session", err)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
