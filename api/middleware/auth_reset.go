package middleware

import (
	"context"
	"net/http"

	"github.com/PixelDroid19/puntokoreano-app/pkg/logger"
)

// AuthReset clears the signed-in session after an authorization failure.
type AuthReset interface {
	ForceLogout(ctx context.Context, sessionID, reason string)
}

// ResetOnUnauthorized forces a logout of the request session whenever the
// handler answers 401. It must run after Session.
func ResetOnUnauthorized(reset AuthReset, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			if rec.status != http.StatusUnauthorized || reset == nil {
				return
			}
			sid := SessionIDFromContext(r.Context())
			if sid == "" {
				return
			}
			ctx := context.WithoutCancel(r.Context())
			if logg != nil {
				ctx = logg.WithField(ctx, "path", r.URL.Path)
			}
			reset.ForceLogout(ctx, sid, "backend rejected credentials")
		})
	}
}
