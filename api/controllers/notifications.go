package controllers

import (
	"context"
	"net/http"

	"github.com/PixelDroid19/puntokoreano-app/api/responses"
	"github.com/PixelDroid19/puntokoreano-app/internal/notify"
	"github.com/PixelDroid19/puntokoreano-app/pkg/logger"
)

// NotificationFeed drains queued notifications for a session.
type NotificationFeed interface {
	Drain(ctx context.Context, sessionID string) ([]notify.Notification, error)
}

// NotificationsDrain returns and clears the session's pending notifications.
func NotificationsDrain(feed NotificationFeed, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, err := sessionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, err := feed.Drain(r.Context(), sid)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if items == nil {
			items = []notify.Notification{}
		}
		responses.WriteSuccess(w, items)
	}
}
