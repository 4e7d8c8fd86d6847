// Package notify is the single per-session notification sink that network
// and payment failures bubble up to.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/PixelDroid19/puntokoreano-app/pkg/enums"
	"github.com/PixelDroid19/puntokoreano-app/pkg/keylock"
	"github.com/PixelDroid19/puntokoreano-app/pkg/kv"
	"github.com/PixelDroid19/puntokoreano-app/pkg/logger"
	"github.com/google/uuid"
)

const (
	maxQueued = 50
	queueTTL  = 24 * time.Hour
)

// Notification is one user-facing message.
type Notification struct {
	ID        string                  `json:"id"`
	Level     enums.NotificationLevel `json:"level"`
	Code      string                  `json:"code"`
	Message   string                  `json:"message"`
	CreatedAt time.Time               `json:"createdAt"`
}

// Sink accepts notifications for a session.
type Sink interface {
	Notify(ctx context.Context, sessionID string, n Notification)
}

// Service queues notifications in the session store until the UI drains them.
type Service struct {
	store kv.Store
	logg  *logger.Logger
	locks *keylock.Locker
	now   func() time.Time
}

func NewService(store kv.Store, logg *logger.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("kv store required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Service{store: store, logg: logg, locks: keylock.New(), now: time.Now}, nil
}

// Notify logs n and appends it to the session queue. Storage failures are
// logged and dropped.
func (s *Service) Notify(ctx context.Context, sessionID string, n Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Level == "" {
		n.Level = enums.NotificationLevelInfo
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{"notification_code": n.Code, "notification_level": n.Level.String()})
	switch n.Level {
	case enums.NotificationLevelWarning, enums.NotificationLevelError:
		s.logg.Warn(logCtx, n.Message)
	default:
		s.logg.Info(logCtx, n.Message)
	}

	if sessionID == "" {
		return
	}
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	key := kv.SessionKey(s.store, sessionID, kv.Notifications)
	var queue []Notification
	if _, err := kv.Load(ctx, s.store, key, &queue); err != nil {
		s.logg.Error(logCtx, "load notification queue", err)
		return
	}
	queue = append(queue, n)
	if len(queue) > maxQueued {
		queue = queue[len(queue)-maxQueued:]
	}
	if err := kv.Save(ctx, s.store, key, queue, queueTTL); err != nil {
		s.logg.Error(logCtx, "save notification queue", err)
	}
}

// Drain returns and removes every queued notification for the session.
func (s *Service) Drain(ctx context.Context, sessionID string) ([]Notification, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	key := kv.SessionKey(s.store, sessionID, kv.Notifications)
	queue := []Notification{}
	if _, err := kv.Load(ctx, s.store, key, &queue); err != nil {
		return nil, err
	}
	if len(queue) == 0 {
		return []Notification{}, nil
	}
	if err := s.store.Del(ctx, key); err != nil {
		return nil, err
	}
	return queue, nil
}

// Warning is shorthand for a warning-level notification.
func Warning(code, message string) Notification {
	return Notification{Level: enums.NotificationLevelWarning, Code: code, Message: message}
}

// Error is shorthand for an error-level notification.
func Error(code, message string) Notification {
	return Notification{Level: enums.NotificationLevelError, Code: code, Message: message}
}

// Success is shorthand for a success-level notification.
func Success(code, message string) Notification {
	return Notification{Level: enums.NotificationLevelSuccess, Code: code, Message: message}
}
