// Package session keeps the signed-in shopper and the terms-acceptance flag
// for a storefront session.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PixelDroid19/puntokoreano-app/internal/notify"
	"github.com/PixelDroid19/puntokoreano-app/pkg/backend"
	pkgerrors "github.com/PixelDroid19/puntokoreano-app/pkg/errors"
	"github.com/PixelDroid19/puntokoreano-app/pkg/kv"
	"github.com/PixelDroid19/puntokoreano-app/pkg/logger"
	"github.com/golang-jwt/jwt/v5"
)

// LoginRedirect is where the UI sends the shopper after a forced logout.
const LoginRedirect = backend.LoginRedirect

// User is the signed-in shopper profile used to pre-fill checkout.
type User struct {
	ID       string `json:"id" validate:"required"`
	Name     string `json:"name" validate:"required"`
	LastName string `json:"lastName"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone"`
}

// Auth is the stored auth session.
type Auth struct {
	User      User       `json:"user"`
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	SignedIn  time.Time  `json:"signedIn"`
}

type terms struct {
	Accepted   bool      `json:"accepted"`
	AcceptedAt time.Time `json:"acceptedAt"`
}

// Service exposes the auth session and global session reset.
type Service interface {
	SignIn(ctx context.Context, sessionID string, user User, token string) (*Auth, error)
	Current(ctx context.Context, sessionID string) (*Auth, error)
	SignOut(ctx context.Context, sessionID string) error
	ForceLogout(ctx context.Context, sessionID, reason string)
	AcceptTerms(ctx context.Context, sessionID string, accepted bool) error
	TermsAccepted(ctx context.Context, sessionID string) (bool, error)
}

// ServiceParams groups dependencies for the session service.
type ServiceParams struct {
	Store  kv.Store
	Notify notify.Sink
	Logger *logger.Logger
}

type service struct {
	store  kv.Store
	notify notify.Sink
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "kv store is required")
	}
	if params.Notify == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification sink is required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	return &service{store: params.Store, notify: params.Notify, logg: params.Logger, now: time.Now}, nil
}

func (s *service) SignIn(ctx context.Context, sessionID string, user User, token string) (*Auth, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "token is required")
	}
	exp := tokenExpiry(token)
	if exp != nil && !exp.After(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "token already expired")
	}
	auth := &Auth{User: user, Token: token, ExpiresAt: exp, SignedIn: s.now().UTC()}
	if err := kv.Save(ctx, s.store, kv.SessionKey(s.store, sessionID, kv.Auth), auth, 0); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save auth session")
	}
	return auth, nil
}

// Current returns the auth session or nil when signed out. An expired token
// forces a logout and returns an unauthorized error.
func (s *service) Current(ctx context.Context, sessionID string) (*Auth, error) {
	var auth Auth
	found, err := kv.Load(ctx, s.store, kv.SessionKey(s.store, sessionID, kv.Auth), &auth)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load auth session")
	}
	if !found {
		return nil, nil
	}
	if auth.ExpiresAt != nil && !auth.ExpiresAt.After(s.now()) {
		s.ForceLogout(ctx, sessionID, "token expired")
		return nil, Expired()
	}
	return &auth, nil
}

func (s *service) SignOut(ctx context.Context, sessionID string) error {
	if err := s.store.Del(ctx, kv.SessionKey(s.store, sessionID, kv.Auth)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete auth session")
	}
	return nil
}

// ForceLogout is the global reset for irrecoverable auth errors. A session
// without a stored auth record is already reset and is left alone.
func (s *service) ForceLogout(ctx context.Context, sessionID, reason string) {
	ctx = s.logg.WithField(ctx, "reason", reason)
	key := kv.SessionKey(s.store, sessionID, kv.Auth)
	if _, err := s.store.Get(ctx, key); errors.Is(err, kv.ErrNotFound) {
		return
	} else if err != nil {
		s.logg.Error(ctx, "force logout lookup", err)
	}
	if err := s.store.Del(ctx, key); err != nil {
		s.logg.Error(ctx, "force logout", err)
	}
	s.logg.Warn(ctx, "session reset after authorization failure")
	s.notify.Notify(ctx, sessionID, notify.Warning("session_expired", "Your session has expired. Please sign in again."))
}

func (s *service) AcceptTerms(ctx context.Context, sessionID string, accepted bool) error {
	key := kv.SessionKey(s.store, sessionID, kv.Terms)
	if !accepted {
		if err := s.store.Del(ctx, key); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear terms")
		}
		return nil
	}
	if err := kv.Save(ctx, s.store, key, terms{Accepted: true, AcceptedAt: s.now().UTC()}, 0); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save terms")
	}
	return nil
}

func (s *service) TermsAccepted(ctx context.Context, sessionID string) (bool, error) {
	var t terms
	if _, err := kv.Load(ctx, s.store, kv.SessionKey(s.store, sessionID, kv.Terms), &t); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load terms")
	}
	return t.Accepted, nil
}

// Expired is the error returned when the stored token is no longer valid.
func Expired() error {
	return pkgerrors.New(pkgerrors.CodeUnauthorized, "session expired, please sign in again").
		WithDetails(map[string]any{"redirect": LoginRedirect})
}

// tokenExpiry reads the exp claim without verifying the signature. Opaque
// tokens have no expiry.
func tokenExpiry(token string) *time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	t := exp.Time.UTC()
	return &t
}
