package session

import (
	"context"
	"testing"
	"time"

	"github.com/PixelDroid19/puntokoreano-app/internal/notify"
	pkgerrors "github.com/PixelDroid19/puntokoreano-app/pkg/errors"
	"github.com/PixelDroid19/puntokoreano-app/pkg/kv"
	"github.com/PixelDroid19/puntokoreano-app/pkg/logger"
	"github.com/golang-jwt/jwt/v5"
)

type recordingSink struct {
	got []notify.Notification
}

func (r *recordingSink) Notify(_ context.Context, _ string, n notify.Notification) {
	r.got = append(r.got, n)
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	})
	raw, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return raw
}

func newTestService(t *testing.T) (*service, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	svc, err := NewService(ServiceParams{Store: kv.NewMemoryStore("sf"), Notify: sink, Logger: logger.Nop()})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc.(*service), sink
}

var shopper = User{ID: "u1", Name: "Ana", LastName: "Gomez", Email: "ana@example.com", Phone: "3001234567"}

func TestSignInAndCurrent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	auth, err := svc.SignIn(ctx, "s1", shopper, signedToken(t, exp))
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if auth.ExpiresAt == nil || auth.ExpiresAt.Unix() != exp.Unix() {
		t.Fatalf("expected expiry from claims, got %v", auth.ExpiresAt)
	}

	got, err := svc.Current(ctx, "s1")
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if got == nil || got.User.Email != shopper.Email {
		t.Fatalf("unexpected session %+v", got)
	}
}

func TestOpaqueTokenHasNoExpiry(t *testing.T) {
	svc, _ := newTestService(t)
	auth, err := svc.SignIn(context.Background(), "s1", shopper, "opaque-token")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if auth.ExpiresAt != nil {
		t.Fatalf("expected no expiry, got %v", auth.ExpiresAt)
	}
}

func TestSignInRejectsExpiredToken(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.SignIn(context.Background(), "s1", shopper, signedToken(t, time.Now().Add(-time.Minute)))
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestCurrentForcesLogoutOnExpiry(t *testing.T) {
	svc, sink := newTestService(t)
	ctx := context.Background()
	if _, err := svc.SignIn(ctx, "s1", shopper, signedToken(t, time.Now().Add(time.Minute))); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, err := svc.Current(ctx, "s1")
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if len(sink.got) != 1 || sink.got[0].Code != "session_expired" {
		t.Fatalf("expected a session expired notification, got %+v", sink.got)
	}
	got, err := svc.Current(ctx, "s1")
	if err != nil || got != nil {
		t.Fatalf("expected signed out session, got %+v %v", got, err)
	}
}

func TestForceLogoutNotifiesOnce(t *testing.T) {
	svc, sink := newTestService(t)
	ctx := context.Background()
	if _, err := svc.SignIn(ctx, "s1", shopper, "opaque-token"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	svc.ForceLogout(ctx, "s1", "backend rejected credentials")
	svc.ForceLogout(ctx, "s1", "backend rejected credentials")

	if len(sink.got) != 1 || sink.got[0].Code != "session_expired" {
		t.Fatalf("expected one session expired notification, got %+v", sink.got)
	}
	if got, err := svc.Current(ctx, "s1"); err != nil || got != nil {
		t.Fatalf("expected signed out session, got %+v %v", got, err)
	}
}

func TestForceLogoutIgnoresAnonymousSession(t *testing.T) {
	svc, sink := newTestService(t)
	svc.ForceLogout(context.Background(), "s1", "backend rejected credentials")
	if len(sink.got) != 0 {
		t.Fatalf("expected no notification, got %+v", sink.got)
	}
}

func TestTermsAcceptance(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if ok, _ := svc.TermsAccepted(ctx, "s1"); ok {
		t.Fatal("terms should start unaccepted")
	}
	if err := svc.AcceptTerms(ctx, "s1", true); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if ok, _ := svc.TermsAccepted(ctx, "s1"); !ok {
		t.Fatal("expected terms accepted")
	}
	if err := svc.AcceptTerms(ctx, "s1", false); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if ok, _ := svc.TermsAccepted(ctx, "s1"); ok {
		t.Fatal("expected terms revoked")
	}
}
