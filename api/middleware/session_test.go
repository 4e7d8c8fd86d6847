package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/PixelDroid19/puntokoreano-app/internal/session"
	"github.com/PixelDroid19/puntokoreano-app/pkg/backend"
	pkgerrors "github.com/PixelDroid19/puntokoreano-app/pkg/errors"
)

type stubAuth struct {
	auth *session.Auth
	err  error
	seen string
}

func (s *stubAuth) Current(_ context.Context, sessionID string) (*session.Auth, error) {
	s.seen = sessionID
	return s.auth, s.err
}

func TestSessionMintsWhenAbsent(t *testing.T) {
	var gotSID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSID = SessionIDFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	resp := httptest.NewRecorder()
	Session(nil, nil)(handler).ServeHTTP(resp, req)

	if _, err := uuid.Parse(gotSID); err != nil {
		t.Fatalf("expected minted uuid session, got %q", gotSID)
	}
	if resp.Header().Get(SessionHeader) != gotSID {
		t.Fatalf("expected session echoed in header")
	}
}

func TestSessionReplacesMalformedID(t *testing.T) {
	var gotSID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSID = SessionIDFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(SessionHeader, "../../etc")
	Session(nil, nil)(handler).ServeHTTP(httptest.NewRecorder(), req)

	if gotSID == "../../etc" {
		t.Fatalf("expected malformed session id to be replaced")
	}
}

func TestSessionForwardsBearerToken(t *testing.T) {
	sid := uuid.NewString()
	auth := &stubAuth{auth: &session.Auth{Token: "tok-1", SignedIn: time.Now()}}
	var token string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token = backend.TokenFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout", nil)
	req.Header.Set(SessionHeader, sid)
	Session(auth, nil)(handler).ServeHTTP(httptest.NewRecorder(), req)

	if auth.seen != sid {
		t.Fatalf("expected auth lookup for %s got %s", sid, auth.seen)
	}
	if token != "tok-1" {
		t.Fatalf("expected forwarded token, got %q", token)
	}
}

func TestSessionExpiredAuthContinuesAnonymous(t *testing.T) {
	auth := &stubAuth{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "expired")}
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if backend.TokenFromContext(r.Context()) != "" {
			t.Fatalf("expected no token for expired session")
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	Session(auth, nil)(handler).ServeHTTP(httptest.NewRecorder(), req)

	if !called {
		t.Fatalf("expected handler to run")
	}
}
