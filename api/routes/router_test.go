package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/PixelDroid19/puntokoreano-app/api/controllers"
	"github.com/PixelDroid19/puntokoreano-app/api/middleware"
	"github.com/PixelDroid19/puntokoreano-app/internal/cart"
	"github.com/PixelDroid19/puntokoreano-app/internal/checkout"
	"github.com/PixelDroid19/puntokoreano-app/internal/notify"
	"github.com/PixelDroid19/puntokoreano-app/internal/orders"
	"github.com/PixelDroid19/puntokoreano-app/internal/session"
	"github.com/PixelDroid19/puntokoreano-app/internal/wishlist"
	"github.com/PixelDroid19/puntokoreano-app/pkg/backend"
	"github.com/PixelDroid19/puntokoreano-app/pkg/config"
	"github.com/PixelDroid19/puntokoreano-app/pkg/enums"
	pkgerrors "github.com/PixelDroid19/puntokoreano-app/pkg/errors"
	"github.com/PixelDroid19/puntokoreano-app/pkg/kv"
	"github.com/PixelDroid19/puntokoreano-app/pkg/logger"
	"github.com/PixelDroid19/puntokoreano-app/pkg/metrics"
	"github.com/PixelDroid19/puntokoreano-app/pkg/types"
)

type stubCheckout struct {
	controllers.Checkout
	step enums.CheckoutStep
}

func (s *stubCheckout) State(context.Context, string) (*checkout.Draft, error) {
	return &checkout.Draft{Current: s.step}, nil
}

func (s *stubCheckout) RequireStep(_ context.Context, _ string, step enums.CheckoutStep) (*checkout.Draft, error) {
	if step != s.step {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout is not at the payment step")
	}
	return &checkout.Draft{Current: s.step}, nil
}

type stubShipping struct {
	err error
}

func (s *stubShipping) Config(context.Context) (*backend.ShippingConfig, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &backend.ShippingConfig{}, nil
}

type stubOrders struct {
	mu    sync.Mutex
	calls int
	keys  []string
}

func (s *stubOrders) Submit(_ context.Context, sessionID, key string) (*orders.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.keys = append(s.keys, key)
	return &orders.Outcome{
		Order:            backend.Order{ID: "ord-1", OrderNumber: "PK-1"},
		ConfirmationPath: orders.ConfirmationPath + "?order=PK-1",
	}, nil
}

func (s *stubOrders) Order(_ context.Context, id string) (*backend.Order, error) {
	if id != "ord-1" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return &backend.Order{ID: id, OrderNumber: "PK-1"}, nil
}

func (s *stubOrders) LastOrder(context.Context, string) (*orders.LastOrder, error) {
	return nil, nil
}

type harness struct {
	router   http.Handler
	orders   *stubOrders
	shipping *stubShipping
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logg := logger.Nop()
	store := kv.NewMemoryStore("test")

	notes, err := notify.NewService(store, logg)
	require.NoError(t, err)
	sessions, err := session.NewService(session.ServiceParams{Store: store, Notify: notes, Logger: logg})
	require.NoError(t, err)
	repo, err := cart.NewRepository(store)
	require.NoError(t, err)
	carts, err := cart.NewService(cart.ServiceParams{Repo: repo})
	require.NoError(t, err)
	wishes, err := wishlist.NewService(wishlist.ServiceParams{Store: store, Cart: carts})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.NewCheckoutMetrics(reg)
	m.IncOrderSubmission("created")

	cfg := &config.Config{
		App:      config.AppConfig{Env: config.AppEnvDev, CORSOrigins: []string{"http://localhost:5173"}},
		Store:    config.StoreConfig{Driver: config.StoreDriverMemory},
		Checkout: config.CheckoutConfig{IdempotencyTTL: time.Hour},
	}
	stubbed := &stubOrders{}
	ship := &stubShipping{}
	router := NewRouter(cfg, logg, Deps{
		Store:         store,
		Gatherer:      reg,
		Session:       sessions,
		Notifications: notes,
		Cart:          carts,
		Wishlist:      wishes,
		Shipping:      ship,
		Checkout:      &stubCheckout{step: enums.CheckoutStepContact},
		Orders:        stubbed,
	})
	return &harness{router: router, orders: stubbed, shipping: ship}
}

func (h *harness) do(t *testing.T, method, path, sid, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if sid != "" {
		req.Header.Set(middleware.SessionHeader, sid)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	h.router.ServeHTTP(resp, req)
	return resp
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, dst any) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

func TestHealthRoutes(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, "/health/live", "", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = h.do(t, http.MethodGet, "/health/ready", "", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, config.AppEnvDev, resp.Header().Get("X-Storefront-Env"))
}

func TestMetricsRoute(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, "/metrics", "", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), "order_submissions_total")
}

func TestSessionHeaderIsMintedAndEchoed(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, "/api/v1/cart", "", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	minted := resp.Header().Get(middleware.SessionHeader)
	_, err := uuid.Parse(minted)
	require.NoError(t, err)

	sid := uuid.NewString()
	resp = h.do(t, http.MethodGet, "/api/v1/cart", sid, "", nil)
	require.Equal(t, sid, resp.Header().Get(middleware.SessionHeader))
}

func TestCartRoutes(t *testing.T) {
	h := newHarness(t)
	sid := uuid.NewString()

	resp := h.do(t, http.MethodPost, "/api/v1/cart/items", sid, `{"productId":"p-1","name":"Filtro","unitPrice":"50000","stockCeiling":3}`, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = h.do(t, http.MethodPatch, "/api/v1/cart/items/p-1", sid, `{"quantity":2}`, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var ledger cart.Ledger
	decodeData(t, resp, &ledger)
	require.Len(t, ledger.Lines, 1)
	require.Equal(t, 2, ledger.Totals.TotalItemCount)
	require.Equal(t, "100000", ledger.Totals.SubTotal.String())

	resp = h.do(t, http.MethodPatch, "/api/v1/cart/items/p-1", sid, `{}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = h.do(t, http.MethodDelete, "/api/v1/cart", sid, "", nil)
	require.Equal(t, http.StatusNoContent, resp.Code)

	resp = h.do(t, http.MethodGet, "/api/v1/cart", sid, "", nil)
	decodeData(t, resp, &ledger)
	require.Empty(t, ledger.Lines)
}

func TestWishlistMoveToCartRoute(t *testing.T) {
	h := newHarness(t)
	sid := uuid.NewString()

	resp := h.do(t, http.MethodPost, "/api/v1/wishlist/items", sid, `{"productId":"p-2","name":"Bujia","unitPrice":"12000","stockCeiling":5}`, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = h.do(t, http.MethodPost, "/api/v1/wishlist/items/p-2/move-to-cart", sid, "", nil)
	require.Equal(t, http.StatusBadRequest, resp.Code, "idempotency key is required")

	resp = h.do(t, http.MethodPost, "/api/v1/wishlist/items/p-2/move-to-cart", sid, "", map[string]string{middleware.IdempotencyHeader: "mv-1"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var ledger cart.Ledger
	decodeData(t, resp, &ledger)
	require.Len(t, ledger.Lines, 1)
	require.Equal(t, "p-2", ledger.Lines[0].ProductID)
}

func TestSessionRoutes(t *testing.T) {
	h := newHarness(t)
	sid := uuid.NewString()

	resp := h.do(t, http.MethodPut, "/api/v1/session", sid, `{"user":{"id":"u-1","name":"Ana","email":"ana@example.com"},"token":"opaque"}`, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = h.do(t, http.MethodPut, "/api/v1/session/terms", sid, `{"accepted":true}`, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = h.do(t, http.MethodGet, "/api/v1/session", sid, "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var body struct {
		Auth          *session.Auth `json:"auth"`
		TermsAccepted bool          `json:"termsAccepted"`
	}
	decodeData(t, resp, &body)
	require.NotNil(t, body.Auth)
	require.Equal(t, "u-1", body.Auth.User.ID)
	require.True(t, body.TermsAccepted)

	resp = h.do(t, http.MethodDelete, "/api/v1/session", sid, "", nil)
	require.Equal(t, http.StatusNoContent, resp.Code)
}

func TestNotificationsRouteDrains(t *testing.T) {
	h := newHarness(t)
	sid := uuid.NewString()

	resp := h.do(t, http.MethodGet, "/api/v1/notifications", sid, "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var items []notify.Notification
	decodeData(t, resp, &items)
	require.Empty(t, items)
}

func TestSubmitReplaysPerIdempotencyKey(t *testing.T) {
	h := newHarness(t)
	sid := uuid.NewString()
	headers := map[string]string{middleware.IdempotencyHeader: "submit-1"}

	first := h.do(t, http.MethodPost, "/api/v1/checkout/submit", sid, `{}`, headers)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	second := h.do(t, http.MethodPost, "/api/v1/checkout/submit", sid, `{}`, headers)
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, first.Body.String(), second.Body.String())
	require.Equal(t, 1, h.orders.calls)
	require.Equal(t, []string{"submit-1"}, h.orders.keys)

	var outcome struct {
		Next string `json:"next"`
	}
	decodeData(t, first, &outcome)
	require.Equal(t, "/checkout/result?order=PK-1", outcome.Next)
}

func TestSubmitRequiresIdempotencyKey(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodPost, "/api/v1/checkout/submit", uuid.NewString(), `{}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Equal(t, 0, h.orders.calls)
}

func TestPaymentUpdateRequiresPaymentStep(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodPut, "/api/v1/checkout/payment/CARD", uuid.NewString(), `{}`, nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code, resp.Body.String())

	var envelope types.ErrorEnvelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.Equal(t, string(pkgerrors.CodeStateConflict), envelope.Error.Code)
}

func TestOrdersRoutes(t *testing.T) {
	h := newHarness(t)
	sid := uuid.NewString()

	resp := h.do(t, http.MethodGet, "/api/v1/orders/ord-1", sid, "", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = h.do(t, http.MethodGet, "/api/v1/orders/missing", sid, "", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)

	resp = h.do(t, http.MethodGet, "/api/v1/orders/last", sid, "", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestBackendUnauthorizedResetsSession(t *testing.T) {
	h := newHarness(t)
	sid := uuid.NewString()

	resp := h.do(t, http.MethodPut, "/api/v1/session", sid, `{"user":{"id":"u-1","name":"Ana","email":"ana@example.com"},"token":"opaque"}`, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	h.shipping.err = pkgerrors.New(pkgerrors.CodeUnauthorized, "session expired, please sign in again").
		WithDetails(map[string]any{"redirect": backend.LoginRedirect})
	resp = h.do(t, http.MethodGet, "/api/v1/shipping/config", sid, "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.Equal(t, string(pkgerrors.CodeUnauthorized), envelope.Error.Code)
	require.Equal(t, "/login", envelope.Error.Details["redirect"])

	h.shipping.err = nil
	resp = h.do(t, http.MethodGet, "/api/v1/session", sid, "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var body struct {
		Auth *session.Auth `json:"auth"`
	}
	decodeData(t, resp, &body)
	require.Nil(t, body.Auth)

	resp = h.do(t, http.MethodGet, "/api/v1/notifications", sid, "", nil)
	var items []notify.Notification
	decodeData(t, resp, &items)
	require.Len(t, items, 1)
	require.Equal(t, "session_expired", items[0].Code)
}
