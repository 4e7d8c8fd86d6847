package checkout

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/PixelDroid19/puntokoreano-app/internal/cart"
	"github.com/PixelDroid19/puntokoreano-app/internal/notify"
	"github.com/PixelDroid19/puntokoreano-app/internal/session"
	"github.com/PixelDroid19/puntokoreano-app/internal/shipping"
	"github.com/PixelDroid19/puntokoreano-app/pkg/backend"
	"github.com/PixelDroid19/puntokoreano-app/pkg/enums"
	pkgerrors "github.com/PixelDroid19/puntokoreano-app/pkg/errors"
	"github.com/PixelDroid19/puntokoreano-app/pkg/kv"
	"github.com/PixelDroid19/puntokoreano-app/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type stubShippingBackend struct {
	calls atomic.Int32
}

func (s *stubShippingBackend) CalculateShippingCost(context.Context, backend.ShippingCostRequest) (*backend.ShippingCost, error) {
	s.calls.Add(1)
	return &backend.ShippingCost{Cost: decimal.NewFromInt(15000), EstimatedDays: backend.DayRange{Min: 2, Max: 3}}, nil
}

func (s *stubShippingBackend) ShippingConfig(context.Context) (*backend.ShippingConfig, error) {
	return &backend.ShippingConfig{}, nil
}

type stubAuth struct {
	auth *session.Auth
}

func (s *stubAuth) Current(context.Context, string) (*session.Auth, error) {
	return s.auth, nil
}

type stubPayments struct {
	teardowns int
	resets    int
}

func (s *stubPayments) Teardown(context.Context, string) error {
	s.teardowns++
	return nil
}

func (s *stubPayments) Reset(context.Context, string) error {
	s.resets++
	return nil
}

type nopSink struct{}

func (nopSink) Notify(context.Context, string, notify.Notification) {}

type fixture struct {
	seq      *Sequencer
	carts    cart.Service
	store    *kv.MemoryStore
	auth     *stubAuth
	payments *stubPayments
	backend  *stubShippingBackend
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := kv.NewMemoryStore("sf")
	repo, err := cart.NewRepository(store)
	require.NoError(t, err)
	carts, err := cart.NewService(cart.ServiceParams{Repo: repo})
	require.NoError(t, err)
	sb := &stubShippingBackend{}
	resolver, err := shipping.NewResolver(shipping.ResolverParams{
		Store:    store,
		Backend:  sb,
		Notify:   nopSink{},
		Logger:   logger.Nop(),
		Fallback: shipping.Fallback{Cost: decimal.NewFromInt(15000), MinDays: 3, MaxDays: 5},
	})
	require.NoError(t, err)
	f := &fixture{carts: carts, store: store, auth: &stubAuth{}, payments: &stubPayments{}, backend: sb}
	f.seq, err = NewSequencer(SequencerParams{
		Store:    store,
		Carts:    carts,
		Auth:     f.auth,
		Quotes:   resolver,
		Payments: f.payments,
		Logger:   logger.Nop(),
		TaxRate:  decimal.RequireFromString("0.19"),
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) fillCart(t *testing.T) {
	t.Helper()
	item := cart.Item{ProductID: "p1", Name: "Filtro de aceite", UnitPrice: decimal.NewFromInt(50000), StockCeiling: 5}
	_, err := f.carts.AddItem(context.Background(), "s1", item)
	require.NoError(t, err)
	_, err = f.carts.AddItem(context.Background(), "s1", item)
	require.NoError(t, err)
}

var (
	contactForm  = ContactDraft{Name: "Ana", LastName: "Gomez", Email: "Ana@Example.com", Phone: "300 123 4567"}
	shippingForm = ShippingDraft{Street: "Calle 10 # 5-20", City: "Bogota", State: "Cundinamarca", Country: "CO", ShippingMethod: "standard"}
)

func statusOf(d *Draft, step enums.CheckoutStep) enums.StepStatus {
	return d.Steps[int(step)].Status
}

func TestBeginRequiresItems(t *testing.T) {
	f := newFixture(t)
	_, err := f.seq.Begin(context.Background(), "s1")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	require.Equal(t, map[string]any{"redirect": StoreRedirect}, typed.Details())
}

func TestFullFlowComputesReview(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	ctx := context.Background()

	d, err := f.seq.Begin(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, enums.CheckoutStepContact, d.Current)

	d, err = f.seq.SubmitContact(ctx, "s1", contactForm)
	require.NoError(t, err)
	require.Equal(t, enums.CheckoutStepShipping, d.Current)
	require.Equal(t, "ana@example.com", d.Contact.Email)
	require.Equal(t, "3001234567", d.Contact.Phone)
	require.False(t, d.Contact.IsAuthenticated)

	d, err = f.seq.SubmitShipping(ctx, "s1", shippingForm)
	require.NoError(t, err)
	require.Equal(t, enums.CheckoutStepBilling, d.Current)

	d, err = f.seq.EnterBilling(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, d.Review)
	require.True(t, d.Review.SubTotal.Equal(decimal.NewFromInt(100000)))
	require.True(t, d.Review.Shipping.Equal(decimal.NewFromInt(15000)))
	require.True(t, d.Review.Tax.Equal(decimal.NewFromInt(19000)))
	require.True(t, d.Review.Total.Equal(decimal.NewFromInt(134000)))

	d, err = f.seq.ConfirmReview(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, enums.CheckoutStepPayment, d.Current)
	require.Equal(t, enums.StepStatusFinish, statusOf(d, enums.CheckoutStepBilling))
	require.Equal(t, enums.StepStatusProcess, statusOf(d, enums.CheckoutStepPayment))
	require.EqualValues(t, 1, f.backend.calls.Load())

	_, err = f.seq.RequireStep(ctx, "s1", enums.CheckoutStepPayment)
	require.NoError(t, err)
}

func TestBeginSkipsContactWhenSignedIn(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	f.auth.auth = &session.Auth{User: session.User{ID: "u1", Name: "Ana", LastName: "Gomez", Email: "ana@example.com", Phone: "3001234567"}, Token: "t"}

	d, err := f.seq.Begin(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, enums.CheckoutStepShipping, d.Current)
	require.True(t, d.Contact.IsAuthenticated)
	require.Equal(t, "u1", *d.Contact.UserID)
	require.Equal(t, enums.StepStatusFinish, statusOf(d, enums.CheckoutStepContact))
}

func TestInvalidContactKeepsStepWithError(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	ctx := context.Background()

	_, err := f.seq.SubmitContact(ctx, "s1", ContactDraft{Name: "Ana", Email: "not-an-email"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	d, err := f.seq.State(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, enums.CheckoutStepContact, d.Current)
	require.Equal(t, enums.StepStatusError, statusOf(d, enums.CheckoutStepContact))
	require.Nil(t, d.Contact)
}

func TestForwardNavigationIsGuarded(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)

	_, err := f.seq.SetCurrent(context.Background(), "s1", int(enums.CheckoutStepPayment))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	details := typed.Details().(map[string]any)
	require.Equal(t, []string{"contact", "shipping"}, details["missing"])
	require.Zero(t, f.backend.calls.Load())
}

func TestStoredDraftsAreRevalidated(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	ctx := context.Background()
	_, err := f.seq.SubmitContact(ctx, "s1", contactForm)
	require.NoError(t, err)
	_, err = f.seq.SubmitShipping(ctx, "s1", shippingForm)
	require.NoError(t, err)

	d, err := f.seq.State(ctx, "s1")
	require.NoError(t, err)
	d.Contact.Email = "broken"
	require.NoError(t, kv.Save(ctx, f.store, kv.SessionKey(f.store, "s1", kv.Checkout), d, 0))

	_, err = f.seq.EnterBilling(ctx, "s1")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	require.Contains(t, typed.Details().(map[string]any), "invalid")
}

func TestQuoteReusedUntilDestinationChanges(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	ctx := context.Background()
	_, _ = f.seq.SubmitContact(ctx, "s1", contactForm)
	_, _ = f.seq.SubmitShipping(ctx, "s1", shippingForm)

	for i := 0; i < 3; i++ {
		_, err := f.seq.EnterBilling(ctx, "s1")
		require.NoError(t, err)
		_, err = f.seq.SetCurrent(ctx, "s1", int(enums.CheckoutStepShipping))
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, f.backend.calls.Load())

	_, err := f.seq.SubmitShipping(ctx, "s1", shippingForm)
	require.NoError(t, err)
	_, err = f.seq.EnterBilling(ctx, "s1")
	require.NoError(t, err)
	require.EqualValues(t, 1, f.backend.calls.Load())

	express := shippingForm
	express.ShippingMethod = "express"
	d, err := f.seq.SubmitShipping(ctx, "s1", express)
	require.NoError(t, err)
	require.Nil(t, d.Review)
	_, err = f.seq.EnterBilling(ctx, "s1")
	require.NoError(t, err)
	require.EqualValues(t, 2, f.backend.calls.Load())
}

func TestLeavingPaymentTearsDownTasks(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	ctx := context.Background()
	_, _ = f.seq.SubmitContact(ctx, "s1", contactForm)
	_, _ = f.seq.SubmitShipping(ctx, "s1", shippingForm)
	_, err := f.seq.ConfirmReview(ctx, "s1")
	require.NoError(t, err)

	d, err := f.seq.SetCurrent(ctx, "s1", int(enums.CheckoutStepBilling))
	require.NoError(t, err)
	require.Equal(t, enums.CheckoutStepBilling, d.Current)
	require.Equal(t, 1, f.payments.teardowns)
}

func TestPaymentUnreachableWithEmptyCart(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	ctx := context.Background()
	_, _ = f.seq.SubmitContact(ctx, "s1", contactForm)
	_, _ = f.seq.SubmitShipping(ctx, "s1", shippingForm)
	_, _ = f.seq.EnterBilling(ctx, "s1")
	require.NoError(t, f.carts.Clear(ctx, "s1"))

	_, err := f.seq.ConfirmReview(ctx, "s1")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	require.Equal(t, StoreRedirect, typed.Details().(map[string]any)["redirect"])
}

func TestCancelDiscardsDrafts(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	ctx := context.Background()
	_, _ = f.seq.SubmitContact(ctx, "s1", contactForm)

	require.NoError(t, f.seq.Cancel(ctx, "s1"))
	require.Equal(t, 1, f.payments.resets)

	d, err := f.seq.State(ctx, "s1")
	require.NoError(t, err)
	require.Nil(t, d.Contact)
	require.Equal(t, enums.CheckoutStepContact, d.Current)
}
