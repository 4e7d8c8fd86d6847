package shipping

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PixelDroid19/puntokoreano-app/internal/cart"
	"github.com/PixelDroid19/puntokoreano-app/internal/notify"
	"github.com/PixelDroid19/puntokoreano-app/pkg/backend"
	pkgerrors "github.com/PixelDroid19/puntokoreano-app/pkg/errors"
	"github.com/PixelDroid19/puntokoreano-app/pkg/kv"
	"github.com/PixelDroid19/puntokoreano-app/pkg/logger"
	"github.com/PixelDroid19/puntokoreano-app/pkg/types"
	"github.com/shopspring/decimal"
)

type stubBackend struct {
	calls atomic.Int32
	delay time.Duration
	err   error
	cost  backend.ShippingCost
}

func (s *stubBackend) CalculateShippingCost(_ context.Context, _ backend.ShippingCostRequest) (*backend.ShippingCost, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	out := s.cost
	return &out, nil
}

func (s *stubBackend) ShippingConfig(context.Context) (*backend.ShippingConfig, error) {
	return &backend.ShippingConfig{Methods: []backend.ShippingMethodOption{{ID: "standard"}}}, nil
}

type recordingSink struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (r *recordingSink) Notify(_ context.Context, _ string, n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
}

var (
	bogota   = types.ShippingAddress{Street: "Calle 1 # 2-3", City: "Bogota", State: "Cundinamarca", Country: "CO"}
	medellin = types.ShippingAddress{Street: "Carrera 7", City: "Medellin", State: "Antioquia", Country: "CO"}
	lines    = []cart.Line{{ProductID: "p1", UnitPrice: decimal.NewFromInt(50000), Quantity: 2, StockCeiling: 5}}
)

func newTestResolver(t *testing.T, stub *stubBackend) (*Resolver, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	r, err := NewResolver(ResolverParams{
		Store:    kv.NewMemoryStore("sf"),
		Backend:  stub,
		Notify:   sink,
		Logger:   logger.Nop(),
		Fallback: Fallback{Cost: decimal.NewFromInt(15000), MinDays: 3, MaxDays: 5},
	})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	return r, sink
}

func TestQuoteIsFetchedOncePerTuple(t *testing.T) {
	stub := &stubBackend{cost: backend.ShippingCost{Cost: decimal.NewFromInt(12000), EstimatedDays: backend.DayRange{Min: 2, Max: 4}}}
	r, _ := newTestResolver(t, stub)
	ctx := context.Background()

	first, err := r.Quote(ctx, "s1", lines, bogota, "standard")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if first.Cached || first.Fallback || !first.Quote.Cost.Equal(decimal.NewFromInt(12000)) {
		t.Fatalf("unexpected first result %+v", first)
	}

	again, err := r.Quote(ctx, "s1", lines, types.ShippingAddress{City: " bogota ", State: "CUNDINAMARCA", Country: "co"}, "Standard")
	if err != nil {
		t.Fatalf("quote again: %v", err)
	}
	if !again.Cached || stub.calls.Load() != 1 {
		t.Fatalf("expected cached quote, calls=%d result=%+v", stub.calls.Load(), again)
	}

	if _, err := r.Quote(ctx, "s1", lines, medellin, "standard"); err != nil {
		t.Fatalf("quote new destination: %v", err)
	}
	if _, err := r.Quote(ctx, "s1", lines, medellin, "express"); err != nil {
		t.Fatalf("quote new method: %v", err)
	}
	if stub.calls.Load() != 3 {
		t.Fatalf("expected one call per tuple, got %d", stub.calls.Load())
	}
}

func TestConcurrentQuotesCollapse(t *testing.T) {
	stub := &stubBackend{delay: 20 * time.Millisecond, cost: backend.ShippingCost{Cost: decimal.NewFromInt(9000)}}
	r, _ := newTestResolver(t, stub)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Quote(context.Background(), "s1", lines, bogota, "standard"); err != nil {
				t.Errorf("quote: %v", err)
			}
		}()
	}
	wg.Wait()
	if stub.calls.Load() != 1 {
		t.Fatalf("expected a single backend call, got %d", stub.calls.Load())
	}
}

func TestFallbackIsCachedAndWarns(t *testing.T) {
	stub := &stubBackend{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("dial tcp: refused"), "backend unavailable")}
	r, sink := newTestResolver(t, stub)
	ctx := context.Background()

	res, err := r.Quote(ctx, "s1", lines, bogota, "standard")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !res.Fallback || !res.Quote.Cost.Equal(decimal.NewFromInt(15000)) || res.Quote.FreeShipping {
		t.Fatalf("unexpected fallback %+v", res)
	}
	if res.Quote.EstimatedDays != (backend.DayRange{Min: 3, Max: 5}) {
		t.Fatalf("unexpected fallback days %+v", res.Quote.EstimatedDays)
	}
	if len(sink.got) != 1 || sink.got[0].Code != "shipping_fallback" {
		t.Fatalf("expected fallback warning, got %+v", sink.got)
	}

	cached, err := r.Cached(ctx, "s1")
	if err != nil || cached == nil || !cached.Cost.Equal(res.Quote.Cost) || !cached.Fallback {
		t.Fatalf("expected cached fallback, got %+v %v", cached, err)
	}
	if _, err := r.Quote(ctx, "s1", lines, bogota, "standard"); err != nil {
		t.Fatalf("quote again: %v", err)
	}
	if stub.calls.Load() != 1 {
		t.Fatalf("fallback should be reused, got %d calls", stub.calls.Load())
	}
}

func TestUnauthorizedIsNotMaskedByFallback(t *testing.T) {
	stub := &stubBackend{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "session expired")}
	r, _ := newTestResolver(t, stub)

	_, err := r.Quote(context.Background(), "s1", lines, bogota, "standard")
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	stub := &stubBackend{cost: backend.ShippingCost{Cost: decimal.NewFromInt(9000)}}
	r, _ := newTestResolver(t, stub)
	ctx := context.Background()

	_, _ = r.Quote(ctx, "s1", lines, bogota, "standard")
	if err := r.Invalidate(ctx, "s1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _ = r.Quote(ctx, "s1", lines, bogota, "standard")
	if stub.calls.Load() != 2 {
		t.Fatalf("expected refetch after invalidate, got %d", stub.calls.Load())
	}
}

func TestQuoteRequiresLines(t *testing.T) {
	r, _ := newTestResolver(t, &stubBackend{})
	if _, err := r.Quote(context.Background(), "s1", nil, bogota, "standard"); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestChargedHonoursFreeShipping(t *testing.T) {
	q := Quote{Cost: decimal.NewFromInt(15000), FreeShipping: true}
	if !q.Charged().IsZero() {
		t.Fatalf("expected zero charge, got %s", q.Charged())
	}
}
