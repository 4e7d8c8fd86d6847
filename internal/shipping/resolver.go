// Package shipping resolves the authoritative shipping quote for a checkout
// session and caches it per destination and method.
package shipping

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/PixelDroid19/puntokoreano-app/internal/cart"
	"github.com/PixelDroid19/puntokoreano-app/internal/notify"
	"github.com/PixelDroid19/puntokoreano-app/pkg/backend"
	pkgerrors "github.com/PixelDroid19/puntokoreano-app/pkg/errors"
	"github.com/PixelDroid19/puntokoreano-app/pkg/kv"
	"github.com/PixelDroid19/puntokoreano-app/pkg/logger"
	"github.com/PixelDroid19/puntokoreano-app/pkg/metrics"
	"github.com/PixelDroid19/puntokoreano-app/pkg/types"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"
)

const (
	sourceBackend  = "backend"
	sourceFallback = "fallback"
	sourceCache    = "cache"
)

// Backend is the subset of the REST client used by the resolver.
type Backend interface {
	CalculateShippingCost(ctx context.Context, req backend.ShippingCostRequest) (*backend.ShippingCost, error)
	ShippingConfig(ctx context.Context) (*backend.ShippingConfig, error)
}

// Quote is the shipping cost shown in review and sent with the order.
type Quote struct {
	Cost          decimal.Decimal  `json:"cost"`
	EstimatedDays backend.DayRange `json:"estimatedDays"`
	FreeShipping  bool             `json:"freeShipping"`
	Method        string           `json:"method"`
	Details       json.RawMessage  `json:"details,omitempty"`
	Fallback      bool             `json:"fallback"`
	Fingerprint   string           `json:"fingerprint"`
	QuotedAt      time.Time        `json:"quotedAt"`
}

// Charged is the amount added to the order total.
func (q Quote) Charged() decimal.Decimal {
	if q.FreeShipping {
		return decimal.Zero
	}
	return q.Cost
}

// Result wraps a quote with how it was obtained.
type Result struct {
	Quote    Quote `json:"quote"`
	Fallback bool  `json:"fallback"`
	Cached   bool  `json:"cached"`
}

// Fallback is the fixed estimate used when the backend cannot quote.
type Fallback struct {
	Cost    decimal.Decimal
	MinDays int
	MaxDays int
}

type ResolverParams struct {
	Store    kv.Store
	Backend  Backend
	Notify   notify.Sink
	Metrics  *metrics.CheckoutMetrics
	Logger   *logger.Logger
	Fallback Fallback
	TTL      time.Duration
}

// Resolver issues at most one backend call per (destination, method) tuple
// per session.
type Resolver struct {
	store    kv.Store
	backend  Backend
	notify   notify.Sink
	metrics  *metrics.CheckoutMetrics
	logg     *logger.Logger
	fallback Fallback
	ttl      time.Duration
	group    singleflight.Group
	now      func() time.Time
}

func NewResolver(params ResolverParams) (*Resolver, error) {
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "kv store is required")
	}
	if params.Backend == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping backend is required")
	}
	if params.Notify == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification sink is required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	return &Resolver{
		store:    params.Store,
		backend:  params.Backend,
		notify:   params.Notify,
		metrics:  params.Metrics,
		logg:     params.Logger,
		fallback: params.Fallback,
		ttl:      params.TTL,
		now:      time.Now,
	}, nil
}

// Fingerprint identifies a destination and method pair.
func Fingerprint(dest types.ShippingAddress, method string) string {
	n := dest.Normalized()
	parts := []string{n.City, n.State, n.Country, n.Zip, strings.ToLower(strings.TrimSpace(method))}
	sum := blake2b.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:16])
}

// Quote returns the cached quote for the tuple or asks the backend. Backend
// failures other than authorization yield the fallback estimate, which is
// cached like a real quote.
func (r *Resolver) Quote(ctx context.Context, sessionID string, lines []cart.Line, dest types.ShippingAddress, method string) (*Result, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cart is empty")
	}
	method = strings.TrimSpace(method)
	if method == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping method is required")
	}
	fp := Fingerprint(dest, method)

	if cached, err := r.load(ctx, sessionID); err != nil {
		return nil, err
	} else if cached != nil && cached.Fingerprint == fp {
		r.metrics.IncShippingQuote(sourceCache)
		return &Result{Quote: *cached, Fallback: cached.Fallback, Cached: true}, nil
	}

	v, err, _ := r.group.Do(sessionID+":"+fp, func() (any, error) {
		if cached, err := r.load(ctx, sessionID); err != nil {
			return nil, err
		} else if cached != nil && cached.Fingerprint == fp {
			return &Result{Quote: *cached, Fallback: cached.Fallback, Cached: true}, nil
		}
		return r.fetch(ctx, sessionID, lines, dest, method, fp)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (r *Resolver) fetch(ctx context.Context, sessionID string, lines []cart.Line, dest types.ShippingAddress, method, fp string) (*Result, error) {
	req := backend.ShippingCostRequest{
		ShippingAddress: dest,
		ShippingMethod:  method,
		Items:           LineItems(lines),
	}
	quote := Quote{Method: method, Fingerprint: fp, QuotedAt: r.now().UTC()}
	resp, err := r.backend.CalculateShippingCost(ctx, req)
	switch {
	case err == nil:
		quote.Cost = resp.Cost
		quote.EstimatedDays = resp.EstimatedDays
		quote.FreeShipping = resp.FreeShipping
		quote.Details = resp.Details
		r.metrics.IncShippingQuote(sourceBackend)
	case pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized):
		return nil, err
	default:
		r.logg.Error(r.logg.WithField(ctx, "shipping_method", method), "shipping quote failed, using fallback", err)
		quote.Cost = r.fallback.Cost
		quote.EstimatedDays = backend.DayRange{Min: r.fallback.MinDays, Max: r.fallback.MaxDays}
		quote.Fallback = true
		r.metrics.IncShippingQuote(sourceFallback)
		r.notify.Notify(ctx, sessionID, notify.Warning("shipping_fallback",
			"We could not calculate the exact shipping cost. An estimated cost is shown and checkout can continue."))
	}

	if err := kv.Save(ctx, r.store, kv.SessionKey(r.store, sessionID, kv.ShippingQuote), quote, r.ttl); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save shipping quote")
	}
	return &Result{Quote: quote, Fallback: quote.Fallback}, nil
}

// Cached returns the stored quote, or nil when none was resolved yet.
func (r *Resolver) Cached(ctx context.Context, sessionID string) (*Quote, error) {
	return r.load(ctx, sessionID)
}

// Invalidate drops the stored quote so the next Quote call hits the backend.
func (r *Resolver) Invalidate(ctx context.Context, sessionID string) error {
	if err := r.store.Del(ctx, kv.SessionKey(r.store, sessionID, kv.ShippingQuote)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete shipping quote")
	}
	return nil
}

// Config proxies the static shipping catalog.
func (r *Resolver) Config(ctx context.Context) (*backend.ShippingConfig, error) {
	return r.backend.ShippingConfig(ctx)
}

func (r *Resolver) load(ctx context.Context, sessionID string) (*Quote, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	var q Quote
	found, err := kv.Load(ctx, r.store, kv.SessionKey(r.store, sessionID, kv.ShippingQuote), &q)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load shipping quote")
	}
	if !found {
		return nil, nil
	}
	return &q, nil
}

// LineItems maps cart lines onto the backend item payload.
func LineItems(lines []cart.Line) []backend.LineItem {
	out := make([]backend.LineItem, 0, len(lines))
	for _, l := range lines {
		out = append(out, backend.LineItem{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	return out
}
