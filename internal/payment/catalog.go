package payment

import (
	"context"
	"sync"

	"github.com/PixelDroid19/puntokoreano-app/internal/notify"
	"github.com/PixelDroid19/puntokoreano-app/pkg/backend"
	"github.com/PixelDroid19/puntokoreano-app/pkg/enums"
	"github.com/PixelDroid19/puntokoreano-app/pkg/logger"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// CatalogView is what the payment step shows before a method is chosen.
type CatalogView struct {
	PublicKey string                      `json:"publicKey"`
	Methods   []backend.PaymentMethodInfo `json:"methods"`
	Banks     []backend.Bank              `json:"banks"`
}

// Catalog lists enabled methods and keeps the PSE bank list once it loads.
type Catalog struct {
	backend Backend
	notify  notify.Sink
	logg    *logger.Logger

	group  singleflight.Group
	mu     sync.RWMutex
	banks  []backend.Bank
	loaded bool
}

func NewCatalog(b Backend, sink notify.Sink, logg *logger.Logger) *Catalog {
	return &Catalog{backend: b, notify: sink, logg: logg}
}

// View fetches payment config and methods concurrently. A failed methods
// call degrades to every method with an empty bank list and a warning.
func (c *Catalog) View(ctx context.Context, sessionID string) (*CatalogView, error) {
	var (
		cfg     *backend.PaymentConfig
		methods *backend.PaymentMethods
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := c.backend.PaymentConfig(gctx)
		if err != nil {
			return err
		}
		cfg = out
		return nil
	})
	g.Go(func() error {
		out, err := c.loadMethods(gctx)
		if err != nil {
			c.logg.Error(ctx, "payment methods unavailable", err)
			return nil
		}
		methods = out
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	view := &CatalogView{PublicKey: cfg.PublicKey, Banks: []backend.Bank{}}
	if methods == nil {
		c.notify.Notify(ctx, sessionID, notify.Warning("banks_unavailable", "The bank list could not be loaded. Try again in a moment."))
		for _, t := range enums.PaymentMethodTypes() {
			view.Methods = append(view.Methods, backend.PaymentMethodInfo{Type: t.String(), Name: t.String(), Enabled: true})
		}
		return view, nil
	}
	view.Methods = methods.Methods
	if banks, ok := c.cached(); ok {
		view.Banks = banks
	} else if methods.Banks != nil {
		view.Banks = methods.Banks
	}
	return view, nil
}

// Banks returns the cached bank list, loading it on first use. It returns an
// empty list while the backend is unavailable.
func (c *Catalog) Banks(ctx context.Context) []backend.Bank {
	if banks, ok := c.cached(); ok {
		return banks
	}
	methods, err := c.loadMethods(ctx)
	if err != nil {
		c.logg.Error(ctx, "pse banks unavailable", err)
		return []backend.Bank{}
	}
	if methods.Banks == nil {
		return []backend.Bank{}
	}
	return methods.Banks
}

func (c *Catalog) cached() ([]backend.Bank, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.banks, c.loaded
}

func (c *Catalog) loadMethods(ctx context.Context) (*backend.PaymentMethods, error) {
	v, err, _ := c.group.Do("methods", func() (any, error) {
		out, err := c.backend.PaymentMethods(ctx)
		if err != nil {
			return nil, err
		}
		if len(out.Banks) > 0 {
			c.mu.Lock()
			if !c.loaded {
				c.banks = append([]backend.Bank(nil), out.Banks...)
				c.loaded = true
			}
			c.mu.Unlock()
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*backend.PaymentMethods), nil
}

func hasBank(banks []backend.Bank, code string) bool {
	for _, b := range banks {
		if b.Code == code {
			return true
		}
	}
	return false
}
