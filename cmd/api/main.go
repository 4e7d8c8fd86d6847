package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"

	"github.com/PixelDroid19/puntokoreano-app/api/routes"
	"github.com/PixelDroid19/puntokoreano-app/internal/cart"
	"github.com/PixelDroid19/puntokoreano-app/internal/checkout"
	"github.com/PixelDroid19/puntokoreano-app/internal/notify"
	"github.com/PixelDroid19/puntokoreano-app/internal/orders"
	"github.com/PixelDroid19/puntokoreano-app/internal/payment"
	"github.com/PixelDroid19/puntokoreano-app/internal/session"
	"github.com/PixelDroid19/puntokoreano-app/internal/shipping"
	"github.com/PixelDroid19/puntokoreano-app/internal/wishlist"
	"github.com/PixelDroid19/puntokoreano-app/pkg/backend"
	"github.com/PixelDroid19/puntokoreano-app/pkg/config"
	"github.com/PixelDroid19/puntokoreano-app/pkg/db"
	"github.com/PixelDroid19/puntokoreano-app/pkg/instance"
	"github.com/PixelDroid19/puntokoreano-app/pkg/kv"
	"github.com/PixelDroid19/puntokoreano-app/pkg/logger"
	"github.com/PixelDroid19/puntokoreano-app/pkg/metrics"
	"github.com/PixelDroid19/puntokoreano-app/pkg/migrate"
	"github.com/PixelDroid19/puntokoreano-app/pkg/redis"
)

const shutdownTimeout = 20 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap store", err)
		os.Exit(1)
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	checkoutMetrics := metrics.NewCheckoutMetrics(reg)

	client, err := backend.NewClient(
		cfg.Backend.BaseURL(cfg.App),
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithMetrics(checkoutMetrics),
	)
	if err != nil {
		logg.Error(ctx, "failed to create backend client", err)
		os.Exit(1)
	}

	deps, adapter, err := buildServices(cfg, logg, store, client, checkoutMetrics)
	if err != nil {
		logg.Error(ctx, "failed to wire services", err)
		os.Exit(1)
	}
	deps.Gatherer = reg

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	runCtx := logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"addr":         addr,
		"instance":     instance.GetID(),
		"store_driver": cfg.Store.Driver,
		"backend_url":  cfg.Backend.BaseURL(cfg.App),
	})
	logg.Info(runCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(runCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
	}

	logg.Info(runCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(runCtx, "http server shutdown", err)
	}
	if err := adapter.Shutdown(shutdownCtx); err != nil {
		logg.Error(runCtx, "payment tasks did not stop in time", err)
	}
}

func openStore(ctx context.Context, cfg *config.Config, logg *logger.Logger) (kv.Store, func(), error) {
	switch {
	case cfg.Store.Driver == config.StoreDriverRedis:
		client, err := redis.New(ctx, cfg.Redis, cfg.Store.Namespace, logg)
		if err != nil {
			return nil, nil, err
		}
		store, err := kv.NewRedisStore(client)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := client.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}, nil

	case cfg.Store.UsesSQL():
		client, err := db.New(ctx, cfg.DB, logg)
		if err != nil {
			return nil, nil, err
		}
		closeDB := func() {
			if err := client.Close(); err != nil {
				logg.Error(context.Background(), "error closing database", err)
			}
		}
		if err := migrate.MaybeRunDev(ctx, cfg, logg, client); err != nil {
			closeDB()
			return nil, nil, err
		}
		store, err := kv.NewSQLStore(client, cfg.Store.Namespace)
		if err != nil {
			closeDB()
			return nil, nil, err
		}
		return store, closeDB, nil

	default:
		logg.Warn(ctx, "using in-memory store, session state is lost on restart")
		return kv.NewMemoryStore(cfg.Store.Namespace), func() {}, nil
	}
}

func buildServices(cfg *config.Config, logg *logger.Logger, store kv.Store, client *backend.Client, m *metrics.CheckoutMetrics) (routes.Deps, *payment.Adapter, error) {
	notes, err := notify.NewService(store, logg)
	if err != nil {
		return routes.Deps{}, nil, err
	}

	sessions, err := session.NewService(session.ServiceParams{Store: store, Notify: notes, Logger: logg})
	if err != nil {
		return routes.Deps{}, nil, err
	}

	repo, err := cart.NewRepository(store)
	if err != nil {
		return routes.Deps{}, nil, err
	}
	carts, err := cart.NewService(cart.ServiceParams{
		Repo: repo,
		Policy: cart.ShippingPolicy{
			FlatEstimate:  decimal.NewFromInt(cfg.Checkout.FlatShippingEstimate),
			FreeThreshold: decimal.NewFromInt(cfg.Checkout.FreeShippingThreshold),
		},
	})
	if err != nil {
		return routes.Deps{}, nil, err
	}

	wishes, err := wishlist.NewService(wishlist.ServiceParams{Store: store, Cart: carts})
	if err != nil {
		return routes.Deps{}, nil, err
	}

	resolver, err := shipping.NewResolver(shipping.ResolverParams{
		Store:   store,
		Backend: client,
		Notify:  notes,
		Metrics: m,
		Logger:  logg,
		Fallback: shipping.Fallback{
			Cost:    decimal.NewFromInt(cfg.Checkout.FallbackShippingCost),
			MinDays: cfg.Checkout.FallbackMinDays,
			MaxDays: cfg.Checkout.FallbackMaxDays,
		},
		TTL: cfg.Store.DraftTTL,
	})
	if err != nil {
		return routes.Deps{}, nil, err
	}

	adapter, err := payment.NewAdapter(payment.AdapterParams{
		Store:             store,
		Backend:           client,
		Notify:            notes,
		Session:           sessions,
		Metrics:           m,
		Logger:            logg,
		CardDebounce:      cfg.Payment.CardDebounce,
		NequiPollInterval: cfg.Payment.NequiPollInterval,
		NequiMaxAttempts:  cfg.Payment.NequiMaxAttempts,
		TTL:               cfg.Store.DraftTTL,
	})
	if err != nil {
		return routes.Deps{}, nil, err
	}

	sequencer, err := checkout.NewSequencer(checkout.SequencerParams{
		Store:    store,
		Carts:    carts,
		Auth:     sessions,
		Quotes:   resolver,
		Payments: adapter,
		Metrics:  m,
		Logger:   logg,
		TaxRate:  cfg.Checkout.Tax(),
		DraftTTL: cfg.Store.DraftTTL,
	})
	if err != nil {
		return routes.Deps{}, nil, err
	}

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Store:    store,
		Carts:    carts,
		Drafts:   sequencer,
		Quotes:   resolver,
		Payments: adapter,
		Backend:  client,
		Notify:   notes,
		Metrics:  m,
		Logger:   logg,
		TaxRate:  cfg.Checkout.Tax(),
		LockTTL:  cfg.Checkout.SubmitLockTTL,
	})
	if err != nil {
		return routes.Deps{}, nil, err
	}

	return routes.Deps{
		Store:         store,
		Session:       sessions,
		Notifications: notes,
		Cart:          carts,
		Wishlist:      wishes,
		Shipping:      resolver,
		Checkout:      sequencer,
		Payments:      adapter,
		Catalog:       adapter.Catalog(),
		Orders:        orderSvc,
	}, adapter, nil
}
