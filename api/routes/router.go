package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PixelDroid19/puntokoreano-app/api/controllers"
	"github.com/PixelDroid19/puntokoreano-app/api/middleware"
	"github.com/PixelDroid19/puntokoreano-app/internal/cart"
	"github.com/PixelDroid19/puntokoreano-app/internal/orders"
	"github.com/PixelDroid19/puntokoreano-app/internal/session"
	"github.com/PixelDroid19/puntokoreano-app/internal/wishlist"
	"github.com/PixelDroid19/puntokoreano-app/pkg/config"
	"github.com/PixelDroid19/puntokoreano-app/pkg/kv"
	"github.com/PixelDroid19/puntokoreano-app/pkg/logger"
)

// Deps are the services mounted by the router.
type Deps struct {
	Store         kv.Store
	Gatherer      prometheus.Gatherer
	Session       session.Service
	Notifications controllers.NotificationFeed
	Cart          cart.Service
	Wishlist      wishlist.Service
	Shipping      controllers.ShippingConfigSource
	Checkout      controllers.Checkout
	Payments      controllers.Payments
	Catalog       controllers.PaymentCatalog
	Orders        orders.Service
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.Store, logg))
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	idempotent := middleware.Idempotency(deps.Store, cfg.Checkout.IdempotencyTTL, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(
			middleware.Session(deps.Session, logg),
			middleware.ResetOnUnauthorized(deps.Session, logg),
		)

		r.Route("/session", func(r chi.Router) {
			r.Get("/", controllers.SessionCurrent(deps.Session, logg))
			r.Put("/", controllers.SessionSignIn(deps.Session, logg))
			r.Delete("/", controllers.SessionSignOut(deps.Session, logg))
			r.Put("/terms", controllers.SessionTerms(deps.Session, logg))
		})

		r.Get("/notifications", controllers.NotificationsDrain(deps.Notifications, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartGet(deps.Cart, logg))
			r.Delete("/", controllers.CartClear(deps.Cart, logg))
			r.Post("/items", controllers.CartAddItem(deps.Cart, logg))
			r.Patch("/items/{productId}", controllers.CartUpdateQuantity(deps.Cart, logg))
			r.Delete("/items/{productId}", controllers.CartRemoveItem(deps.Cart, logg))
		})

		r.Route("/wishlist", func(r chi.Router) {
			r.Get("/", controllers.WishlistList(deps.Wishlist, logg))
			r.Post("/items", controllers.WishlistAdd(deps.Wishlist, logg))
			r.Delete("/items/{productId}", controllers.WishlistRemove(deps.Wishlist, logg))
			r.With(idempotent).Post("/items/{productId}/move-to-cart", controllers.WishlistMoveToCart(deps.Wishlist, logg))
		})

		r.Get("/shipping/config", controllers.ShippingConfig(deps.Shipping, logg))

		r.Route("/checkout", func(r chi.Router) {
			r.Get("/", controllers.CheckoutState(deps.Checkout, logg))
			r.Delete("/", controllers.CheckoutCancel(deps.Checkout, logg))
			r.Post("/begin", controllers.CheckoutBegin(deps.Checkout, logg))
			r.Put("/step", controllers.CheckoutSetStep(deps.Checkout, logg))
			r.Put("/contact", controllers.CheckoutContact(deps.Checkout, logg))
			r.Put("/shipping", controllers.CheckoutShipping(deps.Checkout, logg))
			r.Post("/billing", controllers.CheckoutEnterBilling(deps.Checkout, logg))
			r.Post("/review/confirm", controllers.CheckoutConfirmReview(deps.Checkout, logg))

			r.Get("/payment/methods", controllers.PaymentMethods(deps.Catalog, logg))
			r.Get("/payment", controllers.PaymentCurrent(deps.Payments, logg))
			r.Delete("/payment", controllers.PaymentTeardown(deps.Payments, logg))
			r.Put("/payment/{method}", controllers.PaymentUpdate(deps.Payments, deps.Checkout, logg))

			r.With(idempotent).Post("/submit", controllers.CheckoutSubmit(deps.Orders, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/last", controllers.OrdersLast(deps.Orders, logg))
			r.Get("/{orderId}", controllers.OrdersGet(deps.Orders, logg))
		})
	})

	return r
}
