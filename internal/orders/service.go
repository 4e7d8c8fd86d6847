// Package orders submits the checkout as an order and tracks its outcome.
package orders

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PixelDroid19/puntokoreano-app/internal/cart"
	"github.com/PixelDroid19/puntokoreano-app/internal/checkout"
	"github.com/PixelDroid19/puntokoreano-app/internal/notify"
	"github.com/PixelDroid19/puntokoreano-app/internal/payment"
	"github.com/PixelDroid19/puntokoreano-app/internal/shipping"
	"github.com/PixelDroid19/puntokoreano-app/pkg/backend"
	"github.com/PixelDroid19/puntokoreano-app/pkg/enums"
	pkgerrors "github.com/PixelDroid19/puntokoreano-app/pkg/errors"
	"github.com/PixelDroid19/puntokoreano-app/pkg/kv"
	"github.com/PixelDroid19/puntokoreano-app/pkg/logger"
	"github.com/PixelDroid19/puntokoreano-app/pkg/metrics"
	"github.com/PixelDroid19/puntokoreano-app/pkg/validation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConfirmationPath is the order-confirmation view.
const ConfirmationPath = "/checkout/result"

type Carts interface {
	Get(ctx context.Context, sessionID string) (*cart.Ledger, error)
	Clear(ctx context.Context, sessionID string) error
}

type Drafts interface {
	State(ctx context.Context, sessionID string) (*checkout.Draft, error)
	Complete(ctx context.Context, sessionID string) error
}

type Quotes interface {
	Cached(ctx context.Context, sessionID string) (*shipping.Quote, error)
}

type Payments interface {
	Current(ctx context.Context, sessionID string) (*payment.Selection, error)
}

type Backend interface {
	CreateOrder(ctx context.Context, req backend.CreateOrderRequest) (*backend.CreateOrderResponse, error)
	GetOrder(ctx context.Context, id string) (*backend.Order, error)
}

// Outcome is the result of a successful submission.
type Outcome struct {
	Order            backend.Order         `json:"order"`
	Payment          backend.PaymentResult `json:"payment"`
	RedirectURL      string                `json:"redirectUrl,omitempty"`
	ConfirmationPath string                `json:"confirmationPath"`
	ExpectedTotal    decimal.Decimal       `json:"expectedTotal"`
}

// Next is where the UI navigates after submission.
func (o Outcome) Next() string {
	if o.RedirectURL != "" {
		return o.RedirectURL
	}
	return o.ConfirmationPath
}

// LastOrder is the local record of the latest submission.
type LastOrder struct {
	ID          string                 `json:"id,omitempty"`
	OrderNumber string                 `json:"orderNumber,omitempty"`
	Status      enums.SubmissionStatus `json:"status"`
	Error       string                 `json:"error,omitempty"`
	UpdatedAt   time.Time              `json:"updatedAt"`
}

// Service is the order submission surface.
type Service interface {
	Submit(ctx context.Context, sessionID, idempotencyKey string) (*Outcome, error)
	Order(ctx context.Context, id string) (*backend.Order, error)
	LastOrder(ctx context.Context, sessionID string) (*LastOrder, error)
}

type ServiceParams struct {
	Store    kv.Store
	Carts    Carts
	Drafts   Drafts
	Quotes   Quotes
	Payments Payments
	Backend  Backend
	Notify   notify.Sink
	Metrics  *metrics.CheckoutMetrics
	Logger   *logger.Logger
	TaxRate  decimal.Decimal
	LockTTL  time.Duration
}

type service struct {
	store    kv.Store
	carts    Carts
	drafts   Drafts
	quotes   Quotes
	payments Payments
	backend  Backend
	notify   notify.Sink
	metrics  *metrics.CheckoutMetrics
	logg     *logger.Logger
	taxRate  decimal.Decimal
	lockTTL  time.Duration
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Store == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "kv store is required")
	case params.Carts == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart service is required")
	case params.Drafts == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout sequencer is required")
	case params.Quotes == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping resolver is required")
	case params.Payments == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment adapter is required")
	case params.Backend == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order backend is required")
	case params.Notify == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification sink is required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	lockTTL := params.LockTTL
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}
	return &service{
		store:    params.Store,
		carts:    params.Carts,
		drafts:   params.Drafts,
		quotes:   params.Quotes,
		payments: params.Payments,
		backend:  params.Backend,
		notify:   params.Notify,
		metrics:  params.Metrics,
		logg:     params.Logger,
		taxRate:  params.TaxRate,
		lockTTL:  lockTTL,
		now:      time.Now,
	}, nil
}

type submission struct {
	ledger   *cart.Ledger
	contact  checkout.ContactDraft
	shipping checkout.ShippingDraft
	quote    shipping.Quote
	intent   *payment.Intent
	total    decimal.Decimal
}

// Submit sends the order once every precondition holds. Precondition
// failures never reach the backend. Backend 401s are left to the HTTP
// layer's session reset.
func (s *service) Submit(ctx context.Context, sessionID, idempotencyKey string) (*Outcome, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	ctx = s.logg.WithSessionID(ctx, sessionID)

	sub, err := s.prepare(ctx, sessionID)
	if err != nil {
		s.metrics.IncOrderSubmission("blocked")
		s.notify.Notify(ctx, sessionID, notify.Error("checkout_incomplete", publicMessage(err)))
		return nil, err
	}

	lockKey := kv.SessionKey(s.store, sessionID, kv.SubmitLock)
	acquired, err := s.store.SetNX(ctx, lockKey, []byte(s.now().UTC().Format(time.RFC3339Nano)), s.lockTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "acquire submit lock")
	}
	if !acquired {
		s.metrics.IncOrderSubmission("blocked")
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order submission already in progress")
	}
	defer func() {
		if err := s.store.Del(context.WithoutCancel(ctx), lockKey); err != nil {
			s.logg.Error(ctx, "release submit lock", err)
		}
	}()

	if strings.TrimSpace(idempotencyKey) == "" {
		idempotencyKey = uuid.NewString()
	}
	ctx = s.logg.WithField(ctx, "idempotency_key", idempotencyKey)
	s.record(ctx, sessionID, LastOrder{Status: enums.SubmissionStatusSubmitting})

	expected := sub.total
	req := backend.CreateOrderRequest{
		Items:           shipping.LineItems(sub.ledger.Lines),
		Customer:        customer(sub.contact),
		ShippingAddress: sub.shipping.Address(),
		ShippingMethod:  sub.shipping.ShippingMethod,
		ShippingCost:    sub.quote.Charged(),
		ExpectedTotal:   expected,
		Payment:         sub.intent.OrderPayload(),
	}

	resp, err := s.backend.CreateOrder(backend.WithIdempotencyKey(ctx, idempotencyKey), req)
	if err != nil {
		return nil, s.fail(ctx, sessionID, err)
	}

	order := resp.Order
	ctx = s.logg.WithOrderID(ctx, order.ID)
	if order.Total.IsPositive() && !order.Total.Equal(expected) {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"expected_total": expected.String(),
			"server_total":   order.Total.String(),
		}), "order total differs from review")
		s.notify.Notify(ctx, sessionID, notify.Warning("total_adjusted",
			"The final total was updated by the store to "+order.Total.StringFixed(0)+"."))
	}

	if err := s.carts.Clear(ctx, sessionID); err != nil {
		s.logg.Error(ctx, "clear cart after order", err)
	}
	if err := s.drafts.Complete(ctx, sessionID); err != nil {
		s.logg.Error(ctx, "discard checkout drafts after order", err)
	}
	s.record(ctx, sessionID, LastOrder{ID: order.ID, OrderNumber: order.OrderNumber, Status: enums.SubmissionStatusCreated})
	s.metrics.IncOrderSubmission("created")
	s.logg.Info(ctx, "order created")
	s.notify.Notify(ctx, sessionID, notify.Success("order_created", "Order "+order.OrderNumber+" was created."))

	return &Outcome{
		Order:            order,
		Payment:          resp.Payment,
		RedirectURL:      resp.Payment.RedirectTarget(),
		ConfirmationPath: ConfirmationPath + "?order=" + url.QueryEscape(order.OrderNumber),
		ExpectedTotal:    expected,
	}, nil
}

func (s *service) prepare(ctx context.Context, sessionID string) (*submission, error) {
	ledger, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if ledger.IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cart is empty").
			WithDetails(map[string]any{"redirect": checkout.StoreRedirect})
	}
	draft, err := s.drafts.State(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if draft.Contact == nil || validation.Struct(draft.Contact) != nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "contact information is missing").
			WithDetails(map[string]any{"step": enums.CheckoutStepContact.String()})
	}
	if draft.Shipping == nil || validation.Struct(draft.Shipping) != nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "shipping information is missing").
			WithDetails(map[string]any{"step": enums.CheckoutStepShipping.String()})
	}
	if draft.Current != enums.CheckoutStepPayment {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout is not at the payment step").
			WithDetails(map[string]any{"step": draft.Current.String(), "required": enums.CheckoutStepPayment.String()})
	}
	quote, err := s.quotes.Cached(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if quote == nil || quote.Fingerprint != draft.Shipping.Fingerprint() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "shipping cost has not been calculated").
			WithDetails(map[string]any{"step": enums.CheckoutStepBilling.String()})
	}
	total := checkout.NewReview(ledger, *quote, s.taxRate).Total
	if draft.Review == nil || !draft.Review.Total.Equal(total) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "the order total changed since it was reviewed").
			WithDetails(map[string]any{"step": enums.CheckoutStepBilling.String()})
	}
	sel, err := s.payments.Current(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sel == nil || !sel.Valid || sel.Pending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment method is not valid").
			WithDetails(map[string]any{"step": enums.CheckoutStepPayment.String()})
	}
	if err := sel.Intent.Check(); err != nil {
		return nil, err
	}
	return &submission{
		ledger:   ledger,
		contact:  *draft.Contact,
		shipping: *draft.Shipping,
		quote:    *quote,
		intent:   sel.Intent,
		total:    total,
	}, nil
}

// fail marks the submission rejected. The cart is kept so the shopper can
// retry.
func (s *service) fail(ctx context.Context, sessionID string, err error) error {
	msg := publicMessage(err)
	s.metrics.IncOrderSubmission("rejected")
	s.logg.Error(ctx, "order submission failed", err)
	s.record(ctx, sessionID, LastOrder{Status: enums.SubmissionStatusFailed, Error: msg})
	if pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		return err
	}
	s.notify.Notify(ctx, sessionID, notify.Error("order_failed", msg))
	return err
}

func (s *service) record(ctx context.Context, sessionID string, last LastOrder) {
	last.UpdatedAt = s.now().UTC()
	if err := kv.Save(ctx, s.store, kv.SessionKey(s.store, sessionID, kv.LastOrder), last, 0); err != nil {
		s.logg.Error(ctx, "record last order", err)
	}
}

func (s *service) Order(ctx context.Context, id string) (*backend.Order, error) {
	return s.backend.GetOrder(ctx, id)
}

// LastOrder returns the latest local submission record, or nil.
func (s *service) LastOrder(ctx context.Context, sessionID string) (*LastOrder, error) {
	var last LastOrder
	found, err := kv.Load(ctx, s.store, kv.SessionKey(s.store, sessionID, kv.LastOrder), &last)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load last order")
	}
	if !found {
		return nil, nil
	}
	return &last, nil
}

func customer(c checkout.ContactDraft) backend.Customer {
	return backend.Customer{
		Name:     c.Name,
		LastName: c.LastName,
		Email:    c.Email,
		Phone:    c.Phone,
		UserID:   c.UserID,
	}
}

// publicMessage is the backend message when present, otherwise the code's
// generic message.
func publicMessage(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return pkgerrors.MetadataFor(pkgerrors.CodeInternal).PublicMessage
	}
	if msg := strings.TrimSpace(typed.Message()); msg != "" {
		return msg
	}
	return pkgerrors.MetadataFor(typed.Code()).PublicMessage
}
