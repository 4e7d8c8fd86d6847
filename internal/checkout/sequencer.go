// Package checkout sequences the contact, shipping, billing and payment
// steps and guards entry to each one.
package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PixelDroid19/puntokoreano-app/internal/cart"
	"github.com/PixelDroid19/puntokoreano-app/internal/session"
	"github.com/PixelDroid19/puntokoreano-app/internal/shipping"
	"github.com/PixelDroid19/puntokoreano-app/pkg/enums"
	pkgerrors "github.com/PixelDroid19/puntokoreano-app/pkg/errors"
	"github.com/PixelDroid19/puntokoreano-app/pkg/keylock"
	"github.com/PixelDroid19/puntokoreano-app/pkg/kv"
	"github.com/PixelDroid19/puntokoreano-app/pkg/logger"
	"github.com/PixelDroid19/puntokoreano-app/pkg/metrics"
	"github.com/PixelDroid19/puntokoreano-app/pkg/types"
	"github.com/PixelDroid19/puntokoreano-app/pkg/validation"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

// StoreRedirect is where the UI sends the shopper when the cart is empty.
const StoreRedirect = "/store"

type Carts interface {
	Get(ctx context.Context, sessionID string) (*cart.Ledger, error)
}

type Auth interface {
	Current(ctx context.Context, sessionID string) (*session.Auth, error)
}

type Quotes interface {
	Quote(ctx context.Context, sessionID string, lines []cart.Line, dest types.ShippingAddress, method string) (*shipping.Result, error)
	Invalidate(ctx context.Context, sessionID string) error
}

// Payments tears down payment validation when the shopper leaves the payment step.
type Payments interface {
	Teardown(ctx context.Context, sessionID string) error
	Reset(ctx context.Context, sessionID string) error
}

type SequencerParams struct {
	Store    kv.Store
	Carts    Carts
	Auth     Auth
	Quotes   Quotes
	Payments Payments
	Metrics  *metrics.CheckoutMetrics
	Logger   *logger.Logger
	TaxRate  decimal.Decimal
	DraftTTL time.Duration
}

// Sequencer owns the checkout draft of every session.
type Sequencer struct {
	store    kv.Store
	carts    Carts
	auth     Auth
	quotes   Quotes
	payments Payments
	metrics  *metrics.CheckoutMetrics
	logg     *logger.Logger
	taxRate  decimal.Decimal
	ttl      time.Duration
	locks    *keylock.Locker
	now      func() time.Time
}

func NewSequencer(params SequencerParams) (*Sequencer, error) {
	switch {
	case params.Store == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "kv store is required")
	case params.Carts == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart service is required")
	case params.Auth == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session service is required")
	case params.Quotes == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping resolver is required")
	case params.Payments == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment adapter is required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	return &Sequencer{
		store:    params.Store,
		carts:    params.Carts,
		auth:     params.Auth,
		quotes:   params.Quotes,
		payments: params.Payments,
		metrics:  params.Metrics,
		logg:     params.Logger,
		taxRate:  params.TaxRate,
		ttl:      params.DraftTTL,
		locks:    keylock.New(),
		now:      time.Now,
	}, nil
}

// State returns the draft, starting a new one at Contact when none exists.
func (s *Sequencer) State(ctx context.Context, sessionID string) (*Draft, error) {
	return s.load(ctx, sessionID)
}

// Begin starts or resumes checkout. A signed-in shopper gets the contact step
// filled from the session and lands on Shipping.
func (s *Sequencer) Begin(ctx context.Context, sessionID string) (*Draft, error) {
	return s.mutate(ctx, sessionID, func(d *Draft, ledger *cart.Ledger) error {
		if err := requireItems(ledger); err != nil {
			return err
		}
		auth, err := s.auth.Current(ctx, sessionID)
		if err != nil {
			return err
		}
		if auth == nil || d.Current != enums.CheckoutStepContact {
			return nil
		}
		contact := contactFromAuth(auth)
		if d.Contact != nil && d.Contact.UserID != nil && *d.Contact.UserID == auth.User.ID {
			contact = *d.Contact
		}
		if err := validation.Struct(contact); err != nil {
			d.Contact = &contact
			return nil
		}
		d.Contact = &contact
		s.moveTo(d, enums.CheckoutStepShipping)
		return nil
	})
}

// SubmitContact stores the contact form and advances to Shipping.
func (s *Sequencer) SubmitContact(ctx context.Context, sessionID string, form ContactDraft) (*Draft, error) {
	return s.mutateStep(ctx, sessionID, enums.CheckoutStepContact, func(d *Draft, ledger *cart.Ledger) error {
		if err := s.guard(d, ledger, enums.CheckoutStepContact); err != nil {
			return err
		}
		contact := form.normalized()
		contact.IsAuthenticated = false
		contact.UserID = nil
		auth, err := s.auth.Current(ctx, sessionID)
		if err != nil {
			return err
		}
		if auth != nil {
			contact.IsAuthenticated = true
			id := auth.User.ID
			contact.UserID = &id
		}
		if err := validation.Struct(contact); err != nil {
			return err
		}
		d.Contact = &contact
		s.moveTo(d, enums.CheckoutStepShipping)
		return nil
	})
}

// SubmitShipping stores the shipping form and advances to Billing. A new
// destination or method drops the previous quote.
func (s *Sequencer) SubmitShipping(ctx context.Context, sessionID string, form ShippingDraft) (*Draft, error) {
	return s.mutateStep(ctx, sessionID, enums.CheckoutStepShipping, func(d *Draft, ledger *cart.Ledger) error {
		if err := s.guard(d, ledger, enums.CheckoutStepShipping); err != nil {
			return err
		}
		next := form.normalized()
		if err := validation.Struct(next); err != nil {
			return err
		}
		if d.Shipping == nil || d.Shipping.Fingerprint() != next.Fingerprint() {
			if err := s.quotes.Invalidate(ctx, sessionID); err != nil {
				return err
			}
			d.Review = nil
		}
		d.Shipping = &next
		s.moveTo(d, enums.CheckoutStepBilling)
		return nil
	})
}

// EnterBilling resolves the shipping quote once per destination and method
// and computes the review totals.
func (s *Sequencer) EnterBilling(ctx context.Context, sessionID string) (*Draft, error) {
	return s.mutateStep(ctx, sessionID, enums.CheckoutStepBilling, func(d *Draft, ledger *cart.Ledger) error {
		if err := s.enter(ctx, sessionID, d, ledger, enums.CheckoutStepBilling); err != nil {
			return err
		}
		return nil
	})
}

// ConfirmReview moves from Billing to Payment.
func (s *Sequencer) ConfirmReview(ctx context.Context, sessionID string) (*Draft, error) {
	return s.mutateStep(ctx, sessionID, enums.CheckoutStepBilling, func(d *Draft, ledger *cart.Ledger) error {
		return s.enter(ctx, sessionID, d, ledger, enums.CheckoutStepPayment)
	})
}

// SetCurrent navigates to step n. Going back is always allowed; going forward
// re-validates every earlier draft.
func (s *Sequencer) SetCurrent(ctx context.Context, sessionID string, n int) (*Draft, error) {
	step, err := enums.ParseCheckoutStep(n)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid checkout step").
			WithDetails(map[string]any{"step": n})
	}
	return s.mutate(ctx, sessionID, func(d *Draft, ledger *cart.Ledger) error {
		if step <= d.Current {
			if err := requireItems(ledger); err != nil {
				return err
			}
			return s.leave(ctx, sessionID, d, step)
		}
		return s.enter(ctx, sessionID, d, ledger, step)
	})
}

// RequireStep returns the draft when step is the current one.
func (s *Sequencer) RequireStep(ctx context.Context, sessionID string, step enums.CheckoutStep) (*Draft, error) {
	d, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if d.Current != step {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("checkout is not at the %s step", step)).
			WithDetails(map[string]any{"current": d.Current, "required": step})
	}
	return d, nil
}

// Cancel discards every draft of the session.
func (s *Sequencer) Cancel(ctx context.Context, sessionID string) error {
	unlock := s.locks.Lock(sessionID)
	defer unlock()
	return s.discard(ctx, sessionID)
}

// Complete discards the drafts after a successful order.
func (s *Sequencer) Complete(ctx context.Context, sessionID string) error {
	unlock := s.locks.Lock(sessionID)
	defer unlock()
	return s.discard(ctx, sessionID)
}

func (s *Sequencer) discard(ctx context.Context, sessionID string) error {
	err := multierr.Combine(
		s.payments.Reset(ctx, sessionID),
		s.quotes.Invalidate(ctx, sessionID),
		s.store.Del(ctx, kv.SessionKey(s.store, sessionID, kv.Checkout)),
	)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "discard checkout drafts")
	}
	return nil
}

// enter moves forward to step, resolving the quote when Billing is reached.
func (s *Sequencer) enter(ctx context.Context, sessionID string, d *Draft, ledger *cart.Ledger, step enums.CheckoutStep) error {
	if err := s.guard(d, ledger, min(step, enums.CheckoutStepBilling)); err != nil {
		return err
	}
	if step >= enums.CheckoutStepBilling {
		if err := s.review(ctx, sessionID, d, ledger); err != nil {
			return err
		}
	}
	if step == enums.CheckoutStepPayment {
		if err := s.guard(d, ledger, enums.CheckoutStepPayment); err != nil {
			return err
		}
	}
	s.moveTo(d, step)
	return nil
}

func (s *Sequencer) leave(ctx context.Context, sessionID string, d *Draft, step enums.CheckoutStep) error {
	if d.Current == enums.CheckoutStepPayment && step != enums.CheckoutStepPayment {
		if err := s.payments.Teardown(ctx, sessionID); err != nil {
			return err
		}
	}
	s.moveTo(d, step)
	return nil
}

// review makes sure the draft carries totals for the current shipping draft.
// The resolver serves repeated entries from its cache.
func (s *Sequencer) review(ctx context.Context, sessionID string, d *Draft, ledger *cart.Ledger) error {
	res, err := s.quotes.Quote(ctx, sessionID, ledger.Lines, d.Shipping.Address(), d.Shipping.ShippingMethod)
	if err != nil {
		return err
	}
	review := NewReview(ledger, res.Quote, s.taxRate)
	d.Review = &review
	return nil
}

// guard re-validates every draft the target step depends on.
func (s *Sequencer) guard(d *Draft, ledger *cart.Ledger, target enums.CheckoutStep) error {
	if err := requireItems(ledger); err != nil {
		return err
	}
	var errs error
	var missing []string
	if target > enums.CheckoutStepContact {
		if d.Contact == nil {
			missing = append(missing, enums.CheckoutStepContact.String())
		} else if err := validation.Struct(d.Contact); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("contact: %w", err))
		}
	}
	if target > enums.CheckoutStepShipping {
		if d.Shipping == nil {
			missing = append(missing, enums.CheckoutStepShipping.String())
		} else if err := validation.Struct(d.Shipping); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("shipping: %w", err))
		}
	}
	if target > enums.CheckoutStepBilling && d.Shipping != nil {
		if d.Review == nil || d.Review.Fingerprint != d.Shipping.Fingerprint() {
			missing = append(missing, "shipping_quote")
		}
	}
	if errs == nil && len(missing) == 0 {
		return nil
	}

	details := map[string]any{"step": target.String()}
	if len(missing) > 0 {
		details["missing"] = missing
	}
	if errs != nil {
		invalid := make([]string, 0)
		for _, e := range multierr.Errors(errs) {
			invalid = append(invalid, e.Error())
		}
		details["invalid"] = invalid
	}
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, errs, fmt.Sprintf("cannot enter the %s step", target)).
		WithDetails(details)
}

func (s *Sequencer) moveTo(d *Draft, step enums.CheckoutStep) {
	if d.Current != step {
		s.metrics.IncStepTransition(step.String())
	}
	d.Current = step
	d.clearFailure()
}

func (s *Sequencer) mutateStep(ctx context.Context, sessionID string, step enums.CheckoutStep, fn func(*Draft, *cart.Ledger) error) (*Draft, error) {
	return s.mutate(ctx, sessionID, func(d *Draft, ledger *cart.Ledger) error {
		if err := fn(d, ledger); err != nil {
			if !isGuardError(err) {
				d.fail(step, err)
			}
			return err
		}
		return nil
	})
}

// mutate applies fn under the session lock. Step failures are still
// persisted so the step indicator shows the error.
func (s *Sequencer) mutate(ctx context.Context, sessionID string, fn func(*Draft, *cart.Ledger) error) (*Draft, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	d, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ledger, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithField(s.logg.WithSessionID(ctx, sessionID), "checkout_step", d.Current.String())

	ferr := fn(d, ledger)
	d.UpdatedAt = s.now().UTC()
	d.refresh()
	if ferr != nil && !persistFailure(ferr) {
		s.logg.Warn(ctx, "checkout step rejected: "+ferr.Error())
		return nil, ferr
	}
	if err := kv.Save(ctx, s.store, kv.SessionKey(s.store, sessionID, kv.Checkout), d, s.ttl); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save checkout draft")
	}
	if ferr != nil {
		return d, ferr
	}
	return d, nil
}

func (s *Sequencer) load(ctx context.Context, sessionID string) (*Draft, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	d := newDraft(s.now().UTC())
	if _, err := kv.Load(ctx, s.store, kv.SessionKey(s.store, sessionID, kv.Checkout), d); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load checkout draft")
	}
	d.refresh()
	return d, nil
}

func requireItems(ledger *cart.Ledger) error {
	if ledger == nil || ledger.IsEmpty() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "cart is empty").
			WithDetails(map[string]any{"redirect": StoreRedirect})
	}
	return nil
}

func persistFailure(err error) bool {
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeStateConflict, pkgerrors.CodeUnauthorized, pkgerrors.CodeInternal:
		return false
	}
	return true
}

func isGuardError(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeStateConflict)
}

func contactFromAuth(auth *session.Auth) ContactDraft {
	id := auth.User.ID
	return ContactDraft{
		Name:            auth.User.Name,
		LastName:        auth.User.LastName,
		Email:           auth.User.Email,
		Phone:           auth.User.Phone,
		IsAuthenticated: true,
		UserID:          &id,
	}.normalized()
}
