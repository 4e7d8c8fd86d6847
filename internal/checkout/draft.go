package checkout

import (
	"strings"
	"time"

	"github.com/PixelDroid19/puntokoreano-app/internal/cart"
	"github.com/PixelDroid19/puntokoreano-app/internal/shipping"
	"github.com/PixelDroid19/puntokoreano-app/pkg/backend"
	"github.com/PixelDroid19/puntokoreano-app/pkg/enums"
	pkgerrors "github.com/PixelDroid19/puntokoreano-app/pkg/errors"
	"github.com/PixelDroid19/puntokoreano-app/pkg/types"
	"github.com/shopspring/decimal"
)

// ContactDraft is the contact step form.
type ContactDraft struct {
	Name            string  `json:"name" validate:"required,max=100"`
	LastName        string  `json:"lastName" validate:"required,max=100"`
	Email           string  `json:"email" validate:"required,email,max=200"`
	Phone           string  `json:"phone" validate:"required,digits,min=7,max=15"`
	IsAuthenticated bool    `json:"isAuthenticated"`
	UserID          *string `json:"userId"`
}

func (c ContactDraft) normalized() ContactDraft {
	c.Name = strings.TrimSpace(c.Name)
	c.LastName = strings.TrimSpace(c.LastName)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.Phone = strings.NewReplacer(" ", "", "-", "", "+57", "").Replace(strings.TrimSpace(c.Phone))
	return c
}

// ShippingDraft is the shipping step form.
type ShippingDraft struct {
	Street         string `json:"street" validate:"required,min=3,max=200"`
	City           string `json:"city" validate:"required,max=100"`
	State          string `json:"state" validate:"required,max=100"`
	Country        string `json:"country" validate:"required,max=100"`
	Zip            string `json:"zip" validate:"omitempty,max=20"`
	ShippingMethod string `json:"shippingMethod" validate:"required,max=50"`
}

func (s ShippingDraft) normalized() ShippingDraft {
	s.Street = strings.TrimSpace(s.Street)
	s.City = strings.TrimSpace(s.City)
	s.State = strings.TrimSpace(s.State)
	s.Country = strings.TrimSpace(s.Country)
	s.Zip = strings.TrimSpace(s.Zip)
	s.ShippingMethod = strings.ToLower(strings.TrimSpace(s.ShippingMethod))
	return s
}

// Address is the destination part of the draft.
func (s ShippingDraft) Address() types.ShippingAddress {
	return types.ShippingAddress{Street: s.Street, City: s.City, State: s.State, Country: s.Country, Zip: s.Zip}
}

// Fingerprint keys the shipping quote for this destination and method.
func (s ShippingDraft) Fingerprint() string {
	return shipping.Fingerprint(s.Address(), s.ShippingMethod)
}

// Review is what the billing step shows and what the order will charge.
type Review struct {
	ItemCount     int              `json:"itemCount"`
	SubTotal      decimal.Decimal  `json:"subTotal"`
	Shipping      decimal.Decimal  `json:"shipping"`
	Tax           decimal.Decimal  `json:"tax"`
	Total         decimal.Decimal  `json:"total"`
	FreeShipping  bool             `json:"freeShipping"`
	EstimatedDays backend.DayRange `json:"estimatedDays"`
	Method        string           `json:"method"`
	Fallback      bool             `json:"fallback"`
	Fingerprint   string           `json:"fingerprint"`
}

// NewReview derives the review totals. Tax is rounded to whole pesos.
func NewReview(ledger *cart.Ledger, quote shipping.Quote, taxRate decimal.Decimal) Review {
	ledger.CalculateTotals()
	sub := ledger.Totals.SubTotal
	charged := quote.Charged()
	tax := sub.Mul(taxRate).Round(0)
	return Review{
		ItemCount:     ledger.Totals.TotalItemCount,
		SubTotal:      sub,
		Shipping:      charged,
		Tax:           tax,
		Total:         sub.Add(charged).Add(tax),
		FreeShipping:  quote.FreeShipping,
		EstimatedDays: quote.EstimatedDays,
		Method:        quote.Method,
		Fallback:      quote.Fallback,
		Fingerprint:   quote.Fingerprint,
	}
}

// StepState is one entry of the progress indicator.
type StepState struct {
	Step   enums.CheckoutStep `json:"step"`
	Name   string             `json:"name"`
	Status enums.StepStatus   `json:"status"`
	Error  string             `json:"error,omitempty"`
}

// Draft is the persisted checkout session.
type Draft struct {
	Current   enums.CheckoutStep  `json:"current"`
	Steps     []StepState         `json:"steps"`
	Contact   *ContactDraft       `json:"contact,omitempty"`
	Shipping  *ShippingDraft      `json:"shipping,omitempty"`
	Review    *Review             `json:"review,omitempty"`
	Failed    *enums.CheckoutStep `json:"failed,omitempty"`
	LastError string              `json:"lastError,omitempty"`
	StartedAt time.Time           `json:"startedAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

func newDraft(now time.Time) *Draft {
	d := &Draft{Current: enums.CheckoutStepContact, StartedAt: now, UpdatedAt: now}
	d.refresh()
	return d
}

// refresh recomputes the step indicator from Current and Failed.
func (d *Draft) refresh() {
	d.Steps = d.Steps[:0]
	for _, step := range enums.CheckoutSteps() {
		state := StepState{Step: step, Name: step.String()}
		switch {
		case d.Failed != nil && *d.Failed == step:
			state.Status = enums.StepStatusError
			state.Error = d.LastError
		case step < d.Current:
			state.Status = enums.StepStatusFinish
		case step == d.Current:
			state.Status = enums.StepStatusProcess
		default:
			state.Status = enums.StepStatusWait
		}
		d.Steps = append(d.Steps, state)
	}
}

func (d *Draft) fail(step enums.CheckoutStep, err error) {
	d.Failed = &step
	if typed := pkgerrors.As(err); typed != nil {
		d.LastError = typed.Message()
		return
	}
	d.LastError = err.Error()
}

func (d *Draft) clearFailure() {
	d.Failed = nil
	d.LastError = ""
}
