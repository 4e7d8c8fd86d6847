package cart

import (
	"context"
	"strings"

	pkgerrors "github.com/PixelDroid19/puntokoreano-app/pkg/errors"
	"github.com/PixelDroid19/puntokoreano-app/pkg/keylock"
)

// Service exposes the session cart.
type Service interface {
	Get(ctx context.Context, sessionID string) (*Ledger, error)
	AddItem(ctx context.Context, sessionID string, item Item) (*Ledger, error)
	RemoveItem(ctx context.Context, sessionID, productID string) (*Ledger, error)
	UpdateQuantity(ctx context.Context, sessionID, productID string, qty int) (*Ledger, error)
	Clear(ctx context.Context, sessionID string) error
}

// ServiceParams groups dependencies for the cart service.
type ServiceParams struct {
	Repo   *Repository
	Policy ShippingPolicy
	Locks  *keylock.Locker
}

type service struct {
	repo   *Repository
	policy ShippingPolicy
	locks  *keylock.Locker
}

// NewService builds a cart service backed by the session repository.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart repository is required")
	}
	locks := params.Locks
	if locks == nil {
		locks = keylock.New()
	}
	return &service{repo: params.Repo, policy: params.Policy, locks: locks}, nil
}

func (s *service) Get(ctx context.Context, sessionID string) (*Ledger, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	ledger, err := s.repo.Load(ctx, sessionID, s.policy)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	return ledger, nil
}

func (s *service) AddItem(ctx context.Context, sessionID string, item Item) (*Ledger, error) {
	item.ProductID = strings.TrimSpace(item.ProductID)
	if item.ProductID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if item.UnitPrice.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit price must be non-negative")
	}
	return s.mutate(ctx, sessionID, func(l *Ledger) error {
		l.AddItem(item)
		return nil
	})
}

func (s *service) RemoveItem(ctx context.Context, sessionID, productID string) (*Ledger, error) {
	return s.mutate(ctx, sessionID, func(l *Ledger) error {
		l.RemoveItem(strings.TrimSpace(productID))
		return nil
	})
}

func (s *service) UpdateQuantity(ctx context.Context, sessionID, productID string, qty int) (*Ledger, error) {
	return s.mutate(ctx, sessionID, func(l *Ledger) error {
		if !l.UpdateQuantity(strings.TrimSpace(productID), qty) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product is not in the cart")
		}
		return nil
	})
}

func (s *service) Clear(ctx context.Context, sessionID string) error {
	_, err := s.mutate(ctx, sessionID, func(l *Ledger) error {
		l.Clear()
		return nil
	})
	return err
}

func (s *service) mutate(ctx context.Context, sessionID string, fn func(*Ledger) error) (*Ledger, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock("cart:" + sessionID)
	defer unlock()

	ledger, err := s.repo.Load(ctx, sessionID, s.policy)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	if err := fn(ledger); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, sessionID, ledger); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save cart")
	}
	return ledger, nil
}

func requireSession(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	return nil
}
