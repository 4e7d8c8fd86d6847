// Package wishlist keeps saved-for-later products per session.
package wishlist

import (
	"context"
	"strings"
	"time"

	"github.com/PixelDroid19/puntokoreano-app/internal/cart"
	pkgerrors "github.com/PixelDroid19/puntokoreano-app/pkg/errors"
	"github.com/PixelDroid19/puntokoreano-app/pkg/keylock"
	"github.com/PixelDroid19/puntokoreano-app/pkg/kv"
)

// Entry is a saved product snapshot.
type Entry struct {
	cart.Item
	AddedAt time.Time `json:"addedAt"`
}

// Service manages the session wishlist.
type Service interface {
	List(ctx context.Context, sessionID string) ([]Entry, error)
	Add(ctx context.Context, sessionID string, item cart.Item) ([]Entry, error)
	Remove(ctx context.Context, sessionID, productID string) ([]Entry, error)
	Contains(ctx context.Context, sessionID, productID string) (bool, error)
	MoveToCart(ctx context.Context, sessionID, productID string) (*cart.Ledger, error)
}

type ServiceParams struct {
	Store kv.Store
	Cart  cart.Service
	Locks *keylock.Locker
}

type service struct {
	store kv.Store
	cart  cart.Service
	locks *keylock.Locker
	now   func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "kv store is required")
	}
	if params.Cart == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart service is required")
	}
	locks := params.Locks
	if locks == nil {
		locks = keylock.New()
	}
	return &service{store: params.Store, cart: params.Cart, locks: locks, now: time.Now}, nil
}

func (s *service) List(ctx context.Context, sessionID string) ([]Entry, error) {
	return s.load(ctx, sessionID)
}

// Add is idempotent per product; the stored snapshot is refreshed.
func (s *service) Add(ctx context.Context, sessionID string, item cart.Item) ([]Entry, error) {
	item.ProductID = strings.TrimSpace(item.ProductID)
	if item.ProductID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	return s.mutate(ctx, sessionID, func(entries []Entry) []Entry {
		for i := range entries {
			if entries[i].ProductID == item.ProductID {
				entries[i].Item = item
				return entries
			}
		}
		return append(entries, Entry{Item: item, AddedAt: s.now().UTC()})
	})
}

func (s *service) Remove(ctx context.Context, sessionID, productID string) ([]Entry, error) {
	productID = strings.TrimSpace(productID)
	return s.mutate(ctx, sessionID, func(entries []Entry) []Entry {
		return without(entries, productID)
	})
}

func (s *service) Contains(ctx context.Context, sessionID, productID string) (bool, error) {
	entries, err := s.load(ctx, sessionID)
	if err != nil {
		return false, err
	}
	_, ok := find(entries, strings.TrimSpace(productID))
	return ok, nil
}

// MoveToCart adds one unit of the saved product to the cart and drops it
// from the wishlist. The entry stays when the cart add fails.
func (s *service) MoveToCart(ctx context.Context, sessionID, productID string) (*cart.Ledger, error) {
	productID = strings.TrimSpace(productID)
	entries, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	entry, ok := find(entries, productID)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product is not in the wishlist")
	}
	if entry.StockCeiling <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "product is out of stock")
	}
	ledger, err := s.cart.AddItem(ctx, sessionID, entry.Item)
	if err != nil {
		return nil, err
	}
	if _, err := s.Remove(ctx, sessionID, productID); err != nil {
		return nil, err
	}
	return ledger, nil
}

func (s *service) mutate(ctx context.Context, sessionID string, fn func([]Entry) []Entry) ([]Entry, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	unlock := s.locks.Lock("wishlist:" + sessionID)
	defer unlock()

	entries, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	entries = fn(entries)
	if err := kv.Save(ctx, s.store, kv.SessionKey(s.store, sessionID, kv.Wishlist), entries, 0); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save wishlist")
	}
	return entries, nil
}

func (s *service) load(ctx context.Context, sessionID string) ([]Entry, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	entries := []Entry{}
	if _, err := kv.Load(ctx, s.store, kv.SessionKey(s.store, sessionID, kv.Wishlist), &entries); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load wishlist")
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

func find(entries []Entry, productID string) (Entry, bool) {
	for _, e := range entries {
		if e.ProductID == productID {
			return e, true
		}
	}
	return Entry{}, false
}

func without(entries []Entry, productID string) []Entry {
	out := entries[:0]
	for _, e := range entries {
		if e.ProductID != productID {
			out = append(out, e)
		}
	}
	return out
}
