package cart

import (
	"context"
	"errors"

	"github.com/PixelDroid19/puntokoreano-app/pkg/kv"
)

// Repository persists one ledger per session.
type Repository struct {
	store kv.Store
}

func NewRepository(store kv.Store) (*Repository, error) {
	if store == nil {
		return nil, errors.New("kv store required")
	}
	return &Repository{store: store}, nil
}

// Load returns the stored ledger, or an empty one when the session has none.
func (r *Repository) Load(ctx context.Context, sessionID string, policy ShippingPolicy) (*Ledger, error) {
	ledger := NewLedger(policy)
	if _, err := kv.Load(ctx, r.store, kv.SessionKey(r.store, sessionID, kv.Cart), ledger); err != nil {
		return nil, err
	}
	if ledger.Lines == nil {
		ledger.Lines = []Line{}
	}
	ledger.policy = policy
	ledger.CalculateTotals()
	return ledger, nil
}

// Save stores the ledger without expiry.
func (r *Repository) Save(ctx context.Context, sessionID string, ledger *Ledger) error {
	return kv.Save(ctx, r.store, kv.SessionKey(r.store, sessionID, kv.Cart), ledger, 0)
}
