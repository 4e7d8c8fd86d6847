// Package kv is the durable key-value store that holds per-session
// storefront state (cart, wishlist, auth, checkout drafts).
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("kv: key not found")

// Store is the minimal surface every backend implements.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Key(parts ...string) string
}

// Session key names. Each is scoped under session:<id>.
const (
	Cart          = "cart"
	Wishlist      = "wishlist"
	Auth          = "auth"
	Terms         = "terms"
	Checkout      = "checkout"
	ShippingQuote = "shipping_quote"
	Payment       = "payment"
	LastOrder     = "last_order"
	Notifications = "notifications"
	SubmitLock    = "submit_lock"
)

// SessionKey builds the namespaced key for one session value.
func SessionKey(s Store, sessionID, name string) string {
	return s.Key("session", sessionID, name)
}

// Load decodes the JSON value at key into dst. found is false when the key is absent.
func Load(ctx context.Context, s Store, key string, dst any) (bool, error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("kv get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("kv decode %s: %w", key, err)
	}
	return true, nil
}

// Save JSON-encodes value and stores it under key.
func Save(ctx context.Context, s Store, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv encode %s: %w", key, err)
	}
	if err := s.Set(ctx, key, raw, ttl); err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

func buildKey(namespace string, parts ...string) string {
	clean := []string{namespace}
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		clean = append(clean, part)
	}
	return strings.Join(clean, ":")
}
