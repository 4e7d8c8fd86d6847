package kv

import (
	"context"
	"sync"
	"time"
)

type memoryValue struct {
	raw       []byte
	expiresAt time.Time
}

// MemoryStore is a process-local Store for development and tests.
type MemoryStore struct {
	mu        sync.Mutex
	data      map[string]memoryValue
	namespace string
	now       func() time.Time
}

func NewMemoryStore(namespace string) *MemoryStore {
	if namespace == "" {
		namespace = "sf"
	}
	return &MemoryStore{data: make(map[string]memoryValue), namespace: namespace, now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.live(key)
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v.raw...), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = s.value(value, ttl)
	return nil
}

func (s *MemoryStore) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live(key); ok {
		return false, nil
	}
	s.data[key] = s.value(value, ttl)
	return true, nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Key(parts ...string) string {
	return buildKey(s.namespace, parts...)
}

func (s *MemoryStore) live(key string) (memoryValue, bool) {
	v, ok := s.data[key]
	if !ok {
		return memoryValue{}, false
	}
	if !v.expiresAt.IsZero() && !s.now().Before(v.expiresAt) {
		delete(s.data, key)
		return memoryValue{}, false
	}
	return v, true
}

func (s *MemoryStore) value(raw []byte, ttl time.Duration) memoryValue {
	v := memoryValue{raw: append([]byte(nil), raw...)}
	if ttl > 0 {
		v.expiresAt = s.now().Add(ttl)
	}
	return v
}
