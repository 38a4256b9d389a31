package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Memory implements Cache and Flags in process, for single-instance deployments without Redis.
type Memory struct {
	mu    sync.Mutex
	items map[string]memItem
	now   func() time.Time
}

type memItem struct {
	val     []byte
	expires time.Time // zero: never
}

func NewMemory() *Memory {
	return &Memory{items: map[string]memItem{}, now: time.Now}
}

func (m *Memory) get(key string) ([]byte, bool) {
	it, ok := m.items[key]
	if !ok {
		return nil, false
	}
	if !it.expires.IsZero() && !m.now().Before(it.expires) {
		delete(m.items, key)
		return nil, false
	}
	return it.val, true
}

func (m *Memory) set(key string, val []byte, ttl time.Duration) {
	it := memItem{val: val}
	if ttl > 0 {
		it.expires = m.now().Add(ttl)
	}
	m.items[key] = it
}

func (m *Memory) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	b, ok := m.get(key)
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		_ = m.Del(ctx, key)
		return false, nil
	}
	return true, nil
}

func (m *Memory) SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.set(key, b, ttl)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

func (m *Memory) SetHangup(ctx context.Context, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(hangupKey, []byte("1"), ttl)
	return nil
}

func (m *Memory) TakeHangup(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.get(hangupKey)
	delete(m.items, hangupKey)
	return ok, nil
}

func (m *Memory) FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.get(key); ok {
		return false, nil
	}
	m.set(key, []byte("1"), ttl)
	return true, nil
}
