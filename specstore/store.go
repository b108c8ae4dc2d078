// Package specstore caches the payment specification quoted for each
// resource during a negotiation window, so a later proof can be matched
// against exactly what was quoted.
package specstore

import (
	"sync"
	"time"

	"github.com/x402labs/x402-go/types"
)

// Store is the injected specification cache. Implementations must be safe
// for concurrent use and GetOrCreate must be idempotent: concurrent calls
// with the same key observe a single canonical specification.
type Store interface {
	GetOrCreate(key string, build func() (*types.PaymentSpecification, error)) (*types.PaymentSpecification, error)
	Get(key string) (*types.PaymentSpecification, bool)
	Delete(key string)
}

const defaultWindow = 5 * time.Minute

type entry struct {
	spec    *types.PaymentSpecification
	expires time.Time
}

// Memory is an in-process Store with a fixed negotiation window. Expired
// entries are dropped lazily on access.
type Memory struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]entry
}

// NewMemory creates an in-memory store. A non-positive window falls back
// to the 5 minute default.
func NewMemory(window time.Duration) *Memory {
	if window <= 0 {
		window = defaultWindow
	}
	return &Memory{
		window:  window,
		entries: make(map[string]entry),
	}
}

// GetOrCreate returns the cached specification for key, building and
// caching it when absent or expired. The build runs under the store lock
// so only one specification becomes canonical per key.
func (m *Memory) GetOrCreate(key string, build func() (*types.PaymentSpecification, error)) (*types.PaymentSpecification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if e, ok := m.entries[key]; ok && now.Before(e.expires) {
		return e.spec, nil
	}

	spec, err := build()
	if err != nil {
		return nil, err
	}
	m.entries[key] = entry{spec: spec, expires: now.Add(m.window)}
	return spec, nil
}

// Get returns the cached specification for key, if still within the
// negotiation window.
func (m *Memory) Get(key string) (*types.PaymentSpecification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || time.Now().After(e.expires) {
		delete(m.entries, key)
		return nil, false
	}
	return e.spec, true
}

// Delete evicts the entry for key.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}
