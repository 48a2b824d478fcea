// Package session holds the per-client authentication state: the device
// identity, the current token pair and bookkeeping about the session itself.
// One Session exists per client instance and is never shared across clients.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/paypay-unofficial/paypay-mobile-go/device"
)

// Session aggregates the state every pipeline component reads from.
type Session struct {
	ID        string
	CreatedAt time.Time

	Identity device.Identity
	Tokens   *TokenStore

	requestCount atomic.Int64

	mu       sync.RWMutex
	lastUsed time.Time
}

// New creates a session around the given identity.
func New(identity device.Identity) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		Identity:  identity,
		Tokens:    NewTokenStore(),
		lastUsed:  now,
	}
}

// Touch records request activity.
func (s *Session) Touch() {
	s.requestCount.Add(1)
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// RequestCount returns the number of requests issued through this session.
func (s *Session) RequestCount() int64 {
	return s.requestCount.Load()
}

// IdleTime returns how long since the session last issued a request.
func (s *Session) IdleTime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.lastUsed)
}
