package session

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrNotAuthenticated is returned when no token pair is held.
	ErrNotAuthenticated = errors.New("session: not authenticated")
)

// TokenPair is the access/refresh credential pair issued by the backend.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Valid reports whether the pair can authenticate a request.
func (p TokenPair) Valid() bool {
	return p.AccessToken != ""
}

// TokenStore is the single owner of the current token pair. All mutation of
// authentication state goes through it; no other component holds a mutable
// copy.
type TokenStore struct {
	mu   sync.RWMutex
	pair *TokenPair
}

// NewTokenStore creates an empty store.
func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

// Current returns the held token pair, or ErrNotAuthenticated.
func (s *TokenStore) Current() (TokenPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pair == nil || !s.pair.Valid() {
		return TokenPair{}, ErrNotAuthenticated
	}
	return *s.pair, nil
}

// Set atomically replaces the held pair. ExpiresAt never moves backwards
// across replacements of the same logical session; a refresh that reports an
// earlier expiry keeps the previous one.
func (s *TokenStore) Set(pair TokenPair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pair != nil && pair.ExpiresAt.Before(s.pair.ExpiresAt) {
		pair.ExpiresAt = s.pair.ExpiresAt
	}
	s.pair = &pair
}

// Invalidate clears the held pair.
func (s *TokenStore) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = nil
}
