package challenge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	http "github.com/bogdanfinn/fhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a solved token is reused before the next challenge
// encounter re-runs resolution. The gate's own tokens live noticeably longer;
// expiring early avoids presenting one that is about to go stale mid-flight.
const DefaultTTL = 4 * time.Minute

// Doer sends the verify-exchange request. Satisfied by tls_client.HttpClient.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Solver resolves challenges and caches the resulting tokens per scope.
// Safe for concurrent use; at most one resolution runs per scope at a time,
// with concurrent callers waiting on the in-flight one.
type Solver struct {
	doer          Doer
	captcha       CaptchaSolver
	ttl           time.Duration
	maxIterations int
	log           *zap.Logger

	now func() time.Time
	pow func(ctx context.Context, p *Params, maxIterations int) (proof, error)

	group singleflight.Group

	mu    sync.Mutex
	cache map[string]Token
}

// Option configures a Solver.
type Option func(*Solver)

// WithDoer sets the HTTP client used for verify-URL exchanges.
func WithDoer(d Doer) Option {
	return func(s *Solver) { s.doer = d }
}

// WithCaptchaSolver injects the delegated solving capability.
func WithCaptchaSolver(cs CaptchaSolver) Option {
	return func(s *Solver) { s.captcha = cs }
}

// WithTTL sets the local time-to-live for cached tokens.
func WithTTL(ttl time.Duration) Option {
	return func(s *Solver) { s.ttl = ttl }
}

// WithMaxIterations bounds the proof-of-work search.
func WithMaxIterations(n int) Option {
	return func(s *Solver) { s.maxIterations = n }
}

// WithLogger sets the logger. Defaults to a nop logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Solver) { s.log = log }
}

// New creates a Solver.
func New(opts ...Option) *Solver {
	s := &Solver{
		ttl:           DefaultTTL,
		maxIterations: DefaultMaxIterations,
		log:           zap.NewNop(),
		now:           time.Now,
		pow:           searchPow,
		cache:         make(map[string]Token),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cached returns the fresh token for scope, if any.
func (s *Solver) Cached(scope string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.cache[scope]
	if !ok || s.now().Sub(tok.AcquiredAt) >= s.ttl {
		delete(s.cache, scope)
		return "", false
	}
	return tok.Value, true
}

// Invalidate drops the cached token for scope. Called when the gate rejects
// a request that carried it.
func (s *Solver) Invalidate(scope string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, scope)
}

// Obtain returns a token satisfying the challenge described by p, reusing the
// cache when possible. Concurrent calls for the same scope collapse into a
// single resolution.
func (s *Solver) Obtain(ctx context.Context, scope string, p *Params) (string, error) {
	if value, ok := s.Cached(scope); ok {
		return value, nil
	}

	value, err, _ := s.group.Do(scope, func() (interface{}, error) {
		// A resolution that finished while we queued already filled the cache.
		if value, ok := s.Cached(scope); ok {
			return value, nil
		}

		start := s.now()
		value, err := s.resolve(ctx, p)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.cache[scope] = Token{Value: value, AcquiredAt: s.now(), Scope: scope}
		s.mu.Unlock()

		s.log.Debug("challenge resolved",
			zap.String("scope", scope),
			zap.Int("difficulty", p.Difficulty),
			zap.Duration("took", s.now().Sub(start)))
		return value, nil
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

// resolve runs the resolution strategies in order: static proof-of-work
// first, delegated solve second.
func (s *Solver) resolve(ctx context.Context, p *Params) (string, error) {
	if p == nil {
		return "", ErrUnsupported
	}

	if p.Nonce != "" {
		pr, err := s.pow(ctx, p, s.maxIterations)
		if err != nil {
			return "", err
		}
		packaged := packageToken(pr)
		if p.VerifyURL == "" {
			return packaged, nil
		}
		return s.exchange(ctx, p, pr)
	}

	if p.Puzzle != nil {
		if s.captcha == nil {
			return "", fmt.Errorf("%w: puzzle challenge with no captcha solver configured", ErrUnsupported)
		}
		answer, err := s.captcha.Solve(ctx, p.Puzzle)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrDelegationFailed, err)
		}
		if answer == "" {
			return "", fmt.Errorf("%w: empty answer", ErrDelegationFailed)
		}
		return answer, nil
	}

	return "", ErrUnsupported
}

// exchange posts the packaged solution to the gate's verify endpoint and
// returns the token it vouches with.
func (s *Solver) exchange(ctx context.Context, p *Params, pr proof) (string, error) {
	if s.doer == nil {
		return "", fmt.Errorf("%w: verify exchange requires an HTTP client", ErrUnsupported)
	}

	body, err := json.Marshal(pr)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.VerifyURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.doer.Do(req)
	if err != nil {
		return "", fmt.Errorf("challenge verify exchange: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("challenge verify exchange: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("challenge verify exchange: status %d", resp.StatusCode)
	}

	var out struct {
		Token  string `json:"token"`
		Cookie string `json:"cookie"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("challenge verify exchange: %w", err)
	}
	if out.Token != "" {
		return out.Token, nil
	}
	if out.Cookie != "" {
		return out.Cookie, nil
	}
	return "", fmt.Errorf("challenge verify exchange: no token in response")
}
