// Package transport is the single chokepoint every outbound call passes
// through: it signs the request, attaches the bearer token and any cached
// challenge token, sends, classifies the response, and drives the one
// permitted challenge-triggered retry.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	http "github.com/bogdanfinn/fhttp"
	"go.uber.org/zap"

	"github.com/paypay-unofficial/paypay-mobile-go/challenge"
	"github.com/paypay-unofficial/paypay-mobile-go/session"
	"github.com/paypay-unofficial/paypay-mobile-go/signer"
)

// challengeCookie is the cookie the edge gate reads solved tokens from.
const challengeCookie = "aws-waf-token"

// headerOrder keeps the wire order of headers identical across requests,
// matching the app's fingerprint.
var headerOrder = []string{
	"user-agent",
	"accept",
	"accept-encoding",
	"content-type",
	"client-os-type",
	"client-os-version",
	"client-app-version",
	"client-mode",
	"device-uuid",
	"client-uuid",
	"install-uuid",
	"signature-timestamp",
	"signature",
	"authorization",
	"cookie",
}

// Doer executes a prepared request. Satisfied by tls_client.HttpClient;
// tests inject fakes.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config wires a Pipeline.
type Config struct {
	Doer    Doer
	Signer  *signer.Signer
	Session *session.Session
	Solver  *challenge.Solver

	// BaseURL is prepended to relative endpoints.
	BaseURL string

	// Scope maps a request URL to the challenge-token scope it belongs to.
	// Defaults to the target host.
	Scope func(u *url.URL) string

	Logger *zap.Logger
}

// Pipeline sends signed requests and classifies their responses.
type Pipeline struct {
	doer    Doer
	signer  *signer.Signer
	sess    *session.Session
	solver  *challenge.Solver
	baseURL *url.URL
	scope   func(u *url.URL) string
	log     *zap.Logger
}

// New creates a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid base URL %q: %w", cfg.BaseURL, err)
	}
	scope := cfg.Scope
	if scope == nil {
		scope = func(u *url.URL) string { return u.Host }
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		doer:    cfg.Doer,
		signer:  cfg.Signer,
		sess:    cfg.Session,
		solver:  cfg.Solver,
		baseURL: base,
		scope:   scope,
		log:     log,
	}, nil
}

// Call sends an authenticated request and returns the envelope payload.
// Fails fast with ErrTokenExpired when no token pair is held.
func (p *Pipeline) Call(ctx context.Context, method, endpoint string, query url.Values, payload any) (json.RawMessage, error) {
	pair, err := p.sess.Tokens.Current()
	if err != nil {
		return nil, ErrTokenExpired
	}
	return p.roundTrip(ctx, method, endpoint, query, payload, pair.AccessToken)
}

// Send sends an unauthenticated request (token exchange, refresh). It is
// still signed and still subject to challenge solving.
func (p *Pipeline) Send(ctx context.Context, method, endpoint string, query url.Values, payload any) (json.RawMessage, error) {
	return p.roundTrip(ctx, method, endpoint, query, payload, "")
}

func (p *Pipeline) roundTrip(ctx context.Context, method, endpoint string, query url.Values, payload any, accessToken string) (json.RawMessage, error) {
	u, err := p.resolve(endpoint, query)
	if err != nil {
		return nil, err
	}

	var body []byte
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("transport: encode payload: %w", err)
		}
	}

	p.sess.Touch()
	scope := p.scope(u)

	cached, hadCached := p.solver.Cached(scope)
	status, header, respBody, err := p.attempt(ctx, method, u, body, accessToken, cached)
	if err != nil {
		return nil, err
	}

	out := classify(status, header, respBody)
	if out == outcomeChallenge {
		if hadCached {
			// The gate rejected the token we presented; drop it as stale.
			p.solver.Invalidate(scope)
		}
		params, perr := challenge.ParseParams(respBody)
		if perr != nil {
			return nil, perr
		}
		token, serr := p.solver.Obtain(ctx, scope, params)
		if serr != nil {
			return nil, serr
		}

		p.log.Debug("retrying after challenge",
			zap.String("scope", scope),
			zap.String("endpoint", u.Path))

		// Retry exactly once, re-signed with a fresh timestamp.
		status, header, respBody, err = p.attempt(ctx, method, u, body, accessToken, token)
		if err != nil {
			return nil, err
		}
		out = classify(status, header, respBody)
		if out == outcomeChallenge {
			p.solver.Invalidate(scope)
			return nil, ErrChallengeUnresolved
		}
	}

	switch out {
	case outcomeSuccess:
		return parseEnvelope(status, respBody)
	case outcomeUnauthorized:
		return nil, ErrTokenExpired
	case outcomeRateLimited:
		return nil, ErrRateLimited
	case outcomeServerError:
		return nil, &TransientError{Op: "server", Err: fmt.Errorf("status %d", status)}
	default:
		if _, err := parseEnvelope(status, respBody); err != nil {
			return nil, err
		}
		return nil, &APIError{StatusCode: status}
	}
}

// attempt performs one signed send and returns the decoded response.
func (p *Pipeline) attempt(ctx context.Context, method string, u *url.URL, body []byte, accessToken, challengeToken string) (int, http.Header, []byte, error) {
	headers, err := p.signer.Sign(signer.Request{
		Method:      method,
		Path:        u.Path,
		Query:       u.RawQuery,
		Body:        body,
		Time:        time.Now(),
		Identity:    p.sess.Identity,
		AccessToken: accessToken,
	})
	if err != nil {
		return 0, nil, nil, err
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("transport: build request: %w", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	req.Header.Set("Accept-Encoding", "gzip, deflate, br, zstd")
	if challengeToken != "" {
		req.Header.Set("Cookie", challengeCookie+"="+challengeToken)
	}
	req.Header[http.HeaderOrderKey] = headerOrder

	resp, err := p.doer.Do(req)
	if err != nil {
		return 0, nil, nil, &TransientError{Op: "send", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, &TransientError{Op: "read", Err: err}
	}
	decoded, err := decode(raw, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return 0, nil, nil, &TransientError{Op: "decode", Err: err}
	}
	return resp.StatusCode, resp.Header, decoded, nil
}

// resolve joins a relative endpoint with the base URL; absolute URLs (the
// web portal variants) pass through untouched.
func (p *Pipeline) resolve(endpoint string, query url.Values) (*url.URL, error) {
	var u *url.URL
	if strings.HasPrefix(endpoint, "https://") || strings.HasPrefix(endpoint, "http://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("transport: invalid endpoint %q: %w", endpoint, err)
		}
		u = parsed
	} else {
		resolved := *p.baseURL
		resolved.Path = endpoint
		u = &resolved
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u, nil
}
