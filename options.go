package paypay

import (
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/paypay-unofficial/paypay-mobile-go/challenge"
	"github.com/paypay-unofficial/paypay-mobile-go/transport"
)

type clientConfig struct {
	phoneNumber string
	password    string
	deviceUUID  string
	accessToken string

	signingKey []byte

	baseURL    string
	webBaseURL string

	proxyURL string
	timeout  time.Duration

	challengeTTL        time.Duration
	challengeIterations int
	challengeScope      func(u *url.URL) string
	captcha             challenge.CaptchaSolver

	httpClient    transport.Doer
	logger        *zap.Logger
	noAutoRefresh bool
}

// Option configures the Client.
type Option func(*clientConfig)

// WithCredentials sets the phone number and password for credential login.
// Hyphens in the phone number are stripped.
func WithCredentials(phoneNumber, password string) Option {
	return func(c *clientConfig) {
		c.phoneNumber = phoneNumber
		c.password = password
	}
}

// WithDeviceUUID reuses a device registration created through the official
// app. Without it a fresh device identity is generated.
func WithDeviceUUID(deviceUUID string) Option {
	return func(c *clientConfig) { c.deviceUUID = deviceUUID }
}

// WithAccessToken adopts a pre-issued access token, skipping login.
func WithAccessToken(token string) Option {
	return func(c *clientConfig) { c.accessToken = token }
}

// WithSigningKey overrides the embedded request-signing key material.
func WithSigningKey(key []byte) Option {
	return func(c *clientConfig) { c.signingKey = key }
}

// WithProxy routes all traffic through an HTTP, HTTPS or SOCKS5 proxy.
// Scheme-less values are treated as http.
func WithProxy(proxyURL string) Option {
	return func(c *clientConfig) { c.proxyURL = proxyURL }
}

// WithTimeout sets the per-request timeout. Defaults to 30 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.timeout = d }
}

// WithLogger enables library logging. The client is silent without one.
func WithLogger(log *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = log }
}

// WithCaptchaSolver injects a delegated solver for puzzle challenges the
// static proof-of-work path cannot handle.
func WithCaptchaSolver(cs challenge.CaptchaSolver) Option {
	return func(c *clientConfig) { c.captcha = cs }
}

// WithChallengeTTL overrides how long solved challenge tokens are reused.
func WithChallengeTTL(ttl time.Duration) Option {
	return func(c *clientConfig) { c.challengeTTL = ttl }
}

// WithChallengeIterations bounds the proof-of-work search.
func WithChallengeIterations(n int) Option {
	return func(c *clientConfig) { c.challengeIterations = n }
}

// WithChallengeScope overrides the mapping from request URL to challenge
// token scope. Defaults to the target host.
func WithChallengeScope(scope func(u *url.URL) string) Option {
	return func(c *clientConfig) { c.challengeScope = scope }
}

// WithHTTPClient replaces the underlying HTTP client. Intended for tests and
// callers managing their own fingerprinted transport.
func WithHTTPClient(doer transport.Doer) Option {
	return func(c *clientConfig) { c.httpClient = doer }
}

// WithoutAutoRefresh disables the refresh-and-replay on an expired bearer.
// Calls then surface ErrTokenExpired directly and the caller drives
// RefreshToken itself.
func WithoutAutoRefresh() Option {
	return func(c *clientConfig) { c.noAutoRefresh = true }
}

// WithBaseURL overrides the mobile BFF base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *clientConfig) { c.baseURL = baseURL }
}
