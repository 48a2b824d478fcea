package paypay

import (
	"errors"

	"github.com/paypay-unofficial/paypay-mobile-go/auth"
	"github.com/paypay-unofficial/paypay-mobile-go/challenge"
	"github.com/paypay-unofficial/paypay-mobile-go/session"
	"github.com/paypay-unofficial/paypay-mobile-go/signer"
	"github.com/paypay-unofficial/paypay-mobile-go/transport"
)

// Errors surfaced by the client. These alias the sentinels of the internal
// packages so callers only import this package for errors.Is checks.
var (
	// ErrInvalidAuthorizationArtifact reports a login artifact that is not an
	// OAuth URL, a link ID or an access token.
	ErrInvalidAuthorizationArtifact = auth.ErrInvalidArtifact

	// ErrAuthenticationRejected reports credentials or an artifact exchange
	// the backend declined.
	ErrAuthenticationRejected = auth.ErrRejected

	// ErrAuthenticationInProgress reports an API call or login attempted
	// while another login or refresh is running.
	ErrAuthenticationInProgress = auth.ErrInProgress

	// ErrNoCredentials reports a credential login on a client built without
	// phone and password.
	ErrNoCredentials = auth.ErrNoCredentials

	// ErrNotAuthenticated reports an API call before any login.
	ErrNotAuthenticated = session.ErrNotAuthenticated

	// ErrTokenExpired reports a bearer token the backend no longer accepts.
	ErrTokenExpired = transport.ErrTokenExpired

	// ErrRateLimited reports backend rate limiting.
	ErrRateLimited = transport.ErrRateLimited

	// ErrChallengeUnresolved reports a request still blocked by bot
	// detection after solving and retrying.
	ErrChallengeUnresolved = transport.ErrChallengeUnresolved

	// ErrSolverExhausted reports a proof-of-work search that hit its
	// iteration bound.
	ErrSolverExhausted = challenge.ErrExhausted

	// ErrUnsupportedChallenge reports a challenge this client cannot solve.
	ErrUnsupportedChallenge = challenge.ErrUnsupported

	// ErrDelegationFailed reports a configured captcha solver that errored
	// or returned an empty answer.
	ErrDelegationFailed = challenge.ErrDelegationFailed

	// ErrUserNotFound reports a user search with no match.
	ErrUserNotFound = errors.New("paypay: user not found")
)

// Structured error types, aliased for the same reason.
type (
	// APIError is a well-formed backend rejection carrying its result code.
	APIError = transport.APIError

	// TransientError wraps network and server-side failures worth retrying.
	TransientError = transport.TransientError

	// ConfigError reports missing signing key material or identity fields.
	ConfigError = signer.ConfigError
)
