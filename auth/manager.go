// Package auth drives the authentication lifecycle: credential login,
// artifact exchange, token refresh and logout. It owns the state machine;
// the session's token store holds the resulting credentials.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/paypay-unofficial/paypay-mobile-go/session"
	"github.com/paypay-unofficial/paypay-mobile-go/transport"
)

var (
	// ErrInvalidArtifact is returned when an authorization artifact cannot be
	// classified as an OAuth URL, a link ID or an access token.
	ErrInvalidArtifact = errors.New("auth: invalid authorization artifact")

	// ErrRejected is returned when the backend declines the credentials or
	// the artifact exchange.
	ErrRejected = errors.New("auth: authentication rejected")

	// ErrInProgress is returned when a login or refresh is already running.
	ErrInProgress = errors.New("auth: authentication in progress")

	// ErrNoCredentials is returned from Login when the client was built
	// without phone and password.
	ErrNoCredentials = errors.New("auth: no credentials configured")
)

// State is the authentication lifecycle state.
type State int32

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateRefreshing
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	case StateLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// fallbackTokenLifetime covers tokens whose expiry cannot be read out of the
// JWT. Ninety days matches observed issuance.
const fallbackTokenLifetime = 90 * 24 * time.Hour

// Endpoints of the OAuth flow on the mobile BFF.
const (
	endpointPar     = "/bff/v2/oauth2/par"
	endpointToken   = "/bff/v2/oauth2/token"
	endpointRefresh = "/bff/v2/oauth2/refresh"
)

// Sender issues unauthenticated signed requests. Satisfied by
// *transport.Pipeline.
type Sender interface {
	Send(ctx context.Context, method, endpoint string, query url.Values, payload any) (json.RawMessage, error)
}

// Credentials is the phone/password pair used for credential login.
type Credentials struct {
	PhoneNumber string
	Password    string
}

// Manager owns the authentication state machine for one client.
type Manager struct {
	sender Sender
	sess   *session.Session
	creds  Credentials
	log    *zap.Logger

	group singleflight.Group

	mu    sync.Mutex
	state State
}

// New creates a Manager. creds may be zero when login goes through artifacts
// or a pre-issued token.
func New(sender Sender, sess *session.Session, creds Credentials, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		sender: sender,
		sess:   sess,
		creds:  Credentials{PhoneNumber: normalizePhone(creds.PhoneNumber), Password: creds.Password},
		log:    log,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Gate rejects API traffic while a login or refresh holds the state machine.
func (m *Manager) Gate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateAuthenticating || m.state == StateRefreshing {
		return ErrInProgress
	}
	return nil
}

// Login runs the credential flow: push the authorization request, then
// exchange the returned link for a token pair.
func (m *Manager) Login(ctx context.Context) error {
	if m.creds.PhoneNumber == "" || m.creds.Password == "" {
		return ErrNoCredentials
	}
	if err := m.begin(); err != nil {
		return err
	}

	payload, err := m.sender.Send(ctx, "POST", endpointPar, nil, map[string]string{
		"phoneNumber": m.creds.PhoneNumber,
		"password":    m.creds.Password,
		"deviceUuid":  m.sess.Identity.DeviceUUID,
		"clientUuid":  m.sess.Identity.ClientUUID,
	})
	if err != nil {
		m.fail()
		return mapRejection(err)
	}

	var par struct {
		RedirectURL string `json:"redirectUrl"`
	}
	if err := json.Unmarshal(payload, &par); err != nil || par.RedirectURL == "" {
		m.fail()
		return fmt.Errorf("%w: authorization response carried no redirect", ErrInvalidArtifact)
	}
	artifact, err := ParseArtifact(par.RedirectURL)
	if err != nil {
		m.fail()
		return err
	}

	if err := m.exchange(ctx, artifact.LinkID); err != nil {
		m.fail()
		return err
	}
	m.settle(StateAuthenticated)
	m.log.Info("logged in", zap.String("session", m.sess.ID))
	return nil
}

// LoginWithArtifact authenticates from an externally obtained artifact: an
// OAuth URL, a bare link ID, or a raw access token adopted directly.
func (m *Manager) LoginWithArtifact(ctx context.Context, raw string) error {
	artifact, err := ParseArtifact(raw)
	if err != nil {
		return err
	}
	if err := m.begin(); err != nil {
		return err
	}

	if artifact.AccessToken != "" {
		m.sess.Tokens.Set(session.TokenPair{
			AccessToken: artifact.AccessToken,
			ExpiresAt:   tokenExpiry(artifact.AccessToken),
		})
		m.settle(StateAuthenticated)
		return nil
	}

	if err := m.exchange(ctx, artifact.LinkID); err != nil {
		m.fail()
		return err
	}
	m.settle(StateAuthenticated)
	return nil
}

// Refresh rotates the token pair. Concurrent calls collapse into one
// backend request; every caller sees its result.
func (m *Manager) Refresh(ctx context.Context) error {
	pair, err := m.sess.Tokens.Current()
	if err != nil {
		return err
	}

	_, err, _ = m.group.Do("refresh", func() (interface{}, error) {
		m.setState(StateRefreshing)
		defer m.settle(StateAuthenticated)

		payload, err := m.sender.Send(ctx, "POST", endpointRefresh, nil, map[string]string{
			"refreshToken": pair.RefreshToken,
			"deviceUuid":   m.sess.Identity.DeviceUUID,
			"clientUuid":   m.sess.Identity.ClientUUID,
		})
		if err != nil {
			if isRejection(err) {
				// The refresh token itself was declined; drop everything.
				m.sess.Tokens.Invalidate()
				m.setState(StateUnauthenticated)
				return nil, transport.ErrTokenExpired
			}
			// Transient failure, the current pair stays usable.
			return nil, err
		}
		if err := m.adoptTokens(payload, pair.RefreshToken); err != nil {
			m.sess.Tokens.Invalidate()
			m.setState(StateUnauthenticated)
			return nil, err
		}
		m.log.Debug("token refreshed", zap.String("session", m.sess.ID))
		return nil, nil
	})
	return err
}

// Logout drops local credentials. The backend session is left to expire on
// its own; there is no remote revocation endpoint in the mobile flow.
func (m *Manager) Logout() {
	m.sess.Tokens.Invalidate()
	m.setState(StateLoggedOut)
}

// exchange trades a link ID for a token pair.
func (m *Manager) exchange(ctx context.Context, linkID string) error {
	query := url.Values{"id": {linkID}}
	payload, err := m.sender.Send(ctx, "POST", endpointToken, query, map[string]string{
		"deviceUuid": m.sess.Identity.DeviceUUID,
		"clientUuid": m.sess.Identity.ClientUUID,
	})
	if err != nil {
		return mapRejection(err)
	}
	return m.adoptTokens(payload, "")
}

// adoptTokens stores the token pair from an oauth payload. previousRefresh is
// kept when the backend rotates only the access token.
func (m *Manager) adoptTokens(payload json.RawMessage, previousRefresh string) error {
	var body struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		ExpiresIn    int64  `json:"expiresIn"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || body.AccessToken == "" {
		return fmt.Errorf("%w: token response carried no access token", ErrRejected)
	}
	refresh := body.RefreshToken
	if refresh == "" {
		refresh = previousRefresh
	}

	expiresAt := tokenExpiry(body.AccessToken)
	if body.ExpiresIn > 0 {
		expiresAt = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	}

	m.sess.Tokens.Set(session.TokenPair{
		AccessToken:  body.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	})
	return nil
}

// begin moves into Authenticating, rejecting concurrent flows.
func (m *Manager) begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateAuthenticating || m.state == StateRefreshing {
		return ErrInProgress
	}
	m.state = StateAuthenticating
	return nil
}

func (m *Manager) fail() { m.setState(StateUnauthenticated) }

// settle records the end state of a flow, unless the flow already failed
// back to Unauthenticated.
func (m *Manager) settle(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateUnauthenticated || m.state == StateLoggedOut {
		return
	}
	m.state = s
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// tokenExpiry reads exp out of the JWT without verifying it; the backend
// holds the signing key. Unreadable tokens get the fallback lifetime.
func tokenExpiry(accessToken string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return time.Now().Add(fallbackTokenLifetime)
}

// mapRejection folds backend declines into ErrRejected; transport-level
// failures (challenge, network, rate limit) pass through untouched.
func mapRejection(err error) error {
	if isRejection(err) {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return err
}

func isRejection(err error) bool {
	var apiErr *transport.APIError
	if errors.As(err, &apiErr) {
		return true
	}
	// A 401 on the oauth endpoints means the credentials were declined.
	return errors.Is(err, transport.ErrTokenExpired)
}

func normalizePhone(phone string) string {
	out := make([]byte, 0, len(phone))
	for i := 0; i < len(phone); i++ {
		if phone[i] == '-' || phone[i] == ' ' {
			continue
		}
		out = append(out, phone[i])
	}
	return string(out)
}
