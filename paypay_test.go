package paypay

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	http "github.com/bogdanfinn/fhttp"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paypay-unofficial/paypay-mobile-go/auth"
)

// routeDoer serves scripted responses per path, with a per-path hit counter
// so a route can answer differently on consecutive calls.
type routeDoer struct {
	mu       sync.Mutex
	requests []*http.Request
	hits     map[string]int
	routes   map[string]func(hit int, req *http.Request) *http.Response
}

func newRouteDoer() *routeDoer {
	return &routeDoer{
		hits:   make(map[string]int),
		routes: make(map[string]func(int, *http.Request) *http.Response),
	}
}

func (d *routeDoer) route(path string, fn func(hit int, req *http.Request) *http.Response) {
	d.routes[path] = fn
}

func (d *routeDoer) Do(req *http.Request) (*http.Response, error) {
	d.mu.Lock()
	d.requests = append(d.requests, req)
	d.hits[req.URL.Path]++
	hit := d.hits[req.URL.Path]
	fn := d.routes[req.URL.Path]
	d.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("no route for %s", req.URL.Path)
	}
	return fn(hit, req), nil
}

func (d *routeDoer) sent() []*http.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func okEnvelope(payload string) *http.Response {
	return response(200, `{"header":{"resultCode":"S0000","resultMessage":"Success"},"payload":`+payload+`}`)
}

func always(resp func() *http.Response) func(int, *http.Request) *http.Response {
	return func(int, *http.Request) *http.Response { return resp() }
}

func issuedJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()})
	signed, err := token.SignedString([]byte("backend-key"))
	require.NoError(t, err)
	return signed
}

func oauthRoutes(t *testing.T, doer *routeDoer, accessToken string) {
	t.Helper()
	doer.route("/bff/v2/oauth2/par", always(func() *http.Response {
		return okEnvelope(`{"redirectUrl":"paypay://oauth2/l?id=TK4602"}`)
	}))
	doer.route("/bff/v2/oauth2/token", always(func() *http.Response {
		return okEnvelope(fmt.Sprintf(`{"accessToken":%q,"refreshToken":"refresh-1"}`, accessToken))
	}))
}

func newTestClient(t *testing.T, doer *routeDoer, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithHTTPClient(doer)}, opts...)
	client, err := New(opts...)
	require.NoError(t, err)
	return client
}

func TestLoginThenCall(t *testing.T) {
	doer := newRouteDoer()
	oauthRoutes(t, doer, issuedJWT(t, time.Now().Add(time.Hour)))
	doer.route("/bff/v2/getBalance", always(func() *http.Response {
		return okEnvelope(`{"allBalance":1500,"useableBalance":1200,"moneyLight":1000,"money":200,"points":300}`)
	}))

	client := newTestClient(t, doer, WithCredentials("080-1234-5678", "password"))
	require.NoError(t, client.Login(context.Background()))
	assert.Equal(t, auth.StateAuthenticated, client.AuthState())

	balance, err := client.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1500, balance.AllBalance)
	assert.Equal(t, 300, balance.Points)

	// The balance request carried the issued bearer and the signed headers.
	sent := doer.sent()
	last := sent[len(sent)-1]
	assert.Contains(t, last.Header.Get("Authorization"), "Bearer ")
	assert.NotEmpty(t, last.Header.Get("Signature"))
	assert.NotEmpty(t, last.Header.Get("Device-UUID"))
}

func TestAdoptedTokenCallsWithoutAuthTraffic(t *testing.T) {
	doer := newRouteDoer()
	doer.route("/bff/v2/getBalance", always(func() *http.Response {
		return okEnvelope(`{"allBalance":1000}`)
	}))

	client := newTestClient(t, doer, WithAccessToken(issuedJWT(t, time.Now().Add(time.Hour))))

	balance, err := client.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1000, balance.AllBalance)

	// The adopted token went straight to work: no par, token or refresh
	// traffic, just the one call.
	sent := doer.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "/bff/v2/getBalance", sent[0].URL.Path)
}

func TestExpiredBearerWithoutRefreshTokenFailsOnce(t *testing.T) {
	doer := newRouteDoer()
	doer.route("/bff/v2/getHistory", always(func() *http.Response {
		return response(401, `{"header":{"resultCode":"S0001"}}`)
	}))

	// Adopted tokens carry no refresh token, so there is nothing to fall
	// back on and no silent retry.
	client := newTestClient(t, doer, WithAccessToken(issuedJWT(t, time.Now().Add(time.Hour))))

	_, err := client.GetHistory(context.Background(), 5)

	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Len(t, doer.sent(), 1)
}

func TestCallBeforeLogin(t *testing.T) {
	client := newTestClient(t, newRouteDoer())

	_, err := client.GetBalance(context.Background())

	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestChallengeSolvedMidFlight(t *testing.T) {
	doer := newRouteDoer()
	doer.route("/bff/v2/getProfile", func(hit int, req *http.Request) *http.Response {
		if hit == 1 {
			return response(405, `{"nonce":"abc","difficulty":2,"key":"k1"}`)
		}
		return okEnvelope(`{"name":"Taro","externalUserId":"u-123"}`)
	})

	client := newTestClient(t, doer, WithAccessToken(issuedJWT(t, time.Now().Add(time.Hour))))

	profile, err := client.GetProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Taro", profile.Name)

	sent := doer.sent()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1].Header.Get("Cookie"), "aws-waf-token=")
}

func TestExpiredTokenRefreshedAndReplayed(t *testing.T) {
	freshToken := issuedJWT(t, time.Now().Add(time.Hour))
	doer := newRouteDoer()
	doer.route("/bff/v2/getProfile", func(hit int, req *http.Request) *http.Response {
		if strings.Contains(req.Header.Get("Authorization"), freshToken) {
			return okEnvelope(`{"name":"Taro","externalUserId":"u-123"}`)
		}
		return response(401, `{"header":{"resultCode":"S0001"}}`)
	})
	doer.route("/bff/v2/oauth2/refresh", always(func() *http.Response {
		return okEnvelope(fmt.Sprintf(`{"accessToken":%q,"refreshToken":"refresh-2"}`, freshToken))
	}))
	oauthRoutes(t, doer, issuedJWT(t, time.Now().Add(time.Minute)))

	client := newTestClient(t, doer, WithCredentials("080", "pw"))
	require.NoError(t, client.Login(context.Background()))

	profile, err := client.GetProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Taro", profile.Name)

	pair, err := client.Tokens()
	require.NoError(t, err)
	assert.Equal(t, freshToken, pair.AccessToken)
	assert.Equal(t, "refresh-2", pair.RefreshToken)
}

func TestAutoRefreshDisabledSurfacesExpiry(t *testing.T) {
	doer := newRouteDoer()
	doer.route("/bff/v2/getProfile", always(func() *http.Response {
		return response(401, `{"header":{"resultCode":"S0001"}}`)
	}))
	oauthRoutes(t, doer, issuedJWT(t, time.Now().Add(time.Minute)))

	client := newTestClient(t, doer, WithCredentials("080", "pw"), WithoutAutoRefresh())
	require.NoError(t, client.Login(context.Background()))
	loginTraffic := len(doer.sent())

	_, err := client.GetProfile(context.Background())

	// Expiry surfaces directly: one profile request, no refresh traffic.
	assert.ErrorIs(t, err, ErrTokenExpired)
	sent := doer.sent()
	require.Len(t, sent, loginTraffic+1)
	for _, req := range sent {
		assert.NotEqual(t, "/bff/v2/oauth2/refresh", req.URL.Path)
	}

	// The caller drives the recovery by hand.
	doer.route("/bff/v2/oauth2/refresh", always(func() *http.Response {
		return okEnvelope(fmt.Sprintf(`{"accessToken":%q,"refreshToken":"refresh-2"}`, issuedJWT(t, time.Now().Add(time.Hour))))
	}))
	doer.route("/bff/v2/getProfile", always(func() *http.Response {
		return okEnvelope(`{"name":"Taro","externalUserId":"u-123"}`)
	}))
	require.NoError(t, client.RefreshToken(context.Background()))
	profile, err := client.GetProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Taro", profile.Name)
}

func TestRefreshDeclinedSurfacesExpiry(t *testing.T) {
	doer := newRouteDoer()
	doer.route("/bff/v2/getProfile", always(func() *http.Response {
		return response(401, `{"header":{"resultCode":"S0001"}}`)
	}))
	doer.route("/bff/v2/oauth2/refresh", always(func() *http.Response {
		return response(400, `{"header":{"resultCode":"S0003","resultMessage":"invalid refresh token"}}`)
	}))
	oauthRoutes(t, doer, issuedJWT(t, time.Now().Add(time.Minute)))

	client := newTestClient(t, doer, WithCredentials("080", "pw"))
	require.NoError(t, client.Login(context.Background()))

	_, err := client.GetProfile(context.Background())

	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Equal(t, auth.StateUnauthenticated, client.AuthState())
	_, tokErr := client.Tokens()
	assert.ErrorIs(t, tokErr, ErrNotAuthenticated)
}

func TestAccessTokenAdoption(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	client := newTestClient(t, newRouteDoer(), WithAccessToken(issuedJWT(t, exp)))

	assert.Equal(t, auth.StateAuthenticated, client.AuthState())
	pair, err := client.Tokens()
	require.NoError(t, err)
	assert.WithinDuration(t, exp, pair.ExpiresAt, 2*time.Second)
}

func TestInvalidArtifact(t *testing.T) {
	client := newTestClient(t, newRouteDoer())

	err := client.LoginWithArtifact(context.Background(), "!!! not an artifact !!!")

	assert.ErrorIs(t, err, ErrInvalidAuthorizationArtifact)
}

func TestLogoutBlocksFurtherCalls(t *testing.T) {
	doer := newRouteDoer()
	client := newTestClient(t, doer, WithAccessToken(issuedJWT(t, time.Now().Add(time.Hour))))

	client.Logout()

	assert.Equal(t, auth.StateLoggedOut, client.AuthState())
	_, err := client.GetBalance(context.Background())
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Empty(t, doer.sent())
}

func TestStatsTrackRequestActivity(t *testing.T) {
	doer := newRouteDoer()
	doer.route("/bff/v2/getBalance", always(func() *http.Response {
		return okEnvelope(`{"allBalance":1000}`)
	}))
	client := newTestClient(t, doer, WithAccessToken(issuedJWT(t, time.Now().Add(time.Hour))))

	assert.Zero(t, client.Stats().Requests)

	_, err := client.GetBalance(context.Background())
	require.NoError(t, err)
	_, err = client.GetBalance(context.Background())
	require.NoError(t, err)

	stats := client.Stats()
	assert.Equal(t, int64(2), stats.Requests)
	assert.Less(t, stats.Idle, time.Second)
	assert.False(t, stats.CreatedAt.IsZero())
}

func TestDeviceIdentityReuse(t *testing.T) {
	const deviceUUID = "0f1e2d3c-4b5a-6978-8796-a5b4c3d2e1f0"
	client := newTestClient(t, newRouteDoer(), WithDeviceUUID(deviceUUID))

	assert.Equal(t, deviceUUID, client.Identity().DeviceUUID)
	assert.NotEmpty(t, client.Identity().ClientUUID)
}
