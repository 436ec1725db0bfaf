package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cynix/config"
	"cynix/models"
	"cynix/services"
)

const testWallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

type fakeAccess struct {
	info  *models.WalletAccessInfo
	err   error
	asked []string
}

func (f *fakeAccess) CheckAccess(_ context.Context, wallet string) (*models.WalletAccessInfo, error) {
	f.asked = append(f.asked, wallet)
	if f.err != nil {
		return nil, f.err
	}
	info := *f.info
	info.WalletAddress = wallet
	return &info, nil
}

type brokenStore struct {
	*services.MemoryStore
}

func (brokenStore) Incr(context.Context, string) (int64, error) {
	return 0, errors.New("connection refused")
}

type gateFixture struct {
	echo     *echo.Echo
	gate     *Gate
	logs     *services.RequestLogger
	verifier *services.CredentialVerifier
	access   *fakeAccess
}

func newGateFixture(t *testing.T, store services.Store, limit int64) *gateFixture {
	t.Helper()
	logger := zap.NewNop()
	limiter := services.NewRateLimiter(store, limit, time.Minute)
	logs := services.NewRequestLogger(store, limiter, logger)
	verifier := services.NewCredentialVerifier(config.AuthConfig{JWTSecret: "test-secret", TokenTTL: 1})
	access := &fakeAccess{info: &models.WalletAccessInfo{
		TotalTokens:  20_000,
		AccessLevels: services.Evaluate(20_000, 0),
	}}

	gate := NewGate(verifier, limiter, logs, access, nil, logger)
	fixed := time.Unix(1_700_000_010, 0)
	gate.now = func() time.Time { return fixed }

	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(logger)
	e.Use(RequestIDMiddleware(), gate.Middleware(), CORSMiddleware(nil), gate.Enforce())
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"identity": IdentityFrom(c)})
	})
	api := e.Group(APIPrefix)
	api.GET("/ping", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"wallet": WalletFrom(c), "identity": IdentityFrom(c)})
	})
	api.GET("/boom", func(c echo.Context) error {
		return errors.New("database password leaked")
	})
	api.GET("/panic", func(c echo.Context) error {
		panic("nil map write")
	})
	api.GET("/analytics", func(c echo.Context) error {
		return c.JSON(http.StatusOK, AccessFrom(c))
	}, gate.RequireTier(models.TierAPI))

	return &gateFixture{echo: e, gate: gate, logs: logs, verifier: verifier, access: access}
}

func (f *gateFixture) do(t *testing.T, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	return f.send(t, http.MethodGet, path, header)
}

func (f *gateFixture) send(t *testing.T, method, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}

func (f *gateFixture) token(t *testing.T) string {
	t.Helper()
	tok, err := f.verifier.Issue(testWallet)
	require.NoError(t, err)
	return tok
}

func TestCredential(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, Credential(req))

	req.Header.Set(echo.HeaderAuthorization, "Bearer abc")
	assert.Equal(t, "abc", Credential(req))

	req.Header.Set(HeaderAPIKey, "key")
	assert.Equal(t, "key", Credential(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Basic dXNlcjpwYXNz")
	assert.Empty(t, Credential(req))
}

func TestOutcomeFor(t *testing.T) {
	assert.Equal(t, OutcomeRejectedAuth, OutcomeFor(http.StatusUnauthorized))
	assert.Equal(t, OutcomeRejectedRateLimit, OutcomeFor(http.StatusTooManyRequests))
	assert.Equal(t, OutcomeRejectedForbidden, OutcomeFor(http.StatusForbidden))
	assert.Equal(t, OutcomeAdmitted, OutcomeFor(http.StatusOK))
	assert.Equal(t, OutcomeAdmitted, OutcomeFor(http.StatusBadRequest))
}

func TestGateAdmitsValidCredential(t *testing.T) {
	f := newGateFixture(t, services.NewMemoryStore(), 10)

	rec := f.do(t, "/api/v1/ping", http.Header{HeaderAPIKey: {f.token(t)}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"wallet":"`+testWallet+`"`)
	assert.Contains(t, rec.Body.String(), `"identity":"`+testWallet+`"`)
	assert.Equal(t, "10", rec.Header().Get(HeaderRateLimitLimit))
	assert.Equal(t, "9", rec.Header().Get(HeaderRateLimitRemaining))
	assert.Equal(t, "1700000040", rec.Header().Get(HeaderRateLimitReset))

	logs, err := f.logs.RequestLogs(context.Background())
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, OutcomeAdmitted, logs[0].Outcome)
	assert.Equal(t, testWallet, logs[0].Identity)
	assert.Equal(t, http.StatusOK, logs[0].StatusCode)
	assert.Equal(t, "Unknown", logs[0].Country)
	assert.NotEmpty(t, logs[0].RequestID)
	assert.Equal(t, rec.Header().Get(echo.HeaderXRequestID), logs[0].RequestID)
}

func TestGateRejectsMissingCredential(t *testing.T) {
	f := newGateFixture(t, services.NewMemoryStore(), 10)

	rec := f.do(t, "/api/v1/ping", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"status":"error","error":"missing credential"}`, rec.Body.String())
	// rate limit headers are sent on rejections too
	assert.Equal(t, "9", rec.Header().Get(HeaderRateLimitRemaining))

	logs, err := f.logs.RequestLogs(context.Background())
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, OutcomeRejectedAuth, logs[0].Outcome)
	assert.Equal(t, "192.0.2.1", logs[0].Identity)
}

func TestGateRejectsBadSignature(t *testing.T) {
	f := newGateFixture(t, services.NewMemoryStore(), 10)
	other := services.NewCredentialVerifier(config.AuthConfig{JWTSecret: "someone-else", TokenTTL: 1})
	tok, err := other.Issue(testWallet)
	require.NoError(t, err)

	rec := f.do(t, "/api/v1/ping", http.Header{echo.HeaderAuthorization: {"Bearer " + tok}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotContains(t, rec.Body.String(), "someone-else")
}

func TestGateRateLimitsPerWallet(t *testing.T) {
	f := newGateFixture(t, services.NewMemoryStore(), 2)
	h := http.Header{HeaderAPIKey: {f.token(t)}}

	assert.Equal(t, http.StatusOK, f.do(t, "/api/v1/ping", h).Code)
	assert.Equal(t, http.StatusOK, f.do(t, "/api/v1/ping", h).Code)

	rec := f.do(t, "/api/v1/ping", h)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get(HeaderRateLimitRemaining))
	assert.JSONEq(t, `{"status":"error","error":"rate limit exceeded"}`, rec.Body.String())

	// anonymous callers have their own IP bucket
	assert.Equal(t, http.StatusUnauthorized, f.do(t, "/api/v1/ping", nil).Code)

	logs, err := f.logs.RequestLogs(context.Background())
	require.NoError(t, err)
	require.Len(t, logs, 4)
	assert.Equal(t, OutcomeRejectedAuth, logs[0].Outcome)
	assert.Equal(t, OutcomeRejectedRateLimit, logs[1].Outcome)
	assert.Equal(t, http.StatusTooManyRequests, logs[1].StatusCode)
}

func TestGateFailsOpenWhenStoreDown(t *testing.T) {
	f := newGateFixture(t, brokenStore{services.NewMemoryStore()}, 1)
	h := http.Header{HeaderAPIKey: {f.token(t)}}

	for i := 0; i < 3; i++ {
		rec := f.do(t, "/api/v1/ping", h)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "1", rec.Header().Get(HeaderRateLimitRemaining))
	}
}

func TestGateHidesInternalErrors(t *testing.T) {
	f := newGateFixture(t, services.NewMemoryStore(), 10)

	rec := f.do(t, "/api/v1/boom", http.Header{HeaderAPIKey: {f.token(t)}})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"status":"error","error":"internal server error"}`, rec.Body.String())

	logs, err := f.logs.RequestLogs(context.Background())
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, http.StatusInternalServerError, logs[0].StatusCode)
}

func TestGateLogsPanickingHandler(t *testing.T) {
	f := newGateFixture(t, services.NewMemoryStore(), 10)

	rec := f.do(t, "/api/v1/panic", http.Header{HeaderAPIKey: {f.token(t)}})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"status":"error","error":"internal server error"}`, rec.Body.String())
	assert.Equal(t, "9", rec.Header().Get(HeaderRateLimitRemaining))

	logs, err := f.logs.RequestLogs(context.Background())
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, http.StatusInternalServerError, logs[0].StatusCode)
	assert.Equal(t, "/api/v1/panic", logs[0].Path)
	assert.Equal(t, testWallet, logs[0].Identity)
}

func TestGateCoversPathsOutsideAPI(t *testing.T) {
	f := newGateFixture(t, services.NewMemoryStore(), 3)

	// public routes need no credential but still count and carry headers
	rec := f.do(t, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"identity":"192.0.2.1"}`, rec.Body.String())
	assert.Equal(t, "3", rec.Header().Get(HeaderRateLimitLimit))
	assert.Equal(t, "2", rec.Header().Get(HeaderRateLimitRemaining))
	assert.Equal(t, "1700000040", rec.Header().Get(HeaderRateLimitReset))

	rec = f.do(t, "/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "1", rec.Header().Get(HeaderRateLimitRemaining))

	rec = f.send(t, http.MethodOptions, "/api/v1/ping", http.Header{
		echo.HeaderOrigin:                     {"https://app.example"},
		echo.HeaderAccessControlRequestMethod: {http.MethodGet},
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "0", rec.Header().Get(HeaderRateLimitRemaining))
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	rec = f.do(t, "/", http.Header{echo.HeaderOrigin: {"https://app.example"}})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"status":"error","error":"rate limit exceeded"}`, rec.Body.String())
	// rejections still carry CORS headers so browsers can read them
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	logs, err := f.logs.RequestLogs(context.Background())
	require.NoError(t, err)
	require.Len(t, logs, 4)
	assert.Equal(t, OutcomeRejectedRateLimit, logs[0].Outcome)
	assert.Equal(t, http.MethodOptions, logs[1].Method)
	assert.Equal(t, http.StatusNotFound, logs[2].StatusCode)
	assert.Equal(t, OutcomeAdmitted, logs[3].Outcome)
}

func TestProtected(t *testing.T) {
	assert.True(t, Protected("/api/v1"))
	assert.True(t, Protected("/api/v1/data/github"))
	assert.False(t, Protected("/api/v10"))
	assert.False(t, Protected("/health"))
}

func TestRequireTier(t *testing.T) {
	f := newGateFixture(t, services.NewMemoryStore(), 10)
	h := http.Header{HeaderAPIKey: {f.token(t)}}

	rec := f.do(t, "/api/v1/analytics", h)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_tokens":20000`)
	assert.Equal(t, []string{testWallet}, f.access.asked)

	const other = "So11111111111111111111111111111111111111112"
	f.access.info = &models.WalletAccessInfo{TotalTokens: 500, AccessLevels: services.Evaluate(500, 0)}
	rec = f.do(t, "/api/v1/analytics?wallet_address="+other, h)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"status":"error","error":"insufficient token balance"}`, rec.Body.String())
	assert.Equal(t, other, f.access.asked[1])

	logs, err := f.logs.RequestLogs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejectedForbidden, logs[0].Outcome)
}

func TestRequireTierPropagatesInvalidAddress(t *testing.T) {
	f := newGateFixture(t, services.NewMemoryStore(), 10)
	f.access.err = models.NewAppError(models.ErrInvalidAddress, "invalid wallet address")

	rec := f.do(t, "/api/v1/analytics?wallet_address=nope", http.Header{HeaderAPIKey: {f.token(t)}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"status":"error","error":"invalid wallet address"}`, rec.Body.String())
}
