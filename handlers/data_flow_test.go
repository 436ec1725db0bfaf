package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cynix/config"
	"cynix/middleware"
	"cynix/models"
	"cynix/services"
)

type stubWallet struct {
	balance, staked uint64
}

func (s stubWallet) GetTokenBalance(context.Context, string) (uint64, error) {
	return s.balance, nil
}

func (s stubWallet) GetStakingInfo(_ context.Context, wallet string) (*models.StakingInfo, error) {
	if s.staked == 0 {
		return nil, nil
	}
	return &models.StakingInfo{Address: wallet, Amount: s.staked}, nil
}

type dataFlow struct {
	echo    *echo.Echo
	logs    *services.RequestLogger
	fetches *atomic.Int32
	token   string
}

// newDataFlow wires the real gate, access service and data service over the
// in-memory store with a counting github fetcher.
func newDataFlow(t *testing.T, wallet stubWallet) *dataFlow {
	t.Helper()
	logger := zap.NewNop()
	store := services.NewMemoryStore()
	limiter := services.NewRateLimiter(store, 100, time.Minute)
	logs := services.NewRequestLogger(store, limiter, logger)
	verifier := services.NewCredentialVerifier(config.AuthConfig{JWTSecret: "flow-secret", TokenTTL: 1})
	access := services.NewAccessService(wallet, services.NewAccessCache(time.Minute), logger)

	fetches := &atomic.Int32{}
	fetchers := map[models.DataType]services.Fetcher{
		models.DataTypeGitHub: services.FetcherFunc(func(_ context.Context, params map[string]any) (any, error) {
			fetches.Add(1)
			return map[string]any{"repo": params["repo_url"], "stars": 7}, nil
		}),
	}
	data := services.NewDataService(access, store, logs, fetchers, nil, 300*time.Second, logger)

	gate := middleware.NewGate(verifier, limiter, logs, access, nil, logger)
	e := echo.New()
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)
	e.Use(gate.Middleware(), gate.Enforce())
	dh := NewDataHandlers(data, logs, access)
	e.GET(middleware.APIPrefix+"/data/:data_type", dh.GetRawData)

	token, err := verifier.Issue(testWallet)
	require.NoError(t, err)
	return &dataFlow{echo: e, logs: logs, fetches: fetches, token: token}
}

func (d *dataFlow) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set(middleware.HeaderAPIKey, d.token)
	rec := httptest.NewRecorder()
	d.echo.ServeHTTP(rec, req)
	return rec
}

func TestDataFlowSmallStakeIsForbidden(t *testing.T) {
	d := newDataFlow(t, stubWallet{balance: 100_000, staked: 200})

	rec := d.get("/api/v1/data/github?repo_url=https://github.com/a/b")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"status":"error","error":"insufficient stake"}`, rec.Body.String())
	assert.Zero(t, d.fetches.Load())

	ctx := context.Background()
	accessLog, err := d.logs.AccessLogs(ctx)
	require.NoError(t, err)
	assert.Empty(t, accessLog)

	requests, err := d.logs.RequestLogs(ctx)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, middleware.OutcomeRejectedForbidden, requests[0].Outcome)
}

func TestDataFlowFetchesThenServesCache(t *testing.T) {
	d := newDataFlow(t, stubWallet{balance: 1_000, staked: 6_000})

	first := d.get("/api/v1/data/github?repo_url=https://github.com/a/b")
	require.Equal(t, http.StatusOK, first.Code)
	second := d.get("/api/v1/data/github?repo_url=https://github.com/a/b")
	require.Equal(t, http.StatusOK, second.Code)

	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, int32(1), d.fetches.Load())

	accessLog, err := d.logs.AccessLogs(context.Background())
	require.NoError(t, err)
	require.Len(t, accessLog, 2)
	for _, e := range accessLog {
		assert.Equal(t, testWallet, e.WalletAddress)
		assert.Equal(t, models.DataTypeGitHub, e.DataType)
		assert.Equal(t, "https://github.com/a/b", e.Params["repo_url"])
	}
}

func TestDataFlowUnsupportedType(t *testing.T) {
	d := newDataFlow(t, stubWallet{staked: 6_000})

	rec := d.get("/api/v1/data/weather")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, d.fetches.Load())
}
