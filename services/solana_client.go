package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"cynix/config"
	"cynix/models"
	"cynix/utils"
)

const defaultCommitment = "confirmed"

// SolanaRPC is the subset of the ledger JSON-RPC API the reader needs.
type SolanaRPC interface {
	GetAccountInfo(ctx context.Context, address string) (*models.AccountInfoValue, error)
	GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]models.SignatureInfo, error)
	GetTransaction(ctx context.Context, signature string) (*models.TransactionResult, error)
	GetTokenAccountsByOwner(ctx context.Context, owner, mint string) (*models.TokenAccountsResult, error)
}

type SolanaClient struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	requestID  atomic.Uint64
	logger     *zap.Logger
}

func NewSolanaClient(cfg *config.Config, logger *zap.Logger) *SolanaClient {
	timeout := cfg.SolanaTimeoutDuration()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &SolanaClient{
		endpoint: cfg.Solana.RPCURL,
		timeout:  timeout,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
		},
		maxRetries: cfg.Solana.MaxRetries,
		retryDelay: 200 * time.Millisecond,
		logger:     logger,
	}
}

// call performs one JSON-RPC request. Transport failures are retried up to
// maxRetries attempts in total; JSON-RPC errors are returned immediately.
func (c *SolanaClient) call(ctx context.Context, method string, params []any, result any) (err error) {
	start := time.Now()
	defer func() {
		utils.RPCDuration.WithLabelValues(method, utils.ResultLabel(err)).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := models.RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.requestID.Add(1),
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	attempts := c.maxRetries
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	delay := c.retryDelay
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return rpcUnavailable(method, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}

		var rpcResp *models.RPCResponse
		rpcResp, lastErr = c.post(ctx, jsonData)
		if lastErr != nil {
			c.logger.Debug("RPC attempt failed",
				zap.String("method", method),
				zap.Int("attempt", i+1),
				zap.Error(lastErr))
			continue
		}

		if rpcResp.Error != nil {
			return rpcUnavailable(method, fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message))
		}

		if result != nil && len(rpcResp.Result) > 0 {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return rpcUnavailable(method, fmt.Errorf("failed to unmarshal result: %w", err))
			}
		}
		return nil
	}

	return rpcUnavailable(method, lastErr)
}

func (c *SolanaClient) post(ctx context.Context, body []byte) (*models.RPCResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var rpcResp models.RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &rpcResp, nil
}

func rpcUnavailable(method string, cause error) error {
	return models.NewAppErrorWithCause(models.ErrRPCUnavailable, method+" failed", cause)
}

// GetAccountInfo returns nil when the account does not exist.
func (c *SolanaClient) GetAccountInfo(ctx context.Context, address string) (*models.AccountInfoValue, error) {
	var result models.AccountInfoResult
	params := []any{address, map[string]any{"encoding": "base64", "commitment": defaultCommitment}}
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}
	return result.Value, nil
}

func (c *SolanaClient) GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]models.SignatureInfo, error) {
	var result []models.SignatureInfo
	params := []any{address, map[string]any{"limit": limit, "commitment": defaultCommitment}}
	if err := c.call(ctx, "getSignaturesForAddress", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetTransaction returns nil when the transaction is unknown to the node.
func (c *SolanaClient) GetTransaction(ctx context.Context, signature string) (*models.TransactionResult, error) {
	var result *models.TransactionResult
	params := []any{signature, map[string]any{
		"encoding":                       "json",
		"commitment":                     defaultCommitment,
		"maxSupportedTransactionVersion": 0,
	}}
	if err := c.call(ctx, "getTransaction", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *SolanaClient) GetTokenAccountsByOwner(ctx context.Context, owner, mint string) (*models.TokenAccountsResult, error) {
	var result models.TokenAccountsResult
	params := []any{
		owner,
		map[string]any{"mint": mint},
		map[string]any{"encoding": "jsonParsed", "commitment": defaultCommitment},
	}
	if err := c.call(ctx, "getTokenAccountsByOwner", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
