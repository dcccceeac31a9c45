// Package governance forwards delegation changes to the proposal tallying service.
package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	resty "github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/roshkins/sputnik-dao-contract/internal/domain"
	"github.com/roshkins/sputnik-dao-contract/pkg/config"
	"github.com/roshkins/sputnik-dao-contract/pkg/logger"
	"golang.org/x/time/rate"
)

// IdempotencyKeyHeader carries one key per forward. Retries of the same
// forward reuse it so governance applies the delta once.
const IdempotencyKeyHeader = "Idempotency-Key"

type Client struct {
	baseURL     string
	httpClient  *resty.Client
	logger      *logger.Logger
	rateLimiter *rate.Limiter
}

func NewClient(cfg *config.Governance, log *logger.Logger) *Client {
	httpClient := resty.New().
		SetTimeout(cfg.RequestTimeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.RetryDelay).
		SetRetryMaxWaitTime(cfg.RetryDelay * 3).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500 || r.StatusCode() == 429
		})

	return &Client{
		baseURL:     cfg.BaseURL,
		httpClient:  httpClient,
		logger:      log,
		rateLimiter: rate.NewLimiter(rate.Every(50*time.Millisecond), 20),
	}
}

func (c *Client) RegisterDelegation(ctx context.Context, account domain.AccountID) error {
	return c.post(ctx, "/v1/delegations/register", DelegationRequest{AccountID: string(account)})
}

func (c *Client) Delegate(ctx context.Context, account domain.AccountID, amount domain.Amount) error {
	return c.post(ctx, "/v1/delegations/delegate", DelegationRequest{AccountID: string(account), Amount: amount.String()})
}

func (c *Client) Undelegate(ctx context.Context, account domain.AccountID, amount domain.Amount) error {
	return c.post(ctx, "/v1/delegations/undelegate", DelegationRequest{AccountID: string(account), Amount: amount.String()})
}

func (c *Client) post(ctx context.Context, path string, body DelegationRequest) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	url := c.baseURL + path
	key := uuid.NewString()
	c.logger.Debugw("Forwarding to governance", "url", url, "account", body.AccountID, "amount", body.Amount, "idempotencyKey", key)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader(IdempotencyKeyHeader, key).
		SetBody(body).
		Post(url)
	if err != nil {
		return fmt.Errorf("failed to call governance %s: %w", path, err)
	}

	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusNoContent {
		var e ErrorResponse
		msg := string(resp.Body())
		if json.Unmarshal(resp.Body(), &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode(), msg)
	}

	return nil
}
