// Package custody talks to the token custody service that holds the staked NFTs.
package custody

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	resty "github.com/go-resty/resty/v2"
	"github.com/roshkins/sputnik-dao-contract/internal/domain"
	"github.com/roshkins/sputnik-dao-contract/pkg/config"
	"github.com/roshkins/sputnik-dao-contract/pkg/logger"
	"github.com/roshkins/sputnik-dao-contract/pkg/metrics"
	"golang.org/x/time/rate"
)

// ErrTransferRejected is returned when custody answered and refused the transfer.
var ErrTransferRejected = errors.New("custody rejected the transfer")

const (
	endpointTransfer     = "transfer"
	endpointTransferCall = "transfer_call"
)

type Client struct {
	baseURL     string
	httpClient  *resty.Client
	logger      *logger.Logger
	metrics     *metrics.Collector
	rateLimiter *rate.Limiter
}

func NewClient(cfg *config.Custody, log *logger.Logger, collector *metrics.Collector) *Client {
	httpClient := resty.New().
		SetTimeout(cfg.RequestTimeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.RetryDelay).
		SetRetryMaxWaitTime(cfg.RetryDelay * 3).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Only retry when custody cannot have acted on the request.
			if err != nil {
				return isDialError(err)
			}
			return r.StatusCode() == http.StatusServiceUnavailable || r.StatusCode() == http.StatusTooManyRequests
		})

	return &Client{
		baseURL:     cfg.BaseURL,
		httpClient:  httpClient,
		logger:      log,
		metrics:     collector,
		rateLimiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 10),
	}
}

// Transfer moves a token out of the staking account. A nil error means the
// transfer happened.
func (c *Client) Transfer(ctx context.Context, req domain.TransferRequest) error {
	_, err := c.post(ctx, endpointTransfer, "/v1/transfer", toRequest(req, ""))
	return err
}

// TransferAndNotify moves a token and has custody call the receiver with
// payload. It reports false when the receiver handed the token back.
func (c *Client) TransferAndNotify(ctx context.Context, req domain.TransferRequest, payload string) (bool, error) {
	body, err := c.post(ctx, endpointTransferCall, "/v1/transfer-call", toRequest(req, payload))
	if err != nil {
		return false, err
	}

	var result TransferCallResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return false, fmt.Errorf("%w: failed to unmarshal transfer-call response: %v", domain.ErrTransferOutcomeUnknown, err)
	}

	return result.Transferred, nil
}

func (c *Client) post(ctx context.Context, endpoint, path string, body TransferRequest) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %v", err)
	}

	url := c.baseURL + path
	c.logger.Debugw("Sending custody request", "url", url, "token", body.TokenID, "receiver", body.ReceiverID)

	start := time.Now()
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetBody(body).
		Post(url)

	success := err == nil && resp.IsSuccess()
	c.metrics.RecordCustodyRequest(endpoint, success, time.Since(start))

	if err != nil {
		if isDialError(err) {
			return nil, fmt.Errorf("failed to reach custody %s: %w", endpoint, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrTransferOutcomeUnknown, endpoint, err)
	}

	if resp.StatusCode() >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: %s returned status %d, body: %s",
			domain.ErrTransferOutcomeUnknown, endpoint, resp.StatusCode(), errorMessage(resp.Body()))
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: %s returned status %d, body: %s",
			ErrTransferRejected, endpoint, resp.StatusCode(), errorMessage(resp.Body()))
	}

	return resp.Body(), nil
}

func toRequest(req domain.TransferRequest, msg string) TransferRequest {
	return TransferRequest{
		ReceiverID: string(req.Receiver),
		TokenID:    string(req.Token),
		ApprovalID: req.ApprovalID,
		Memo:       req.Memo,
		Msg:        msg,
	}
}

// isDialError reports whether the request failed before a connection to
// custody existed, so custody never saw it.
func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func errorMessage(body []byte) string {
	var e ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return string(body)
}
