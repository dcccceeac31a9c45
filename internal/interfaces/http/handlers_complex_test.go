package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/roshkins/sputnik-dao-contract/internal/domain"
	mocks "github.com/roshkins/sputnik-dao-contract/internal/testutil"
	"github.com/roshkins/sputnik-dao-contract/pkg/logger"
	"github.com/roshkins/sputnik-dao-contract/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrNotOwner, http.StatusForbidden},
		{domain.ErrUnauthorizedCallback, http.StatusForbidden},
		{domain.ErrInvalidToken, http.StatusBadRequest},
		{domain.ErrInvalidMessage, http.StatusBadRequest},
		{domain.ErrInvalidAmount, http.StatusBadRequest},
		{domain.ErrInvalidAccount, http.StatusBadRequest},
		{domain.ErrAccountNotFound, http.StatusNotFound},
		{domain.ErrWithdrawalNotFound, http.StatusNotFound},
		{domain.ErrInsufficientBalance, http.StatusConflict},
		{domain.ErrInsufficientDelegation, http.StatusConflict},
		{domain.ErrCooldownActive, http.StatusConflict},
		{domain.ErrAmountOverflow, http.StatusUnprocessableEntity},
		{domain.ErrNotInitialized, http.StatusServiceUnavailable},
		{fmt.Errorf("delegate: %w", domain.ErrCooldownActive), http.StatusConflict},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestHandler_PersistenceFailureIsMasked(t *testing.T) {
	mockService := new(mocks.MockStakingService)
	router := setupRouter(mockService)

	mockService.On("Delegate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(fmt.Errorf("failed to persist changes: %w", errors.New("pq: password=secret rejected")))

	w := doRequest(router, http.MethodPost, "/v1/delegate", "alice.near", `{"target_id":"bob.near","token_id":"nft-1","amount":"1"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "Internal server error", resp.Error)
	assert.Equal(t, "INTERNAL", resp.Code)
	assert.NotContains(t, w.Body.String(), "secret")
}

func newTestRouter(service domain.StakingService, collector *metrics.Collector, cfg RouterConfig) *gin.Engine {
	router := NewRouter(service, logger.NewNop(), collector, cfg)
	gin.SetMode(gin.TestMode)
	return router
}

func TestRouter_Routes(t *testing.T) {
	mockService := new(mocks.MockStakingService)
	collector := metrics.NewCollector()
	router := newTestRouter(mockService, collector, RouterConfig{RequestTimeout: time.Second})

	mockService.On("TotalSupply").Return(domain.Amount(1))
	mockService.On("TotalVotingPower").Return(domain.Amount(2))

	for _, path := range []string{"/health", "/v1/supply", "/v1/voting-power"} {
		w := doRequest(router, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := doRequest(router, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "staking_api_requests_total")

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.RequestCount.WithLabelValues(http.MethodGet, "/v1/supply", "OK")))

	w = doRequest(router, http.MethodGet, "/v1/unknown", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.RequestCount.WithLabelValues(http.MethodGet, "unmatched", "Not Found")))
}

func TestRouter_CompletionHookIsNotRouted(t *testing.T) {
	mockService := new(mocks.MockStakingService)
	router := newTestRouter(mockService, nil, RouterConfig{})

	for _, path := range []string{"/v1/withdrawals/complete", "/v1/complete-withdrawal", "/v1/custody/resolve"} {
		w := doRequest(router, http.MethodPost, path, "staking.near", `{}`)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	router := newTestRouter(new(mocks.MockStakingService), nil, RouterConfig{})

	w := doRequest(router, http.MethodOptions, "/v1/delegate", "", "")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), CallerHeader)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestRouter_RateLimit(t *testing.T) {
	mockService := new(mocks.MockStakingService)
	mockService.On("TotalSupply").Return(domain.Amount(0))
	router := newTestRouter(mockService, nil, RouterConfig{RateLimit: 0.001, RateBurst: 2})

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		codes = append(codes, doRequest(router, http.MethodGet, "/v1/supply", "", "").Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RecoveryMiddleware(logger.NewNop()))
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := doRequest(router, http.MethodGet, "/panic", "", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL", decodeError(t, w).Code)
}

func TestTimeoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name         string
		timeout      time.Duration
		wantDeadline bool
	}{
		{"with timeout", 50 * time.Millisecond, true},
		{"disabled", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hasDeadline bool
			router := gin.New()
			router.Use(TimeoutMiddleware(tt.timeout))
			router.GET("/", func(c *gin.Context) {
				_, hasDeadline = c.Request.Context().Deadline()
				c.Status(http.StatusOK)
			})

			doRequest(router, http.MethodGet, "/", "", "")
			assert.Equal(t, tt.wantDeadline, hasDeadline)
		})
	}
}

func TestRateLimitMiddleware_NilLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(nil))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/", "", "").Code)
	}
}

func TestRateLimitMiddleware_Concurrent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(rate.NewLimiter(rate.Every(time.Hour), 5)))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	var mu sync.Mutex
	counts := map[int]int{}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code := doRequest(router, http.MethodGet, "/", "", "").Code
			mu.Lock()
			counts[code]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, counts[http.StatusOK])
	assert.Equal(t, 15, counts[http.StatusTooManyRequests])
}

func TestHandler_ContextPropagation(t *testing.T) {
	mockService := new(mocks.MockStakingService)
	router := newTestRouter(mockService, nil, RouterConfig{RequestTimeout: time.Minute})

	mockService.On("OnTransfer", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), mock.Anything).Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/custody/on-transfer",
		strings.NewReader(`{"sender_id":"alice.near","token_id":"nft-1"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestRouter_OnTransferCallerGate(t *testing.T) {
	tests := []struct {
		name       string
		allowed    string
		caller     string
		wantStatus int
	}{
		{"gate disabled", "", "", http.StatusOK},
		{"custody caller", "nft.custody", "nft.custody", http.StatusOK},
		{"missing caller", "nft.custody", "", http.StatusForbidden},
		{"other caller", "nft.custody", "alice.near", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(mocks.MockStakingService)
			mockService.On("OnTransfer", mock.Anything, mock.Anything).Return(nil).Maybe()
			router := newTestRouter(mockService, nil, RouterConfig{CustodyCallerID: tt.allowed})

			w := doRequest(router, http.MethodPost, "/v1/custody/on-transfer", tt.caller, `{"sender_id":"alice.near","token_id":"nft-1"}`)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusForbidden {
				assert.Equal(t, "FORBIDDEN_CALLER", decodeError(t, w).Code)
				mockService.AssertNotCalled(t, "OnTransfer", mock.Anything, mock.Anything)
			}
		})
	}
}
