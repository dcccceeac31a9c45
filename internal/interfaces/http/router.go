package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/roshkins/sputnik-dao-contract/internal/domain"
	"github.com/roshkins/sputnik-dao-contract/pkg/logger"
	"github.com/roshkins/sputnik-dao-contract/pkg/metrics"
	"golang.org/x/time/rate"
)

type RouterConfig struct {
	RequestTimeout time.Duration
	// RateLimit is requests per second across all clients; zero disables it.
	RateLimit float64
	RateBurst int
	// CustodyCallerID, when set, is the only caller accepted on the
	// custody transfer notification route.
	CustodyCallerID string
}

func NewRouter(service domain.StakingService, logger *logger.Logger, collector *metrics.Collector, cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}

	router.Use(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger, collector),
		CORSMiddleware(),
		RateLimitMiddleware(limiter),
		TimeoutMiddleware(cfg.RequestTimeout),
	)

	handler := NewHandler(service, logger)

	router.GET("/health", handler.GetHealth)
	router.GET("/ready", handler.GetReadiness)

	api := router.Group("/v1")
	{
		api.POST("/custody/on-transfer", CallerMiddleware(cfg.CustodyCallerID), handler.OnTransfer)

		api.POST("/registry", handler.Register)
		api.GET("/registry", handler.GetRegistry)
		api.GET("/registry/:token", handler.GetTokenWeight)

		api.POST("/delegate", handler.Delegate)
		api.POST("/undelegate", handler.Undelegate)
		api.POST("/withdraw", handler.Withdraw)
		api.GET("/withdrawals/:id", handler.GetWithdrawal)

		api.GET("/supply", handler.GetTotalSupply)
		api.GET("/voting-power", handler.GetTotalVotingPower)
		api.GET("/accounts/:id", handler.GetAccount)
		api.GET("/accounts/:id/balance", handler.GetBalance)
	}

	if collector != nil {
		router.GET("/metrics", gin.WrapH(collector.Handler()))
	}

	return router
}
