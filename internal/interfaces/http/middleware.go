package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/roshkins/sputnik-dao-contract/pkg/logger"
	"github.com/roshkins/sputnik-dao-contract/pkg/metrics"
	"golang.org/x/time/rate"
)

func LoggingMiddleware(logger *logger.Logger, collector *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		// unmatched routes share one label to keep cardinality bounded
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		logger.Infow("Request processed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", latency,
			"clientIP", c.ClientIP(),
			"caller", c.GetHeader(CallerHeader),
			"userAgent", c.Request.UserAgent(),
			"error", c.Errors.ByType(gin.ErrorTypePrivate).String(),
		)
		if collector != nil {
			collector.RecordAPIRequest(c.Request.Method, path, c.Writer.Status(), latency)
		}
	}
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, "+CallerHeader)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func TimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func RecoveryMiddleware(logger *logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Errorw("Panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		)
		c.AbortWithStatusJSON(500, ErrorResponse{
			Error: "Internal server error",
			Code:  "INTERNAL",
		})
	})
}

// RateLimitMiddleware sheds load with 429 once the shared token bucket is empty.
// CallerMiddleware only lets requests through whose CallerHeader equals
// caller. An empty caller disables the check.
func CallerMiddleware(caller string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if caller != "" && c.GetHeader(CallerHeader) != caller {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				Error: "Caller is not allowed on this route",
				Code:  "FORBIDDEN_CALLER",
			})
			return
		}
		c.Next()
	}
}

func RateLimitMiddleware(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter != nil && !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "Too many requests",
				Code:  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}
