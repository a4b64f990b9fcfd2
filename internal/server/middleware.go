package server

import (
	"crypto/subtle"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/pledgesync/internal/observability/logger"
	"github.com/smallbiznis/pledgesync/internal/payment/adapters/gocardless"
	"go.uber.org/zap"
)

const bearerPrefix = "bearer "

// AdminRequired checks the static bearer token shared with the CMS.
func (s *Server) AdminRequired() gin.HandlerFunc {
	expected := []byte(strings.TrimSpace(s.cfg.AdminToken))
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok || len(expected) == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), expected) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}

// WebhookRateLimit throttles deliveries per processor before the signature
// is checked. Limiter failures let the request through so a Redis outage
// does not drop webhooks.
func (s *Server) WebhookRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.webhookLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		processorKey := strings.TrimSpace(c.Param("processor_id"))
		result, err := s.webhookLimiter.Allow(ctx, processorKey)
		if err != nil {
			logger.FromContext(ctx).Warn("webhook rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if result.Allowed {
			c.Next()
			return
		}

		if result.RetryAfter > 0 {
			seconds := int(math.Ceil(result.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(seconds))
		}
		logger.FromContext(ctx).Warn("webhook rate limited",
			zap.String("processor_key", processorKey),
			zap.Duration("retry_after", result.RetryAfter),
		)
		s.obsMetrics.RecordWebhookEvent(ctx, gocardless.ProviderName, "batch", "rate_limited")
		AbortWithError(c, ErrRateLimited)
	}
}
