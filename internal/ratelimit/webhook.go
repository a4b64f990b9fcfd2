package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/pledgesync/internal/config"
)

const keyWebhookProcessor = "pledgesync:webhook:%s"

// WebhookLimiter throttles webhook deliveries per processor path segment.
type WebhookLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewWebhookLimiter(cfg config.Config, bucket *TokenBucket) *WebhookLimiter {
	if bucket == nil || cfg.WebhookRate <= 0 || cfg.WebhookBurst <= 0 {
		return nil
	}
	return &WebhookLimiter{bucket: bucket, rate: cfg.WebhookRate, burst: cfg.WebhookBurst}
}

func (l *WebhookLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow reports whether another delivery for processorKey may proceed.
// The legacy path without a processor id shares the "legacy" bucket.
func (l *WebhookLimiter) Allow(ctx context.Context, processorKey string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	processorKey = strings.TrimSpace(processorKey)
	if processorKey == "" {
		processorKey = "legacy"
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyWebhookProcessor, processorKey), l.rate, l.burst)
}
