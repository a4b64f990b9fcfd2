package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	obsmetrics "github.com/smallbiznis/pledgesync/internal/observability/metrics"
)

const keyJobLock = "pledgesync:job:%s:%s"

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Locker is a single-owner redis lock. A nil Locker grants every lock,
// which is how single-process deployments without redis behave.
type Locker struct {
	client *redis.Client
	script *redis.Script
	ttl    time.Duration
}

func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Locker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
		ttl:    ttl,
	}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}

// WithJobLock runs fn while holding the lock for job on scope. It returns
// obsmetrics.ErrJobLockHeld without calling fn when another process owns it.
func (l *Locker) WithJobLock(ctx context.Context, job, scope string, fn func(ctx context.Context) error) error {
	if l == nil {
		return fn(ctx)
	}
	key := JobLockKey(job, scope)
	token, ok, err := l.TryLock(ctx, key, l.ttl)
	if err != nil {
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", key, obsmetrics.ErrJobLockHeld)
	}
	defer func() {
		// Release must run even when ctx has been cancelled.
		_ = l.Release(context.WithoutCancel(ctx), key, token)
	}()
	return fn(ctx)
}

func JobLockKey(job, scope string) string {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		scope = "all"
	}
	return fmt.Sprintf(keyJobLock, strings.TrimSpace(job), scope)
}
