package events

import (
	"context"
	"strings"

	"github.com/smallbiznis/pledgesync/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(provide),
)

func provide(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (Publisher, error) {
	url := strings.TrimSpace(cfg.NATSURL)
	if url == "" {
		log.Info("event publishing disabled")
		return NewNoopPublisher(), nil
	}

	publisher, err := NewNatsPublisher(url, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			publisher.Close()
			return nil
		},
	})
	return publisher, nil
}
