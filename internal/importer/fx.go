package importer

import (
	"context"

	"github.com/smallbiznis/pledgesync/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("importer",
	fx.Provide(provideArchiver),
	fx.Provide(New),
)

func provideArchiver(cfg config.Config) (Archiver, error) {
	archiver, err := NewS3Archiver(context.Background(), cfg)
	if err != nil || archiver == nil {
		return nil, err
	}
	return archiver, nil
}
