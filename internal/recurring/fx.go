package recurring

import (
	"github.com/smallbiznis/pledgesync/internal/recurring/repository"
	"github.com/smallbiznis/pledgesync/internal/recurring/service"
	"go.uber.org/fx"
)

var Module = fx.Module("recurring.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
