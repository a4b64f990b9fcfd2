package membership

import (
	"github.com/smallbiznis/pledgesync/internal/membership/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("membership.repository",
	fx.Provide(repository.Provide),
)
