package contribution

import (
	"github.com/smallbiznis/pledgesync/internal/contribution/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("contribution.repository",
	fx.Provide(repository.Provide),
)
