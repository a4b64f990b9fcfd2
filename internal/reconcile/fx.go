package reconcile

import (
	"github.com/smallbiznis/pledgesync/internal/payment/adapters"
	"go.uber.org/fx"
)

var Module = fx.Module("reconcile.engine",
	fx.Provide(func(r *adapters.ClientRegistry) ClientSource { return r }),
	fx.Provide(New),
)
