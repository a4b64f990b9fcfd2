package payment

import (
	"github.com/smallbiznis/pledgesync/internal/payment/adapters"
	"github.com/smallbiznis/pledgesync/internal/payment/adapters/gocardless"
	"github.com/smallbiznis/pledgesync/internal/payment/repository"
	"github.com/smallbiznis/pledgesync/internal/payment/webhook"
	"github.com/smallbiznis/pledgesync/internal/reconcile"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			gocardless.NewFactory(),
		)
	}),
	fx.Provide(adapters.NewClientRegistry),
	fx.Provide(func(e *reconcile.Engine) webhook.Reconciler { return e }),
	fx.Provide(webhook.NewDispatcher),
	fx.Provide(webhook.NewService),
)
