package cli

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pledgesync/internal/checkout"
	"github.com/smallbiznis/pledgesync/internal/clock"
	"github.com/smallbiznis/pledgesync/internal/config"
	"github.com/smallbiznis/pledgesync/internal/contact"
	"github.com/smallbiznis/pledgesync/internal/contribution"
	"github.com/smallbiznis/pledgesync/internal/events"
	"github.com/smallbiznis/pledgesync/internal/importer"
	"github.com/smallbiznis/pledgesync/internal/membership"
	"github.com/smallbiznis/pledgesync/internal/observability"
	"github.com/smallbiznis/pledgesync/internal/payment"
	"github.com/smallbiznis/pledgesync/internal/paymentprovider"
	"github.com/smallbiznis/pledgesync/internal/ratelimit"
	"github.com/smallbiznis/pledgesync/internal/reconcile"
	"github.com/smallbiznis/pledgesync/internal/recurring"
	"github.com/smallbiznis/pledgesync/internal/scheduler"
	"github.com/smallbiznis/pledgesync/pkg/db"
	"go.uber.org/fx"
)

// infrastructure is what every command needs before touching the ledger.
func infrastructure() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
	)
}

// services wires the ledger services, the GoCardless client stack and the
// jobs that run on top of them.
func services() fx.Option {
	return fx.Options(
		events.Module,
		ratelimit.Module,
		paymentprovider.Module,
		contact.Module,
		contribution.Module,
		membership.Module,
		recurring.Module,
		payment.Module,
		reconcile.Module,
		importer.Module,
		checkout.Module,
		scheduler.Module,
	)
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
