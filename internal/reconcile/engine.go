package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pledgesync/internal/clock"
	"github.com/smallbiznis/pledgesync/internal/config"
	contributiondomain "github.com/smallbiznis/pledgesync/internal/contribution/domain"
	"github.com/smallbiznis/pledgesync/internal/events"
	membershipdomain "github.com/smallbiznis/pledgesync/internal/membership/domain"
	"github.com/smallbiznis/pledgesync/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/pledgesync/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/pledgesync/internal/payment/domain"
	recurringdomain "github.com/smallbiznis/pledgesync/internal/recurring/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrMissingTemplate means a repeat payment arrived for a recurring
// contribution with no contribution to copy from.
var ErrMissingTemplate = errors.New("missing_template_contribution")

// ClientSource hands out the provider client of a processor.
type ClientSource interface {
	Client(ctx context.Context, processorID snowflake.ID) (paymentdomain.ProviderClient, error)
}

type Outcome string

const (
	OutcomeSlotCompleted   Outcome = "slot_completed"
	OutcomeRepeatCreated   Outcome = "repeat_created"
	OutcomeAlreadyRecorded Outcome = "already_recorded"
	OutcomeSlotFailed      Outcome = "slot_failed"
	OutcomeLateFailure     Outcome = "late_failure"
	OutcomeFailureCreated  Outcome = "failure_created"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Clients       ClientSource
	Recurring     recurringdomain.Service
	RecurringRepo recurringdomain.Repository
	Contributions contributiondomain.Repository
	Memberships   membershipdomain.Repository
	Settings      *config.SettingsHolder
	Publisher     events.Publisher    `optional:"true"`
	Metrics       *obsmetrics.Metrics `optional:"true"`
}

// Engine applies provider payment and subscription state to the local ledger.
type Engine struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	clients       ClientSource
	recurring     recurringdomain.Service
	recurringRepo recurringdomain.Repository
	contributions contributiondomain.Repository
	memberships   membershipdomain.Repository
	settings      *config.SettingsHolder
	publisher     events.Publisher
	metrics       *obsmetrics.Metrics
}

func New(p Params) *Engine {
	publisher := p.Publisher
	if publisher == nil {
		publisher = events.NewNoopPublisher()
	}
	settings := p.Settings
	if settings == nil {
		settings = config.NewStaticSettings(config.DefaultSettings())
	}
	return &Engine{
		db:            p.DB,
		log:           p.Log.Named("reconcile.engine"),
		genID:         p.GenID,
		clock:         p.Clock,
		clients:       p.Clients,
		recurring:     p.Recurring,
		recurringRepo: p.RecurringRepo,
		contributions: p.Contributions,
		memberships:   p.Memberships,
		settings:      settings,
		publisher:     publisher,
		metrics:       p.Metrics,
	}
}

// ReconcilePayment re-fetches the payment and records it against the
// recurring contribution of its subscription. A payment whose current status
// is not in expected, or that has no subscription, fails with ErrStaleEvent.
func (e *Engine) ReconcilePayment(ctx context.Context, processorID snowflake.ID, paymentID string, expected ...paymentdomain.PaymentStatus) (Outcome, error) {
	log := logger.WithContext(ctx, e.log).With(zap.String("payment_id", paymentID))

	client, err := e.clients.Client(ctx, processorID)
	if err != nil {
		return "", err
	}
	payment, err := client.GetPayment(ctx, paymentID)
	if err != nil {
		return "", fmt.Errorf("get payment %s: %w", paymentID, err)
	}
	if !payment.HasStatus(expected...) {
		return "", fmt.Errorf("%w: payment %s is %s", paymentdomain.ErrStaleEvent, payment.ID, payment.Status)
	}
	if payment.Links.Subscription == "" {
		return "", fmt.Errorf("%w: payment %s has no subscription", paymentdomain.ErrStaleEvent, payment.ID)
	}

	rc, err := e.recurring.FindLocal(ctx, payment.Links.Subscription)
	if err != nil {
		return "", err
	}
	log = log.With(zap.String("recurring_id", rc.ID.String()))

	var outcome Outcome
	switch {
	case payment.HasStatus(paymentdomain.SettledPaymentStatuses...):
		var written *contributiondomain.Contribution
		outcome, written, err = e.recordCompleted(ctx, rc, *payment, completeOptions{clearOverdue: true})
		if err == nil && outcome != OutcomeAlreadyRecorded {
			e.afterCompleted(ctx, rc, written)
		}
	case payment.HasStatus(paymentdomain.PaymentFailed):
		outcome, err = e.recordFailed(ctx, rc, *payment)
	default:
		return "", fmt.Errorf("%w: payment %s status %s is not reconcilable", paymentdomain.ErrStaleEvent, payment.ID, payment.Status)
	}
	if err != nil {
		e.metrics.RecordReconcile(ctx, "payment."+string(payment.Status), reasonFor(err))
		return "", err
	}

	e.metrics.RecordReconcile(ctx, "payment."+string(payment.Status), string(outcome))
	log.Info("payment reconciled", zap.String("outcome", string(outcome)))
	return outcome, nil
}

// SyncSubscription re-fetches the subscription and applies its mapped status.
// It reports whether the local record changed.
func (e *Engine) SyncSubscription(ctx context.Context, processorID snowflake.ID, subscriptionID string, expected ...paymentdomain.SubscriptionStatus) (bool, error) {
	client, err := e.clients.Client(ctx, processorID)
	if err != nil {
		return false, err
	}
	sub, err := client.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return false, fmt.Errorf("get subscription %s: %w", subscriptionID, err)
	}
	if len(expected) > 0 && !slices.Contains(expected, sub.Status) {
		return false, fmt.Errorf("%w: subscription %s is %s", paymentdomain.ErrStaleEvent, sub.ID, sub.Status)
	}

	rc, err := e.recurring.FindLocal(ctx, sub.ID)
	if err != nil {
		return false, err
	}
	target, err := recurringdomain.MapExternalStatus(string(sub.Status))
	if err != nil {
		logger.WithContext(ctx, e.log).Error("subscription status has no local mapping",
			zap.String("subscription_id", sub.ID),
			zap.String("status", string(sub.Status)),
		)
		return false, err
	}

	changed, err := e.recurring.ApplyStatus(ctx, rc, target, "subscription."+string(sub.Status))
	if err != nil {
		return false, err
	}
	reason := "unchanged"
	if changed {
		reason = "status_changed"
	}
	e.metrics.RecordReconcile(ctx, "subscription."+string(sub.Status), reason)
	return changed, nil
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, paymentdomain.ErrStaleEvent):
		return "stale"
	case errors.Is(err, paymentdomain.ErrUnresolvedSubscription):
		return "unresolved"
	case errors.Is(err, paymentdomain.ErrDuplicateExternalReference):
		return "duplicate"
	case errors.Is(err, ErrMissingTemplate):
		return "missing_template"
	default:
		return "error"
	}
}
