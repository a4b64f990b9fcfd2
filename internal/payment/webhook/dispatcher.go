package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pledgesync/internal/clock"
	obscontext "github.com/smallbiznis/pledgesync/internal/observability/context"
	"github.com/smallbiznis/pledgesync/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/pledgesync/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/pledgesync/internal/payment/domain"
	ppdomain "github.com/smallbiznis/pledgesync/internal/paymentprovider/domain"
	"github.com/smallbiznis/pledgesync/internal/reconcile"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Reconciler is the part of the reconciliation engine the dispatcher drives.
type Reconciler interface {
	ReconcilePayment(ctx context.Context, processorID snowflake.ID, paymentID string, expected ...paymentdomain.PaymentStatus) (reconcile.Outcome, error)
	SyncSubscription(ctx context.Context, processorID snowflake.ID, subscriptionID string, expected ...paymentdomain.SubscriptionStatus) (bool, error)
}

// Result reports what happened to each event id of one batch. Ignored events
// are not part of the processed set.
type Result struct {
	Processed  []string `json:"processed"`
	Ignored    []string `json:"ignored"`
	Duplicates []string `json:"duplicates"`
	Failed     []string `json:"failed"`
}

type handlerFunc func(ctx context.Context, processorID snowflake.ID, event paymentdomain.Event) error

type DispatcherParams struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       paymentdomain.Repository
	Reconciler Reconciler
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

// Dispatcher routes verified events to their handler, once per event id.
type Dispatcher struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     paymentdomain.Repository
	metrics  *obsmetrics.Metrics
	handlers map[paymentdomain.EventKey]handlerFunc
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	d := &Dispatcher{
		db:      p.DB,
		log:     p.Log.Named("payment.dispatcher"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
	d.handlers = map[paymentdomain.EventKey]handlerFunc{
		{ResourceType: paymentdomain.ResourcePayments, Action: paymentdomain.ActionConfirmed}:      paymentHandler(p.Reconciler, paymentdomain.PaymentConfirmed, paymentdomain.PaymentPaidOut),
		{ResourceType: paymentdomain.ResourcePayments, Action: paymentdomain.ActionFailed}:         paymentHandler(p.Reconciler, paymentdomain.PaymentFailed),
		{ResourceType: paymentdomain.ResourceSubscriptions, Action: paymentdomain.ActionCancelled}: subscriptionHandler(p.Reconciler, paymentdomain.SubscriptionCancelled),
		{ResourceType: paymentdomain.ResourceSubscriptions, Action: paymentdomain.ActionFinished}:  subscriptionHandler(p.Reconciler, paymentdomain.SubscriptionFinished),
	}
	return d
}

// Handles reports whether the (resource_type, action) pair has a handler.
func (d *Dispatcher) Handles(key paymentdomain.EventKey) bool {
	_, ok := d.handlers[key]
	return ok
}

// Dispatch runs the events of one batch sequentially, in array order.
func (d *Dispatcher) Dispatch(ctx context.Context, processor ppdomain.ProviderConfig, events []paymentdomain.Event) Result {
	ctx = obscontext.WithProcessorID(ctx, processor.ID.String())
	log := logger.WithContext(ctx, d.log)
	result := Result{
		Processed:  []string{},
		Ignored:    []string{},
		Duplicates: []string{},
		Failed:     []string{},
	}
	seen := make(map[string]struct{}, len(events))

	for _, event := range events {
		key := event.Key()
		handler, ok := d.handlers[key]
		if !ok {
			log.Debug("webhook event ignored",
				zap.String("event_id", event.ID),
				zap.String("event_type", key.String()),
			)
			d.metrics.RecordWebhookEvent(ctx, processor.Provider, key.String(), "ignored")
			result.Ignored = append(result.Ignored, event.ID)
			continue
		}
		if _, dup := seen[event.ID]; dup {
			result.Duplicates = append(result.Duplicates, event.ID)
			continue
		}
		seen[event.ID] = struct{}{}

		record, fresh, err := d.claim(ctx, processor, event)
		if err != nil {
			log.Error("webhook event not recorded", zap.String("event_id", event.ID), zap.Error(err))
			d.metrics.RecordWebhookEvent(ctx, processor.Provider, key.String(), "error")
			result.Failed = append(result.Failed, event.ID)
			continue
		}
		if !fresh {
			log.Info("webhook event already processed", zap.String("event_id", event.ID))
			d.metrics.RecordWebhookEvent(ctx, processor.Provider, key.String(), "duplicate")
			result.Duplicates = append(result.Duplicates, event.ID)
			continue
		}

		err = handler(ctx, processor.ID, event)
		switch {
		case err == nil:
			d.markProcessed(ctx, record)
			d.metrics.RecordWebhookEvent(ctx, processor.Provider, key.String(), "processed")
			result.Processed = append(result.Processed, event.ID)
		case paymentdomain.IsBusinessDrop(err):
			log.Warn("webhook event dropped",
				zap.String("event_id", event.ID),
				zap.String("event_type", key.String()),
				zap.Error(err),
			)
			d.markProcessed(ctx, record)
			d.metrics.RecordWebhookEvent(ctx, processor.Provider, key.String(), "dropped")
			result.Processed = append(result.Processed, event.ID)
		default:
			log.Error("webhook event failed",
				zap.String("event_id", event.ID),
				zap.String("event_type", key.String()),
				zap.Error(err),
			)
			if markErr := d.repo.MarkFailed(ctx, d.db, record.ID, err.Error()); markErr != nil {
				log.Error("mark webhook event failed", zap.String("event_id", event.ID), zap.Error(markErr))
			}
			d.metrics.RecordWebhookEvent(ctx, processor.Provider, key.String(), "failed")
			result.Failed = append(result.Failed, event.ID)
		}
	}
	return result
}

// claim records the event, or picks up an earlier record that never
// finished. fresh is false when the event was already processed.
func (d *Dispatcher) claim(ctx context.Context, processor ppdomain.ProviderConfig, event paymentdomain.Event) (*paymentdomain.EventRecord, bool, error) {
	payload := datatypes.JSON(event.Raw)
	if len(payload) == 0 {
		payload = datatypes.JSON("{}")
	}
	key := event.Key()
	record := &paymentdomain.EventRecord{
		ID:              d.genID.Generate(),
		ProcessorID:     processor.ID,
		Provider:        processor.Provider,
		ProviderEventID: event.ID,
		ResourceType:    key.ResourceType,
		Action:          key.Action,
		Payload:         payload,
		ReceivedAt:      d.clock.Now(),
	}
	inserted, err := d.repo.InsertEvent(ctx, d.db, record)
	if err != nil {
		return nil, false, err
	}
	if inserted {
		return record, true, nil
	}

	existing, err := d.repo.FindEvent(ctx, d.db, processor.ID, event.ID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("event %s vanished after conflict", event.ID)
	}
	if existing.ProcessedAt != nil {
		return existing, false, nil
	}
	return existing, true, nil
}

func (d *Dispatcher) markProcessed(ctx context.Context, record *paymentdomain.EventRecord) {
	if err := d.repo.MarkProcessed(ctx, d.db, record.ID, d.clock.Now()); err != nil {
		logger.WithContext(ctx, d.log).Error("mark webhook event processed",
			zap.String("event_id", record.ProviderEventID),
			zap.Error(err),
		)
	}
}

func paymentHandler(r Reconciler, expected ...paymentdomain.PaymentStatus) handlerFunc {
	return func(ctx context.Context, processorID snowflake.ID, event paymentdomain.Event) error {
		if event.Links.Payment == "" {
			return fmt.Errorf("%w: event %s has no payment link", paymentdomain.ErrStaleEvent, event.ID)
		}
		_, err := r.ReconcilePayment(ctx, processorID, event.Links.Payment, expected...)
		return err
	}
}

func subscriptionHandler(r Reconciler, expected ...paymentdomain.SubscriptionStatus) handlerFunc {
	return func(ctx context.Context, processorID snowflake.ID, event paymentdomain.Event) error {
		if event.Links.Subscription == "" {
			return fmt.Errorf("%w: event %s has no subscription link", paymentdomain.ErrStaleEvent, event.ID)
		}
		_, err := r.SyncSubscription(ctx, processorID, event.Links.Subscription, expected...)
		if errors.Is(err, paymentdomain.ErrResourceNotFound) {
			return fmt.Errorf("%w: %v", paymentdomain.ErrStaleEvent, err)
		}
		return err
	}
}
