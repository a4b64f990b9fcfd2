package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/pledgesync/internal/clock"
	"github.com/smallbiznis/pledgesync/internal/config"
	contactdomain "github.com/smallbiznis/pledgesync/internal/contact/domain"
	obscontext "github.com/smallbiznis/pledgesync/internal/observability/context"
	"github.com/smallbiznis/pledgesync/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/pledgesync/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/pledgesync/internal/payment/domain"
	ppdomain "github.com/smallbiznis/pledgesync/internal/paymentprovider/domain"
	"github.com/smallbiznis/pledgesync/internal/reconcile"
	recurringdomain "github.com/smallbiznis/pledgesync/internal/recurring/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrConfirmerRequired = errors.New("import_confirmer_required")

const (
	pageSize         = 100
	importSource     = "GoCardless import"
	defaultFinancial = "Donation"
)

type Options struct {
	ProcessorID snowflake.ID `validate:"required"`
	// Since limits the walk to subscriptions created on or after it.
	Since *time.Time
	// ConfirmBeforeCreate asks the Confirmer before writing a new
	// recurring contribution.
	ConfirmBeforeCreate bool
	// Limit caps the number of subscriptions walked; zero means all.
	Limit int `validate:"gte=0"`
}

// Confirmer approves the creation of a local record for a remote
// subscription nobody knows about yet.
type Confirmer interface {
	Confirm(ctx context.Context, sub paymentdomain.Subscription, customer paymentdomain.Customer) (bool, error)
}

type ConfirmFunc func(ctx context.Context, sub paymentdomain.Subscription, customer paymentdomain.Customer) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, sub paymentdomain.Subscription, customer paymentdomain.Customer) (bool, error) {
	return f(ctx, sub, customer)
}

type Params struct {
	fx.In

	Log       *zap.Logger
	Cfg       config.Config
	Clock     clock.Clock
	Clients   reconcile.ClientSource
	Providers ppdomain.Service
	Contacts  contactdomain.Service
	Recurring recurringdomain.Service
	Engine    *reconcile.Engine
	Settings  *config.SettingsHolder
	Archiver  Archiver            `optional:"true"`
	Confirmer Confirmer           `optional:"true"`
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

// Importer walks every remote subscription of a processor and brings the
// local ledger up to date with its settled payments.
type Importer struct {
	log       *zap.Logger
	dir       string
	clock     clock.Clock
	clients   reconcile.ClientSource
	providers ppdomain.Service
	contacts  contactdomain.Service
	recurring recurringdomain.Service
	engine    *reconcile.Engine
	settings  *config.SettingsHolder
	archiver  Archiver
	confirmer Confirmer
	metrics   *obsmetrics.Metrics
	validate  *validator.Validate
}

func New(p Params) *Importer {
	settings := p.Settings
	if settings == nil {
		settings = config.NewStaticSettings(config.DefaultSettings())
	}
	dir := strings.TrimSpace(p.Cfg.ImportDir)
	if dir == "" {
		dir = "."
	}
	return &Importer{
		log:       p.Log.Named("importer"),
		dir:       dir,
		clock:     p.Clock,
		clients:   p.Clients,
		providers: p.Providers,
		contacts:  p.Contacts,
		recurring: p.Recurring,
		engine:    p.Engine,
		settings:  settings,
		archiver:  p.Archiver,
		confirmer: p.Confirmer,
		metrics:   p.Metrics,
		validate:  validator.New(),
	}
}

// WithConfirmer returns a copy of the importer that asks c before creating.
func (im *Importer) WithConfirmer(c Confirmer) *Importer {
	clone := *im
	clone.confirmer = c
	return &clone
}

// Run imports the processor's subscriptions. Per-subscription problems are
// logged in the returned Stats and the run carries on. The import is not
// resumable: a re-run starts over and relies on already-imported payments
// being skipped.
func (im *Importer) Run(ctx context.Context, opts Options) (*Stats, error) {
	if err := im.validate.Struct(opts); err != nil {
		return nil, err
	}
	if opts.ConfirmBeforeCreate && im.confirmer == nil {
		return nil, ErrConfirmerRequired
	}

	processor, err := im.providers.Get(ctx, opts.ProcessorID)
	if err != nil {
		return nil, err
	}
	client, err := im.clients.Client(ctx, processor.ID)
	if err != nil {
		return nil, err
	}

	startedAt := im.clock.Now()
	stats := &Stats{
		RunID:       ulid.Make().String(),
		ProcessorID: processor.ID.String(),
		Since:       opts.Since,
		StartedAt:   startedAt,
		Entries:     []Entry{},
	}
	name := summaryName(processor.Name, startedAt)
	stats.SummaryPath = filepath.Join(im.dir, name)
	if err := checkSummaryFree(stats.SummaryPath); err != nil {
		return nil, err
	}
	snap := &snapshotter{path: filepath.Join(im.dir, partialName(name)), last: startedAt}

	log, closeLog, err := logger.Tee(im.log, logger.FileConfig{Path: filepath.Join(im.dir, "import.log")})
	if err != nil {
		return nil, err
	}
	defer func() { _ = closeLog() }()

	ctx = obscontext.WithJob(obscontext.WithProcessorID(ctx, processor.ID.String()), "import")
	log = logger.WithContext(ctx, log).With(zap.String("run_id", stats.RunID))
	log.Info("import started",
		zap.Bool("confirm_before_create", opts.ConfirmBeforeCreate),
		zap.Int("limit", opts.Limit),
	)

	runErr := im.walk(ctx, log, client, processor, opts, stats, snap)
	if runErr != nil {
		stats.Interrupted = true
	}

	finishedAt := im.clock.Now()
	stats.FinishedAt = &finishedAt
	body, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return stats, errors.Join(runErr, err)
	}
	if err := writeSummary(stats.SummaryPath, body); err != nil {
		return stats, errors.Join(runErr, err)
	}
	snap.remove()

	if im.archiver != nil {
		key, err := im.archiver.Archive(ctx, name, body)
		if err != nil {
			log.Error("summary archive failed", zap.Error(err))
			runErr = errors.Join(runErr, err)
		} else {
			stats.ArchiveKey = key
		}
	}

	im.metrics.RecordImport(ctx, "subscription", ActionCreated, stats.Subscriptions.Created)
	im.metrics.RecordImport(ctx, "subscription", ActionMatched, stats.Subscriptions.Matched)
	im.metrics.RecordImport(ctx, "subscription", ActionSkipped, stats.Subscriptions.Skipped)
	im.metrics.RecordImport(ctx, "subscription", ActionFailed, stats.Subscriptions.Failed)

	log.Info("import finished",
		zap.Int("subscriptions_found", stats.Subscriptions.Found),
		zap.Int("subscriptions_created", stats.Subscriptions.Created),
		zap.Int("subscriptions_matched", stats.Subscriptions.Matched),
		zap.Int("subscriptions_skipped", stats.Subscriptions.Skipped),
		zap.Int("subscriptions_failed", stats.Subscriptions.Failed),
		zap.Int("payments_added", stats.Payments.Added),
		zap.Int64("amount_imported", stats.AmountImported),
		zap.String("summary", stats.SummaryPath),
	)
	return stats, runErr
}

func (im *Importer) walk(
	ctx context.Context,
	log *zap.Logger,
	client paymentdomain.ProviderClient,
	processor *ppdomain.ProviderConfig,
	opts Options,
	stats *Stats,
	snap *snapshotter,
) error {
	filter := paymentdomain.SubscriptionFilter{CreatedAtGTE: opts.Since, Limit: pageSize}
	walked := 0
	for {
		page, err := client.ListSubscriptions(ctx, filter)
		if err != nil {
			return fmt.Errorf("list subscriptions: %w", err)
		}
		for _, sub := range page.Items {
			if opts.Limit > 0 && walked >= opts.Limit {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			walked++

			entry := im.importSubscription(ctx, log, client, processor, sub, opts)
			stats.add(entry)

			if now := im.clock.Now(); snap.due(now) {
				if err := snap.write(stats, now); err != nil {
					log.Warn("progress snapshot failed", zap.Error(err))
				}
			}
		}
		if page.After == "" {
			return nil
		}
		filter.After = page.After
	}
}

func (im *Importer) importSubscription(
	ctx context.Context,
	log *zap.Logger,
	client paymentdomain.ProviderClient,
	processor *ppdomain.ProviderConfig,
	sub paymentdomain.Subscription,
	opts Options,
) Entry {
	entry := Entry{SubscriptionID: sub.ID, Status: string(sub.Status)}
	log = log.With(zap.String("subscription_id", sub.ID))

	fail := func(action string, err error) Entry {
		entry.Action = action
		entry.Reason = err.Error()
		if action == ActionFailed {
			log.Error("subscription import failed", zap.Error(err))
		} else {
			log.Warn("subscription skipped", zap.Error(err))
		}
		return entry
	}

	payments, err := settledPayments(ctx, client, sub.ID)
	if err != nil {
		return fail(ActionFailed, err)
	}
	entry.PaymentsFound = len(payments)

	target, err := recurringdomain.MapExternalStatus(string(sub.Status))
	if err != nil {
		return fail(ActionFailed, err)
	}

	rc, err := im.recurring.FindLocal(ctx, sub.ID)
	switch {
	case err == nil:
		if _, err := im.recurring.ApplyStatus(ctx, rc, target, "import"); err != nil {
			return fail(ActionFailed, err)
		}
		entry.Action = ActionMatched
	case errors.Is(err, paymentdomain.ErrUnresolvedSubscription):
		rc, err = im.create(ctx, client, processor, sub, target, len(payments) == 0, opts)
		if err != nil {
			switch {
			case errors.Is(err, errDeclined):
				return fail(ActionDeclined, err)
			case errors.Is(err, paymentdomain.ErrAmbiguousContact),
				errors.Is(err, paymentdomain.ErrDuplicateExternalReference):
				return fail(ActionSkipped, err)
			default:
				return fail(ActionFailed, err)
			}
		}
		entry.Action = ActionCreated
	default:
		return fail(ActionFailed, err)
	}
	entry.RecurringID = rc.ID.String()

	if len(payments) > 0 {
		result, err := im.engine.ImportPayments(ctx, rc, payments)
		entry.PaymentsAdded = result.Added
		entry.PaymentsSkipped = result.Skipped
		entry.Amount = result.Amount
		if err != nil {
			return fail(ActionFailed, err)
		}
	}

	log.Info("subscription imported",
		zap.String("action", entry.Action),
		zap.String("recurring_id", entry.RecurringID),
		zap.Int("payments_added", entry.PaymentsAdded),
		zap.Int("payments_skipped", entry.PaymentsSkipped),
	)
	return entry
}

var errDeclined = errors.New("declined_by_operator")

// create writes the recurring contribution for an unmatched subscription.
// The first-payment slot is opened only when there is no history to apply.
func (im *Importer) create(
	ctx context.Context,
	client paymentdomain.ProviderClient,
	processor *ppdomain.ProviderConfig,
	sub paymentdomain.Subscription,
	target recurringdomain.Status,
	noHistory bool,
	opts Options,
) (*recurringdomain.RecurringContribution, error) {
	customer, err := payer(ctx, client, sub)
	if err != nil {
		return nil, err
	}
	if opts.ConfirmBeforeCreate {
		ok, err := im.confirmer.Confirm(ctx, sub, *customer)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errDeclined
		}
	}

	contactID, err := im.contacts.ResolveByEmail(ctx, *customer)
	if err != nil {
		return nil, err
	}

	externalID := sub.ID
	rc := &recurringdomain.RecurringContribution{
		ProcessorID:            processor.ID,
		ContactID:              contactID,
		ExternalSubscriptionID: &externalID,
		Amount:                 sub.Amount,
		Currency:               sub.Currency,
		FrequencyUnit:          frequencyUnit(sub.IntervalUnit),
		FrequencyInterval:      sub.Interval,
		Description:            sub.Name,
		FinancialType:          defaultFinancial,
		Source:                 importSource,
		Status:                 target,
		IsTest:                 processor.IsTest,
		StartDate:              sub.StartTime(),
		EndDate:                sub.EndTime(),
	}
	membershipType, _ := im.settings.Get().MembershipTypeFor(sub.Name)
	err = im.engine.SetupRecurring(ctx, rc, reconcile.SetupOptions{
		MembershipType: membershipType,
		OpenSlot:       noHistory && !target.ClosesPendingSlot(),
	})
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// payer follows subscription -> mandate -> customer.
func payer(ctx context.Context, client paymentdomain.ProviderClient, sub paymentdomain.Subscription) (*paymentdomain.Customer, error) {
	if sub.Links.Mandate == "" {
		return nil, fmt.Errorf("%w: subscription %s has no mandate", paymentdomain.ErrStaleEvent, sub.ID)
	}
	mandate, err := client.GetMandate(ctx, sub.Links.Mandate)
	if err != nil {
		return nil, fmt.Errorf("get mandate %s: %w", sub.Links.Mandate, err)
	}
	customer, err := client.GetCustomer(ctx, mandate.Links.Customer)
	if err != nil {
		return nil, fmt.Errorf("get customer %s: %w", mandate.Links.Customer, err)
	}
	return customer, nil
}

// settledPayments pages through a subscription's payments and keeps the
// confirmed and paid out ones. Failed and pending history is not imported.
func settledPayments(ctx context.Context, client paymentdomain.ProviderClient, subscriptionID string) ([]paymentdomain.Payment, error) {
	var out []paymentdomain.Payment
	filter := paymentdomain.PaymentFilter{Subscription: subscriptionID, Limit: pageSize}
	for {
		page, err := client.ListPayments(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("list payments: %w", err)
		}
		for _, p := range page.Items {
			if p.HasStatus(paymentdomain.SettledPaymentStatuses...) {
				out = append(out, p)
			}
		}
		if page.After == "" {
			return out, nil
		}
		filter.After = page.After
	}
}

func frequencyUnit(intervalUnit string) string {
	switch strings.ToLower(strings.TrimSpace(intervalUnit)) {
	case "weekly":
		return "week"
	case "yearly":
		return "year"
	default:
		return "month"
	}
}
