// Package reconciletest wires the ledger packages over an in-memory
// database for tests.
package reconciletest

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pledgesync/internal/clock"
	"github.com/smallbiznis/pledgesync/internal/config"
	contactdomain "github.com/smallbiznis/pledgesync/internal/contact/domain"
	contactrepo "github.com/smallbiznis/pledgesync/internal/contact/repository"
	contactservice "github.com/smallbiznis/pledgesync/internal/contact/service"
	contributiondomain "github.com/smallbiznis/pledgesync/internal/contribution/domain"
	contributionrepo "github.com/smallbiznis/pledgesync/internal/contribution/repository"
	"github.com/smallbiznis/pledgesync/internal/events"
	membershipdomain "github.com/smallbiznis/pledgesync/internal/membership/domain"
	membershiprepo "github.com/smallbiznis/pledgesync/internal/membership/repository"
	"github.com/smallbiznis/pledgesync/internal/payment/providertest"
	ppdomain "github.com/smallbiznis/pledgesync/internal/paymentprovider/domain"
	pprepo "github.com/smallbiznis/pledgesync/internal/paymentprovider/repository"
	ppservice "github.com/smallbiznis/pledgesync/internal/paymentprovider/service"
	"github.com/smallbiznis/pledgesync/internal/reconcile"
	recurringdomain "github.com/smallbiznis/pledgesync/internal/recurring/domain"
	recurringrepo "github.com/smallbiznis/pledgesync/internal/recurring/repository"
	recurringservice "github.com/smallbiznis/pledgesync/internal/recurring/service"
	"github.com/smallbiznis/pledgesync/internal/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	WebhookSecret = "mock_webhook_key"
	ConfigSecret  = "test-config-secret"
)

var Epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type Harness struct {
	DB            *gorm.DB
	Log           *zap.Logger
	Node          *snowflake.Node
	Clock         *clock.FakeClock
	Config        config.Config
	Settings      *config.SettingsHolder
	Client        *providertest.FakeClient
	Events        *events.Recorder
	ProcessorID   snowflake.ID
	Providers     ppdomain.Service
	Contacts      contactdomain.Service
	Recurring     recurringdomain.Service
	RecurringRepo recurringdomain.Repository
	Contributions contributiondomain.Repository
	Memberships   membershipdomain.Repository
	Engine        *reconcile.Engine
}

func New(t testing.TB) *Harness {
	t.Helper()

	h := &Harness{
		DB:            testutil.NewDB(t),
		Log:           testutil.Logger(t),
		Node:          testutil.NewNode(t),
		Clock:         clock.NewFakeClock(Epoch),
		Config:        config.Config{ProcessorConfigSecret: ConfigSecret},
		Settings:      config.NewStaticSettings(config.DefaultSettings()),
		Client:        providertest.NewFakeClient(),
		Events:        &events.Recorder{},
		RecurringRepo: recurringrepo.Provide(),
		Contributions: contributionrepo.Provide(),
		Memberships:   membershiprepo.Provide(),
	}

	h.Providers = ppservice.New(ppservice.Params{
		DB:    h.DB,
		Log:   h.Log,
		GenID: h.Node,
		Repo:  pprepo.Provide(),
		Cfg:   h.Config,
		Clock: h.Clock,
	})
	processor, err := h.Providers.Create(context.Background(), ppdomain.CreateRequest{
		Name:     "Direct Debit",
		Provider: ppdomain.ProviderGoCardless,
		IsTest:   true,
		Credentials: ppdomain.Credentials{
			AccessToken:   "sandbox_token",
			WebhookSecret: WebhookSecret,
			Environment:   "sandbox",
		},
	})
	if err != nil {
		t.Fatalf("create processor: %v", err)
	}
	h.ProcessorID = processor.ID

	h.Contacts = contactservice.New(contactservice.Params{
		DB:    h.DB,
		Log:   h.Log,
		GenID: h.Node,
		Repo:  contactrepo.Provide(),
		Clock: h.Clock,
	})
	h.Recurring = recurringservice.New(recurringservice.Params{
		DB:            h.DB,
		Log:           h.Log,
		Repo:          h.RecurringRepo,
		Contributions: h.Contributions,
		Clock:         h.Clock,
		Publisher:     h.Events,
	})
	h.Engine = reconcile.New(reconcile.Params{
		DB:            h.DB,
		Log:           h.Log,
		GenID:         h.Node,
		Clock:         h.Clock,
		Clients:       providertest.Clients{h.ProcessorID: h.Client},
		Recurring:     h.Recurring,
		RecurringRepo: h.RecurringRepo,
		Contributions: h.Contributions,
		Memberships:   h.Memberships,
		Settings:      h.Settings,
		Publisher:     h.Events,
	})
	return h
}

type RecurringOptions struct {
	SubscriptionID string
	Amount         int64
	Status         recurringdomain.Status
	OpenSlot       bool
	MembershipType string
}

// NewRecurring writes a recurring contribution for a fresh contact.
func (h *Harness) NewRecurring(t testing.TB, opts RecurringOptions) *recurringdomain.RecurringContribution {
	t.Helper()
	ctx := context.Background()

	now := h.Clock.Now()
	contact := contactdomain.Contact{ID: h.Node.Generate(), CreatedAt: now, UpdatedAt: now}
	if err := h.DB.Create(&contact).Error; err != nil {
		t.Fatalf("create contact: %v", err)
	}

	amount := opts.Amount
	if amount == 0 {
		amount = 1000
	}
	rc := &recurringdomain.RecurringContribution{
		ProcessorID:       h.ProcessorID,
		ContactID:         contact.ID,
		Amount:            amount,
		Currency:          "GBP",
		FrequencyUnit:     "month",
		FrequencyInterval: 1,
		FinancialType:     "Donation",
		Source:            "test",
		Status:            recurringdomain.StatusPending,
		IsTest:            true,
	}
	if opts.SubscriptionID != "" {
		id := opts.SubscriptionID
		rc.ExternalSubscriptionID = &id
	}
	if err := h.Engine.SetupRecurring(ctx, rc, reconcile.SetupOptions{
		OpenSlot:       opts.OpenSlot,
		MembershipType: opts.MembershipType,
	}); err != nil {
		t.Fatalf("setup recurring: %v", err)
	}
	if opts.Status != "" && opts.Status != rc.Status {
		h.SetStatus(t, rc.ID, opts.Status)
		rc.Status = opts.Status
	}
	return rc
}

func (h *Harness) SetStatus(t testing.TB, id snowflake.ID, status recurringdomain.Status) {
	t.Helper()
	err := h.DB.Model(&recurringdomain.RecurringContribution{}).
		Where("id = ?", id).
		Update("status", status).Error
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
}

func (h *Harness) Reload(t testing.TB, id snowflake.ID) *recurringdomain.RecurringContribution {
	t.Helper()
	rc, err := h.RecurringRepo.FindByID(context.Background(), h.DB, id)
	if err != nil || rc == nil {
		t.Fatalf("reload recurring %s: %v", id, err)
	}
	return rc
}

func (h *Harness) ContributionsOf(t testing.TB, id snowflake.ID) []contributiondomain.Contribution {
	t.Helper()
	items, err := h.Contributions.ListByRecurring(context.Background(), h.DB, id)
	if err != nil {
		t.Fatalf("list contributions: %v", err)
	}
	return items
}

func (h *Harness) PaymentCount(t testing.TB, id snowflake.ID) int64 {
	t.Helper()
	var count int64
	err := h.DB.Raw(
		`SELECT COUNT(*) FROM contribution_payments p
		 JOIN contributions c ON c.id = p.contribution_id
		 WHERE c.recurring_contribution_id = ?`,
		id,
	).Scan(&count).Error
	if err != nil {
		t.Fatalf("count payments: %v", err)
	}
	return count
}
