package importer_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smallbiznis/pledgesync/internal/config"
	contactdomain "github.com/smallbiznis/pledgesync/internal/contact/domain"
	contributiondomain "github.com/smallbiznis/pledgesync/internal/contribution/domain"
	"github.com/smallbiznis/pledgesync/internal/importer"
	paymentdomain "github.com/smallbiznis/pledgesync/internal/payment/domain"
	"github.com/smallbiznis/pledgesync/internal/payment/providertest"
	"github.com/smallbiznis/pledgesync/internal/reconcile/reconciletest"
	recurringdomain "github.com/smallbiznis/pledgesync/internal/recurring/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type archiveCall struct {
	name string
	body []byte
}

type memoryArchiver struct {
	calls []archiveCall
}

func (m *memoryArchiver) Archive(_ context.Context, name string, body []byte) (string, error) {
	m.calls = append(m.calls, archiveCall{name: name, body: body})
	return "imports/" + name, nil
}

func newImporter(t *testing.T, h *reconciletest.Harness, dir string, archiver importer.Archiver) *importer.Importer {
	t.Helper()
	settings := config.DefaultSettings()
	settings.MembershipTypes = map[string]string{"Monthly Membership": "general"}
	return importer.New(importer.Params{
		Log:       h.Log,
		Cfg:       config.Config{ImportDir: dir},
		Clock:     h.Clock,
		Clients:   providertest.Clients{h.ProcessorID: h.Client},
		Providers: h.Providers,
		Contacts:  h.Contacts,
		Recurring: h.Recurring,
		Engine:    h.Engine,
		Settings:  config.NewStaticSettings(settings),
		Archiver:  archiver,
	})
}

func seedRemote(t *testing.T, h *reconciletest.Harness) {
	t.Helper()
	created := reconciletest.Epoch.Add(-90 * 24 * time.Hour)

	for _, s := range []struct{ sub, mandate, customer, email, name string }{
		{"SB1", "MD1", "CU1", "ada@example.org", "Monthly Membership"},
		{"SB2", "MD2", "CU2", "grace@example.org", "Monthly Gift"},
		{"SB3", "MD3", "CU3", "shared@example.org", "Monthly Gift"},
	} {
		h.Client.PutSubscription(paymentdomain.Subscription{
			ID:           s.sub,
			CreatedAt:    created,
			Amount:       1000,
			Currency:     "GBP",
			Status:       paymentdomain.SubscriptionActive,
			Name:         s.name,
			IntervalUnit: "monthly",
			Interval:     1,
			StartDate:    "2023-12-01",
			Links:        paymentdomain.SubscriptionLinks{Mandate: s.mandate},
		})
		h.Client.PutMandate(paymentdomain.Mandate{ID: s.mandate, Links: paymentdomain.MandateLinks{Customer: s.customer}})
		h.Client.PutCustomer(paymentdomain.Customer{ID: s.customer, Email: s.email, GivenName: "Test", FamilyName: s.customer})
	}

	for _, p := range []paymentdomain.Payment{
		{ID: "PM1", Status: paymentdomain.PaymentConfirmed, ChargeDate: "2024-01-01"},
		{ID: "PM2", Status: paymentdomain.PaymentPaidOut, ChargeDate: "2024-02-01"},
		{ID: "PM3", Status: paymentdomain.PaymentFailed, ChargeDate: "2024-03-01"},
	} {
		p.Amount = 1000
		p.Currency = "GBP"
		p.Links = paymentdomain.PaymentLinks{Subscription: "SB1"}
		h.Client.PutPayment(p)
	}

	// Two local contacts share the SB3 payer's email.
	for i := 0; i < 2; i++ {
		now := h.Clock.Now()
		require.NoError(t, h.DB.Create(&contactdomain.Contact{
			ID:        h.Node.Generate(),
			Email:     "Shared@example.org",
			CreatedAt: now,
			UpdatedAt: now,
		}).Error)
	}
}

func entryFor(t *testing.T, stats *importer.Stats, subscriptionID string) importer.Entry {
	t.Helper()
	for _, e := range stats.Entries {
		if e.SubscriptionID == subscriptionID {
			return e
		}
	}
	t.Fatalf("no entry for %s", subscriptionID)
	return importer.Entry{}
}

func TestRunCreatesAndReimportsIdempotently(t *testing.T) {
	h := reconciletest.New(t)
	seedRemote(t, h)
	dir := t.TempDir()
	archiver := &memoryArchiver{}
	im := newImporter(t, h, dir, archiver)
	ctx := context.Background()
	opts := importer.Options{ProcessorID: h.ProcessorID}

	stats, err := im.Run(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, importer.SubscriptionCounts{Found: 3, Created: 2, Skipped: 1}, stats.Subscriptions)
	assert.Equal(t, importer.PaymentCounts{Found: 2, Added: 2}, stats.Payments)
	assert.Equal(t, int64(2000), stats.AmountImported)

	sb1 := entryFor(t, stats, "SB1")
	assert.Equal(t, importer.ActionCreated, sb1.Action)
	assert.Equal(t, importer.ActionSkipped, entryFor(t, stats, "SB3").Action)

	rc, err := h.Recurring.FindLocal(ctx, "SB1")
	require.NoError(t, err)
	assert.Equal(t, sb1.RecurringID, rc.ID.String())
	assert.Equal(t, recurringdomain.StatusInProgress, rc.Status)

	items := h.ContributionsOf(t, rc.ID)
	require.Len(t, items, 2)
	for _, c := range items {
		assert.Equal(t, contributiondomain.StatusCompleted, c.Status)
	}

	memberships, err := h.Memberships.ListByRecurring(ctx, h.DB, rc.ID)
	require.NoError(t, err)
	require.Len(t, memberships, 1)
	assert.Equal(t, "general", memberships[0].MembershipType)

	sb2, err := h.Recurring.FindLocal(ctx, "SB2")
	require.NoError(t, err)
	slot := h.ContributionsOf(t, sb2.ID)
	require.Len(t, slot, 1)
	assert.Equal(t, contributiondomain.StatusPending, slot[0].Status)

	_, err = os.Stat(stats.SummaryPath)
	require.NoError(t, err)
	require.Len(t, archiver.calls, 1)
	assert.Equal(t, filepath.Base(stats.SummaryPath), archiver.calls[0].name)

	h.Clock.Advance(time.Minute)
	rerun, err := im.Run(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, importer.SubscriptionCounts{Found: 3, Matched: 2, Skipped: 1}, rerun.Subscriptions)
	assert.Equal(t, importer.PaymentCounts{Found: 2, Skipped: 2}, rerun.Payments)
	assert.Equal(t, sb1.RecurringID, entryFor(t, rerun, "SB1").RecurringID)
	assert.Len(t, h.ContributionsOf(t, rc.ID), 2)
	assert.Len(t, h.ContributionsOf(t, sb2.ID), 1)
}

func TestRunRefusesToOverwriteSummary(t *testing.T) {
	h := reconciletest.New(t)
	dir := t.TempDir()
	im := newImporter(t, h, dir, nil)
	ctx := context.Background()

	first, err := im.Run(ctx, importer.Options{ProcessorID: h.ProcessorID})
	require.NoError(t, err)

	_, err = im.Run(ctx, importer.Options{ProcessorID: h.ProcessorID})
	assert.True(t, errors.Is(err, importer.ErrSummaryExists), "got %v", err)

	_, err = os.Stat(first.SummaryPath)
	assert.NoError(t, err)
}

func TestRunAsksBeforeCreating(t *testing.T) {
	h := reconciletest.New(t)
	seedRemote(t, h)
	im := newImporter(t, h, t.TempDir(), nil)
	ctx := context.Background()
	opts := importer.Options{ProcessorID: h.ProcessorID, ConfirmBeforeCreate: true}

	_, err := im.Run(ctx, opts)
	assert.True(t, errors.Is(err, importer.ErrConfirmerRequired), "got %v", err)

	var asked []string
	stats, err := im.WithConfirmer(importer.ConfirmFunc(func(_ context.Context, sub paymentdomain.Subscription, _ paymentdomain.Customer) (bool, error) {
		asked = append(asked, sub.ID)
		return sub.ID == "SB2", nil
	})).Run(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"SB1", "SB2", "SB3"}, asked)
	assert.Equal(t, importer.ActionDeclined, entryFor(t, stats, "SB1").Action)
	assert.Equal(t, importer.ActionCreated, entryFor(t, stats, "SB2").Action)

	_, err = h.Recurring.FindLocal(ctx, "SB1")
	assert.True(t, errors.Is(err, paymentdomain.ErrUnresolvedSubscription))
}

func TestRunHonoursLimit(t *testing.T) {
	h := reconciletest.New(t)
	seedRemote(t, h)
	im := newImporter(t, h, t.TempDir(), nil)

	stats, err := im.Run(context.Background(), importer.Options{ProcessorID: h.ProcessorID, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Subscriptions.Found)
	assert.Equal(t, "SB1", stats.Entries[0].SubscriptionID)
}

func TestRunDoesNoWorkWhenSummaryNameIsTaken(t *testing.T) {
	h := reconciletest.New(t)
	seedRemote(t, h)
	dir := t.TempDir()
	im := newImporter(t, h, dir, nil)
	ctx := context.Background()

	taken := filepath.Join(dir, "import-direct-debit-20240301T120000Z.json")
	require.NoError(t, os.WriteFile(taken, []byte(`{}`), 0o644))

	stats, err := im.Run(ctx, importer.Options{ProcessorID: h.ProcessorID})
	assert.True(t, errors.Is(err, importer.ErrSummaryExists), "got %v", err)
	assert.Nil(t, stats)
	assert.NotContains(t, h.Client.Calls(), "ListSubscriptions")

	_, err = h.Recurring.FindLocal(ctx, "SB1")
	assert.True(t, errors.Is(err, paymentdomain.ErrUnresolvedSubscription), "got %v", err)

	body, err := os.ReadFile(taken)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(body))
}

func TestRunSkipsAmbiguousPayerAndCarriesOn(t *testing.T) {
	h := reconciletest.New(t)
	im := newImporter(t, h, t.TempDir(), nil)
	ctx := context.Background()
	created := reconciletest.Epoch.Add(-30 * 24 * time.Hour)

	for _, s := range []struct{ sub, mandate, customer, email string }{
		{"SB1", "MD1", "CU1", "twins@example.org"},
		{"SB2", "MD2", "CU2", "solo@example.org"},
	} {
		h.Client.PutSubscription(paymentdomain.Subscription{
			ID:           s.sub,
			CreatedAt:    created,
			Amount:       1500,
			Currency:     "GBP",
			Status:       paymentdomain.SubscriptionActive,
			Name:         "Monthly Gift",
			IntervalUnit: "monthly",
			Interval:     1,
			StartDate:    "2024-02-01",
			Links:        paymentdomain.SubscriptionLinks{Mandate: s.mandate},
		})
		h.Client.PutMandate(paymentdomain.Mandate{ID: s.mandate, Links: paymentdomain.MandateLinks{Customer: s.customer}})
		h.Client.PutCustomer(paymentdomain.Customer{ID: s.customer, Email: s.email, GivenName: "Test", FamilyName: s.customer})
	}

	newContact := func(email string) contactdomain.Contact {
		now := h.Clock.Now()
		c := contactdomain.Contact{ID: h.Node.Generate(), Email: email, CreatedAt: now, UpdatedAt: now}
		require.NoError(t, h.DB.Create(&c).Error)
		return c
	}
	newContact("twins@example.org")
	newContact("twins@example.org")
	solo := newContact("solo@example.org")

	stats, err := im.Run(ctx, importer.Options{ProcessorID: h.ProcessorID})
	require.NoError(t, err)
	assert.Equal(t, importer.SubscriptionCounts{Found: 2, Created: 1, Skipped: 1}, stats.Subscriptions)
	require.Len(t, stats.Entries, 2)

	first := stats.Entries[0]
	assert.Equal(t, "SB1", first.SubscriptionID)
	assert.Equal(t, importer.ActionSkipped, first.Action)
	assert.Contains(t, first.Reason, paymentdomain.ErrAmbiguousContact.Error())
	assert.Empty(t, first.RecurringID)

	_, err = h.Recurring.FindLocal(ctx, "SB1")
	assert.True(t, errors.Is(err, paymentdomain.ErrUnresolvedSubscription), "got %v", err)

	second := stats.Entries[1]
	assert.Equal(t, "SB2", second.SubscriptionID)
	assert.Equal(t, importer.ActionCreated, second.Action)

	rc, err := h.Recurring.FindLocal(ctx, "SB2")
	require.NoError(t, err)
	assert.Equal(t, solo.ID, rc.ContactID)
	assert.Equal(t, second.RecurringID, rc.ID.String())
}
