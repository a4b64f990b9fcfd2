package reconcile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	contributiondomain "github.com/smallbiznis/pledgesync/internal/contribution/domain"
	"github.com/smallbiznis/pledgesync/internal/events"
	paymentdomain "github.com/smallbiznis/pledgesync/internal/payment/domain"
	"github.com/smallbiznis/pledgesync/internal/reconcile"
	"github.com/smallbiznis/pledgesync/internal/reconcile/reconciletest"
	recurringdomain "github.com/smallbiznis/pledgesync/internal/recurring/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var confirmed = []paymentdomain.PaymentStatus{paymentdomain.PaymentConfirmed, paymentdomain.PaymentPaidOut}

func putPayment(h *reconciletest.Harness, id, subscription string, status paymentdomain.PaymentStatus, amount int64, chargeDate string) {
	h.Client.PutPayment(paymentdomain.Payment{
		ID:         id,
		CreatedAt:  reconciletest.Epoch,
		Amount:     amount,
		Currency:   "GBP",
		Status:     status,
		ChargeDate: chargeDate,
		Links:      paymentdomain.PaymentLinks{Subscription: subscription},
	})
}

func TestReconcilePaymentFillsPendingSlot(t *testing.T) {
	h := reconciletest.New(t)
	ctx := context.Background()
	rc := h.NewRecurring(t, reconciletest.RecurringOptions{SubscriptionID: "SB1", OpenSlot: true})
	putPayment(h, "PM1", "SB1", paymentdomain.PaymentConfirmed, 1250, "2024-02-15")

	outcome, err := h.Engine.ReconcilePayment(ctx, h.ProcessorID, "PM1", confirmed...)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeSlotCompleted, outcome)

	items := h.ContributionsOf(t, rc.ID)
	require.Len(t, items, 1)
	assert.Equal(t, contributiondomain.StatusCompleted, items[0].Status)
	assert.Equal(t, "PM1", items[0].ExternalID())
	assert.Equal(t, int64(1250), items[0].Amount)
	assert.True(t, items[0].ReceiveDate.Equal(time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)))
	assert.False(t, items[0].ReceiptRequested, "test processors skip receipts by default")
	assert.Equal(t, int64(1), h.PaymentCount(t, rc.ID))

	assert.Equal(t, recurringdomain.StatusInProgress, h.Reload(t, rc.ID).Status)
	assert.Len(t, h.Events.OfType(events.TypeContributionCompleted), 1)
}

func TestReconcilePaymentDuplicateConfirmationIsIdempotent(t *testing.T) {
	h := reconciletest.New(t)
	ctx := context.Background()
	rc := h.NewRecurring(t, reconciletest.RecurringOptions{SubscriptionID: "SB1", OpenSlot: true})
	putPayment(h, "PM1", "SB1", paymentdomain.PaymentConfirmed, 1000, "2024-01-15")
	_, err := h.Engine.ReconcilePayment(ctx, h.ProcessorID, "PM1", confirmed...)
	require.NoError(t, err)

	putPayment(h, "PM2", "SB1", paymentdomain.PaymentConfirmed, 1000, "2024-02-15")
	first, err := h.Engine.ReconcilePayment(ctx, h.ProcessorID, "PM2", confirmed...)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeRepeatCreated, first)

	second, err := h.Engine.ReconcilePayment(ctx, h.ProcessorID, "PM2", confirmed...)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeAlreadyRecorded, second)

	items := h.ContributionsOf(t, rc.ID)
	require.Len(t, items, 2)
	assert.Equal(t, int64(2), h.PaymentCount(t, rc.ID))

	repeat := items[1]
	assert.Equal(t, "PM2", repeat.ExternalID())
	require.NotNil(t, repeat.OriginalContributionID)
	assert.Equal(t, items[0].ID, *repeat.OriginalContributionID)
	assert.Equal(t, "Donation", repeat.FinancialType)
	assert.NotEqual(t, items[0].InvoiceID, repeat.InvoiceID)
}

func TestReconcilePaymentClearsOverdue(t *testing.T) {
	h := reconciletest.New(t)
	ctx := context.Background()
	rc := h.NewRecurring(t, reconciletest.RecurringOptions{SubscriptionID: "SB1", OpenSlot: true})

	putPayment(h, "PM1", "SB1", paymentdomain.PaymentFailed, 1000, "2024-01-15")
	_, err := h.Engine.ReconcilePayment(ctx, h.ProcessorID, "PM1", paymentdomain.PaymentFailed)
	require.NoError(t, err)
	reloaded := h.Reload(t, rc.ID)
	require.Equal(t, recurringdomain.StatusOverdue, reloaded.Status)
	require.Equal(t, 1, reloaded.FailureCount)

	putPayment(h, "PM2", "SB1", paymentdomain.PaymentPaidOut, 1000, "2024-02-15")
	outcome, err := h.Engine.ReconcilePayment(ctx, h.ProcessorID, "PM2", confirmed...)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeRepeatCreated, outcome)

	reloaded = h.Reload(t, rc.ID)
	assert.Equal(t, recurringdomain.StatusInProgress, reloaded.Status)
	assert.Equal(t, 0, reloaded.FailureCount)
}

func TestReconcilePaymentRejectsStaleAndUnlinkedPayments(t *testing.T) {
	h := reconciletest.New(t)
	ctx := context.Background()
	h.NewRecurring(t, reconciletest.RecurringOptions{SubscriptionID: "SB1", OpenSlot: true})

	putPayment(h, "PM1", "SB1", paymentdomain.PaymentSubmitted, 1000, "2024-02-15")
	_, err := h.Engine.ReconcilePayment(ctx, h.ProcessorID, "PM1", confirmed...)
	assert.True(t, errors.Is(err, paymentdomain.ErrStaleEvent), "got %v", err)

	putPayment(h, "PM2", "", paymentdomain.PaymentConfirmed, 1000, "2024-02-15")
	_, err = h.Engine.ReconcilePayment(ctx, h.ProcessorID, "PM2", confirmed...)
	assert.True(t, errors.Is(err, paymentdomain.ErrStaleEvent), "got %v", err)

	putPayment(h, "PM3", "SB404", paymentdomain.PaymentConfirmed, 1000, "2024-02-15")
	_, err = h.Engine.ReconcilePayment(ctx, h.ProcessorID, "PM3", confirmed...)
	assert.True(t, errors.Is(err, paymentdomain.ErrUnresolvedSubscription), "got %v", err)
}

func TestReconcilePaymentWithoutTemplateFails(t *testing.T) {
	h := reconciletest.New(t)
	rc := h.NewRecurring(t, reconciletest.RecurringOptions{SubscriptionID: "SB1"})
	putPayment(h, "PM1", "SB1", paymentdomain.PaymentConfirmed, 1000, "2024-02-15")

	_, err := h.Engine.ReconcilePayment(context.Background(), h.ProcessorID, "PM1", confirmed...)
	assert.True(t, errors.Is(err, reconcile.ErrMissingTemplate), "got %v", err)
	assert.Empty(t, h.ContributionsOf(t, rc.ID))
}

func TestFailedPaymentFillsSlotAndMarksOverdue(t *testing.T) {
	h := reconciletest.New(t)
	rc := h.NewRecurring(t, reconciletest.RecurringOptions{SubscriptionID: "SB1", OpenSlot: true})
	putPayment(h, "PM1", "SB1", paymentdomain.PaymentFailed, 1000, "2024-02-15")

	outcome, err := h.Engine.ReconcilePayment(context.Background(), h.ProcessorID, "PM1", paymentdomain.PaymentFailed)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeSlotFailed, outcome)

	items := h.ContributionsOf(t, rc.ID)
	require.Len(t, items, 1)
	assert.Equal(t, contributiondomain.StatusFailed, items[0].Status)
	assert.Equal(t, "PM1", items[0].ExternalID())

	reloaded := h.Reload(t, rc.ID)
	assert.Equal(t, recurringdomain.StatusOverdue, reloaded.Status)
	assert.Equal(t, 1, reloaded.FailureCount)
}

func TestFailedPaymentOnCompletedRecurringKeepsStatus(t *testing.T) {
	h := reconciletest.New(t)
	ctx := context.Background()
	rc := h.NewRecurring(t, reconciletest.RecurringOptions{SubscriptionID: "SB1", OpenSlot: true})
	putPayment(h, "PM1", "SB1", paymentdomain.PaymentConfirmed, 1000, "2024-01-15")
	_, err := h.Engine.ReconcilePayment(ctx, h.ProcessorID, "PM1", confirmed...)
	require.NoError(t, err)
	h.SetStatus(t, rc.ID, recurringdomain.StatusCompleted)

	putPayment(h, "PM2", "SB1", paymentdomain.PaymentFailed, 1000, "2024-02-15")
	outcome, err := h.Engine.ReconcilePayment(ctx, h.ProcessorID, "PM2", paymentdomain.PaymentFailed)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeFailureCreated, outcome)

	reloaded := h.Reload(t, rc.ID)
	assert.Equal(t, recurringdomain.StatusCompleted, reloaded.Status)
	assert.Equal(t, 1, reloaded.FailureCount)

	items := h.ContributionsOf(t, rc.ID)
	require.Len(t, items, 2)
	assert.Equal(t, contributiondomain.StatusFailed, items[1].Status)
	require.NotNil(t, items[1].OriginalContributionID)
	assert.Equal(t, items[0].ID, *items[1].OriginalContributionID)
}

func TestLateFailureMarksCompletedContributionRefunded(t *testing.T) {
	h := reconciletest.New(t)
	ctx := context.Background()
	rc := h.NewRecurring(t, reconciletest.RecurringOptions{SubscriptionID: "SB1", OpenSlot: true})
	putPayment(h, "PM1", "SB1", paymentdomain.PaymentConfirmed, 1000, "2024-01-15")
	_, err := h.Engine.ReconcilePayment(ctx, h.ProcessorID, "PM1", confirmed...)
	require.NoError(t, err)

	putPayment(h, "PM1", "SB1", paymentdomain.PaymentFailed, 1000, "2024-01-15")
	outcome, err := h.Engine.ReconcilePayment(ctx, h.ProcessorID, "PM1", paymentdomain.PaymentFailed)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeLateFailure, outcome)

	items := h.ContributionsOf(t, rc.ID)
	require.Len(t, items, 1)
	assert.Equal(t, contributiondomain.StatusRefunded, items[0].Status)
	require.NotNil(t, items[0].Note)
	assert.Equal(t, contributiondomain.NoteLateFailure, *items[0].Note)

	again, err := h.Engine.ReconcilePayment(ctx, h.ProcessorID, "PM1", paymentdomain.PaymentFailed)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeAlreadyRecorded, again)
	assert.Equal(t, 1, h.Reload(t, rc.ID).FailureCount)
}

func TestImportPaymentsSkipsKnownPayments(t *testing.T) {
	h := reconciletest.New(t)
	ctx := context.Background()
	rc := h.NewRecurring(t, reconciletest.RecurringOptions{SubscriptionID: "SB1", Status: recurringdomain.StatusInProgress})

	payments := []paymentdomain.Payment{
		{ID: "PM2", Amount: 1000, Currency: "GBP", Status: paymentdomain.PaymentPaidOut, ChargeDate: "2024-02-15"},
		{ID: "PM1", Amount: 1000, Currency: "GBP", Status: paymentdomain.PaymentConfirmed, ChargeDate: "2024-01-15"},
		{ID: "PM3", Amount: 1000, Currency: "GBP", Status: paymentdomain.PaymentFailed, ChargeDate: "2024-03-15"},
	}

	result, err := h.Engine.ImportPayments(ctx, rc, payments)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Added)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, int64(2000), result.Amount)

	items := h.ContributionsOf(t, rc.ID)
	require.Len(t, items, 2)
	assert.Equal(t, "PM1", items[0].ExternalID())
	assert.Nil(t, items[0].OriginalContributionID)
	for _, item := range items {
		assert.Equal(t, contributiondomain.StatusCompleted, item.Status)
	}

	rerun, err := h.Engine.ImportPayments(ctx, rc, payments)
	require.NoError(t, err)
	assert.Equal(t, 0, rerun.Added)
	assert.Equal(t, 3, rerun.Skipped)
	assert.Equal(t, int64(2), h.PaymentCount(t, rc.ID))
}

func TestSyncSubscriptionCancelledClosesSlot(t *testing.T) {
	h := reconciletest.New(t)
	ctx := context.Background()
	rc := h.NewRecurring(t, reconciletest.RecurringOptions{
		SubscriptionID: "SB1",
		OpenSlot:       true,
		Status:         recurringdomain.StatusInProgress,
	})
	h.Client.PutSubscription(paymentdomain.Subscription{ID: "SB1", Status: paymentdomain.SubscriptionCancelled})

	changed, err := h.Engine.SyncSubscription(ctx, h.ProcessorID, "SB1", paymentdomain.SubscriptionCancelled)
	require.NoError(t, err)
	assert.True(t, changed)

	reloaded := h.Reload(t, rc.ID)
	assert.Equal(t, recurringdomain.StatusCancelled, reloaded.Status)
	assert.NotNil(t, reloaded.CancelDate)

	items := h.ContributionsOf(t, rc.ID)
	require.Len(t, items, 1)
	assert.Equal(t, contributiondomain.StatusCancelled, items[0].Status)
}

func TestSyncSubscriptionLeavesOverdueAlone(t *testing.T) {
	h := reconciletest.New(t)
	rc := h.NewRecurring(t, reconciletest.RecurringOptions{SubscriptionID: "SB1", Status: recurringdomain.StatusOverdue})
	h.Client.PutSubscription(paymentdomain.Subscription{ID: "SB1", Status: paymentdomain.SubscriptionActive})

	changed, err := h.Engine.SyncSubscription(context.Background(), h.ProcessorID, "SB1")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, recurringdomain.StatusOverdue, h.Reload(t, rc.ID).Status)
}

func TestSyncSubscriptionRejectsStaleStatus(t *testing.T) {
	h := reconciletest.New(t)
	h.NewRecurring(t, reconciletest.RecurringOptions{SubscriptionID: "SB1", Status: recurringdomain.StatusInProgress})
	h.Client.PutSubscription(paymentdomain.Subscription{ID: "SB1", Status: paymentdomain.SubscriptionActive})

	_, err := h.Engine.SyncSubscription(context.Background(), h.ProcessorID, "SB1", paymentdomain.SubscriptionFinished)
	assert.True(t, errors.Is(err, paymentdomain.ErrStaleEvent), "got %v", err)
}

func TestSyncSubscriptionRejectsUnmappedStatus(t *testing.T) {
	h := reconciletest.New(t)
	h.NewRecurring(t, reconciletest.RecurringOptions{SubscriptionID: "SB1", Status: recurringdomain.StatusInProgress})
	h.Client.PutSubscription(paymentdomain.Subscription{ID: "SB1", Status: "late_cancellation_requested"})

	_, err := h.Engine.SyncSubscription(context.Background(), h.ProcessorID, "SB1")
	assert.True(t, errors.Is(err, paymentdomain.ErrUnmappedStatus), "got %v", err)
}

func TestSetupRecurringLinksMembershipOnFirstPayment(t *testing.T) {
	h := reconciletest.New(t)
	ctx := context.Background()
	rc := h.NewRecurring(t, reconciletest.RecurringOptions{
		SubscriptionID: "SB1",
		OpenSlot:       true,
		MembershipType: "general",
	})
	putPayment(h, "PM1", "SB1", paymentdomain.PaymentConfirmed, 1000, "2024-02-15")

	_, err := h.Engine.ReconcilePayment(ctx, h.ProcessorID, "PM1", confirmed...)
	require.NoError(t, err)

	memberships, err := h.Memberships.ListByRecurring(ctx, h.DB, rc.ID)
	require.NoError(t, err)
	require.Len(t, memberships, 1)
	assert.Equal(t, "Current", string(memberships[0].Status))

	var links int64
	require.NoError(t, h.DB.Raw(`SELECT COUNT(*) FROM membership_payments WHERE membership_id = ?`, memberships[0].ID).Scan(&links).Error)
	assert.Equal(t, int64(1), links)
}
