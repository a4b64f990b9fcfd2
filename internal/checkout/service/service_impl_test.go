package service_test

import (
	"context"
	"testing"

	"github.com/smallbiznis/pledgesync/internal/checkout/domain"
	"github.com/smallbiznis/pledgesync/internal/checkout/service"
	"github.com/smallbiznis/pledgesync/internal/config"
	contributiondomain "github.com/smallbiznis/pledgesync/internal/contribution/domain"
	paymentdomain "github.com/smallbiznis/pledgesync/internal/payment/domain"
	"github.com/smallbiznis/pledgesync/internal/payment/providertest"
	"github.com/smallbiznis/pledgesync/internal/reconcile"
	"github.com/smallbiznis/pledgesync/internal/reconcile/reconciletest"
	recurringdomain "github.com/smallbiznis/pledgesync/internal/recurring/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(h *reconciletest.Harness, settings config.Settings) domain.Service {
	return service.New(service.Params{
		Log:       h.Log,
		Providers: h.Providers,
		Clients:   providertest.Clients{h.ProcessorID: h.Client},
		Contacts:  h.Contacts,
		Recurring: h.Recurring,
		Engine:    h.Engine,
		Settings:  config.NewStaticSettings(settings),
	})
}

func startRequest(h *reconciletest.Harness) domain.StartRequest {
	return domain.StartRequest{
		ProcessorID: h.ProcessorID,
		Customer: paymentdomain.Customer{
			Email:      "ada@example.org",
			GivenName:  "Ada",
			FamilyName: "Lovelace",
		},
		Amount:             1500,
		Currency:           "GBP",
		Recurring:          true,
		Description:        "Monthly gift",
		SuccessRedirectURL: "https://example.org/thanks",
	}
}

func countCalls(client *providertest.FakeClient, name string) int {
	n := 0
	for _, call := range client.Calls() {
		if call == name {
			n++
		}
	}
	return n
}

func TestCheckoutStartsAndCompletes(t *testing.T) {
	h := reconciletest.New(t)
	svc := newService(h, config.DefaultSettings())
	ctx := context.Background()

	started, err := svc.StartCheckout(ctx, startRequest(h))
	require.NoError(t, err)
	require.NotEmpty(t, started.RedirectFlowID)
	assert.NotEmpty(t, started.RedirectURL)

	rc := h.Reload(t, started.RecurringID)
	assert.Equal(t, recurringdomain.StatusPending, rc.Status)
	assert.Equal(t, "month", rc.FrequencyUnit)
	assert.Equal(t, 1, rc.FrequencyInterval)
	assert.Empty(t, rc.ExternalID())
	items := h.ContributionsOf(t, rc.ID)
	require.Len(t, items, 1)
	assert.Equal(t, contributiondomain.StatusPending, items[0].Status)

	completed, err := svc.CompleteCheckout(ctx, domain.CompleteRequest{RedirectFlowID: started.RedirectFlowID})
	require.NoError(t, err)
	require.NotEmpty(t, completed.SubscriptionID)
	assert.NotEmpty(t, completed.MandateID)
	assert.Equal(t, recurringdomain.StatusInProgress, completed.Status)

	rc = h.Reload(t, started.RecurringID)
	assert.Equal(t, completed.SubscriptionID, rc.ExternalID())
	assert.Equal(t, recurringdomain.StatusInProgress, rc.Status)

	sub, err := h.Client.GetSubscription(ctx, completed.SubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), sub.Amount)
	assert.Equal(t, "monthly", sub.IntervalUnit)

	again, err := svc.CompleteCheckout(ctx, domain.CompleteRequest{RedirectFlowID: started.RedirectFlowID})
	require.NoError(t, err)
	assert.Equal(t, completed.SubscriptionID, again.SubscriptionID)
	assert.Equal(t, 1, countCalls(h.Client, "CreateSubscription"))

	h.Client.PutPayment(paymentdomain.Payment{
		ID:         "PM1",
		CreatedAt:  reconciletest.Epoch,
		Amount:     1500,
		Currency:   "GBP",
		Status:     paymentdomain.PaymentConfirmed,
		ChargeDate: "2024-03-05",
		Links:      paymentdomain.PaymentLinks{Subscription: completed.SubscriptionID},
	})
	outcome, err := h.Engine.ReconcilePayment(ctx, h.ProcessorID, "PM1", paymentdomain.SettledPaymentStatuses...)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeSlotCompleted, outcome)
}

func TestStartCheckoutRejectsOneOffUnlessForced(t *testing.T) {
	h := reconciletest.New(t)
	ctx := context.Background()
	req := startRequest(h)
	req.Recurring = false

	_, err := newService(h, config.DefaultSettings()).StartCheckout(ctx, req)
	require.ErrorIs(t, err, domain.ErrOneOffNotSupported)
	assert.Zero(t, countCalls(h.Client, "CreateRedirectFlow"))

	forced := config.DefaultSettings()
	forced.ForceRecurring = true
	started, err := newService(h, forced).StartCheckout(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, recurringdomain.StatusPending, h.Reload(t, started.RecurringID).Status)
}

func TestStartCheckoutValidatesRequest(t *testing.T) {
	h := reconciletest.New(t)
	svc := newService(h, config.DefaultSettings())
	ctx := context.Background()

	zero := startRequest(h)
	zero.Amount = 0
	_, err := svc.StartCheckout(ctx, zero)
	require.ErrorIs(t, err, domain.ErrInvalidRequest)

	badEmail := startRequest(h)
	badEmail.Customer.Email = "not-an-email"
	_, err = svc.StartCheckout(ctx, badEmail)
	require.ErrorIs(t, err, domain.ErrInvalidRequest)

	badUnit := startRequest(h)
	badUnit.FrequencyUnit = "fortnight"
	_, err = svc.StartCheckout(ctx, badUnit)
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestStartCheckoutRefusesInactiveProcessor(t *testing.T) {
	h := reconciletest.New(t)
	svc := newService(h, config.DefaultSettings())
	ctx := context.Background()

	_, err := h.Providers.SetActive(ctx, h.ProcessorID, false)
	require.NoError(t, err)

	_, err = svc.StartCheckout(ctx, startRequest(h))
	require.ErrorIs(t, err, domain.ErrProcessorInactive)
}

func TestCompleteCheckoutAfterSweepIsClosed(t *testing.T) {
	h := reconciletest.New(t)
	svc := newService(h, config.DefaultSettings())
	ctx := context.Background()

	started, err := svc.StartCheckout(ctx, startRequest(h))
	require.NoError(t, err)
	h.SetStatus(t, started.RecurringID, recurringdomain.StatusFailed)

	_, err = svc.CompleteCheckout(ctx, domain.CompleteRequest{RedirectFlowID: started.RedirectFlowID})
	require.ErrorIs(t, err, domain.ErrCheckoutClosed)
	assert.Zero(t, countCalls(h.Client, "CreateSubscription"))
}

func TestCancelRecurringCancelsRemoteThenLocal(t *testing.T) {
	h := reconciletest.New(t)
	svc := newService(h, config.DefaultSettings())
	ctx := context.Background()

	started, err := svc.StartCheckout(ctx, startRequest(h))
	require.NoError(t, err)
	completed, err := svc.CompleteCheckout(ctx, domain.CompleteRequest{RedirectFlowID: started.RedirectFlowID})
	require.NoError(t, err)

	rc, err := svc.CancelRecurring(ctx, started.RecurringID)
	require.NoError(t, err)
	assert.Equal(t, recurringdomain.StatusCancelled, rc.Status)

	sub, err := h.Client.GetSubscription(ctx, completed.SubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.SubscriptionCancelled, sub.Status)

	items := h.ContributionsOf(t, started.RecurringID)
	require.Len(t, items, 1)
	assert.Equal(t, contributiondomain.StatusCancelled, items[0].Status)

	_, err = svc.CancelRecurring(ctx, started.RecurringID)
	require.ErrorIs(t, err, domain.ErrRecurringClosed)
}

func TestUpdateRecurringAmount(t *testing.T) {
	h := reconciletest.New(t)
	svc := newService(h, config.DefaultSettings())
	ctx := context.Background()

	started, err := svc.StartCheckout(ctx, startRequest(h))
	require.NoError(t, err)
	completed, err := svc.CompleteCheckout(ctx, domain.CompleteRequest{RedirectFlowID: started.RedirectFlowID})
	require.NoError(t, err)

	_, err = svc.UpdateRecurringAmount(ctx, started.RecurringID, 0)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	rc, err := svc.UpdateRecurringAmount(ctx, started.RecurringID, 2500)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), rc.Amount)
	assert.Equal(t, int64(2500), h.Reload(t, started.RecurringID).Amount)

	sub, err := h.Client.GetSubscription(ctx, completed.SubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), sub.Amount)
}
