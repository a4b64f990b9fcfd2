package webhook_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/smallbiznis/pledgesync/internal/payment/adapters"
	"github.com/smallbiznis/pledgesync/internal/payment/adapters/gocardless"
	paymentdomain "github.com/smallbiznis/pledgesync/internal/payment/domain"
	"github.com/smallbiznis/pledgesync/internal/payment/repository"
	"github.com/smallbiznis/pledgesync/internal/payment/webhook"
	ppdomain "github.com/smallbiznis/pledgesync/internal/paymentprovider/domain"
	"github.com/smallbiznis/pledgesync/internal/reconcile/reconciletest"
	recurringdomain "github.com/smallbiznis/pledgesync/internal/recurring/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const confirmedBatch = `{"events":[{"id":"EV1","created_at":"2024-02-15T09:00:00.000Z","resource_type":"payments","action":"confirmed","links":{"payment":"PM1"},"details":{"origin":"gocardless","cause":"payment_confirmed"}}]}`

func newService(t *testing.T, h *reconciletest.Harness) *webhook.Service {
	t.Helper()
	clients := adapters.NewClientRegistry(adapters.NewRegistry(gocardless.NewFactory()), h.Providers, h.Config)
	clients.Override(h.ProcessorID, h.Client)

	dispatcher := webhook.NewDispatcher(webhook.DispatcherParams{
		DB:         h.DB,
		Log:        h.Log,
		GenID:      h.Node,
		Clock:      h.Clock,
		Repo:       repository.Provide(),
		Reconciler: h.Engine,
	})
	return webhook.NewService(webhook.Params{
		Log:        h.Log,
		Providers:  h.Providers,
		Clients:    clients,
		Dispatcher: dispatcher,
	})
}

func signed(secret, body string) http.Header {
	headers := http.Header{}
	headers.Set("Webhook-Signature", gocardless.Sign(secret, []byte(body)))
	return headers
}

func seedConfirmedPayment(t *testing.T, h *reconciletest.Harness) *recurringdomain.RecurringContribution {
	t.Helper()
	rc := h.NewRecurring(t, reconciletest.RecurringOptions{SubscriptionID: "SB1", OpenSlot: true})
	h.Client.PutPayment(paymentdomain.Payment{
		ID:         "PM1",
		Amount:     1000,
		Currency:   "GBP",
		Status:     paymentdomain.PaymentConfirmed,
		ChargeDate: "2024-02-15",
		Links:      paymentdomain.PaymentLinks{Subscription: "SB1"},
	})
	return rc
}

func TestIngestWebhookRecordsConfirmedPaymentOnce(t *testing.T) {
	h := reconciletest.New(t)
	svc := newService(t, h)
	rc := seedConfirmedPayment(t, h)
	ctx := context.Background()

	result, err := svc.IngestWebhook(ctx, h.ProcessorID.String(), []byte(confirmedBatch), signed(reconciletest.WebhookSecret, confirmedBatch))
	require.NoError(t, err)
	assert.Equal(t, []string{"EV1"}, result.Processed)

	replay, err := svc.IngestWebhook(ctx, h.ProcessorID.String(), []byte(confirmedBatch), signed(reconciletest.WebhookSecret, confirmedBatch))
	require.NoError(t, err)
	assert.Equal(t, []string{"EV1"}, replay.Duplicates)

	assert.Len(t, h.ContributionsOf(t, rc.ID), 1)
	assert.Equal(t, int64(1), h.PaymentCount(t, rc.ID))
}

func TestIngestWebhookLegacyPathMatchesBySecret(t *testing.T) {
	h := reconciletest.New(t)
	svc := newService(t, h)
	rc := seedConfirmedPayment(t, h)

	_, err := h.Providers.Create(context.Background(), ppdomain.CreateRequest{
		Name:     "Other tenant",
		Provider: ppdomain.ProviderGoCardless,
		Credentials: ppdomain.Credentials{
			AccessToken:   "other_token",
			WebhookSecret: "other_secret",
		},
	})
	require.NoError(t, err)

	result, err := svc.IngestWebhook(context.Background(), "", []byte(confirmedBatch), signed(reconciletest.WebhookSecret, confirmedBatch))
	require.NoError(t, err)
	assert.Equal(t, []string{"EV1"}, result.Processed)
	assert.Len(t, h.ContributionsOf(t, rc.ID), 1)
}

func TestIngestWebhookRejectsBadSignatures(t *testing.T) {
	h := reconciletest.New(t)
	svc := newService(t, h)
	ctx := context.Background()
	body := []byte(confirmedBatch)

	cases := map[string]http.Header{
		"wrong key":        signed("wrong_key", confirmedBatch),
		"missing header":   {},
		"tampered payload": signed(reconciletest.WebhookSecret, confirmedBatch+" "),
	}
	for name, headers := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.IngestWebhook(ctx, h.ProcessorID.String(), body, headers)
			assert.True(t, errors.Is(err, paymentdomain.ErrAuthentication), "got %v", err)

			_, err = svc.IngestWebhook(ctx, "", body, headers)
			assert.True(t, errors.Is(err, paymentdomain.ErrAuthentication), "got %v", err)
		})
	}
}

func TestIngestWebhookRejectsInactiveProcessor(t *testing.T) {
	h := reconciletest.New(t)
	svc := newService(t, h)
	ctx := context.Background()

	_, err := h.Providers.SetActive(ctx, h.ProcessorID, false)
	require.NoError(t, err)

	headers := signed(reconciletest.WebhookSecret, confirmedBatch)
	_, err = svc.IngestWebhook(ctx, h.ProcessorID.String(), []byte(confirmedBatch), headers)
	assert.True(t, errors.Is(err, paymentdomain.ErrAuthentication), "got %v", err)

	_, err = svc.IngestWebhook(ctx, "", []byte(confirmedBatch), headers)
	assert.True(t, errors.Is(err, paymentdomain.ErrAuthentication), "got %v", err)
}

func TestIngestWebhookVerifiesBeforeParsing(t *testing.T) {
	h := reconciletest.New(t)
	svc := newService(t, h)
	ctx := context.Background()
	body := `{"events": [`

	_, err := svc.IngestWebhook(ctx, h.ProcessorID.String(), []byte(body), signed("wrong_key", body))
	assert.True(t, errors.Is(err, paymentdomain.ErrAuthentication), "got %v", err)

	result, err := svc.IngestWebhook(ctx, h.ProcessorID.String(), []byte(body), signed(reconciletest.WebhookSecret, body))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Empty(t, result.Processed)
	assert.Empty(t, result.Failed)
}

func TestIngestWebhookDropsSignedBatchWithMissingEventID(t *testing.T) {
	h := reconciletest.New(t)
	svc := newService(t, h)
	ctx := context.Background()
	rc := seedConfirmedPayment(t, h)
	body := `{"events":[{"id":"","resource_type":"payments","action":"confirmed","links":{"payment":"PM1"}}]}`

	result, err := svc.IngestWebhook(ctx, h.ProcessorID.String(), []byte(body), signed(reconciletest.WebhookSecret, body))
	require.NoError(t, err)
	assert.Empty(t, result.Processed)
	assert.Zero(t, h.PaymentCount(t, rc.ID))
}

func TestIngestWebhookUnknownProcessor(t *testing.T) {
	h := reconciletest.New(t)
	svc := newService(t, h)

	_, err := svc.IngestWebhook(context.Background(), "12345", []byte(confirmedBatch), signed(reconciletest.WebhookSecret, confirmedBatch))
	assert.True(t, errors.Is(err, paymentdomain.ErrProviderNotFound), "got %v", err)
}
