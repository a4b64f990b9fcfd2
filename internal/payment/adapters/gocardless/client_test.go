package gocardless

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	paymentdomain "github.com/smallbiznis/pledgesync/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientGetPayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/PM1", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		assert.Equal(t, apiVersion, r.Header.Get("GoCardless-Version"))
		_, _ = io.WriteString(w, `{"payments":{"id":"PM1","amount":1500,"currency":"GBP","status":"confirmed","charge_date":"2024-03-01","links":{"subscription":"SB1"}}}`)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{AccessToken: "token", BaseURL: server.URL})
	payment, err := client.GetPayment(context.Background(), "PM1")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), payment.Amount)
	assert.Equal(t, "SB1", payment.Links.Subscription)
	assert.Equal(t, 2024, payment.ChargedOn().Year())
}

func TestClientListPaymentsPaging(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "SB1", r.URL.Query().Get("subscription"))
		if r.URL.Query().Get("after") == "" {
			_, _ = io.WriteString(w, `{"payments":[{"id":"PM1"}],"meta":{"cursors":{"after":"PM1"}}}`)
			return
		}
		_, _ = io.WriteString(w, `{"payments":[{"id":"PM2"}],"meta":{"cursors":{"after":null}}}`)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{AccessToken: "token", BaseURL: server.URL})
	first, err := client.ListPayments(context.Background(), paymentdomain.PaymentFilter{Subscription: "SB1"})
	require.NoError(t, err)
	require.Len(t, first.Items, 1)
	assert.Equal(t, "PM1", first.After)

	second, err := client.ListPayments(context.Background(), paymentdomain.PaymentFilter{Subscription: "SB1", After: first.After})
	require.NoError(t, err)
	assert.Equal(t, "PM2", second.Items[0].ID)
	assert.Empty(t, second.After)
}

func TestClientCreateSubscriptionSendsEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "idem-1", r.Header.Get("Idempotency-Key"))
		var body map[string]map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "GBP", body["subscriptions"]["currency"])
		_, _ = io.WriteString(w, `{"subscriptions":{"id":"SB9","status":"active","amount":1000}}`)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{AccessToken: "token", BaseURL: server.URL})
	sub, err := client.CreateSubscription(context.Background(), paymentdomain.CreateSubscriptionParams{
		Amount:         1000,
		Currency:       "gbp",
		IntervalUnit:   "monthly",
		Interval:       1,
		Mandate:        "MD1",
		IdempotencyKey: "idem-1",
	})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.SubscriptionActive, sub.Status)
}

func TestClientNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"type":"invalid_api_usage","code":404,"message":"Resource not found"}}`)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{AccessToken: "token", BaseURL: server.URL, MaxRetries: 3})
	_, err := client.GetSubscription(context.Background(), "SB404")
	require.Error(t, err)
	assert.True(t, errors.Is(err, paymentdomain.ErrResourceNotFound))
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"mandates":{"id":"MD1","links":{"customer":"CU1"}}}`)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{AccessToken: "token", BaseURL: server.URL, MaxRetries: 2})
	mandate, err := client.GetMandate(context.Background(), "MD1")
	require.NoError(t, err)
	assert.Equal(t, "CU1", mandate.Links.Customer)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientWithoutRetriesFailsFast(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{AccessToken: "token", BaseURL: server.URL})
	_, err := client.GetCustomer(context.Background(), "CU1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, paymentdomain.ErrProviderRequest))
	assert.Equal(t, int32(1), calls.Load())
}
