package gocardless

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/pledgesync/internal/payment/domain"
)

const (
	ProviderName    = "gocardless"
	SignatureHeader = "Webhook-Signature"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return ProviderName
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	secret := strings.TrimSpace(cfg.WebhookSecret)
	token := strings.TrimSpace(cfg.AccessToken)
	if secret == "" || token == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}

	return &Adapter{
		processorID:   cfg.ProcessorID,
		webhookSecret: secret,
		client: NewClient(ClientConfig{
			AccessToken: token,
			Environment: cfg.Environment,
			BaseURL:     cfg.BaseURL,
			MaxRetries:  cfg.MaxRetries,
			HTTPClient:  cfg.HTTPClient,
		}),
	}, nil
}

type Adapter struct {
	processorID   snowflake.ID
	webhookSecret string
	client        *Client
}

// Verify checks the hex HMAC-SHA256 of the raw body against the
// Webhook-Signature header, matched case-insensitively.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	signature := headerValue(headers, SignatureHeader)
	if signature == "" {
		return paymentdomain.ErrAuthentication
	}

	expected := Sign(a.webhookSecret, payload)
	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return paymentdomain.ErrAuthentication
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) ([]paymentdomain.Event, error) {
	var batch struct {
		Events []json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(payload, &batch); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if batch.Events == nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	events := make([]paymentdomain.Event, 0, len(batch.Events))
	for _, raw := range batch.Events {
		var event paymentdomain.Event
		if err := json.Unmarshal(raw, &event); err != nil {
			return nil, paymentdomain.ErrInvalidPayload
		}
		event.ID = strings.TrimSpace(event.ID)
		if event.ID == "" {
			return nil, paymentdomain.ErrInvalidEvent
		}
		event.Raw = raw
		events = append(events, event)
	}
	return events, nil
}

func (a *Adapter) Client() paymentdomain.ProviderClient {
	return a.client
}

// Sign returns the lowercase hex signature the provider sends for payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func headerValue(headers http.Header, name string) string {
	if value := strings.TrimSpace(headers.Get(name)); value != "" {
		return value
	}
	for key, values := range headers {
		if strings.EqualFold(key, name) && len(values) > 0 {
			return strings.TrimSpace(values[0])
		}
	}
	return ""
}
