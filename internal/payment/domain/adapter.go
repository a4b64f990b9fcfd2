package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// AdapterConfig is the decrypted per-processor configuration handed to a
// provider factory.
type AdapterConfig struct {
	ProcessorID   snowflake.ID
	Provider      string
	IsTest        bool
	AccessToken   string
	WebhookSecret string
	Environment   string
	BaseURL       string
	MaxRetries    int
	HTTPClient    *http.Client
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}

type PaymentAdapter interface {
	// Verify returns ErrAuthentication unless headers carry a valid
	// signature of payload.
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) ([]Event, error)
	Client() ProviderClient
}

type Repository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, processorID snowflake.ID, providerEventID string) (*EventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string) error
}
