package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is the dedup ledger for inbound webhook events.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	ProcessorID     snowflake.ID   `json:"processor_id" gorm:"not null;uniqueIndex:ux_payment_events_processor_event,priority:1"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:ux_payment_events_processor_event,priority:2"`
	ResourceType    string         `json:"resource_type" gorm:"type:text;not null"`
	Action          string         `json:"action" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"not null"`
	Attempts        int            `json:"attempts" gorm:"not null;default:0"`
	LastError       *string        `json:"last_error,omitempty" gorm:"type:text"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	ResourcePayments      = "payments"
	ResourceSubscriptions = "subscriptions"
	ResourceMandates      = "mandates"

	ActionConfirmed = "confirmed"
	ActionPaidOut   = "paid_out"
	ActionFailed    = "failed"
	ActionCancelled = "cancelled"
	ActionFinished  = "finished"
)

// EventKey identifies a handler slot in the dispatch table.
type EventKey struct {
	ResourceType string
	Action       string
}

func (k EventKey) String() string {
	return k.ResourceType + "." + k.Action
}

// Event is one element of a signed webhook batch.
type Event struct {
	ID           string          `json:"id"`
	CreatedAt    time.Time       `json:"created_at"`
	ResourceType string          `json:"resource_type"`
	Action       string          `json:"action"`
	Links        EventLinks      `json:"links"`
	Details      EventDetails    `json:"details"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
	Raw          json.RawMessage `json:"-"`
}

type EventLinks struct {
	Payment      string `json:"payment,omitempty"`
	Subscription string `json:"subscription,omitempty"`
	Mandate      string `json:"mandate,omitempty"`
	Customer     string `json:"customer,omitempty"`
	Organisation string `json:"organisation,omitempty"`
}

type EventDetails struct {
	Origin      string `json:"origin,omitempty"`
	Cause       string `json:"cause,omitempty"`
	Description string `json:"description,omitempty"`
	Scheme      string `json:"scheme,omitempty"`
	ReasonCode  string `json:"reason_code,omitempty"`
}

func (e Event) Key() EventKey {
	return EventKey{
		ResourceType: strings.ToLower(strings.TrimSpace(e.ResourceType)),
		Action:       strings.ToLower(strings.TrimSpace(e.Action)),
	}
}
