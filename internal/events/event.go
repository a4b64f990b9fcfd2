package events

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Type string

const (
	TypeContributionCompleted  Type = "contribution.completed"
	TypeContributionFailed     Type = "contribution.failed"
	TypeContributionRefunded   Type = "contribution.refunded"
	TypeRecurringStatusChanged Type = "recurring.status_changed"
	TypeRecurringSwept         Type = "recurring.swept"
)

// Event is a ledger change announced after the write committed.
type Event struct {
	Type              Type         `json:"type"`
	ProcessorID       snowflake.ID `json:"processor_id,omitempty"`
	RecurringID       snowflake.ID `json:"recurring_contribution_id,omitempty"`
	ContributionID    snowflake.ID `json:"contribution_id,omitempty"`
	ExternalPaymentID string       `json:"external_payment_id,omitempty"`
	Amount            int64        `json:"amount,omitempty"`
	Currency          string       `json:"currency,omitempty"`
	Status            string       `json:"status,omitempty"`
	Reason            string       `json:"reason,omitempty"`
	OccurredAt        time.Time    `json:"occurred_at"`
}

func (e Event) Subject() string {
	return "events." + string(e.Type)
}
