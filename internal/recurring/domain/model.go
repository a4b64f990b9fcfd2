package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "InProgress"
	StatusCompleted  Status = "Completed"
	StatusCancelled  Status = "Cancelled"
	StatusFailed     Status = "Failed"
	// StatusOverdue means the last collection failed and the subscription
	// is still open.
	StatusOverdue Status = "Overdue"
)

// RecurringContribution is the local pledge mirrored from one external
// subscription.
type RecurringContribution struct {
	ID                     snowflake.ID `json:"id" gorm:"primaryKey"`
	ProcessorID            snowflake.ID `json:"processor_id" gorm:"not null;index"`
	ContactID              snowflake.ID `json:"contact_id" gorm:"not null;index"`
	ExternalSubscriptionID *string      `json:"external_subscription_id,omitempty" gorm:"type:text;uniqueIndex:ux_recurring_external_subscription"`
	RedirectFlowID         *string      `json:"redirect_flow_id,omitempty" gorm:"type:text;uniqueIndex:ux_recurring_redirect_flow"`
	SessionToken           *string      `json:"-" gorm:"type:text"`
	Amount                 int64        `json:"amount" gorm:"not null"`
	Currency               string       `json:"currency" gorm:"type:text;not null"`
	FrequencyUnit          string       `json:"frequency_unit" gorm:"type:text;not null"`
	FrequencyInterval      int          `json:"frequency_interval" gorm:"not null;default:1"`
	Description            string       `json:"description,omitempty" gorm:"type:text"`
	FinancialType          string       `json:"financial_type" gorm:"type:text;not null"`
	Source                 string       `json:"source,omitempty" gorm:"type:text"`
	Status                 Status       `json:"status" gorm:"type:text;not null;index"`
	FailureCount           int          `json:"failure_count" gorm:"not null;default:0"`
	IsTest                 bool         `json:"is_test" gorm:"not null;default:false"`
	StartDate              time.Time    `json:"start_date" gorm:"not null"`
	EndDate                *time.Time   `json:"end_date,omitempty"`
	CancelDate             *time.Time   `json:"cancel_date,omitempty"`
	CreatedAt              time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt              time.Time    `json:"updated_at" gorm:"not null;index"`
}

func (RecurringContribution) TableName() string { return "recurring_contributions" }

func (rc RecurringContribution) ExternalID() string {
	if rc.ExternalSubscriptionID == nil {
		return ""
	}
	return *rc.ExternalSubscriptionID
}
