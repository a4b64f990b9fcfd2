package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
	StatusRefunded  Status = "Refunded"
	StatusCancelled Status = "Cancelled"
)

const NoteLateFailure = "Late Failure"

// Contribution is one ledger entry for a single payment attempt. At most one
// Pending row may exist per recurring contribution, and an external payment id
// appears at most once per recurring contribution.
type Contribution struct {
	ID                      snowflake.ID  `json:"id" gorm:"primaryKey"`
	RecurringContributionID *snowflake.ID `json:"recurring_contribution_id,omitempty" gorm:"index;uniqueIndex:ux_contributions_recurring_external,priority:1"`
	ContactID               snowflake.ID  `json:"contact_id" gorm:"not null;index"`
	ExternalPaymentID       *string       `json:"external_payment_id,omitempty" gorm:"type:text;uniqueIndex:ux_contributions_recurring_external,priority:2"`
	InvoiceID               string        `json:"invoice_id" gorm:"type:text;not null;uniqueIndex:ux_contributions_invoice"`
	Amount                  int64         `json:"amount" gorm:"not null"`
	Currency                string        `json:"currency" gorm:"type:text;not null"`
	FinancialType           string        `json:"financial_type" gorm:"type:text;not null"`
	Source                  string        `json:"source,omitempty" gorm:"type:text"`
	Status                  Status        `json:"status" gorm:"type:text;not null;index"`
	ReceiveDate             time.Time     `json:"receive_date" gorm:"not null"`
	OriginalContributionID  *snowflake.ID `json:"original_contribution_id,omitempty"`
	IsTest                  bool          `json:"is_test" gorm:"not null;default:false"`
	ReceiptRequested        bool          `json:"receipt_requested" gorm:"not null;default:false"`
	Note                    *string       `json:"note,omitempty" gorm:"type:text"`
	CreatedAt               time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt               time.Time     `json:"updated_at" gorm:"not null"`
}

func (Contribution) TableName() string { return "contributions" }

func (c Contribution) ExternalID() string {
	if c.ExternalPaymentID == nil {
		return ""
	}
	return *c.ExternalPaymentID
}

// Payment records money received against a contribution.
type Payment struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	ContributionID snowflake.ID `json:"contribution_id" gorm:"not null;uniqueIndex:ux_payments_contribution"`
	Amount         int64        `json:"amount" gorm:"not null"`
	Currency       string       `json:"currency" gorm:"type:text;not null"`
	TrxnID         string       `json:"trxn_id" gorm:"type:text;not null"`
	TrxnDate       time.Time    `json:"trxn_date" gorm:"not null"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null"`
}

func (Payment) TableName() string { return "contribution_payments" }
