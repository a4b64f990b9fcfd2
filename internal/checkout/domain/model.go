package domain

import (
	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/pledgesync/internal/payment/domain"
	recurringdomain "github.com/smallbiznis/pledgesync/internal/recurring/domain"
)

// StartRequest opens a redirect-flow checkout for a regular gift.
type StartRequest struct {
	ProcessorID snowflake.ID           `json:"processor_id" validate:"required"`
	Customer    paymentdomain.Customer `json:"customer"`
	Amount      int64                  `json:"amount" validate:"gt=0"`
	Currency    string                 `json:"currency" validate:"required,len=3"`
	// FrequencyUnit is week, month or year; empty means month.
	FrequencyUnit      string `json:"frequency_unit" validate:"omitempty,oneof=week month year"`
	FrequencyInterval  int    `json:"frequency_interval" validate:"gte=0"`
	Recurring          bool   `json:"recurring"`
	Description        string `json:"description"`
	MembershipType     string `json:"membership_type"`
	SuccessRedirectURL string `json:"success_redirect_url" validate:"required,url"`
}

type StartResult struct {
	RecurringID    snowflake.ID `json:"recurring_id"`
	RedirectFlowID string       `json:"redirect_flow_id"`
	RedirectURL    string       `json:"redirect_url"`
}

type CompleteRequest struct {
	RedirectFlowID string `json:"redirect_flow_id" validate:"required"`
	// StartDate is an optional YYYY-MM-DD first charge date.
	StartDate  string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	DayOfMonth *int   `json:"day_of_month" validate:"omitempty,min=-1,max=28"`
}

type CompleteResult struct {
	RecurringID    snowflake.ID           `json:"recurring_id"`
	SubscriptionID string                 `json:"subscription_id"`
	MandateID      string                 `json:"mandate_id,omitempty"`
	Status         recurringdomain.Status `json:"status"`
}
