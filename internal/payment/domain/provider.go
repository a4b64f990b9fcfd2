package domain

//go:generate mockgen -destination=mocks/provider_client.go -package=mocks github.com/smallbiznis/pledgesync/internal/payment/domain ProviderClient

import (
	"context"
	"strings"
	"time"
)

type SubscriptionStatus string

const (
	SubscriptionPendingCustomerApproval SubscriptionStatus = "pending_customer_approval"
	SubscriptionCustomerApprovalDenied  SubscriptionStatus = "customer_approval_denied"
	SubscriptionActive                  SubscriptionStatus = "active"
	SubscriptionFinished                SubscriptionStatus = "finished"
	SubscriptionCancelled               SubscriptionStatus = "cancelled"
	SubscriptionPaused                  SubscriptionStatus = "paused"
)

type PaymentStatus string

const (
	PaymentPendingCustomerApproval PaymentStatus = "pending_customer_approval"
	PaymentPendingSubmission       PaymentStatus = "pending_submission"
	PaymentSubmitted               PaymentStatus = "submitted"
	PaymentConfirmed               PaymentStatus = "confirmed"
	PaymentPaidOut                 PaymentStatus = "paid_out"
	PaymentCancelled               PaymentStatus = "cancelled"
	PaymentCustomerApprovalDenied  PaymentStatus = "customer_approval_denied"
	PaymentFailed                  PaymentStatus = "failed"
	PaymentChargedBack             PaymentStatus = "charged_back"
)

// SettledPaymentStatuses are the statuses imported as completed money.
var SettledPaymentStatuses = []PaymentStatus{PaymentConfirmed, PaymentPaidOut}

const chargeDateLayout = "2006-01-02"

type Subscription struct {
	ID           string             `json:"id"`
	CreatedAt    time.Time          `json:"created_at"`
	Amount       int64              `json:"amount"`
	Currency     string             `json:"currency"`
	Status       SubscriptionStatus `json:"status"`
	Name         string             `json:"name"`
	IntervalUnit string             `json:"interval_unit"`
	Interval     int                `json:"interval"`
	DayOfMonth   *int               `json:"day_of_month,omitempty"`
	StartDate    string             `json:"start_date,omitempty"`
	EndDate      string             `json:"end_date,omitempty"`
	Metadata     map[string]string  `json:"metadata,omitempty"`
	Links        SubscriptionLinks  `json:"links"`
}

type SubscriptionLinks struct {
	Mandate string `json:"mandate"`
}

func (s Subscription) StartTime() time.Time {
	if t := parseDate(s.StartDate); !t.IsZero() {
		return t
	}
	return s.CreatedAt.UTC()
}

func (s Subscription) EndTime() *time.Time {
	t := parseDate(s.EndDate)
	if t.IsZero() {
		return nil
	}
	return &t
}

type Payment struct {
	ID          string        `json:"id"`
	CreatedAt   time.Time     `json:"created_at"`
	Amount      int64         `json:"amount"`
	Currency    string        `json:"currency"`
	Status      PaymentStatus `json:"status"`
	ChargeDate  string        `json:"charge_date"`
	Description string        `json:"description,omitempty"`
	Links       PaymentLinks  `json:"links"`
}

type PaymentLinks struct {
	Subscription string `json:"subscription,omitempty"`
	Mandate      string `json:"mandate,omitempty"`
}

// ChargedOn is the provider charge date, falling back to creation time.
func (p Payment) ChargedOn() time.Time {
	if t := parseDate(p.ChargeDate); !t.IsZero() {
		return t
	}
	return p.CreatedAt.UTC()
}

func (p Payment) HasStatus(statuses ...PaymentStatus) bool {
	for _, status := range statuses {
		if p.Status == status {
			return true
		}
	}
	return false
}

type Mandate struct {
	ID        string       `json:"id"`
	Reference string       `json:"reference"`
	Status    string       `json:"status"`
	Scheme    string       `json:"scheme"`
	Links     MandateLinks `json:"links"`
}

type MandateLinks struct {
	Customer            string `json:"customer"`
	CustomerBankAccount string `json:"customer_bank_account"`
}

type Customer struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	GivenName    string `json:"given_name"`
	FamilyName   string `json:"family_name"`
	CompanyName  string `json:"company_name,omitempty"`
	AddressLine1 string `json:"address_line1,omitempty"`
	AddressLine2 string `json:"address_line2,omitempty"`
	AddressLine3 string `json:"address_line3,omitempty"`
	City         string `json:"city,omitempty"`
	Region       string `json:"region,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
	CountryCode  string `json:"country_code,omitempty"`
}

func (c Customer) HasAddress() bool {
	return strings.TrimSpace(c.AddressLine1) != "" || strings.TrimSpace(c.PostalCode) != ""
}

type RedirectFlow struct {
	ID                 string            `json:"id"`
	Description        string            `json:"description,omitempty"`
	SessionToken       string            `json:"session_token"`
	SuccessRedirectURL string            `json:"success_redirect_url"`
	RedirectURL        string            `json:"redirect_url,omitempty"`
	ConfirmationURL    string            `json:"confirmation_url,omitempty"`
	Links              RedirectFlowLinks `json:"links"`
}

type RedirectFlowLinks struct {
	Mandate  string `json:"mandate,omitempty"`
	Customer string `json:"customer,omitempty"`
}

type SubscriptionFilter struct {
	CreatedAtGTE *time.Time
	Mandate      string
	Status       SubscriptionStatus
	After        string
	Limit        int
}

type SubscriptionPage struct {
	Items []Subscription
	After string
}

type PaymentFilter struct {
	Subscription string
	Status       PaymentStatus
	After        string
	Limit        int
}

type PaymentPage struct {
	Items []Payment
	After string
}

type CreateSubscriptionParams struct {
	Amount         int64
	Currency       string
	Name           string
	IntervalUnit   string
	Interval       int
	DayOfMonth     *int
	StartDate      string
	Mandate        string
	Metadata       map[string]string
	IdempotencyKey string
}

type UpdateSubscriptionParams struct {
	Amount *int64
	Name   *string
}

type RedirectFlowParams struct {
	Description        string
	SessionToken       string
	SuccessRedirectURL string
	Customer           *Customer
}

// ProviderClient is the remote API of one payment processor tenant. Calls
// block and are not retried unless the client was built with retries.
type ProviderClient interface {
	GetPayment(ctx context.Context, id string) (*Payment, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	ListSubscriptions(ctx context.Context, filter SubscriptionFilter) (*SubscriptionPage, error)
	ListPayments(ctx context.Context, filter PaymentFilter) (*PaymentPage, error)
	CreateSubscription(ctx context.Context, params CreateSubscriptionParams) (*Subscription, error)
	UpdateSubscription(ctx context.Context, id string, params UpdateSubscriptionParams) (*Subscription, error)
	CancelSubscription(ctx context.Context, id string) (*Subscription, error)
	CreateRedirectFlow(ctx context.Context, params RedirectFlowParams) (*RedirectFlow, error)
	CompleteRedirectFlow(ctx context.Context, id string, sessionToken string) (*RedirectFlow, error)
	GetMandate(ctx context.Context, id string) (*Mandate, error)
	GetCustomer(ctx context.Context, id string) (*Customer, error)
}

func parseDate(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(chargeDateLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
