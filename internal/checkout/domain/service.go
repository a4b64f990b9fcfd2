package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	recurringdomain "github.com/smallbiznis/pledgesync/internal/recurring/domain"
)

var (
	// ErrOneOffNotSupported rejects a single gift while force_recurring is off.
	ErrOneOffNotSupported = errors.New("one_off_not_supported")
	ErrProcessorInactive  = errors.New("processor_inactive")

	// ErrCheckoutClosed means the record left Pending before the payer
	// came back, e.g. it was swept as abandoned.
	ErrCheckoutClosed  = errors.New("checkout_closed")
	ErrRecurringClosed = errors.New("recurring_closed")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidRequest  = errors.New("invalid_checkout_request")
)

type Service interface {
	StartCheckout(ctx context.Context, req StartRequest) (*StartResult, error)
	CompleteCheckout(ctx context.Context, req CompleteRequest) (*CompleteResult, error)
	// CancelRecurring cancels the provider subscription, then the local record.
	CancelRecurring(ctx context.Context, recurringID snowflake.ID) (*recurringdomain.RecurringContribution, error)
	// UpdateRecurringAmount changes the provider subscription amount, then
	// the local record.
	UpdateRecurringAmount(ctx context.Context, recurringID snowflake.ID, amount int64) (*recurringdomain.RecurringContribution, error)
}
