package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrNotFound                  = errors.New("recurring_contribution_not_found")
	ErrExternalIDAlreadyAssigned = errors.New("external_subscription_id_already_assigned")
	ErrInvalidTimeout            = errors.New("invalid_timeout")
)

// Resolver maps external subscription ids to local records by exact match.
type Resolver interface {
	FindLocal(ctx context.Context, externalSubscriptionID string) (*RecurringContribution, error)
}

type Service interface {
	Resolver

	Get(ctx context.Context, id snowflake.ID) (*RecurringContribution, error)
	FindByRedirectFlow(ctx context.Context, redirectFlowID string) (*RecurringContribution, error)
	Create(ctx context.Context, rc *RecurringContribution) error
	// SetExternalSubscriptionID binds the external id once. Rebinding to a
	// different id fails with ErrExternalIDAlreadyAssigned.
	SetExternalSubscriptionID(ctx context.Context, id snowflake.ID, externalID string) error
	// ApplyStatus applies a subscription-level status change and reports
	// whether anything changed.
	ApplyStatus(ctx context.Context, rc *RecurringContribution, target Status, reason string) (bool, error)
	UpdateAmount(ctx context.Context, id snowflake.ID, amount int64) error
	// SweepAbandoned fails Pending records of provider last touched strictly
	// before cutoff and cancels their Pending contributions.
	SweepAbandoned(ctx context.Context, provider string, cutoff time.Time) ([]snowflake.ID, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rc *RecurringContribution) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*RecurringContribution, error)
	FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*RecurringContribution, error)
	FindByRedirectFlowID(ctx context.Context, db *gorm.DB, redirectFlowID string) (*RecurringContribution, error)
	SetExternalID(ctx context.Context, db *gorm.DB, id snowflake.ID, externalID string, now time.Time) (bool, error)
	// UpdateStatus is a compare-and-set on the current status.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, now time.Time) (bool, error)
	SetEnded(ctx context.Context, db *gorm.DB, id snowflake.ID, endDate time.Time, cancelled bool) error
	ClearOverdue(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	// RecordFailure bumps failure_count and moves non-terminal records to Overdue.
	RecordFailure(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
	UpdateAmount(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64, now time.Time) (bool, error)
	ListStalePending(ctx context.Context, db *gorm.DB, provider string, cutoff time.Time) ([]snowflake.ID, error)
}
