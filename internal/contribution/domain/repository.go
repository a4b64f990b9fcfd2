package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// CompleteSlot carries the values written when a Pending slot is filled.
type CompleteSlot struct {
	ExternalPaymentID string
	Amount            int64
	ReceiveDate       time.Time
	ReceiptRequested  bool
}

// Repository maps storage uniqueness violations to
// paymentdomain.ErrDuplicateExternalReference.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, c *Contribution) error
	InsertPayment(ctx context.Context, db *gorm.DB, p *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Contribution, error)
	FindPendingSlot(ctx context.Context, db *gorm.DB, recurringID snowflake.ID) (*Contribution, error)
	FindByExternalPaymentID(ctx context.Context, db *gorm.DB, recurringID snowflake.ID, externalPaymentID string) (*Contribution, error)
	// FindTemplate returns the latest Completed contribution, else the latest
	// of any status, else nil.
	FindTemplate(ctx context.Context, db *gorm.DB, recurringID snowflake.ID) (*Contribution, error)
	ListByRecurring(ctx context.Context, db *gorm.DB, recurringID snowflake.ID) ([]Contribution, error)
	ExternalPaymentIDs(ctx context.Context, db *gorm.DB, recurringID snowflake.ID) (map[string]struct{}, error)
	// CompletePending fills the slot only while it is still Pending.
	CompletePending(ctx context.Context, db *gorm.DB, id snowflake.ID, slot CompleteSlot, now time.Time) (bool, error)
	FailPending(ctx context.Context, db *gorm.DB, id snowflake.ID, externalPaymentID string, receiveDate time.Time, now time.Time) (bool, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, to Status, note *string, now time.Time) error
	CancelPending(ctx context.Context, db *gorm.DB, recurringID snowflake.ID, now time.Time) (int64, error)
}
