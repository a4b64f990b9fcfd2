package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPending Status = "Pending"
	StatusCurrent Status = "Current"
)

type Membership struct {
	ID                      snowflake.ID  `json:"id" gorm:"primaryKey"`
	ContactID               snowflake.ID  `json:"contact_id" gorm:"not null;index"`
	RecurringContributionID *snowflake.ID `json:"recurring_contribution_id,omitempty" gorm:"index"`
	MembershipType          string        `json:"membership_type" gorm:"type:text;not null"`
	Status                  Status        `json:"status" gorm:"type:text;not null"`
	JoinDate                time.Time     `json:"join_date" gorm:"not null"`
	CreatedAt               time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt               time.Time     `json:"updated_at" gorm:"not null"`
}

func (Membership) TableName() string { return "memberships" }

// MembershipPayment links a contribution to the membership it pays for.
type MembershipPayment struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	MembershipID   snowflake.ID `json:"membership_id" gorm:"not null;uniqueIndex:ux_membership_payments_link,priority:1"`
	ContributionID snowflake.ID `json:"contribution_id" gorm:"not null;uniqueIndex:ux_membership_payments_link,priority:2"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null"`
}

func (MembershipPayment) TableName() string { return "membership_payments" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, m *Membership) error
	ListByRecurring(ctx context.Context, db *gorm.DB, recurringID snowflake.ID) ([]Membership, error)
	// LinkPayment is a no-op when the link already exists.
	LinkPayment(ctx context.Context, db *gorm.DB, link *MembershipPayment) error
	Activate(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
}
