package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/pledgesync/internal/payment/domain"
	"gorm.io/gorm"
)

type Service interface {
	// ResolveByEmail returns the single local contact sharing the payer's
	// email, creating one (with address) when none exists. More than one
	// match fails with paymentdomain.ErrAmbiguousContact.
	ResolveByEmail(ctx context.Context, customer paymentdomain.Customer) (snowflake.ID, error)
	Get(ctx context.Context, id snowflake.ID) (*Contact, error)
}

type Repository interface {
	FindByEmail(ctx context.Context, db *gorm.DB, email string) ([]Contact, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Contact, error)
	Insert(ctx context.Context, db *gorm.DB, contact *Contact) error
	InsertAddress(ctx context.Context, db *gorm.DB, address *Address) error
}
