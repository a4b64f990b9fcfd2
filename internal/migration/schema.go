package migration

import (
	"fmt"

	contactdomain "github.com/smallbiznis/pledgesync/internal/contact/domain"
	contributiondomain "github.com/smallbiznis/pledgesync/internal/contribution/domain"
	membershipdomain "github.com/smallbiznis/pledgesync/internal/membership/domain"
	paymentdomain "github.com/smallbiznis/pledgesync/internal/payment/domain"
	ppdomain "github.com/smallbiznis/pledgesync/internal/paymentprovider/domain"
	recurringdomain "github.com/smallbiznis/pledgesync/internal/recurring/domain"
	"gorm.io/gorm"
)

// AutoMigrate builds the schema from the models for sqlite, libsql and
// mysql, where the embedded postgres migrations do not apply.
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&ppdomain.ProviderConfig{},
		&paymentdomain.EventRecord{},
		&contactdomain.Contact{},
		&contactdomain.Address{},
		&recurringdomain.RecurringContribution{},
		&contributiondomain.Contribution{},
		&contributiondomain.Payment{},
		&membershipdomain.Membership{},
		&membershipdomain.MembershipPayment{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	// MySQL has no partial indexes; the slot stays guarded by the
	// compare-and-set updates there.
	if db.Dialector.Name() == "mysql" {
		return nil
	}
	return db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_contributions_pending_slot
		 ON contributions (recurring_contribution_id) WHERE status = 'Pending'`,
	).Error
}
