package reconcile

import (
	"context"
	"strings"

	"github.com/google/uuid"
	contributiondomain "github.com/smallbiznis/pledgesync/internal/contribution/domain"
	membershipdomain "github.com/smallbiznis/pledgesync/internal/membership/domain"
	recurringdomain "github.com/smallbiznis/pledgesync/internal/recurring/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type SetupOptions struct {
	// MembershipType creates a Pending membership paid by the record when set.
	MembershipType string
	// OpenSlot creates the initial Pending contribution.
	OpenSlot bool
}

// SetupRecurring writes a new recurring contribution with its optional
// membership and first-payment slot in one transaction.
func (e *Engine) SetupRecurring(ctx context.Context, rc *recurringdomain.RecurringContribution, opts SetupOptions) error {
	now := e.clock.Now()
	if rc.ID == 0 {
		rc.ID = e.genID.Generate()
	}
	if rc.Status == "" {
		rc.Status = recurringdomain.StatusPending
	}
	if rc.StartDate.IsZero() {
		rc.StartDate = now
	}
	if rc.FrequencyInterval <= 0 {
		rc.FrequencyInterval = 1
	}
	rc.Currency = strings.ToUpper(strings.TrimSpace(rc.Currency))
	rc.CreatedAt, rc.UpdatedAt = now, now

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := e.recurringRepo.Insert(ctx, tx, rc); err != nil {
			return err
		}

		if membershipType := strings.TrimSpace(opts.MembershipType); membershipType != "" {
			recurringID := rc.ID
			if err := e.memberships.Insert(ctx, tx, &membershipdomain.Membership{
				ID:                      e.genID.Generate(),
				ContactID:               rc.ContactID,
				RecurringContributionID: &recurringID,
				MembershipType:          membershipType,
				Status:                  membershipdomain.StatusPending,
				JoinDate:                rc.StartDate,
				CreatedAt:               now,
				UpdatedAt:               now,
			}); err != nil {
				return err
			}
		}

		if !opts.OpenSlot {
			return nil
		}
		recurringID := rc.ID
		return e.contributions.Insert(ctx, tx, &contributiondomain.Contribution{
			ID:                      e.genID.Generate(),
			RecurringContributionID: &recurringID,
			ContactID:               rc.ContactID,
			InvoiceID:               uuid.NewString(),
			Amount:                  rc.Amount,
			Currency:                rc.Currency,
			FinancialType:           rc.FinancialType,
			Source:                  rc.Source,
			Status:                  contributiondomain.StatusPending,
			ReceiveDate:             rc.StartDate,
			IsTest:                  rc.IsTest,
			CreatedAt:               now,
			UpdatedAt:               now,
		})
	})
	if err != nil {
		return err
	}

	e.log.Info("recurring contribution created",
		zap.String("recurring_id", rc.ID.String()),
		zap.String("subscription_id", rc.ExternalID()),
		zap.String("membership_type", opts.MembershipType),
		zap.Bool("slot", opts.OpenSlot),
	)
	return nil
}
