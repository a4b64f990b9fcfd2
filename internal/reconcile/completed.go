package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	contributiondomain "github.com/smallbiznis/pledgesync/internal/contribution/domain"
	"github.com/smallbiznis/pledgesync/internal/events"
	membershipdomain "github.com/smallbiznis/pledgesync/internal/membership/domain"
	"github.com/smallbiznis/pledgesync/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/pledgesync/internal/payment/domain"
	recurringdomain "github.com/smallbiznis/pledgesync/internal/recurring/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type completeOptions struct {
	// clearOverdue lets a successful collection lift the Overdue flag.
	clearOverdue bool
	// seedFromRecurring allows the first contribution to be built from the
	// recurring record when there is nothing to copy.
	seedFromRecurring bool
}

// recordCompleted fills the Pending slot with a settled payment, or writes a
// repeat contribution copied from the latest one. The contribution and its
// Payment row commit together with the receive date set to the charge date.
func (e *Engine) recordCompleted(
	ctx context.Context,
	rc *recurringdomain.RecurringContribution,
	payment paymentdomain.Payment,
	opts completeOptions,
) (Outcome, *contributiondomain.Contribution, error) {
	var (
		outcome Outcome
		written *contributiondomain.Contribution
	)
	receipt := e.settings.Get().ReceiptRequested(rc.IsTest)
	receiveDate := payment.ChargedOn()
	status, failures := rc.Status, rc.FailureCount

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := e.clock.Now()

		if opts.clearOverdue && status == recurringdomain.StatusOverdue {
			cleared, err := e.recurringRepo.ClearOverdue(ctx, tx, rc.ID, now)
			if err != nil {
				return err
			}
			if cleared {
				status, failures = recurringdomain.StatusInProgress, 0
			}
		}
		if status == recurringdomain.StatusPending {
			moved, err := e.recurringRepo.UpdateStatus(ctx, tx, rc.ID, recurringdomain.StatusPending, recurringdomain.StatusInProgress, now)
			if err != nil {
				return err
			}
			if moved {
				status = recurringdomain.StatusInProgress
			}
		}

		existing, err := e.contributions.FindByExternalPaymentID(ctx, tx, rc.ID, payment.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Status != contributiondomain.StatusFailed {
				outcome, written = OutcomeAlreadyRecorded, existing
				return nil
			}
			// Failed earlier, then collected on a retry.
			if err := e.contributions.UpdateStatus(ctx, tx, existing.ID, contributiondomain.StatusCompleted, nil, now); err != nil {
				return err
			}
			if err := e.insertPayment(ctx, tx, existing.ID, payment, receiveDate, now); err != nil {
				return err
			}
			existing.Status = contributiondomain.StatusCompleted
			outcome, written = OutcomeSlotCompleted, existing
			return nil
		}

		slot, err := e.contributions.FindPendingSlot(ctx, tx, rc.ID)
		if err != nil {
			return err
		}
		if slot != nil {
			amount := slot.Amount
			if payment.Amount > 0 && payment.Amount != amount {
				e.log.Info("first payment amount differs from pending contribution",
					zap.String("contribution_id", slot.ID.String()),
					zap.Int64("recorded", amount),
					zap.Int64("charged", payment.Amount),
				)
				amount = payment.Amount
			}
			filled, err := e.contributions.CompletePending(ctx, tx, slot.ID, contributiondomain.CompleteSlot{
				ExternalPaymentID: payment.ID,
				Amount:            amount,
				ReceiveDate:       receiveDate,
				ReceiptRequested:  receipt,
			}, now)
			if err != nil {
				return err
			}
			if filled {
				if err := e.insertPayment(ctx, tx, slot.ID, payment, receiveDate, now); err != nil {
					return err
				}
				slot.Status = contributiondomain.StatusCompleted
				slot.ExternalPaymentID = &payment.ID
				slot.Amount = amount
				slot.ReceiveDate = receiveDate
				slot.ReceiptRequested = receipt
				outcome, written = OutcomeSlotCompleted, slot
				return nil
			}
		}

		template, err := e.contributions.FindTemplate(ctx, tx, rc.ID)
		if err != nil {
			return err
		}
		if template == nil {
			if !opts.seedFromRecurring {
				return fmt.Errorf("%w: recurring %s", ErrMissingTemplate, rc.ID)
			}
			template = seedContribution(rc)
		}

		repeat := e.copyContribution(template, rc, now)
		repeat.ExternalPaymentID = &payment.ID
		repeat.Amount = payment.Amount
		if c := strings.ToUpper(strings.TrimSpace(payment.Currency)); c != "" {
			repeat.Currency = c
		}
		repeat.Status = contributiondomain.StatusCompleted
		repeat.ReceiveDate = receiveDate
		repeat.ReceiptRequested = receipt
		if err := e.contributions.Insert(ctx, tx, repeat); err != nil {
			return err
		}
		if err := e.insertPayment(ctx, tx, repeat.ID, payment, receiveDate, now); err != nil {
			return err
		}
		outcome, written = OutcomeRepeatCreated, repeat
		return nil
	})
	if err != nil {
		logger.WithContext(ctx, e.log).Warn("completed payment not recorded",
			zap.String("recurring_id", rc.ID.String()),
			zap.String("payment_id", payment.ID),
			zap.Error(err),
		)
		return "", nil, err
	}

	rc.Status, rc.FailureCount = status, failures
	return outcome, written, nil
}

func (e *Engine) insertPayment(ctx context.Context, tx *gorm.DB, contributionID snowflake.ID, payment paymentdomain.Payment, trxnDate, now time.Time) error {
	return e.contributions.InsertPayment(ctx, tx, &contributiondomain.Payment{
		ID:             e.genID.Generate(),
		ContributionID: contributionID,
		Amount:         payment.Amount,
		Currency:       strings.ToUpper(strings.TrimSpace(payment.Currency)),
		TrxnID:         payment.ID,
		TrxnDate:       trxnDate,
		CreatedAt:      now,
	})
}

// copyContribution copies the financial fields of template into a fresh row.
func (e *Engine) copyContribution(template *contributiondomain.Contribution, rc *recurringdomain.RecurringContribution, now time.Time) *contributiondomain.Contribution {
	recurringID := rc.ID
	c := &contributiondomain.Contribution{
		ID:                      e.genID.Generate(),
		RecurringContributionID: &recurringID,
		ContactID:               template.ContactID,
		InvoiceID:               uuid.NewString(),
		Amount:                  template.Amount,
		Currency:                template.Currency,
		FinancialType:           template.FinancialType,
		Source:                  template.Source,
		IsTest:                  rc.IsTest,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if template.ID != 0 {
		originalID := template.ID
		c.OriginalContributionID = &originalID
	}
	return c
}

func seedContribution(rc *recurringdomain.RecurringContribution) *contributiondomain.Contribution {
	return &contributiondomain.Contribution{
		ContactID:     rc.ContactID,
		Amount:        rc.Amount,
		Currency:      rc.Currency,
		FinancialType: rc.FinancialType,
		Source:        rc.Source,
	}
}

// afterCompleted links memberships and announces the contribution. Failures
// here leave the committed contribution in place.
func (e *Engine) afterCompleted(ctx context.Context, rc *recurringdomain.RecurringContribution, c *contributiondomain.Contribution) {
	if c == nil {
		return
	}
	if err := e.linkMemberships(ctx, rc, c); err != nil {
		logger.WithContext(ctx, e.log).Error("membership payment link failed, manual reconciliation needed",
			zap.String("recurring_id", rc.ID.String()),
			zap.String("contribution_id", c.ID.String()),
			zap.Error(fmt.Errorf("%w: %v", paymentdomain.ErrDownstreamWrite, err)),
		)
		e.metrics.RecordReconcile(ctx, "membership.link", "downstream_write_failed")
	}

	e.publisher.Publish(ctx, events.Event{
		Type:              events.TypeContributionCompleted,
		ProcessorID:       rc.ProcessorID,
		RecurringID:       rc.ID,
		ContributionID:    c.ID,
		ExternalPaymentID: c.ExternalID(),
		Amount:            c.Amount,
		Currency:          c.Currency,
		Status:            string(c.Status),
		OccurredAt:        e.clock.Now(),
	})
}

func (e *Engine) linkMemberships(ctx context.Context, rc *recurringdomain.RecurringContribution, c *contributiondomain.Contribution) error {
	memberships, err := e.memberships.ListByRecurring(ctx, e.db, rc.ID)
	if err != nil {
		return err
	}
	now := e.clock.Now()
	for _, m := range memberships {
		if err := e.memberships.LinkPayment(ctx, e.db, &membershipdomain.MembershipPayment{
			ID:             e.genID.Generate(),
			MembershipID:   m.ID,
			ContributionID: c.ID,
			CreatedAt:      now,
		}); err != nil {
			return err
		}
		if c.Status == contributiondomain.StatusCompleted {
			if _, err := e.memberships.Activate(ctx, e.db, m.ID, now); err != nil {
				return err
			}
		}
	}
	return nil
}
