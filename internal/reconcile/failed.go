package reconcile

import (
	"context"

	contributiondomain "github.com/smallbiznis/pledgesync/internal/contribution/domain"
	"github.com/smallbiznis/pledgesync/internal/events"
	"github.com/smallbiznis/pledgesync/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/pledgesync/internal/payment/domain"
	recurringdomain "github.com/smallbiznis/pledgesync/internal/recurring/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// recordFailed counts a failed collection against the recurring contribution
// and records the failure on the slot, on the contribution already carrying
// the payment (as a late failure), or on a new Failed contribution.
func (e *Engine) recordFailed(ctx context.Context, rc *recurringdomain.RecurringContribution, payment paymentdomain.Payment) (Outcome, error) {
	var (
		outcome Outcome
		written *contributiondomain.Contribution
	)
	receiveDate := payment.ChargedOn()
	status := rc.Status

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := e.clock.Now()

		existing, err := e.contributions.FindByExternalPaymentID(ctx, tx, rc.ID, payment.ID)
		if err != nil {
			return err
		}
		if existing != nil && (existing.Status == contributiondomain.StatusFailed || existing.Status == contributiondomain.StatusRefunded) {
			outcome, written = OutcomeAlreadyRecorded, existing
			return nil
		}

		if err := e.recurringRepo.RecordFailure(ctx, tx, rc.ID, now); err != nil {
			return err
		}
		if !status.IsTerminal() {
			status = recurringdomain.StatusOverdue
		}

		if existing == nil {
			slot, err := e.contributions.FindPendingSlot(ctx, tx, rc.ID)
			if err != nil {
				return err
			}
			if slot != nil {
				failed, err := e.contributions.FailPending(ctx, tx, slot.ID, payment.ID, receiveDate, now)
				if err != nil {
					return err
				}
				if failed {
					slot.Status = contributiondomain.StatusFailed
					slot.ExternalPaymentID = &payment.ID
					slot.ReceiveDate = receiveDate
					outcome, written = OutcomeSlotFailed, slot
					return nil
				}
			}
		}

		if existing != nil {
			// There is no Completed to Failed transition; Refunded stands in.
			note := contributiondomain.NoteLateFailure
			if err := e.contributions.UpdateStatus(ctx, tx, existing.ID, contributiondomain.StatusRefunded, &note, now); err != nil {
				return err
			}
			existing.Status = contributiondomain.StatusRefunded
			existing.Note = &note
			outcome, written = OutcomeLateFailure, existing
			return nil
		}

		template, err := e.contributions.FindTemplate(ctx, tx, rc.ID)
		if err != nil {
			return err
		}
		if template == nil {
			template = seedContribution(rc)
		}
		failedContribution := e.copyContribution(template, rc, now)
		failedContribution.ExternalPaymentID = &payment.ID
		if payment.Amount > 0 {
			failedContribution.Amount = payment.Amount
		}
		failedContribution.Status = contributiondomain.StatusFailed
		failedContribution.ReceiveDate = receiveDate
		if err := e.contributions.Insert(ctx, tx, failedContribution); err != nil {
			return err
		}
		outcome, written = OutcomeFailureCreated, failedContribution
		return nil
	})
	if err != nil {
		logger.WithContext(ctx, e.log).Warn("failed payment not recorded",
			zap.String("recurring_id", rc.ID.String()),
			zap.String("payment_id", payment.ID),
			zap.Error(err),
		)
		return "", err
	}
	if outcome == OutcomeAlreadyRecorded {
		return outcome, nil
	}

	previous := rc.Status
	rc.Status = status
	rc.FailureCount++

	eventType := events.TypeContributionFailed
	if outcome == OutcomeLateFailure {
		eventType = events.TypeContributionRefunded
	}
	e.publisher.Publish(ctx, events.Event{
		Type:              eventType,
		ProcessorID:       rc.ProcessorID,
		RecurringID:       rc.ID,
		ContributionID:    written.ID,
		ExternalPaymentID: payment.ID,
		Amount:            written.Amount,
		Currency:          written.Currency,
		Status:            string(written.Status),
		OccurredAt:        e.clock.Now(),
	})
	if previous != rc.Status {
		e.publisher.Publish(ctx, events.Event{
			Type:        events.TypeRecurringStatusChanged,
			ProcessorID: rc.ProcessorID,
			RecurringID: rc.ID,
			Status:      string(rc.Status),
			Reason:      "payment.failed",
			OccurredAt:  e.clock.Now(),
		})
	}
	return outcome, nil
}
