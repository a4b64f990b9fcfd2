package reconcile

import (
	"context"
	"errors"
	"sort"

	contributiondomain "github.com/smallbiznis/pledgesync/internal/contribution/domain"
	paymentdomain "github.com/smallbiznis/pledgesync/internal/payment/domain"
	recurringdomain "github.com/smallbiznis/pledgesync/internal/recurring/domain"
	"go.uber.org/zap"
)

type ImportResult struct {
	Added   int
	Skipped int
	Amount  int64
}

// ImportPayments records settled payments not yet in the ledger, oldest first.
// Payments already present are skipped so re-runs are safe. Unlike the
// webhook path it neither clears Overdue nor requires a template.
func (e *Engine) ImportPayments(ctx context.Context, rc *recurringdomain.RecurringContribution, payments []paymentdomain.Payment) (ImportResult, error) {
	var result ImportResult

	known, err := e.contributions.ExternalPaymentIDs(ctx, e.db, rc.ID)
	if err != nil {
		return result, err
	}

	ordered := make([]paymentdomain.Payment, len(payments))
	copy(ordered, payments)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ChargedOn().Before(ordered[j].ChargedOn())
	})

	for _, payment := range ordered {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !payment.HasStatus(paymentdomain.SettledPaymentStatuses...) {
			result.Skipped++
			continue
		}
		if _, ok := known[payment.ID]; ok {
			result.Skipped++
			continue
		}

		outcome, written, err := e.recordCompleted(ctx, rc, payment, completeOptions{seedFromRecurring: true})
		if errors.Is(err, paymentdomain.ErrDuplicateExternalReference) {
			result.Skipped++
			continue
		}
		if err != nil {
			return result, err
		}
		known[payment.ID] = struct{}{}
		if outcome == OutcomeAlreadyRecorded {
			result.Skipped++
			continue
		}

		e.afterCompleted(ctx, rc, written)
		result.Added++
		result.Amount += written.Amount
	}

	e.metrics.RecordImport(ctx, "payment", "added", result.Added)
	e.metrics.RecordImport(ctx, "payment", "skipped", result.Skipped)
	e.log.Debug("payments imported",
		zap.String("recurring_id", rc.ID.String()),
		zap.Int("added", result.Added),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

// Contributions lists the ledger rows of a recurring contribution.
func (e *Engine) Contributions(ctx context.Context, rc *recurringdomain.RecurringContribution) ([]contributiondomain.Contribution, error) {
	return e.contributions.ListByRecurring(ctx, e.db, rc.ID)
}
