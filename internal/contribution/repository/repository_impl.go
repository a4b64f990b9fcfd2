package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pledgesync/internal/contribution/domain"
	paymentdomain "github.com/smallbiznis/pledgesync/internal/payment/domain"
	"github.com/smallbiznis/pledgesync/pkg/db"
	"gorm.io/gorm"
)

const contributionColumns = `id, recurring_contribution_id, contact_id, external_payment_id, invoice_id,
	amount, currency, financial_type, source, status, receive_date, original_contribution_id,
	is_test, receipt_requested, note, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, c *domain.Contribution) error {
	return translate(conn.WithContext(ctx).Create(c).Error)
}

func (r *repo) InsertPayment(ctx context.Context, conn *gorm.DB, p *domain.Payment) error {
	return translate(conn.WithContext(ctx).Create(p).Error)
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.Contribution, error) {
	return r.findOne(ctx, conn, `WHERE id = ?`, id)
}

func (r *repo) FindPendingSlot(ctx context.Context, conn *gorm.DB, recurringID snowflake.ID) (*domain.Contribution, error) {
	return r.findOne(ctx, conn,
		`WHERE recurring_contribution_id = ? AND status = ? ORDER BY id`,
		recurringID, domain.StatusPending,
	)
}

func (r *repo) FindByExternalPaymentID(ctx context.Context, conn *gorm.DB, recurringID snowflake.ID, externalPaymentID string) (*domain.Contribution, error) {
	return r.findOne(ctx, conn,
		`WHERE recurring_contribution_id = ? AND external_payment_id = ?`,
		recurringID, externalPaymentID,
	)
}

func (r *repo) FindTemplate(ctx context.Context, conn *gorm.DB, recurringID snowflake.ID) (*domain.Contribution, error) {
	item, err := r.findOne(ctx, conn,
		`WHERE recurring_contribution_id = ? AND status = ? ORDER BY receive_date DESC, id DESC`,
		recurringID, domain.StatusCompleted,
	)
	if err != nil || item != nil {
		return item, err
	}
	return r.findOne(ctx, conn,
		`WHERE recurring_contribution_id = ? ORDER BY receive_date DESC, id DESC`,
		recurringID,
	)
}

func (r *repo) ListByRecurring(ctx context.Context, conn *gorm.DB, recurringID snowflake.ID) ([]domain.Contribution, error) {
	var items []domain.Contribution
	err := conn.WithContext(ctx).Raw(
		`SELECT `+contributionColumns+`
		 FROM contributions
		 WHERE recurring_contribution_id = ?
		 ORDER BY receive_date, id`,
		recurringID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ExternalPaymentIDs(ctx context.Context, conn *gorm.DB, recurringID snowflake.ID) (map[string]struct{}, error) {
	var ids []string
	err := conn.WithContext(ctx).Raw(
		`SELECT external_payment_id
		 FROM contributions
		 WHERE recurring_contribution_id = ? AND external_payment_id IS NOT NULL`,
		recurringID,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

func (r *repo) CompletePending(ctx context.Context, conn *gorm.DB, id snowflake.ID, slot domain.CompleteSlot, now time.Time) (bool, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE contributions
		 SET status = ?, external_payment_id = ?, amount = ?, receive_date = ?,
			receipt_requested = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusCompleted,
		slot.ExternalPaymentID,
		slot.Amount,
		slot.ReceiveDate,
		slot.ReceiptRequested,
		now,
		id,
		domain.StatusPending,
	)
	if result.Error != nil {
		return false, translate(result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FailPending(ctx context.Context, conn *gorm.DB, id snowflake.ID, externalPaymentID string, receiveDate time.Time, now time.Time) (bool, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE contributions
		 SET status = ?, external_payment_id = ?, receive_date = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusFailed,
		externalPaymentID,
		receiveDate,
		now,
		id,
		domain.StatusPending,
	)
	if result.Error != nil {
		return false, translate(result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) UpdateStatus(ctx context.Context, conn *gorm.DB, id snowflake.ID, to domain.Status, note *string, now time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE contributions
		 SET status = ?, note = COALESCE(?, note), updated_at = ?
		 WHERE id = ?`,
		to,
		note,
		now,
		id,
	).Error
}

func (r *repo) CancelPending(ctx context.Context, conn *gorm.DB, recurringID snowflake.ID, now time.Time) (int64, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE contributions
		 SET status = ?, updated_at = ?
		 WHERE recurring_contribution_id = ? AND status = ?`,
		domain.StatusCancelled,
		now,
		recurringID,
		domain.StatusPending,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) findOne(ctx context.Context, conn *gorm.DB, where string, args ...any) (*domain.Contribution, error) {
	var item domain.Contribution
	err := conn.WithContext(ctx).Raw(
		`SELECT `+contributionColumns+` FROM contributions `+where+` LIMIT 1`,
		args...,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if db.IsDuplicateKeyErr(err) {
		return fmt.Errorf("%w: %v", paymentdomain.ErrDuplicateExternalReference, err)
	}
	return err
}
