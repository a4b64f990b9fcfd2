package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/pledgesync/internal/payment/domain"
	"github.com/smallbiznis/pledgesync/internal/recurring/domain"
	"github.com/smallbiznis/pledgesync/pkg/db"
	"gorm.io/gorm"
)

const recurringColumns = `id, processor_id, contact_id, external_subscription_id, redirect_flow_id, session_token,
	amount, currency, frequency_unit, frequency_interval, description, financial_type, source, status,
	failure_count, is_test, start_date, end_date, cancel_date, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, rc *domain.RecurringContribution) error {
	err := conn.WithContext(ctx).Create(rc).Error
	if err != nil && db.IsDuplicateKeyErr(err) {
		return fmt.Errorf("%w: %v", paymentdomain.ErrDuplicateExternalReference, err)
	}
	return err
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.RecurringContribution, error) {
	return r.findOne(ctx, conn, `WHERE id = ?`, id)
}

func (r *repo) FindByExternalID(ctx context.Context, conn *gorm.DB, externalID string) (*domain.RecurringContribution, error) {
	return r.findOne(ctx, conn, `WHERE external_subscription_id = ?`, externalID)
}

func (r *repo) FindByRedirectFlowID(ctx context.Context, conn *gorm.DB, redirectFlowID string) (*domain.RecurringContribution, error) {
	return r.findOne(ctx, conn, `WHERE redirect_flow_id = ?`, redirectFlowID)
}

func (r *repo) SetExternalID(ctx context.Context, conn *gorm.DB, id snowflake.ID, externalID string, now time.Time) (bool, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE recurring_contributions
		 SET external_subscription_id = ?, updated_at = ?
		 WHERE id = ? AND external_subscription_id IS NULL`,
		externalID,
		now,
		id,
	)
	if result.Error != nil {
		if db.IsDuplicateKeyErr(result.Error) {
			return false, fmt.Errorf("%w: %v", paymentdomain.ErrDuplicateExternalReference, result.Error)
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) UpdateStatus(ctx context.Context, conn *gorm.DB, id snowflake.ID, from, to domain.Status, now time.Time) (bool, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE recurring_contributions
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		to,
		now,
		id,
		from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) SetEnded(ctx context.Context, conn *gorm.DB, id snowflake.ID, endDate time.Time, cancelled bool) error {
	if cancelled {
		return conn.WithContext(ctx).Exec(
			`UPDATE recurring_contributions SET cancel_date = ?, end_date = COALESCE(end_date, ?) WHERE id = ?`,
			endDate, endDate, id,
		).Error
	}
	return conn.WithContext(ctx).Exec(
		`UPDATE recurring_contributions SET end_date = ? WHERE id = ?`,
		endDate, id,
	).Error
}

func (r *repo) ClearOverdue(ctx context.Context, conn *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE recurring_contributions
		 SET status = ?, failure_count = 0, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusInProgress,
		now,
		id,
		domain.StatusOverdue,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) RecordFailure(ctx context.Context, conn *gorm.DB, id snowflake.ID, now time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE recurring_contributions
		 SET failure_count = failure_count + 1,
			status = CASE WHEN status IN (?, ?, ?) THEN status ELSE ? END,
			updated_at = ?
		 WHERE id = ?`,
		domain.StatusCompleted,
		domain.StatusCancelled,
		domain.StatusFailed,
		domain.StatusOverdue,
		now,
		id,
	).Error
}

func (r *repo) UpdateAmount(ctx context.Context, conn *gorm.DB, id snowflake.ID, amount int64, now time.Time) (bool, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE recurring_contributions SET amount = ?, updated_at = ? WHERE id = ?`,
		amount, now, id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListStalePending(ctx context.Context, conn *gorm.DB, provider string, cutoff time.Time) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := conn.WithContext(ctx).Raw(
		`SELECT rc.id
		 FROM recurring_contributions rc
		 JOIN payment_provider_configs ppc ON ppc.id = rc.processor_id
		 WHERE ppc.provider = ? AND rc.status = ? AND rc.updated_at < ?
		 ORDER BY rc.id`,
		provider,
		domain.StatusPending,
		cutoff,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) findOne(ctx context.Context, conn *gorm.DB, where string, args ...any) (*domain.RecurringContribution, error) {
	var item domain.RecurringContribution
	err := conn.WithContext(ctx).Raw(
		`SELECT `+recurringColumns+` FROM recurring_contributions `+where+` LIMIT 1`,
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
