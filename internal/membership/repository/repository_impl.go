package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pledgesync/internal/membership/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, m *domain.Membership) error {
	return db.WithContext(ctx).Create(m).Error
}

func (r *repo) ListByRecurring(ctx context.Context, db *gorm.DB, recurringID snowflake.ID) ([]domain.Membership, error) {
	var items []domain.Membership
	err := db.WithContext(ctx).Raw(
		`SELECT id, contact_id, recurring_contribution_id, membership_type, status, join_date, created_at, updated_at
		 FROM memberships
		 WHERE recurring_contribution_id = ?
		 ORDER BY id`,
		recurringID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) LinkPayment(ctx context.Context, db *gorm.DB, link *domain.MembershipPayment) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "membership_id"}, {Name: "contribution_id"}},
			DoNothing: true,
		}).
		Create(link).Error
}

func (r *repo) Activate(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE memberships
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusCurrent,
		now,
		id,
		domain.StatusPending,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
