package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pledgesync/internal/contact/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) ([]domain.Contact, error) {
	var contacts []domain.Contact
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, first_name, last_name, organization, created_at, updated_at
		 FROM contacts
		 WHERE LOWER(email) = LOWER(?)
		 ORDER BY id
		 LIMIT 2`,
		email,
	).Scan(&contacts).Error
	if err != nil {
		return nil, err
	}
	return contacts, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Contact, error) {
	var item domain.Contact
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, first_name, last_name, organization, created_at, updated_at
		 FROM contacts
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, contact *domain.Contact) error {
	return db.WithContext(ctx).Create(contact).Error
}

func (r *repo) InsertAddress(ctx context.Context, db *gorm.DB, address *domain.Address) error {
	return db.WithContext(ctx).Create(address).Error
}
