package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*ProviderConfig, error)
	Get(ctx context.Context, id snowflake.ID) (*ProviderConfig, error)
	List(ctx context.Context, provider string) ([]ProviderConfig, error)
	SetActive(ctx context.Context, id snowflake.ID, isActive bool) (*ProviderConfig, error)
	Credentials(cfg ProviderConfig) (Credentials, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, cfg *ProviderConfig) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ProviderConfig, error)
	ListByProvider(ctx context.Context, db *gorm.DB, provider string) ([]ProviderConfig, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, isActive bool, now time.Time) (bool, error)
}

type CreateRequest struct {
	Name        string      `json:"name" validate:"required"`
	Provider    string      `json:"provider" validate:"required"`
	IsTest      bool        `json:"is_test"`
	Credentials Credentials `json:"credentials"`
}

var (
	ErrInvalidProvider      = errors.New("invalid_provider")
	ErrInvalidConfig        = errors.New("invalid_config")
	ErrNotFound             = errors.New("not_found")
	ErrEncryptionKeyMissing = errors.New("encryption_key_missing")
)
