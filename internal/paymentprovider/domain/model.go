package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const ProviderGoCardless = "gocardless"

// ProviderConfig is one payment processor tenant. Config holds the sealed
// credential envelope, never plaintext.
type ProviderConfig struct {
	ID        snowflake.ID   `json:"id" gorm:"primaryKey"`
	Name      string         `json:"name" gorm:"type:text;not null"`
	Provider  string         `json:"provider" gorm:"type:text;not null;index"`
	Config    datatypes.JSON `json:"-" gorm:"not null"`
	IsActive  bool           `json:"is_active" gorm:"not null;default:true"`
	IsTest    bool           `json:"is_test" gorm:"not null;default:false"`
	CreatedAt time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"not null"`
}

func (ProviderConfig) TableName() string { return "payment_provider_configs" }

// Credentials is the decrypted form of ProviderConfig.Config.
type Credentials struct {
	AccessToken   string `json:"access_token" validate:"required"`
	WebhookSecret string `json:"webhook_secret" validate:"required"`
	Environment   string `json:"environment" validate:"omitempty,oneof=live sandbox"`
}
