package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Contact struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	Email        string       `json:"email" gorm:"type:text;index:idx_contacts_email"`
	FirstName    string       `json:"first_name" gorm:"type:text"`
	LastName     string       `json:"last_name" gorm:"type:text"`
	Organization string       `json:"organization,omitempty" gorm:"type:text"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"not null"`
}

func (Contact) TableName() string { return "contacts" }

type Address struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	ContactID   snowflake.ID `json:"contact_id" gorm:"not null;index"`
	Line1       string       `json:"line1" gorm:"type:text"`
	Line2       string       `json:"line2,omitempty" gorm:"type:text"`
	Line3       string       `json:"line3,omitempty" gorm:"type:text"`
	City        string       `json:"city,omitempty" gorm:"type:text"`
	Region      string       `json:"region,omitempty" gorm:"type:text"`
	PostalCode  string       `json:"postal_code,omitempty" gorm:"type:text"`
	CountryCode string       `json:"country_code,omitempty" gorm:"type:text"`
	IsPrimary   bool         `json:"is_primary" gorm:"not null;default:false"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
}

func (Address) TableName() string { return "addresses" }
