// Package domain contains persistence models for the organization service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Organization represents a transmitting party: the seller whose
// invoices this instance builds, signs, and forwards to SDI.
type Organization struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name        string            `gorm:"type:text;not null" json:"name"`
	Slug        string            `gorm:"type:text;not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	VATNumber   string            `gorm:"type:text;not null;column:vat_number;uniqueIndex:ux_organizations_vat" json:"vat_number"`
	FiscalCode  string            `gorm:"type:text;column:fiscal_code" json:"fiscal_code,omitempty"`
	TaxRegime   string            `gorm:"type:text;not null;column:tax_regime" json:"tax_regime"`
	PECAddress  string            `gorm:"type:text;column:pec_address" json:"pec_address,omitempty"`
	RoutingCode string            `gorm:"type:text;column:routing_code" json:"routing_code,omitempty"`
	Street      string            `gorm:"type:text" json:"street"`
	PostalCode  string            `gorm:"type:text;column:postal_code" json:"postal_code"`
	City        string            `gorm:"type:text" json:"city"`
	Province    string            `gorm:"type:char(2)" json:"province"`
	CountryCode string            `gorm:"type:char(2);column:country_code;not null" json:"country_code"`
	IsDefault   bool              `gorm:"column:is_default" json:"is_default"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }
