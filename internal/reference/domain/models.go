package domain

import "time"

// Reference tables hold the closed FatturaPA code lists. They are
// seeded by migrations and read-only at runtime.

type Country struct {
	Code      string    `json:"code" gorm:"type:char(2);primaryKey;column:code"`
	Name      string    `json:"name" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at,omitempty" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Country) TableName() string { return "countries" }

// TaxRegime is a RegimeFiscale code (RF01..RF19).
type TaxRegime struct {
	Code        string    `json:"code" gorm:"type:char(4);primaryKey;column:code"`
	Description string    `json:"description" gorm:"type:text;not null"`
	CreatedAt   time.Time `json:"created_at,omitempty" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (TaxRegime) TableName() string { return "tax_regimes" }

// DocumentType is a TipoDocumento code (TD01..TD28).
type DocumentType struct {
	Code        string    `json:"code" gorm:"type:char(4);primaryKey;column:code"`
	Description string    `json:"description" gorm:"type:text;not null"`
	IsActive    bool      `json:"is_active,omitempty" gorm:"not null;default:true"`
	CreatedAt   time.Time `json:"created_at,omitempty" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (DocumentType) TableName() string { return "document_types" }

// VATNature is a Natura code justifying a zero-VAT line (N1..N7).
type VATNature struct {
	Code        string    `json:"code" gorm:"type:text;primaryKey;column:code"`
	Description string    `json:"description" gorm:"type:text;not null"`
	CreatedAt   time.Time `json:"created_at,omitempty" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (VATNature) TableName() string { return "vat_natures" }
