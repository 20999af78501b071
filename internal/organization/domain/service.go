package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	Create(ctx context.Context, req CreateOrganizationRequest) (*OrganizationResponse, error)
	GetByID(ctx context.Context, id string) (*OrganizationResponse, error)
	List(ctx context.Context) ([]OrganizationResponse, error)
}

type CreateOrganizationRequest struct {
	Name        string `json:"name"`
	VATNumber   string `json:"vat_number"`
	FiscalCode  string `json:"fiscal_code"`
	TaxRegime   string `json:"tax_regime"`
	PECAddress  string `json:"pec_address"`
	RoutingCode string `json:"routing_code"`
	Street      string `json:"street"`
	PostalCode  string `json:"postal_code"`
	City        string `json:"city"`
	Province    string `json:"province"`
	CountryCode string `json:"country_code"`
}

type OrganizationResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	VATNumber   string    `json:"vat_number"`
	FiscalCode  string    `json:"fiscal_code,omitempty"`
	TaxRegime   string    `json:"tax_regime"`
	PECAddress  string    `json:"pec_address,omitempty"`
	RoutingCode string    `json:"routing_code,omitempty"`
	Street      string    `json:"street,omitempty"`
	PostalCode  string    `json:"postal_code,omitempty"`
	City        string    `json:"city,omitempty"`
	Province    string    `json:"province,omitempty"`
	CountryCode string    `json:"country_code"`
	CreatedAt   time.Time `json:"created_at"`
}

var (
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidVATNumber    = errors.New("invalid_vat_number")
	ErrInvalidFiscalCode   = errors.New("invalid_fiscal_code")
	ErrInvalidTaxRegime    = errors.New("invalid_tax_regime")
	ErrInvalidPECAddress   = errors.New("invalid_pec_address")
	ErrInvalidRoutingCode  = errors.New("invalid_routing_code")
	ErrInvalidCountry      = errors.New("invalid_country")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrOrganizationExists  = errors.New("organization_exists")
)
