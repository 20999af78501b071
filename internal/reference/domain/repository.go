package domain

import "context"

type Repository interface {
	ListCountries(ctx context.Context) ([]Country, error)
	ListTaxRegimes(ctx context.Context) ([]TaxRegime, error)
	ListDocumentTypes(ctx context.Context) ([]DocumentType, error)
	ListVATNatures(ctx context.Context) ([]VATNature, error)
}
