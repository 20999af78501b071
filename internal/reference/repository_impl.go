package reference

import (
	"context"

	"gorm.io/gorm"

	"github.com/smallbiznis/scambio/internal/cache"
	"github.com/smallbiznis/scambio/internal/reference/domain"
)

type repository struct {
	db    *gorm.DB
	cache cache.ReferenceCache
}

func NewRepository(db *gorm.DB, cache cache.ReferenceCache) domain.Repository {
	return &repository{db: db, cache: cache}
}

func (r *repository) ListCountries(ctx context.Context) ([]domain.Country, error) {
	if cached, ok := r.cache.GetCountries(); ok {
		return cached, nil
	}

	type row struct {
		Code string `gorm:"column:code"`
		Name string `gorm:"column:name"`
	}

	var rows []row
	err := r.db.WithContext(ctx).
		Raw(`SELECT code, name FROM countries ORDER BY name`).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	countries := make([]domain.Country, 0, len(rows))
	for _, item := range rows {
		countries = append(countries, domain.Country{
			Code: item.Code,
			Name: item.Name,
		})
	}

	r.cache.SetCountries(countries)
	return countries, nil
}

func (r *repository) ListTaxRegimes(ctx context.Context) ([]domain.TaxRegime, error) {
	if cached, ok := r.cache.GetTaxRegimes(); ok {
		return cached, nil
	}

	var regimes []domain.TaxRegime
	err := r.db.WithContext(ctx).
		Raw(`SELECT code, description FROM tax_regimes ORDER BY code`).
		Scan(&regimes).Error
	if err != nil {
		return nil, err
	}

	r.cache.SetTaxRegimes(regimes)
	return regimes, nil
}

func (r *repository) ListDocumentTypes(ctx context.Context) ([]domain.DocumentType, error) {
	if cached, ok := r.cache.GetDocumentTypes(); ok {
		return cached, nil
	}

	var types []domain.DocumentType
	err := r.db.WithContext(ctx).
		Raw(`SELECT code, description FROM document_types WHERE is_active = true ORDER BY code`).
		Scan(&types).Error
	if err != nil {
		return nil, err
	}

	r.cache.SetDocumentTypes(types)
	return types, nil
}

func (r *repository) ListVATNatures(ctx context.Context) ([]domain.VATNature, error) {
	if cached, ok := r.cache.GetVATNatures(); ok {
		return cached, nil
	}

	var natures []domain.VATNature
	err := r.db.WithContext(ctx).
		Raw(`SELECT code, description FROM vat_natures ORDER BY code`).
		Scan(&natures).Error
	if err != nil {
		return nil, err
	}

	r.cache.SetVATNatures(natures)
	return natures, nil
}
