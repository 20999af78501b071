package cache

import (
	"time"

	referencedomain "github.com/smallbiznis/scambio/internal/reference/domain"
)

// Code lists change only with new annex revisions, so a long TTL is safe.
const defaultReferenceTTL = 10 * time.Minute

// ReferenceCache stores FatturaPA code lists for hot-path validation.
type ReferenceCache interface {
	GetCountries() ([]referencedomain.Country, bool)
	SetCountries(countries []referencedomain.Country)
	GetTaxRegimes() ([]referencedomain.TaxRegime, bool)
	SetTaxRegimes(regimes []referencedomain.TaxRegime)
	GetDocumentTypes() ([]referencedomain.DocumentType, bool)
	SetDocumentTypes(types []referencedomain.DocumentType)
	GetVATNatures() ([]referencedomain.VATNature, bool)
	SetVATNatures(natures []referencedomain.VATNature)
}

type referenceCache struct {
	countries Cache[string, []referencedomain.Country]
	regimes   Cache[string, []referencedomain.TaxRegime]
	docTypes  Cache[string, []referencedomain.DocumentType]
	natures   Cache[string, []referencedomain.VATNature]
	ttl       time.Duration
}

// NewReferenceCache returns an in-memory cache for reference code lists.
func NewReferenceCache() ReferenceCache {
	return &referenceCache{
		countries: NewTTLCache[string, []referencedomain.Country](),
		regimes:   NewTTLCache[string, []referencedomain.TaxRegime](),
		docTypes:  NewTTLCache[string, []referencedomain.DocumentType](),
		natures:   NewTTLCache[string, []referencedomain.VATNature](),
		ttl:       defaultReferenceTTL,
	}
}

func (c *referenceCache) GetCountries() ([]referencedomain.Country, bool) {
	return c.countries.Get("countries")
}

func (c *referenceCache) SetCountries(countries []referencedomain.Country) {
	if len(countries) == 0 {
		return
	}
	c.countries.Set("countries", countries, c.ttl)
}

func (c *referenceCache) GetTaxRegimes() ([]referencedomain.TaxRegime, bool) {
	return c.regimes.Get("tax_regimes")
}

func (c *referenceCache) SetTaxRegimes(regimes []referencedomain.TaxRegime) {
	if len(regimes) == 0 {
		return
	}
	c.regimes.Set("tax_regimes", regimes, c.ttl)
}

func (c *referenceCache) GetDocumentTypes() ([]referencedomain.DocumentType, bool) {
	return c.docTypes.Get("document_types")
}

func (c *referenceCache) SetDocumentTypes(types []referencedomain.DocumentType) {
	if len(types) == 0 {
		return
	}
	c.docTypes.Set("document_types", types, c.ttl)
}

func (c *referenceCache) GetVATNatures() ([]referencedomain.VATNature, bool) {
	return c.natures.Get("vat_natures")
}

func (c *referenceCache) SetVATNatures(natures []referencedomain.VATNature) {
	if len(natures) == 0 {
		return
	}
	c.natures.Set("vat_natures", natures, c.ttl)
}
