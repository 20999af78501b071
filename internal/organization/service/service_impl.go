package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/smallbiznis/scambio/internal/fiscalcode"
	"github.com/smallbiznis/scambio/internal/organization/domain"
	"github.com/smallbiznis/scambio/internal/organization/event"
	referencedomain "github.com/smallbiznis/scambio/internal/reference/domain"
	"github.com/smallbiznis/scambio/pkg/db"
)

type service struct {
	db        *gorm.DB
	repo      domain.Repository
	ref       referencedomain.Repository
	genID     *snowflake.Node
	publisher event.EventPublisher
}

func NewService(db *gorm.DB, repo domain.Repository, ref referencedomain.Repository, genID *snowflake.Node, publisher event.EventPublisher) domain.Service {
	return &service{
		db:        db,
		repo:      repo,
		ref:       ref,
		genID:     genID,
		publisher: publisher,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateOrganizationRequest) (*domain.OrganizationResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	vat, err := fiscalcode.ValidateCompany(req.VATNumber)
	if err != nil {
		return nil, domain.ErrInvalidVATNumber
	}

	fiscalCode := strings.TrimSpace(req.FiscalCode)
	if fiscalCode != "" {
		normalized, err := validateFiscalCode(fiscalCode)
		if err != nil {
			return nil, domain.ErrInvalidFiscalCode
		}
		fiscalCode = normalized
	}

	taxRegime := strings.ToUpper(strings.TrimSpace(req.TaxRegime))
	regimeOK, err := s.taxRegimeExists(ctx, taxRegime)
	if err != nil {
		return nil, err
	}
	if !regimeOK {
		return nil, domain.ErrInvalidTaxRegime
	}

	pec := strings.TrimSpace(req.PECAddress)
	if pec != "" && !strings.Contains(pec, "@") {
		return nil, domain.ErrInvalidPECAddress
	}

	routingCode := strings.ToUpper(strings.TrimSpace(req.RoutingCode))
	if routingCode != "" && !fiscalcode.ValidateRoutingCode(routingCode) {
		return nil, domain.ErrInvalidRoutingCode
	}

	countryCode := strings.ToUpper(strings.TrimSpace(req.CountryCode))
	if countryCode == "" {
		countryCode = "IT"
	}
	countryOK, err := s.countryExists(ctx, countryCode)
	if err != nil {
		return nil, err
	}
	if !countryOK {
		return nil, domain.ErrInvalidCountry
	}

	now := time.Now().UTC()
	orgID := s.genID.Generate()
	org := domain.Organization{
		ID:          orgID,
		Name:        name,
		Slug:        slug.Make(name),
		VATNumber:   vat.Value(),
		FiscalCode:  fiscalCode,
		TaxRegime:   taxRegime,
		PECAddress:  pec,
		RoutingCode: routingCode,
		Street:      strings.TrimSpace(req.Street),
		PostalCode:  strings.TrimSpace(req.PostalCode),
		City:        strings.TrimSpace(req.City),
		Province:    strings.ToUpper(strings.TrimSpace(req.Province)),
		CountryCode: countryCode,
		Metadata:    datatypes.JSONMap{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Create(ctx, org)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrOrganizationExists
		}
		return nil, err
	}

	s.emitOrganizationCreated(ctx, org)

	return toResponse(org), nil
}

func (s *service) GetByID(ctx context.Context, id string) (*domain.OrganizationResponse, error) {
	raw := strings.TrimSpace(id)
	if raw == "" {
		return nil, domain.ErrInvalidOrganization
	}
	orgID, err := snowflake.ParseString(raw)
	if err != nil {
		return nil, domain.ErrInvalidOrganization
	}

	org, err := s.repo.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}

	return toResponse(*org), nil
}

func (s *service) List(ctx context.Context) ([]domain.OrganizationResponse, error) {
	orgs, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.OrganizationResponse, 0, len(orgs))
	for _, org := range orgs {
		resp = append(resp, *toResponse(org))
	}

	return resp, nil
}

// validateFiscalCode accepts either the 16-character personal code or
// the numeric company form, which equals the VAT number body.
func validateFiscalCode(raw string) (string, error) {
	if id, err := fiscalcode.ValidateIndividual(raw); err == nil {
		return id.Value(), nil
	}
	id, err := fiscalcode.ValidateCompany(raw)
	if err != nil {
		return "", err
	}
	return id.Value(), nil
}

func (s *service) taxRegimeExists(ctx context.Context, code string) (bool, error) {
	if code == "" {
		return false, nil
	}
	regimes, err := s.ref.ListTaxRegimes(ctx)
	if err != nil {
		return false, err
	}
	for _, regime := range regimes {
		if regime.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (s *service) countryExists(ctx context.Context, code string) (bool, error) {
	countries, err := s.ref.ListCountries(ctx)
	if err != nil {
		return false, err
	}
	for _, country := range countries {
		if country.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (s *service) emitOrganizationCreated(ctx context.Context, org domain.Organization) {
	if s.publisher == nil {
		return
	}

	payload := map[string]string{
		"organization_id": org.ID.String(),
		"vat_number":      org.VATNumber,
		"tax_regime":      org.TaxRegime,
		"country_code":    org.CountryCode,
		"created_at":      org.CreatedAt.Format(time.RFC3339),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		zap.L().Warn("failed to marshal organization.created payload", zap.Error(err))
		return
	}

	if err := s.publisher.Publish(ctx, event.OrganizationCreatedTopic, data); err != nil {
		zap.L().Warn("failed to publish organization.created", zap.Error(err))
	}
}

func toResponse(org domain.Organization) *domain.OrganizationResponse {
	return &domain.OrganizationResponse{
		ID:          org.ID.String(),
		Name:        org.Name,
		Slug:        org.Slug,
		VATNumber:   org.VATNumber,
		FiscalCode:  org.FiscalCode,
		TaxRegime:   org.TaxRegime,
		PECAddress:  org.PECAddress,
		RoutingCode: org.RoutingCode,
		Street:      org.Street,
		PostalCode:  org.PostalCode,
		City:        org.City,
		Province:    org.Province,
		CountryCode: org.CountryCode,
		CreatedAt:   org.CreatedAt,
	}
}
