package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/smallbiznis/scambio/internal/cache"
	eventsdomain "github.com/smallbiznis/scambio/internal/events/domain"
	"github.com/smallbiznis/scambio/internal/organization/domain"
	"github.com/smallbiznis/scambio/internal/organization/event"
	"github.com/smallbiznis/scambio/internal/organization/repository"
	"github.com/smallbiznis/scambio/internal/reference"
	referencedomain "github.com/smallbiznis/scambio/internal/reference/domain"
	"github.com/smallbiznis/scambio/internal/seed"
)

type orgTestEnv struct {
	db  *gorm.DB
	svc domain.Service
	ctx context.Context
}

func newOrgTestEnv(t *testing.T) *orgTestEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&domain.Organization{},
		&referencedomain.Country{},
		&referencedomain.TaxRegime{},
		&referencedomain.DocumentType{},
		&referencedomain.VATNature{},
		&eventsdomain.SDIEvent{},
	))
	require.NoError(t, seed.EnsureReferenceData(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(
		db,
		repository.NewRepository(db),
		reference.NewRepository(db, cache.NewReferenceCache()),
		node,
		event.NewOutboxPublisher(db, node),
	)

	return &orgTestEnv{db: db, svc: svc, ctx: context.Background()}
}

func validCreateRequest() domain.CreateOrganizationRequest {
	return domain.CreateOrganizationRequest{
		Name:        "  Esempio SRL  ",
		VATNumber:   " 01234567897 ",
		TaxRegime:   "rf01",
		PECAddress:  "fatture@esempio.example",
		RoutingCode: "abcdefg",
		Street:      "Via Roma 1",
		PostalCode:  "00100",
		City:        "Roma",
		Province:    "rm",
		CountryCode: "it",
	}
}

func TestCreate_NormalizesAndPersists(t *testing.T) {
	env := newOrgTestEnv(t)

	resp, err := env.svc.Create(env.ctx, validCreateRequest())
	require.NoError(t, err)

	assert.Equal(t, "Esempio SRL", resp.Name)
	assert.Equal(t, "esempio-srl", resp.Slug)
	assert.Equal(t, "01234567897", resp.VATNumber)
	assert.Equal(t, "RF01", resp.TaxRegime)
	assert.Equal(t, "ABCDEFG", resp.RoutingCode)
	assert.Equal(t, "RM", resp.Province)
	assert.Equal(t, "IT", resp.CountryCode)
	assert.NotEmpty(t, resp.ID)

	var stored domain.Organization
	require.NoError(t, env.db.First(&stored, "vat_number = ?", "01234567897").Error)
	assert.Equal(t, "Esempio SRL", stored.Name)
	assert.NotNil(t, stored.Metadata)
}

func TestCreate_WritesOutboxEvent(t *testing.T) {
	env := newOrgTestEnv(t)

	resp, err := env.svc.Create(env.ctx, validCreateRequest())
	require.NoError(t, err)

	var events []eventsdomain.SDIEvent
	require.NoError(t, env.db.Find(&events, "event_type = ?", event.OrganizationCreatedTopic).Error)
	require.Len(t, events, 1)
	assert.False(t, events[0].Published)
	assert.Equal(t, resp.ID, events[0].OrgID.String())
}

func TestCreate_AcceptsPersonalFiscalCode(t *testing.T) {
	env := newOrgTestEnv(t)

	req := validCreateRequest()
	req.FiscalCode = "rssmra80a01h501u"

	resp, err := env.svc.Create(env.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "RSSMRA80A01H501U", resp.FiscalCode)
}

func TestCreate_ValidationFailures(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*domain.CreateOrganizationRequest)
		wantErr error
	}{
		{
			name:    "empty name",
			mutate:  func(r *domain.CreateOrganizationRequest) { r.Name = "   " },
			wantErr: domain.ErrInvalidName,
		},
		{
			name:    "vat checksum",
			mutate:  func(r *domain.CreateOrganizationRequest) { r.VATNumber = "01234567890" },
			wantErr: domain.ErrInvalidVATNumber,
		},
		{
			name:    "fiscal code checksum",
			mutate:  func(r *domain.CreateOrganizationRequest) { r.FiscalCode = "RSSMRA80A01H501X" },
			wantErr: domain.ErrInvalidFiscalCode,
		},
		{
			name:    "unknown tax regime",
			mutate:  func(r *domain.CreateOrganizationRequest) { r.TaxRegime = "RF99" },
			wantErr: domain.ErrInvalidTaxRegime,
		},
		{
			name:    "missing tax regime",
			mutate:  func(r *domain.CreateOrganizationRequest) { r.TaxRegime = "" },
			wantErr: domain.ErrInvalidTaxRegime,
		},
		{
			name:    "pec without at sign",
			mutate:  func(r *domain.CreateOrganizationRequest) { r.PECAddress = "fatture.esempio.example" },
			wantErr: domain.ErrInvalidPECAddress,
		},
		{
			name:    "routing code too short",
			mutate:  func(r *domain.CreateOrganizationRequest) { r.RoutingCode = "ABC" },
			wantErr: domain.ErrInvalidRoutingCode,
		},
		{
			name:    "unknown country",
			mutate:  func(r *domain.CreateOrganizationRequest) { r.CountryCode = "ZZ" },
			wantErr: domain.ErrInvalidCountry,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newOrgTestEnv(t)
			req := validCreateRequest()
			tc.mutate(&req)

			_, err := env.svc.Create(env.ctx, req)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestCreate_DuplicateVATNumber(t *testing.T) {
	env := newOrgTestEnv(t)

	_, err := env.svc.Create(env.ctx, validCreateRequest())
	require.NoError(t, err)

	dup := validCreateRequest()
	dup.Name = "Esempio Due SRL"
	_, err = env.svc.Create(env.ctx, dup)
	require.ErrorIs(t, err, domain.ErrOrganizationExists)
}

func TestGetByID_RoundTrip(t *testing.T) {
	env := newOrgTestEnv(t)

	created, err := env.svc.Create(env.ctx, validCreateRequest())
	require.NoError(t, err)

	got, err := env.svc.GetByID(env.ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Esempio SRL", got.Name)
}

func TestGetByID_InvalidID(t *testing.T) {
	env := newOrgTestEnv(t)

	_, err := env.svc.GetByID(env.ctx, "  ")
	require.ErrorIs(t, err, domain.ErrInvalidOrganization)

	_, err = env.svc.GetByID(env.ctx, "not-a-snowflake")
	require.ErrorIs(t, err, domain.ErrInvalidOrganization)
}

func TestGetByID_Missing(t *testing.T) {
	env := newOrgTestEnv(t)

	_, err := env.svc.GetByID(env.ctx, "123456789")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestList_ReturnsCreatedOrganizations(t *testing.T) {
	env := newOrgTestEnv(t)

	_, err := env.svc.Create(env.ctx, validCreateRequest())
	require.NoError(t, err)

	second := validCreateRequest()
	second.Name = "Seconda SRL"
	second.VATNumber = "00000010215"
	_, err = env.svc.Create(env.ctx, second)
	require.NoError(t, err)

	items, err := env.svc.List(env.ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
}
