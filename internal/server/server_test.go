package server

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/scambio/internal/config"
	"github.com/smallbiznis/scambio/internal/providers/pdf"
	referencedomain "github.com/smallbiznis/scambio/internal/reference/domain"
	transmissiondomain "github.com/smallbiznis/scambio/internal/transmission/domain"

	organizationdomain "github.com/smallbiznis/scambio/internal/organization/domain"
)

type fakeOrganizationService struct {
	createResp *organizationdomain.OrganizationResponse
	createErr  error
	lastCreate organizationdomain.CreateOrganizationRequest

	getResp *organizationdomain.OrganizationResponse
	getErr  error
	lastGet string

	listResp []organizationdomain.OrganizationResponse
	listErr  error
}

func (f *fakeOrganizationService) Create(ctx context.Context, req organizationdomain.CreateOrganizationRequest) (*organizationdomain.OrganizationResponse, error) {
	_ = ctx
	f.lastCreate = req
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.createResp, nil
}

func (f *fakeOrganizationService) GetByID(ctx context.Context, id string) (*organizationdomain.OrganizationResponse, error) {
	_ = ctx
	f.lastGet = id
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getResp, nil
}

func (f *fakeOrganizationService) List(ctx context.Context) ([]organizationdomain.OrganizationResponse, error) {
	_ = ctx
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listResp, nil
}

type fakeTransmissionService struct {
	submitResp transmissiondomain.TransmissionResponse
	submitErr  error
	lastSubmit transmissiondomain.SubmitInvoiceRequest

	retryResp transmissiondomain.TransmissionResponse
	retryErr  error
	lastRetry transmissiondomain.RetryTransmissionRequest

	getResp transmissiondomain.TransmissionResponse
	getErr  error
	lastGet string

	listResp transmissiondomain.ListTransmissionsResponse
	listErr  error
	lastList transmissiondomain.ListTransmissionsRequest

	ingestResp transmissiondomain.IngestNotificationResponse
	ingestErr  error
	lastIngest transmissiondomain.IngestNotificationRequest
}

func (f *fakeTransmissionService) Submit(ctx context.Context, req transmissiondomain.SubmitInvoiceRequest) (transmissiondomain.TransmissionResponse, error) {
	_ = ctx
	f.lastSubmit = req
	if f.submitErr != nil {
		return transmissiondomain.TransmissionResponse{}, f.submitErr
	}
	return f.submitResp, nil
}

func (f *fakeTransmissionService) Retry(ctx context.Context, req transmissiondomain.RetryTransmissionRequest) (transmissiondomain.TransmissionResponse, error) {
	_ = ctx
	f.lastRetry = req
	if f.retryErr != nil {
		return transmissiondomain.TransmissionResponse{}, f.retryErr
	}
	return f.retryResp, nil
}

func (f *fakeTransmissionService) GetByID(ctx context.Context, id string) (transmissiondomain.TransmissionResponse, error) {
	_ = ctx
	f.lastGet = id
	if f.getErr != nil {
		return transmissiondomain.TransmissionResponse{}, f.getErr
	}
	return f.getResp, nil
}

func (f *fakeTransmissionService) List(ctx context.Context, req transmissiondomain.ListTransmissionsRequest) (transmissiondomain.ListTransmissionsResponse, error) {
	_ = ctx
	f.lastList = req
	if f.listErr != nil {
		return transmissiondomain.ListTransmissionsResponse{}, f.listErr
	}
	return f.listResp, nil
}

func (f *fakeTransmissionService) IngestNotification(ctx context.Context, req transmissiondomain.IngestNotificationRequest) (transmissiondomain.IngestNotificationResponse, error) {
	_ = ctx
	f.lastIngest = req
	if f.ingestErr != nil {
		return transmissiondomain.IngestNotificationResponse{}, f.ingestErr
	}
	return f.ingestResp, nil
}

func (f *fakeTransmissionService) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	_ = ctx
	_ = limit
	return 0, nil
}

func (f *fakeTransmissionService) RecoverStuck(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	_ = ctx
	_ = olderThan
	_ = limit
	return 0, nil
}

type fakeReferenceRepository struct {
	countries []referencedomain.Country
}

func (f *fakeReferenceRepository) ListCountries(ctx context.Context) ([]referencedomain.Country, error) {
	_ = ctx
	return f.countries, nil
}

func (f *fakeReferenceRepository) ListTaxRegimes(ctx context.Context) ([]referencedomain.TaxRegime, error) {
	_ = ctx
	return nil, nil
}

func (f *fakeReferenceRepository) ListDocumentTypes(ctx context.Context) ([]referencedomain.DocumentType, error) {
	_ = ctx
	return nil, nil
}

func (f *fakeReferenceRepository) ListVATNatures(ctx context.Context) ([]referencedomain.VATNature, error) {
	_ = ctx
	return nil, nil
}

type fakePDFProvider struct {
	rendered []byte
	err      error
	lastData pdf.CourtesyInvoice
}

func (f *fakePDFProvider) RenderCourtesyInvoice(ctx context.Context, data pdf.CourtesyInvoice) (io.Reader, error) {
	_ = ctx
	f.lastData = data
	if f.err != nil {
		return nil, f.err
	}
	return bytes.NewReader(f.rendered), nil
}

type serverFixture struct {
	srv    *Server
	orgSvc *fakeOrganizationService
	txSvc  *fakeTransmissionService
	pdf    *fakePDFProvider
}

// newServerFixture wires the full route table over fakes, so tests go
// through real routing, middleware and the error mapper.
func newServerFixture() *serverFixture {
	gin.SetMode(gin.TestMode)

	orgSvc := &fakeOrganizationService{}
	txSvc := &fakeTransmissionService{}
	pdfProv := &fakePDFProvider{rendered: []byte("%PDF-1.7 test")}

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	srv := &Server{
		engine:          engine,
		cfg:             config.Config{Environment: "test"},
		organizationSvc: orgSvc,
		transmissionSvc: txSvc,
		refrepo:         &fakeReferenceRepository{countries: []referencedomain.Country{{Code: "IT", Name: "Italia"}}},
		pdfProvider:     pdfProv,
	}
	srv.registerAPIRoutes()
	srv.registerWebhookRoutes()

	return &serverFixture{srv: srv, orgSvc: orgSvc, txSvc: txSvc, pdf: pdfProv}
}

func (f *serverFixture) do(method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	f.srv.engine.ServeHTTP(resp, req)
	return resp
}
