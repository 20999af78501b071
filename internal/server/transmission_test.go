package server

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/smallbiznis/scambio/internal/document"
	documentdomain "github.com/smallbiznis/scambio/internal/document/domain"
	transmissiondomain "github.com/smallbiznis/scambio/internal/transmission/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func submitBody() string {
	return `{
		"organization_id": "1234",
		"invoice": {
			"supplier": {"vat_number": "01234567897", "name": "Esempio SRL", "country": "IT"},
			"customer": {"fiscal_code": "RSSMRA80A01H501U", "name": "Mario Rossi", "country": "IT"},
			"document_type": "TD01",
			"number": "2026/42",
			"issue_date": "2026-08-20T00:00:00Z",
			"lines": [{"number": 1, "description": "Consulenza", "quantity": 1, "unit_price_cents": 10000, "total_cents": 10000, "vat_rate": 22}],
			"tax_summaries": [{"vat_rate": 22, "taxable_base_cents": 10000, "tax_amount_cents": 2200}],
			"routing": {"code": "ABCDEFG"}
		}
	}`
}

func TestSubmitInvoice(t *testing.T) {
	f := newServerFixture()
	f.txSvc.submitResp = transmissiondomain.TransmissionResponse{
		ID:     "42",
		Status: transmissiondomain.StatusSent,
	}

	resp := f.do(http.MethodPost, "/v1/invoices/submit", submitBody(), nil)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "1234", f.txSvc.lastSubmit.OrganizationID)
	assert.Equal(t, "2026/42", f.txSvc.lastSubmit.Invoice.Number)

	var out transmissiondomain.TransmissionResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.Equal(t, "42", out.ID)
	assert.Equal(t, transmissiondomain.StatusSent, out.Status)
}

func TestSubmitInvoiceValidationReport(t *testing.T) {
	f := newServerFixture()
	report := document.Report{Valid: false}
	report.Errors = append(report.Errors, document.Finding{
		Field:    "invoice.supplier.vat_number",
		Code:     "invalid_vat_checksum",
		Message:  "VAT number fails the Luhn check",
		Severity: document.SeverityError,
	})
	f.txSvc.submitErr = &transmissiondomain.ValidationError{Report: report}

	resp := f.do(http.MethodPost, "/v1/invoices/submit", submitBody(), nil)

	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	var out errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.Equal(t, "invoice_validation_failed", out.Error.Type)
	require.Len(t, out.Error.Errors, 1)
	assert.Equal(t, "invalid_vat_checksum", out.Error.Errors[0].Code)
	assert.Equal(t, "invoice.supplier.vat_number", out.Error.Errors[0].Field)
}

func TestSubmitInvoiceMalformedBody(t *testing.T) {
	f := newServerFixture()

	resp := f.do(http.MethodPost, "/v1/invoices/submit", `{"invoice":`, nil)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestListTransmissionsParsesQuery(t *testing.T) {
	f := newServerFixture()
	f.txSvc.listResp = transmissiondomain.ListTransmissionsResponse{
		Transmissions: []transmissiondomain.TransmissionResponse{{ID: "1"}},
	}

	resp := f.do(http.MethodGet, "/v1/transmissions?status=DELIVERED&invoice_date=2026-08-20&page_size=10", "", nil)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "DELIVERED", f.txSvc.lastList.Status)
	assert.Equal(t, int32(10), f.txSvc.lastList.PageSize)
	require.NotNil(t, f.txSvc.lastList.InvoiceDate)
	assert.Equal(t, time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), f.txSvc.lastList.InvoiceDate.UTC())
}

func TestListTransmissionsClampsPageSize(t *testing.T) {
	f := newServerFixture()

	resp := f.do(http.MethodGet, "/v1/transmissions?page_size=5000", "", nil)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, int32(maxPageSize), f.txSvc.lastList.PageSize)

	resp = f.do(http.MethodGet, "/v1/transmissions", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, int32(defaultPageSize), f.txSvc.lastList.PageSize)
}

func TestListTransmissionsRejectsBadDate(t *testing.T) {
	f := newServerFixture()

	resp := f.do(http.MethodGet, "/v1/transmissions?invoice_date=20-08-2026", "", nil)

	require.Equal(t, http.StatusBadRequest, resp.Code)

	var out errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	require.Len(t, out.Error.Errors, 1)
	assert.Equal(t, "invalid_date", out.Error.Errors[0].Code)
}

func TestGetTransmissionNotFound(t *testing.T) {
	f := newServerFixture()
	f.txSvc.getErr = transmissiondomain.ErrTransmissionNotFound

	resp := f.do(http.MethodGet, "/v1/transmissions/404", "", nil)

	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestRetryTransmission(t *testing.T) {
	f := newServerFixture()
	f.txSvc.retryResp = transmissiondomain.TransmissionResponse{
		ID:           "42",
		Status:       transmissiondomain.StatusSent,
		AttemptCount: 2,
	}

	resp := f.do(http.MethodPost, "/v1/transmissions/42/retry", "", nil)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "42", f.txSvc.lastRetry.TransmissionID)
}

func TestRetryTransmissionNotRetryable(t *testing.T) {
	f := newServerFixture()
	f.txSvc.retryErr = transmissiondomain.ErrNotRetryable

	resp := f.do(http.MethodPost, "/v1/transmissions/42/retry", "", nil)

	require.Equal(t, http.StatusConflict, resp.Code)

	var out errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.Equal(t, "conflict", out.Error.Type)
}

func TestGetCourtesyPDF(t *testing.T) {
	f := newServerFixture()
	sdiID := "MOCK0000042"
	f.txSvc.getResp = transmissiondomain.TransmissionResponse{
		ID:          "42",
		Status:      transmissiondomain.StatusDelivered,
		Progressivo: "00001",
		FileName:    "IT01234567897_00001.xml.p7m",
		SDIID:       &sdiID,
		TotalAmount: 12200,
		Invoice: &documentdomain.InvoiceDocument{
			Supplier:     documentdomain.Party{VATNumber: "01234567897", Name: "Esempio SRL"},
			Customer:     documentdomain.Party{Name: "Mario Rossi"},
			DocumentType: "TD01",
			Number:       "2026/42",
			IssueDate:    time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		},
	}

	resp := f.do(http.MethodGet, "/v1/transmissions/42/courtesy.pdf", "", nil)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/pdf", resp.Header().Get("Content-Type"))
	assert.Contains(t, resp.Header().Get("Content-Disposition"), "IT01234567897_00001.pdf")
	assert.Equal(t, "%PDF-1.7 test", resp.Body.String())

	assert.Equal(t, "2026/42", f.pdf.lastData.Number)
	assert.Equal(t, "MOCK0000042", f.pdf.lastData.SDIID)
	assert.Equal(t, "00001", f.pdf.lastData.Progressivo)
	assert.Equal(t, int64(12200), f.pdf.lastData.TotalCents)
	assert.Equal(t, string(transmissiondomain.StatusDelivered), f.pdf.lastData.Status)
}

func TestGetCourtesyPDFNotFound(t *testing.T) {
	f := newServerFixture()
	f.txSvc.getErr = transmissiondomain.ErrTransmissionNotFound

	resp := f.do(http.MethodGet, "/v1/transmissions/404/courtesy.pdf", "", nil)

	require.Equal(t, http.StatusNotFound, resp.Code)
}
