package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/scambio/internal/providers/pdf"
	transmissiondomain "github.com/smallbiznis/scambio/internal/transmission/domain"
)

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

func (s *Server) SubmitInvoice(c *gin.Context) {
	var req transmissiondomain.SubmitInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.transmissionSvc.Submit(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ListTransmissions(c *gin.Context) {
	invoiceDate, err := parseOptionalTime(c.Query("invoice_date"), false)
	if err != nil {
		AbortWithError(c, newValidationError("invoice_date", "invalid_date", "expected YYYY-MM-DD or RFC3339"))
		return
	}

	pageSize, err := parseOptionalInt64(c.Query("page_size"))
	if err != nil {
		AbortWithError(c, newValidationError("page_size", "invalid_page_size", "expected an integer"))
		return
	}
	size := int64(defaultPageSize)
	if pageSize != nil {
		size = *pageSize
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	resp, err := s.transmissionSvc.List(c.Request.Context(), transmissiondomain.ListTransmissionsRequest{
		Status:      strings.TrimSpace(c.Query("status")),
		InvoiceDate: invoiceDate,
		PageToken:   strings.TrimSpace(c.Query("page_token")),
		PageSize:    int32(size),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetTransmissionByID(c *gin.Context) {
	resp, err := s.transmissionSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) RetryTransmission(c *gin.Context) {
	resp, err := s.transmissionSvc.Retry(c.Request.Context(), transmissiondomain.RetryTransmissionRequest{
		TransmissionID: c.Param("id"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetCourtesyPDF renders the human-readable copy of a transmitted
// invoice. The signed XML remains the fiscal original.
func (s *Server) GetCourtesyPDF(c *gin.Context) {
	ctx := c.Request.Context()

	resp, err := s.transmissionSvc.GetByID(ctx, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if resp.Invoice == nil {
		AbortWithError(c, ErrInternal)
		return
	}

	inv := resp.Invoice
	data := pdf.CourtesyInvoice{
		Supplier:     inv.Supplier,
		Customer:     inv.Customer,
		DocumentType: inv.DocumentType,
		Number:       inv.Number,
		IssueDate:    inv.IssueDate,
		Currency:     inv.Currency,
		Progressivo:  resp.Progressivo,
		Status:       string(resp.Status),
		Lines:        inv.Lines,
		TaxSummaries: inv.TaxSummaries,
		TotalCents:   resp.TotalAmount,
	}
	if resp.SDIID != nil {
		data.SDIID = *resp.SDIID
	}

	reader, err := s.pdfProvider.RenderCourtesyInvoice(ctx, data)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	rendered, err := io.ReadAll(reader)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	fileName := strings.TrimSuffix(resp.FileName, ".p7m")
	fileName = strings.TrimSuffix(fileName, ".xml") + ".pdf"
	c.Header("Content-Disposition", `attachment; filename="`+fileName+`"`)
	c.Data(http.StatusOK, "application/pdf", rendered)
}
