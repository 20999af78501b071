package document

import (
	"fmt"
	"math"
	"regexp"

	"github.com/smallbiznis/scambio/internal/document/domain"
	"github.com/smallbiznis/scambio/internal/fiscalcode"
)

// Severity classifies a finding. Errors block submission, warnings do not.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// Finding is a single validation result with a stable code and the
// field path it refers to.
type Finding struct {
	Field    string   `json:"field"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Report aggregates validation findings for one document.
type Report struct {
	Valid    bool      `json:"valid"`
	Errors   []Finding `json:"errors"`
	Warnings []Finding `json:"warnings"`
}

// Rounding tolerance for declared tax amounts, in cents.
const taxToleranceCents = 1

var (
	documentTypePattern = regexp.MustCompile(`^TD\d{2}$`)
	taxRegimePattern    = regexp.MustCompile(`^RF\d{2}$`)
)

// Validator performs local structural and business-rule checks before
// a document is signed. All checks are pure; code-list membership is
// verified upstream against the reference tables.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) Validate(invoice domain.InvoiceDocument) Report {
	var report Report

	v.checkSupplier(invoice, &report)
	v.checkCustomer(invoice, &report)
	v.checkRouting(invoice, &report)
	v.checkMetadata(invoice, &report)
	v.checkLines(invoice, &report)
	v.checkTaxSummaries(invoice, &report)

	report.Valid = len(report.Errors) == 0
	return report
}

func (v *Validator) checkSupplier(invoice domain.InvoiceDocument, report *Report) {
	if _, err := fiscalcode.ValidateCompany(invoice.Supplier.VATNumber); err != nil {
		report.addError("supplier.vat_number", "invalid_supplier_vat", "supplier VAT number failed checksum validation")
	}
	if invoice.Supplier.FiscalCode != "" {
		if !validFiscalCode(invoice.Supplier.FiscalCode) {
			report.addError("supplier.fiscal_code", "invalid_supplier_fiscal_code", "supplier fiscal code failed checksum validation")
		}
	}
	if invoice.Supplier.Name == "" {
		report.addError("supplier.name", "missing_supplier_name", "supplier name is required")
	}
	if !taxRegimePattern.MatchString(invoice.Supplier.TaxRegime) {
		report.addError("supplier.tax_regime", "invalid_tax_regime", "supplier tax regime must be an RF code")
	}
}

func (v *Validator) checkCustomer(invoice domain.InvoiceDocument, report *Report) {
	if invoice.Customer.VATNumber == "" && invoice.Customer.FiscalCode == "" {
		report.addError("customer", "missing_customer_identifier", "customer needs a VAT number or fiscal code")
		return
	}
	if invoice.Customer.VATNumber != "" {
		if _, err := fiscalcode.ValidateCompany(invoice.Customer.VATNumber); err != nil {
			report.addError("customer.vat_number", "invalid_customer_vat", "customer VAT number failed checksum validation")
		}
	}
	if invoice.Customer.FiscalCode != "" {
		if !validFiscalCode(invoice.Customer.FiscalCode) {
			report.addError("customer.fiscal_code", "invalid_customer_fiscal_code", "customer fiscal code failed checksum validation")
		}
	}
	if invoice.Customer.Name == "" {
		report.addError("customer.name", "missing_customer_name", "customer name is required")
	}
}

func (v *Validator) checkRouting(invoice domain.InvoiceDocument, report *Report) {
	code := invoice.Routing.Code
	pec := invoice.Routing.PEC

	switch {
	case code == "" && pec == "":
		report.addError("routing", "missing_routing_target", "either a recipient code or a certified email is required")
	case code != "" && code != domain.PECRoutingCode && pec != "":
		report.addError("routing", "ambiguous_routing_target", "recipient code and certified email are mutually exclusive")
	case code == domain.PECRoutingCode && pec == "":
		report.addError("routing.code", "missing_pec_address", "the all-zero recipient code requires a certified email address")
	case code != "" && !fiscalcode.ValidateRoutingCode(code):
		report.addError("routing.code", "invalid_routing_code", "recipient code must be 7 alphanumeric characters")
	}
}

func (v *Validator) checkMetadata(invoice domain.InvoiceDocument, report *Report) {
	if !documentTypePattern.MatchString(invoice.DocumentType) {
		report.addError("document_type", "invalid_document_type", "document type must be a TD code")
	}
	if invoice.Number == "" {
		report.addError("number", "missing_document_number", "document number is required")
	}
	if invoice.IssueDate.IsZero() {
		report.addError("issue_date", "missing_issue_date", "document issue date is required")
	}
}

func (v *Validator) checkLines(invoice domain.InvoiceDocument, report *Report) {
	if len(invoice.Lines) == 0 {
		report.addError("lines", "missing_lines", "at least one line item is required")
		return
	}

	seen := make(map[int]bool, len(invoice.Lines))
	contiguous := true
	for i, line := range invoice.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		if seen[line.Number] {
			report.addError(field+".number", "duplicate_line_number", fmt.Sprintf("line number %d appears more than once", line.Number))
		}
		seen[line.Number] = true
		if line.Number != i+1 {
			contiguous = false
		}
		if line.Description == "" {
			report.addError(field+".description", "missing_line_description", "line description is required")
		}
		expected := int64(math.Round(line.Quantity * float64(line.UnitPriceCents)))
		if absInt64(expected-line.TotalCents) > taxToleranceCents {
			report.addWarning(field+".total_cents", "line_total_mismatch", "line total differs from quantity times unit price")
		}
	}

	if !contiguous {
		report.addWarning("lines", "non_contiguous_line_numbers", "line numbers do not form a 1..N sequence")
	}
}

func (v *Validator) checkTaxSummaries(invoice domain.InvoiceDocument, report *Report) {
	if len(invoice.TaxSummaries) == 0 {
		report.addError("tax_summaries", "missing_tax_summary", "at least one tax summary is required")
		return
	}

	for i, summary := range invoice.TaxSummaries {
		field := fmt.Sprintf("tax_summaries[%d]", i)
		if summary.Nature != "" {
			if summary.TaxAmountCents != 0 {
				report.addError(field+".tax_amount_cents", "nature_with_tax_amount", "a zero-VAT nature code cannot carry a tax amount")
			}
			continue
		}
		expected := int64(math.Round(float64(summary.TaxableBaseCents) * summary.VATRate / 100))
		if absInt64(expected-summary.TaxAmountCents) > taxToleranceCents {
			report.addError(field+".tax_amount_cents", "tax_amount_mismatch",
				fmt.Sprintf("declared tax %s does not match base %s at rate %s",
					FormatCents(summary.TaxAmountCents), FormatCents(summary.TaxableBaseCents), FormatRate(summary.VATRate)))
		}
	}
}

func (r *Report) addError(field, code, message string) {
	r.Errors = append(r.Errors, Finding{Field: field, Code: code, Message: message, Severity: SeverityError})
}

func (r *Report) addWarning(field, code, message string) {
	r.Warnings = append(r.Warnings, Finding{Field: field, Code: code, Message: message, Severity: SeverityWarning})
}

func validFiscalCode(raw string) bool {
	if _, err := fiscalcode.ValidateIndividual(raw); err == nil {
		return true
	}
	_, err := fiscalcode.ValidateCompany(raw)
	return err == nil
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
