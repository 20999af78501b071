// Package domain defines the canonical invoice document model that the
// builder serializes into FatturaPA XML.
package domain

import (
	"time"
)

// PECRoutingCode is the all-zero recipient code that directs SDI to
// deliver through certified email instead of a channel accreditation.
const PECRoutingCode = "0000000"

// Party identifies one side of the invoice. Suppliers always carry a
// VAT number; customers may be identified by fiscal code alone.
type Party struct {
	VATNumber  string `json:"vat_number,omitempty"`
	FiscalCode string `json:"fiscal_code,omitempty"`
	Name       string `json:"name"`
	TaxRegime  string `json:"tax_regime,omitempty"`
	Street     string `json:"street,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	City       string `json:"city,omitempty"`
	Province   string `json:"province,omitempty"`
	Country    string `json:"country,omitempty"`
}

// LineItem is a single invoice line. Amounts are integer cents.
type LineItem struct {
	Number         int     `json:"number"`
	Description    string  `json:"description"`
	Quantity       float64 `json:"quantity"`
	UnitPriceCents int64   `json:"unit_price_cents"`
	TotalCents     int64   `json:"total_cents"`
	VATRate        float64 `json:"vat_rate"`
	Nature         string  `json:"nature,omitempty"`
}

// TaxSummary aggregates lines sharing a VAT rate or exemption nature.
type TaxSummary struct {
	VATRate          float64 `json:"vat_rate"`
	Nature           string  `json:"nature,omitempty"`
	TaxableBaseCents int64   `json:"taxable_base_cents"`
	TaxAmountCents   int64   `json:"tax_amount_cents"`
	Collectability   string  `json:"collectability,omitempty"`
}

// PaymentInstallment describes one entry of the optional payment schedule.
type PaymentInstallment struct {
	Mode        string     `json:"mode"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	AmountCents int64      `json:"amount_cents"`
	IBAN        string     `json:"iban,omitempty"`
}

// Attachment is an optional binary allegato embedded in the document.
type Attachment struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Data        []byte `json:"data"`
}

// RoutingTarget selects how SDI forwards the invoice: a 7-character
// recipient code, or a certified email address with the all-zero code.
type RoutingTarget struct {
	Code string `json:"code,omitempty"`
	PEC  string `json:"pec,omitempty"`
}

// UsesPEC reports whether delivery goes through certified email.
func (r RoutingTarget) UsesPEC() bool {
	return r.PEC != "" && (r.Code == "" || r.Code == PECRoutingCode)
}

// InvoiceDocument is the normalized invoice accepted by the engine.
type InvoiceDocument struct {
	Supplier     Party                `json:"supplier"`
	Customer     Party                `json:"customer"`
	DocumentType string               `json:"document_type"`
	Number       string               `json:"number"`
	IssueDate    time.Time            `json:"issue_date"`
	CauseText    string               `json:"cause_text,omitempty"`
	Currency     string               `json:"currency,omitempty"`
	Lines        []LineItem           `json:"lines"`
	TaxSummaries []TaxSummary         `json:"tax_summaries"`
	Payments     []PaymentInstallment `json:"payments,omitempty"`
	Attachments  []Attachment         `json:"attachments,omitempty"`
	Routing      RoutingTarget        `json:"routing"`
}

// TotalCents sums the declared taxable bases and tax amounts.
func (d InvoiceDocument) TotalCents() int64 {
	var total int64
	for _, summary := range d.TaxSummaries {
		total += summary.TaxableBaseCents + summary.TaxAmountCents
	}
	return total
}
