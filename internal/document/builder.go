package document

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/smallbiznis/scambio/internal/document/domain"
)

const (
	fatturaPANamespace = "http://ivaservizi.agenziaentrate.gov.it/docs/xsd/fatture/v1.2"
	dsigNamespace      = "http://www.w3.org/2000/09/xmldsig#"
	xsiNamespace       = "http://www.w3.org/2001/XMLSchema-instance"

	// FormatoTrasmissione for invoices toward private parties.
	transmissionFormat = "FPR12"
)

// Builder serializes a validated InvoiceDocument into FatturaPA XML.
// Building is deterministic; malformed input must be rejected by the
// Validator before reaching Build.
type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

// Build renders the document under the given ProgressivoInvio token.
func (b *Builder) Build(invoice domain.InvoiceDocument, progressivo string) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("p:FatturaElettronica")
	root.CreateAttr("versione", transmissionFormat)
	root.CreateAttr("xmlns:p", fatturaPANamespace)
	root.CreateAttr("xmlns:ds", dsigNamespace)
	root.CreateAttr("xmlns:xsi", xsiNamespace)

	b.buildHeader(root, invoice, progressivo)
	b.buildBody(root, invoice)

	doc.Indent(2)
	return doc.WriteToBytes()
}

func (b *Builder) buildHeader(root *etree.Element, invoice domain.InvoiceDocument, progressivo string) {
	header := root.CreateElement("FatturaElettronicaHeader")

	transmission := header.CreateElement("DatiTrasmissione")
	transmitter := transmission.CreateElement("IdTrasmittente")
	transmitter.CreateElement("IdPaese").SetText(partyCountry(invoice.Supplier))
	transmitter.CreateElement("IdCodice").SetText(invoice.Supplier.VATNumber)
	transmission.CreateElement("ProgressivoInvio").SetText(progressivo)
	transmission.CreateElement("FormatoTrasmissione").SetText(transmissionFormat)
	if invoice.Routing.UsesPEC() {
		transmission.CreateElement("CodiceDestinatario").SetText(domain.PECRoutingCode)
		transmission.CreateElement("PECDestinatario").SetText(invoice.Routing.PEC)
	} else {
		transmission.CreateElement("CodiceDestinatario").SetText(invoice.Routing.Code)
	}

	supplier := header.CreateElement("CedentePrestatore")
	supplierData := supplier.CreateElement("DatiAnagrafici")
	vatID := supplierData.CreateElement("IdFiscaleIVA")
	vatID.CreateElement("IdPaese").SetText(partyCountry(invoice.Supplier))
	vatID.CreateElement("IdCodice").SetText(invoice.Supplier.VATNumber)
	if invoice.Supplier.FiscalCode != "" {
		supplierData.CreateElement("CodiceFiscale").SetText(invoice.Supplier.FiscalCode)
	}
	supplierData.CreateElement("Anagrafica").
		CreateElement("Denominazione").SetText(invoice.Supplier.Name)
	supplierData.CreateElement("RegimeFiscale").SetText(invoice.Supplier.TaxRegime)
	buildAddress(supplier, invoice.Supplier)

	customer := header.CreateElement("CessionarioCommittente")
	customerData := customer.CreateElement("DatiAnagrafici")
	if invoice.Customer.VATNumber != "" {
		customerVAT := customerData.CreateElement("IdFiscaleIVA")
		customerVAT.CreateElement("IdPaese").SetText(partyCountry(invoice.Customer))
		customerVAT.CreateElement("IdCodice").SetText(invoice.Customer.VATNumber)
	}
	if invoice.Customer.FiscalCode != "" {
		customerData.CreateElement("CodiceFiscale").SetText(invoice.Customer.FiscalCode)
	}
	customerData.CreateElement("Anagrafica").
		CreateElement("Denominazione").SetText(invoice.Customer.Name)
	buildAddress(customer, invoice.Customer)
}

func (b *Builder) buildBody(root *etree.Element, invoice domain.InvoiceDocument) {
	body := root.CreateElement("FatturaElettronicaBody")

	general := body.CreateElement("DatiGenerali")
	docData := general.CreateElement("DatiGeneraliDocumento")
	docData.CreateElement("TipoDocumento").SetText(invoice.DocumentType)
	docData.CreateElement("Divisa").SetText(currencyOrDefault(invoice.Currency))
	docData.CreateElement("Data").SetText(invoice.IssueDate.Format("2006-01-02"))
	docData.CreateElement("Numero").SetText(invoice.Number)
	if invoice.CauseText != "" {
		docData.CreateElement("Causale").SetText(invoice.CauseText)
	}
	docData.CreateElement("ImportoTotaleDocumento").SetText(FormatCents(invoice.TotalCents()))

	goods := body.CreateElement("DatiBeniServizi")
	for _, line := range invoice.Lines {
		detail := goods.CreateElement("DettaglioLinee")
		detail.CreateElement("NumeroLinea").SetText(fmt.Sprintf("%d", line.Number))
		detail.CreateElement("Descrizione").SetText(line.Description)
		detail.CreateElement("Quantita").SetText(FormatQuantity(line.Quantity))
		detail.CreateElement("PrezzoUnitario").SetText(FormatCents(line.UnitPriceCents))
		detail.CreateElement("PrezzoTotale").SetText(FormatCents(line.TotalCents))
		detail.CreateElement("AliquotaIVA").SetText(FormatRate(line.VATRate))
		if line.Nature != "" {
			detail.CreateElement("Natura").SetText(line.Nature)
		}
	}
	for _, summary := range invoice.TaxSummaries {
		recap := goods.CreateElement("DatiRiepilogo")
		recap.CreateElement("AliquotaIVA").SetText(FormatRate(summary.VATRate))
		if summary.Nature != "" {
			recap.CreateElement("Natura").SetText(summary.Nature)
		}
		recap.CreateElement("ImponibileImporto").SetText(FormatCents(summary.TaxableBaseCents))
		recap.CreateElement("Imposta").SetText(FormatCents(summary.TaxAmountCents))
		if summary.Collectability != "" {
			recap.CreateElement("EsigibilitaIVA").SetText(summary.Collectability)
		}
	}

	if len(invoice.Payments) > 0 {
		payment := body.CreateElement("DatiPagamento")
		condition := "TP02"
		if len(invoice.Payments) > 1 {
			condition = "TP01"
		}
		payment.CreateElement("CondizioniPagamento").SetText(condition)
		for _, installment := range invoice.Payments {
			detail := payment.CreateElement("DettaglioPagamento")
			detail.CreateElement("ModalitaPagamento").SetText(installment.Mode)
			if installment.DueDate != nil {
				detail.CreateElement("DataScadenzaPagamento").SetText(installment.DueDate.Format("2006-01-02"))
			}
			detail.CreateElement("ImportoPagamento").SetText(FormatCents(installment.AmountCents))
			if installment.IBAN != "" {
				detail.CreateElement("IBAN").SetText(installment.IBAN)
			}
		}
	}

	for _, attachment := range invoice.Attachments {
		allegato := body.CreateElement("Allegati")
		allegato.CreateElement("NomeAttachment").SetText(attachment.Name)
		if attachment.Description != "" {
			allegato.CreateElement("DescrizioneAttachment").SetText(attachment.Description)
		}
		allegato.CreateElement("Attachment").SetText(base64.StdEncoding.EncodeToString(attachment.Data))
	}
}

func buildAddress(parent *etree.Element, party domain.Party) {
	address := parent.CreateElement("Sede")
	address.CreateElement("Indirizzo").SetText(party.Street)
	if party.PostalCode != "" {
		address.CreateElement("CAP").SetText(party.PostalCode)
	}
	address.CreateElement("Comune").SetText(party.City)
	if party.Province != "" {
		address.CreateElement("Provincia").SetText(party.Province)
	}
	address.CreateElement("Nazione").SetText(partyCountry(party))
}

func partyCountry(party domain.Party) string {
	if party.Country == "" {
		return "IT"
	}
	return strings.ToUpper(party.Country)
}

func currencyOrDefault(currency string) string {
	if currency == "" {
		return "EUR"
	}
	return strings.ToUpper(currency)
}

// FormatCents renders an integer cent amount with two decimals.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// FormatRate renders a percentage rate with two decimals.
func FormatRate(rate float64) string {
	return fmt.Sprintf("%.2f", rate)
}

// FormatQuantity renders a quantity with two decimals.
func FormatQuantity(quantity float64) string {
	return fmt.Sprintf("%.2f", quantity)
}
