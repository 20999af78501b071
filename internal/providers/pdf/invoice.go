package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"

	documentdomain "github.com/smallbiznis/scambio/internal/document/domain"
)

// CourtesyInvoice carries the invoice body plus the transmission
// identifiers stamped on the rendition.
type CourtesyInvoice struct {
	Supplier     documentdomain.Party
	Customer     documentdomain.Party
	DocumentType string
	Number       string
	IssueDate    time.Time
	Currency     string
	Progressivo  string
	SDIID        string
	Status       string
	Lines        []documentdomain.LineItem
	TaxSummaries []documentdomain.TaxSummary
	TotalCents   int64
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) RenderCourtesyInvoice(_ context.Context, data CourtesyInvoice) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Pagina {current} di {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(8, "Fattura elettronica", props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, "Copia di cortesia", props.Text{
			Size:  10,
			Align: align.Right,
			Top:   4,
		}),
	)

	m.AddRow(22,
		col.New(6).Add(
			text.New("Numero: "+data.Number, props.Text{Top: 0}),
			text.New("Data emissione: "+data.IssueDate.Format("02/01/2006"), props.Text{Top: 4}),
			text.New("Tipo documento: "+data.DocumentType, props.Text{Top: 8}),
			text.New("Divisa: "+data.Currency, props.Text{Top: 12}),
		),
		col.New(6).Add(
			text.New("Progressivo invio: "+data.Progressivo, props.Text{Top: 0}),
			text.New("Identificativo SdI: "+orDash(data.SDIID), props.Text{Top: 4}),
			text.New("Stato trasmissione: "+data.Status, props.Text{Top: 8}),
		),
	)

	m.AddRow(34,
		col.New(6).Add(
			text.New("Cedente/prestatore", props.Text{Style: fontstyle.Bold}),
			text.New(data.Supplier.Name, props.Text{Top: 5}),
			text.New(partyAddress(data.Supplier), props.Text{Top: 9, Size: 9}),
			text.New(partyIdentifiers(data.Supplier), props.Text{Top: 13, Size: 9}),
		),
		col.New(6).Add(
			text.New("Cessionario/committente", props.Text{Style: fontstyle.Bold}),
			text.New(data.Customer.Name, props.Text{Top: 5}),
			text.New(partyAddress(data.Customer), props.Text{Top: 9, Size: 9}),
			text.New(partyIdentifiers(data.Customer), props.Text{Top: 13, Size: 9}),
		),
	)

	m.AddRow(8,
		text.NewCol(1, "Nr", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(5, "Descrizione", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(1, "Qta", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Prezzo unit.", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(1, "IVA", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Importo", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, line := range data.Lines {
		m.AddRow(8,
			text.NewCol(1, strconv.Itoa(line.Number), props.Text{Size: 9}),
			text.NewCol(5, line.Description, props.Text{Size: 9}),
			text.NewCol(1, formatQuantity(line.Quantity), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, formatAmount(line.UnitPriceCents), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(1, formatRate(line.VATRate, line.Nature), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, formatAmount(line.TotalCents), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		text.NewCol(12, "Riepilogo IVA", props.Text{Style: fontstyle.Bold, Size: 10, Top: 2}),
	)
	m.AddRow(8,
		col.New(4),
		text.NewCol(3, "Aliquota/Natura", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(3, "Imponibile", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Imposta", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, summary := range data.TaxSummaries {
		m.AddRow(8,
			col.New(4),
			text.NewCol(3, formatRate(summary.VATRate, summary.Nature), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(3, formatAmount(summary.TaxableBaseCents), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, formatAmount(summary.TaxAmountCents), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(12,
		col.New(6),
		text.NewCol(4, "Totale documento", props.Text{Style: fontstyle.Bold, Size: 11, Top: 3}),
		text.NewCol(2, formatAmount(data.TotalCents), props.Text{Style: fontstyle.Bold, Size: 11, Top: 3, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}

// formatAmount renders integer cents with Italian separators.
func formatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	digits := strconv.FormatInt(cents/100, 10)
	var grouped strings.Builder
	pre := len(digits) % 3
	if pre > 0 {
		grouped.WriteString(digits[:pre])
	}
	for i := pre; i < len(digits); i += 3 {
		if grouped.Len() > 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteString(digits[i : i+3])
	}
	return fmt.Sprintf("%s%s,%02d", sign, grouped.String(), cents%100)
}

func formatQuantity(qty float64) string {
	return strings.ReplaceAll(strconv.FormatFloat(qty, 'f', -1, 64), ".", ",")
}

// formatRate shows the exemption nature when the rate is zero because
// of it, otherwise the percentage.
func formatRate(rate float64, nature string) string {
	if nature != "" {
		return nature
	}
	return strings.ReplaceAll(strconv.FormatFloat(rate, 'f', -1, 64), ".", ",") + "%"
}

func partyAddress(p documentdomain.Party) string {
	parts := make([]string, 0, 3)
	if p.Street != "" {
		parts = append(parts, p.Street)
	}
	location := strings.TrimSpace(p.PostalCode + " " + p.City)
	if p.Province != "" {
		location = strings.TrimSpace(location + " (" + p.Province + ")")
	}
	if location != "" {
		parts = append(parts, location)
	}
	if p.Country != "" {
		parts = append(parts, p.Country)
	}
	return strings.Join(parts, ", ")
}

func partyIdentifiers(p documentdomain.Party) string {
	parts := make([]string, 0, 2)
	if p.VATNumber != "" {
		parts = append(parts, "P.IVA "+p.VATNumber)
	}
	if p.FiscalCode != "" {
		parts = append(parts, "C.F. "+p.FiscalCode)
	}
	return strings.Join(parts, "  ")
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
