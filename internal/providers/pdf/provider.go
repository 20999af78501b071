// Package pdf renders courtesy copies of transmitted invoices. The
// signed XML stays the fiscal original; the PDF is the human-readable
// rendition customers receive alongside it.
package pdf

import (
	"context"
	"io"
)

type Provider interface {
	RenderCourtesyInvoice(ctx context.Context, data CourtesyInvoice) (io.Reader, error)
}
