// Package signature wraps invoice documents into signed envelopes. The
// submission pipeline depends only on the Signer interface; the backend
// is selected by configuration and may be a real keystore-backed signer
// or the deterministic mock.
package signature

import (
	"context"
	"crypto/x509"
	"errors"
	"time"
)

// Signature formats accepted by the exchange system.
const (
	FormatCAdES = "CADES"
	FormatXAdES = "XADES"
)

// Certificates closer to expiry than this are flagged ExpiringSoon.
const expiryWarningDays = 30

var (
	ErrKeystoreNotFound   = errors.New("keystore_not_found")
	ErrKeystoreInvalid    = errors.New("keystore_invalid")
	ErrUnsupportedFormat  = errors.New("unsupported_signature_format")
	ErrCertificateExpired = errors.New("certificate_expired")
	ErrInvalidEnvelope    = errors.New("invalid_envelope")
)

// CertificateStatus is the preflight view of the signing credential.
type CertificateStatus struct {
	Subject         string    `json:"subject"`
	SerialNumber    string    `json:"serial_number"`
	NotBefore       time.Time `json:"not_before"`
	NotAfter        time.Time `json:"not_after"`
	DaysUntilExpiry int       `json:"days_until_expiry"`
	Expired         bool      `json:"expired"`
	ExpiringSoon    bool      `json:"expiring_soon"`
}

// VerificationResult reports whether an envelope's signature checks out
// and describes the certificate it was signed with.
type VerificationResult struct {
	Valid       bool              `json:"valid"`
	Reason      string            `json:"reason,omitempty"`
	Certificate CertificateStatus `json:"certificate"`
}

// Signer turns a document into a signed envelope. A signing failure is
// terminal for the submission attempt: the caller must resolve the
// credential problem out of band, there is no point retrying with the
// same key material. Verify is the diagnostic counterpart and stays off
// the submission path.
type Signer interface {
	Format() string
	Sign(ctx context.Context, document []byte) ([]byte, error)
	Verify(ctx context.Context, envelope []byte) (*VerificationResult, error)
	CertificateStatus() CertificateStatus
}

func certificateStatus(cert *x509.Certificate, now time.Time) CertificateStatus {
	days := int(cert.NotAfter.Sub(now).Hours() / 24)
	return CertificateStatus{
		Subject:         cert.Subject.String(),
		SerialNumber:    cert.SerialNumber.String(),
		NotBefore:       cert.NotBefore,
		NotAfter:        cert.NotAfter,
		DaysUntilExpiry: days,
		Expired:         now.After(cert.NotAfter) || now.Before(cert.NotBefore),
		ExpiringSoon:    days >= 0 && days < expiryWarningDays,
	}
}
