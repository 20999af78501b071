package signature

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/smallbiznis/scambio/internal/clock"
)

// mockMagic prefixes every envelope produced by the MockSigner so the
// format is recognizable without parsing.
const mockMagic = "SCAMBIO-MOCK-CADES\x00"

// MockSigner produces a deterministic, non-cryptographic envelope for
// environments without a signing keystore. The same document always
// yields the same envelope.
type MockSigner struct {
	clk clock.Clock
}

func NewMockSigner(clk clock.Clock) *MockSigner {
	return &MockSigner{clk: clk}
}

// Format reports CADES so signed files keep the .p7m extension the
// transmission pipeline expects.
func (s *MockSigner) Format() string { return FormatCAdES }

func (s *MockSigner) CertificateStatus() CertificateStatus {
	now := s.clk.Now()
	notAfter := now.AddDate(10, 0, 0)
	return CertificateStatus{
		Subject:         "CN=Mock Signer",
		SerialNumber:    "1",
		NotBefore:       now.AddDate(-1, 0, 0),
		NotAfter:        notAfter,
		DaysUntilExpiry: int(notAfter.Sub(now).Hours() / 24),
	}
}

func (s *MockSigner) Sign(_ context.Context, document []byte) ([]byte, error) {
	digest := sha256.Sum256(document)
	envelope := make([]byte, 0, len(mockMagic)+sha256.Size+len(document))
	envelope = append(envelope, mockMagic...)
	envelope = append(envelope, digest[:]...)
	envelope = append(envelope, document...)
	return envelope, nil
}

func (s *MockSigner) Verify(_ context.Context, envelope []byte) (*VerificationResult, error) {
	if _, err := UnwrapMockEnvelope(envelope); err != nil {
		return &VerificationResult{Reason: err.Error()}, nil
	}
	return &VerificationResult{Valid: true, Certificate: s.CertificateStatus()}, nil
}

// UnwrapMockEnvelope extracts the original document from a MockSigner
// envelope and verifies the embedded digest.
func UnwrapMockEnvelope(envelope []byte) ([]byte, error) {
	if !bytes.HasPrefix(envelope, []byte(mockMagic)) {
		return nil, fmt.Errorf("%w: missing mock header", ErrInvalidEnvelope)
	}
	rest := envelope[len(mockMagic):]
	if len(rest) < sha256.Size {
		return nil, fmt.Errorf("%w: truncated mock envelope", ErrInvalidEnvelope)
	}
	document := rest[sha256.Size:]
	digest := sha256.Sum256(document)
	if !bytes.Equal(rest[:sha256.Size], digest[:]) {
		return nil, fmt.Errorf("%w: digest mismatch", ErrInvalidEnvelope)
	}
	return document, nil
}
