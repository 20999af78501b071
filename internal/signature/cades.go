package signature

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/smallbiznis/scambio/internal/clock"
)

var (
	oidData          = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
	oidSignedData    = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
	oidSHA256        = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	oidRSAEncryption = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}
)

type algorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue `asn1:"optional"`
}

type issuerAndSerialNumber struct {
	Issuer asn1.RawValue
	Serial *big.Int
}

type signerInfo struct {
	Version            int
	SID                issuerAndSerialNumber
	DigestAlgorithm    algorithmIdentifier
	SignatureAlgorithm algorithmIdentifier
	Signature          []byte
}

type encapsulatedContentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

type signedData struct {
	Version          int
	DigestAlgorithms []algorithmIdentifier `asn1:"set"`
	EncapContentInfo encapsulatedContentInfo
	Certificates     asn1.RawValue `asn1:"optional,tag:0"`
	SignerInfos      []signerInfo  `asn1:"set"`
}

type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,tag:0"`
}

// CAdESSigner wraps documents into CMS SignedData envelopes, the
// enveloping binary format SDI accepts as .p7m. SignerInfo carries no
// signed attributes, so the signature covers the content bytes
// directly.
type CAdESSigner struct {
	key  *rsa.PrivateKey
	cert *x509.Certificate
	log  *zap.Logger
	clk  clock.Clock
}

func NewCAdESSigner(key *rsa.PrivateKey, cert *x509.Certificate, log *zap.Logger, clk clock.Clock) *CAdESSigner {
	return &CAdESSigner{
		key:  key,
		cert: cert,
		log:  log.Named("signature.cades"),
		clk:  clk,
	}
}

func (s *CAdESSigner) Format() string { return FormatCAdES }

func (s *CAdESSigner) CertificateStatus() CertificateStatus {
	return certificateStatus(s.cert, s.clk.Now())
}

func (s *CAdESSigner) Sign(_ context.Context, document []byte) ([]byte, error) {
	status := s.CertificateStatus()
	if status.Expired {
		return nil, ErrCertificateExpired
	}
	if status.ExpiringSoon {
		s.log.Warn("signing certificate close to expiry",
			zap.String("subject", status.Subject),
			zap.Int("days_until_expiry", status.DaysUntilExpiry),
		)
	}

	digest := sha256.Sum256(document)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("signing digest: %w", err)
	}

	return buildEnvelope(document, s.cert, sig)
}

func buildEnvelope(document []byte, cert *x509.Certificate, sig []byte) ([]byte, error) {
	contentOctets, err := asn1.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("encoding content: %w", err)
	}

	sd := signedData{
		Version: 1,
		DigestAlgorithms: []algorithmIdentifier{
			{Algorithm: oidSHA256, Parameters: asn1.NullRawValue},
		},
		EncapContentInfo: encapsulatedContentInfo{
			ContentType: oidData,
			// RawValues are written verbatim, so the explicit wrapper is
			// built by hand.
			Content: asn1.RawValue{
				Class:      asn1.ClassContextSpecific,
				Tag:        0,
				IsCompound: true,
				Bytes:      contentOctets,
			},
		},
		Certificates: asn1.RawValue{
			Class:      asn1.ClassContextSpecific,
			Tag:        0,
			IsCompound: true,
			Bytes:      cert.Raw,
		},
		SignerInfos: []signerInfo{{
			Version: 1,
			SID: issuerAndSerialNumber{
				Issuer: asn1.RawValue{FullBytes: cert.RawIssuer},
				Serial: cert.SerialNumber,
			},
			DigestAlgorithm:    algorithmIdentifier{Algorithm: oidSHA256, Parameters: asn1.NullRawValue},
			SignatureAlgorithm: algorithmIdentifier{Algorithm: oidRSAEncryption, Parameters: asn1.NullRawValue},
			Signature:          sig,
		}},
	}

	inner, err := asn1.Marshal(sd)
	if err != nil {
		return nil, fmt.Errorf("encoding signed data: %w", err)
	}

	return asn1.Marshal(contentInfo{
		ContentType: oidSignedData,
		Content: asn1.RawValue{
			Class:      asn1.ClassContextSpecific,
			Tag:        0,
			IsCompound: true,
			Bytes:      inner,
		},
	})
}

// Verify opens the envelope and reports whether its signature holds. A
// malformed or tampered envelope is a negative result, not an error.
func (s *CAdESSigner) Verify(_ context.Context, envelope []byte) (*VerificationResult, error) {
	_, cert, err := OpenEnvelope(envelope)
	if err != nil {
		return &VerificationResult{Reason: err.Error()}, nil
	}
	return &VerificationResult{
		Valid:       true,
		Certificate: certificateStatus(cert, s.clk.Now()),
	}, nil
}

// OpenEnvelope extracts the wrapped document and the signer certificate
// from a CMS envelope and verifies the signature over the content.
func OpenEnvelope(envelope []byte) ([]byte, *x509.Certificate, error) {
	var info contentInfo
	if _, err := asn1.Unmarshal(envelope, &info); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if !info.ContentType.Equal(oidSignedData) {
		return nil, nil, fmt.Errorf("%w: not signed data", ErrInvalidEnvelope)
	}

	var sd signedData
	if _, err := asn1.Unmarshal(info.Content.Bytes, &sd); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if len(sd.SignerInfos) == 0 {
		return nil, nil, fmt.Errorf("%w: no signer info", ErrInvalidEnvelope)
	}

	var document []byte
	if _, err := asn1.Unmarshal(sd.EncapContentInfo.Content.Bytes, &document); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	cert, err := x509.ParseCertificate(sd.Certificates.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, nil, fmt.Errorf("%w: signer key is not RSA", ErrInvalidEnvelope)
	}

	digest := sha256.Sum256(document)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sd.SignerInfos[0].Signature); err != nil {
		return nil, nil, fmt.Errorf("%w: signature mismatch", ErrInvalidEnvelope)
	}

	return document, cert, nil
}
