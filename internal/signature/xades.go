package signature

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
	"go.uber.org/zap"

	"github.com/smallbiznis/scambio/internal/clock"
)

const (
	nsXMLDSig = "http://www.w3.org/2000/09/xmldsig#"

	algExcC14N      = "http://www.w3.org/2001/10/xml-exc-c14n#"
	algRSASHA256    = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	algEnvelopedSig = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
	algDigestSHA256 = "http://www.w3.org/2001/04/xmlenc#sha256"
)

// XAdESSigner produces an enveloped XML signature inside the invoice
// document itself. The Reference digest covers the canonicalized document
// without the ds:Signature element, as the enveloped-signature transform
// dictates.
type XAdESSigner struct {
	key  *rsa.PrivateKey
	cert *x509.Certificate
	log  *zap.Logger
	clk  clock.Clock
}

func NewXAdESSigner(key *rsa.PrivateKey, cert *x509.Certificate, log *zap.Logger, clk clock.Clock) *XAdESSigner {
	return &XAdESSigner{
		key:  key,
		cert: cert,
		log:  log.Named("signature.xades"),
		clk:  clk,
	}
}

func (s *XAdESSigner) Format() string { return FormatXAdES }

func (s *XAdESSigner) CertificateStatus() CertificateStatus {
	return certificateStatus(s.cert, s.clk.Now())
}

func (s *XAdESSigner) Sign(_ context.Context, document []byte) ([]byte, error) {
	status := s.CertificateStatus()
	if status.Expired {
		return nil, fmt.Errorf("%w: certificate %s not valid at %s",
			ErrCertificateExpired, status.SerialNumber, s.clk.Now().Format("2006-01-02"))
	}
	if status.ExpiringSoon {
		s.log.Warn("signing certificate expires soon",
			zap.String("serial_number", status.SerialNumber),
			zap.Int("days_until_expiry", status.DaysUntilExpiry),
		)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(document); err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("document has no root element")
	}

	canonicalizer := dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")

	// Digest the document before the signature element is attached so the
	// Reference matches what a verifier sees after the enveloped-signature
	// transform strips ds:Signature back out.
	canonicalRoot, err := canonicalizer.Canonicalize(root)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing document: %w", err)
	}
	docDigest := sha256.Sum256(canonicalRoot)

	sig := etree.NewElement("ds:Signature")
	sig.CreateAttr("xmlns:ds", nsXMLDSig)

	// Exclusive C14N only keeps namespace declarations visibly used by the
	// element, so ds must be declared on SignedInfo itself.
	signedInfo := sig.CreateElement("ds:SignedInfo")
	signedInfo.CreateAttr("xmlns:ds", nsXMLDSig)

	c14nMethod := signedInfo.CreateElement("ds:CanonicalizationMethod")
	c14nMethod.CreateAttr("Algorithm", algExcC14N)

	sigMethod := signedInfo.CreateElement("ds:SignatureMethod")
	sigMethod.CreateAttr("Algorithm", algRSASHA256)

	ref := signedInfo.CreateElement("ds:Reference")
	ref.CreateAttr("URI", "")

	transforms := ref.CreateElement("ds:Transforms")
	envelopedTransform := transforms.CreateElement("ds:Transform")
	envelopedTransform.CreateAttr("Algorithm", algEnvelopedSig)
	c14nTransform := transforms.CreateElement("ds:Transform")
	c14nTransform.CreateAttr("Algorithm", algExcC14N)

	digestMethod := ref.CreateElement("ds:DigestMethod")
	digestMethod.CreateAttr("Algorithm", algDigestSHA256)

	digestValue := ref.CreateElement("ds:DigestValue")
	digestValue.SetText(base64.StdEncoding.EncodeToString(docDigest[:]))

	canonicalSignedInfo, err := canonicalizer.Canonicalize(signedInfo)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing signed info: %w", err)
	}
	signedInfoDigest := sha256.Sum256(canonicalSignedInfo)

	sigBytes, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, signedInfoDigest[:])
	if err != nil {
		return nil, fmt.Errorf("signing digest: %w", err)
	}

	sigValue := sig.CreateElement("ds:SignatureValue")
	sigValue.SetText(base64.StdEncoding.EncodeToString(sigBytes))

	keyInfo := sig.CreateElement("ds:KeyInfo")
	x509Data := keyInfo.CreateElement("ds:X509Data")
	x509Cert := x509Data.CreateElement("ds:X509Certificate")
	x509Cert.SetText(base64.StdEncoding.EncodeToString(s.cert.Raw))

	root.AddChild(sig)

	signed, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serializing signed document: %w", err)
	}
	return signed, nil
}

// Verify checks the enveloped signature and reports the certificate it
// was made with. A tampered document is a negative result, not an error.
func (s *XAdESSigner) Verify(_ context.Context, envelope []byte) (*VerificationResult, error) {
	cert, err := VerifyXMLEnvelope(envelope)
	if err != nil {
		return &VerificationResult{Reason: err.Error()}, nil
	}
	return &VerificationResult{
		Valid:       true,
		Certificate: certificateStatus(cert, s.clk.Now()),
	}, nil
}

// VerifyXMLEnvelope checks an enveloped XML signature: the Reference
// digest against the document with ds:Signature stripped back out, then
// the SignatureValue over canonicalized SignedInfo using the embedded
// certificate. Returns that certificate on success.
func VerifyXMLEnvelope(envelope []byte) (*x509.Certificate, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrInvalidEnvelope)
	}
	sig := root.SelectElement("ds:Signature")
	if sig == nil {
		return nil, fmt.Errorf("%w: no signature element", ErrInvalidEnvelope)
	}

	signedInfo := sig.SelectElement("ds:SignedInfo")
	digestValue := sig.FindElement("./ds:SignedInfo/ds:Reference/ds:DigestValue")
	sigValue := sig.SelectElement("ds:SignatureValue")
	certText := sig.FindElement("./ds:KeyInfo/ds:X509Data/ds:X509Certificate")
	if signedInfo == nil || digestValue == nil || sigValue == nil || certText == nil {
		return nil, fmt.Errorf("%w: incomplete signature element", ErrInvalidEnvelope)
	}

	certDER, err := base64.StdEncoding.DecodeString(strings.TrimSpace(certText.Text()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	canonicalizer := dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")

	root.RemoveChild(sig)
	canonicalRoot, err := canonicalizer.Canonicalize(root)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing document: %w", err)
	}
	docDigest := sha256.Sum256(canonicalRoot)
	if base64.StdEncoding.EncodeToString(docDigest[:]) != strings.TrimSpace(digestValue.Text()) {
		return nil, fmt.Errorf("%w: reference digest mismatch", ErrInvalidEnvelope)
	}

	canonicalSignedInfo, err := canonicalizer.Canonicalize(signedInfo)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing signed info: %w", err)
	}
	signedInfoDigest := sha256.Sum256(canonicalSignedInfo)

	sigBytes, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sigValue.Text()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: signer key is not RSA", ErrInvalidEnvelope)
	}
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, signedInfoDigest[:], sigBytes); err != nil {
		return nil, fmt.Errorf("%w: signature mismatch", ErrInvalidEnvelope)
	}
	return cert, nil
}
