package signature

import (
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/scambio/internal/clock"
	"github.com/smallbiznis/scambio/internal/config"
)

var Module = fx.Module("signature",
	fx.Provide(NewSigner),
)

// NewSigner selects the signing backend from configuration. Without a
// keystore path the deterministic mock signer is used.
func NewSigner(cfg config.Config, log *zap.Logger, clk clock.Clock) (Signer, error) {
	if cfg.Signature.KeystorePath == "" {
		log.Warn("no signing keystore configured, using mock signer")
		return NewMockSigner(clk), nil
	}

	key, cert, err := loadKeystore(cfg.Signature.KeystorePath, cfg.Signature.KeystorePassword)
	if err != nil {
		return nil, err
	}

	var signer Signer
	switch cfg.Signature.Format {
	case FormatCAdES:
		signer = NewCAdESSigner(key, cert, log, clk)
	case FormatXAdES:
		signer = NewXAdESSigner(key, cert, log, clk)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, cfg.Signature.Format)
	}

	status := signer.CertificateStatus()
	log.Info("signing keystore loaded",
		zap.String("format", signer.Format()),
		zap.String("subject", status.Subject),
		zap.Time("not_after", status.NotAfter),
	)
	return signer, nil
}
