package signature

import (
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"os"

	"golang.org/x/crypto/pkcs12"
)

// loadKeystore reads a PKCS#12 keystore holding one RSA key pair and
// its certificate.
func loadKeystore(path, password string) (*rsa.PrivateKey, *x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrKeystoreNotFound
		}
		return nil, nil, fmt.Errorf("reading keystore: %w", err)
	}

	key, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrKeystoreInvalid, err)
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, fmt.Errorf("%w: key is not RSA", ErrKeystoreInvalid)
	}
	if cert == nil {
		return nil, nil, fmt.Errorf("%w: missing certificate", ErrKeystoreInvalid)
	}

	return rsaKey, cert, nil
}
