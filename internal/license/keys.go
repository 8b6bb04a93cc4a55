package license

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

const (
	// keyBits is the RSA modulus size for newly generated signing keys.
	keyBits = 2048

	publicKeyPEMType  = "PUBLIC KEY"
	privateKeyPEMType = "PRIVATE KEY"
)

// GenerateKeyPair creates a new RSA signing key pair.
func GenerateKeyPair() (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	return key, nil
}

// MarshalPublicKey encodes the public key as a PKIX PEM block.
func MarshalPublicKey(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: publicKeyPEMType, Bytes: der}), nil
}

// MarshalPrivateKey encodes the private key as an unencrypted PKCS#8 PEM
// block. Key files are protected by file permissions and by never leaving
// the issuing host.
func MarshalPrivateKey(key *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: privateKeyPEMType, Bytes: der}), nil
}

// ParsePublicKey decodes a PKIX PEM public key and rejects anything that
// is not RSA.
func ParsePublicKey(pemData []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("parse public key: no PEM block found")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("parse public key: unsupported key type %T", parsed)
	}
	return pub, nil
}

// ParsePrivateKey decodes a PKCS#8 PEM private key and rejects anything
// that is not RSA.
func ParsePrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("parse private key: no PEM block found")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("parse private key: unsupported key type %T", parsed)
	}
	return key, nil
}

// LoadPublicKeyFile reads and parses a PEM public key from disk.
func LoadPublicKeyFile(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	return ParsePublicKey(data)
}

// ResolvePublicKey loads the verification key from an inline PEM string
// or a key file path, preferring the inline form. Both empty returns nil,
// which NewVerifier rejects, so every consumer fails the same way.
func ResolvePublicKey(inlinePEM, path string) (*rsa.PublicKey, error) {
	switch {
	case inlinePEM != "":
		pub, err := ParsePublicKey([]byte(inlinePEM))
		if err != nil {
			return nil, fmt.Errorf("parse configured public key: %w", err)
		}
		return pub, nil
	case path != "":
		pub, err := LoadPublicKeyFile(path)
		if err != nil {
			return nil, fmt.Errorf("load public key file: %w", err)
		}
		return pub, nil
	default:
		return nil, nil
	}
}

// LoadPrivateKeyFile reads and parses a PEM private key from disk.
func LoadPrivateKeyFile(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	return ParsePrivateKey(data)
}
