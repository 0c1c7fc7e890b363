package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrInvalidKey is returned when key material or its type is invalid.
var ErrInvalidKey = errors.New("invalid key")

// DomainSpec describes how to build one signing domain from configuration.
// HMAC algorithms use Secret; RS256/ES256 use PrivateKey and PublicKey, each of
// which may be inline PEM or a file path.
type DomainSpec struct {
	Algorithm  string
	Secret     string
	PrivateKey string
	PublicKey  string
}

// BuildDomain returns the SigningDomain described by spec.
func BuildDomain(spec DomainSpec) (*SigningDomain, error) {
	alg := strings.ToUpper(strings.TrimSpace(spec.Algorithm))
	switch alg {
	case "", "HS256", "HS384", "HS512":
		return NewHMACDomain(alg, []byte(spec.Secret))
	case "RS256", "ES256":
		signer, err := ParsePrivateKey(spec.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("private key: %w", err)
		}
		pub, err := ParsePublicKey(spec.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("public key: %w", err)
		}
		d, err := NewKeyPairDomain(signer, pub)
		if err != nil {
			return nil, err
		}
		if d.Alg() != alg {
			return nil, fmt.Errorf("%w: key type is %s, configured algorithm is %s", ErrInvalidKey, d.Alg(), alg)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidKey, spec.Algorithm)
	}
}

// LoadPEM returns s as bytes when it is inline PEM (literal "\n" sequences from
// env files are expanded); otherwise s is treated as a file path.
func LoadPEM(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		return []byte(strings.ReplaceAll(s, `\n`, "\n")), nil
	}
	return os.ReadFile(s)
}

// ParsePrivateKey parses a PEM-encoded RSA or ECDSA private key.
func ParsePrivateKey(s string) (crypto.Signer, error) {
	block, err := decodeBlock(s)
	if err != nil {
		return nil, err
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		signer, ok := key.(crypto.Signer)
		if !ok || KeyAlg(signer.Public()) == "" {
			return nil, ErrInvalidKey
		}
		return signer, nil
	default:
		return nil, ErrInvalidKey
	}
}

// ParsePublicKey parses a PEM-encoded RSA or ECDSA public key.
func ParsePublicKey(s string) (crypto.PublicKey, error) {
	block, err := decodeBlock(s)
	if err != nil {
		return nil, err
	}
	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		if KeyAlg(key) == "" {
			return nil, ErrInvalidKey
		}
		return key, nil
	default:
		return nil, ErrInvalidKey
	}
}

// KeyAlg returns "RS256" for RSA and "ES256" for ECDSA P-256 keys; empty otherwise.
func KeyAlg(pub crypto.PublicKey) string {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return "RS256"
	case *ecdsa.PublicKey:
		if k.Curve == elliptic.P256() {
			return "ES256"
		}
	}
	return ""
}

func decodeBlock(s string) (*pem.Block, error) {
	pemBytes, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	return block, nil
}
