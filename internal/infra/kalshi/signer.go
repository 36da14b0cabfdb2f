package kalshi

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
)

// Signer produces RSA-PSS request signatures over timestamp+method+path,
// as the exchange's auth scheme requires.
type Signer struct {
	keyID string
	key   *rsa.PrivateKey
}

// NewSigner loads a PEM-encoded RSA private key from disk.
func NewSigner(keyID, keyPath string) (*Signer, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	return NewSignerFromPEM(keyID, data)
}

// NewSignerFromPEM parses a PEM-encoded RSA private key (PKCS#1 or PKCS#8).
func NewSignerFromPEM(keyID string, pemData []byte) (*Signer, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in private key")
	}

	var key *rsa.PrivateKey
	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		key = k
	} else {
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		rsaKey, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is not RSA")
		}
		key = rsaKey
	}

	return &Signer{keyID: keyID, key: key}, nil
}

// Sign returns the base64 PSS signature of timestampMS+method+path.
func (s *Signer) Sign(timestampMS, method, path string) (string, error) {
	msg := []byte(timestampMS + method + path)
	digest := sha256.Sum256(msg)

	sig, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return "", fmt.Errorf("sign request: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Headers builds the auth header set for one request.
func (s *Signer) Headers(timestampMS, method, signPath string) (map[string]string, error) {
	sig, err := s.Sign(timestampMS, method, signPath)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"KALSHI-ACCESS-KEY":       s.keyID,
		"KALSHI-ACCESS-TIMESTAMP": timestampMS,
		"KALSHI-ACCESS-SIGNATURE": sig,
	}, nil
}
