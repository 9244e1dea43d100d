package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// KeyPair is the process-wide signing keypair. It is never mutated after startup.
type KeyPair struct {
	ID      string
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
}

// ParseKeyPair decodes PEM encoded RSA keys and checks that they belong together.
func ParseKeyPair(kid, privatePEM, publicPEM string) (KeyPair, error) {
	privatePEM = strings.TrimSpace(privatePEM)
	publicPEM = strings.TrimSpace(publicPEM)
	if privatePEM == "" || publicPEM == "" {
		return KeyPair{}, errors.New("auth: both private and public keys are required")
	}
	priv, err := parseRSAPrivateKey(privatePEM)
	if err != nil {
		return KeyPair{}, fmt.Errorf("auth: parse private key: %w", err)
	}
	pub, err := parseRSAPublicKey(publicPEM)
	if err != nil {
		return KeyPair{}, fmt.Errorf("auth: parse public key: %w", err)
	}
	if !priv.PublicKey.Equal(pub) {
		return KeyPair{}, errors.New("auth: public key does not match private key")
	}
	return KeyPair{ID: strings.TrimSpace(kid), Private: priv, Public: pub}, nil
}

// GenerateKeyPair creates an ephemeral RSA keypair. Tokens signed with it do not
// survive a restart.
func GenerateKeyPair(kid string, bits int) (KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return KeyPair{}, fmt.Errorf("auth: generate key: %w", err)
	}
	return KeyPair{ID: strings.TrimSpace(kid), Private: priv, Public: &priv.PublicKey}, nil
}

func parseRSAPrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("invalid PEM private key")
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
		return nil, errors.New("unsupported private key type")
	default:
		return nil, fmt.Errorf("unsupported private key type %s", block.Type)
	}
}

func parseRSAPublicKey(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("invalid PEM public key")
	}
	switch block.Type {
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("not an RSA public key")
		}
		return rsaKey, nil
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unsupported public key type %s", block.Type)
	}
}
