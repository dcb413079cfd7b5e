package pki

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

var randReader = rand.Reader

var (
	// ErrCryptoFormat is returned when a public key can not be parsed.
	ErrCryptoFormat = errors.New("unsupported public key format")
	// ErrEncryption is returned when RSA-OAEP encryption is not possible, most
	// likely because the plaintext is too long for the modulus.
	ErrEncryption = errors.New("encryption failed")
	// ErrMalformedSignature is returned by Verify when the signature could not
	// be evaluated at all. A signature that was evaluated and did not match is
	// reported as false instead.
	ErrMalformedSignature = errors.New("malformed signature")
)

// PublicKey is the public half of an RSA key pair. The private half lives on a
// remote custodian device and is never available locally.
//
// PublicKey encrypts with RSA-OAEP and verifies PKCS#1 v1.5 signatures, both
// with SHA-256.
type PublicKey struct {
	key *rsa.PublicKey
}

func NewPublicKey(key *rsa.PublicKey) *PublicKey {
	return &PublicKey{key: key}
}

// ParsePublicKey reads an RSA public key from PEM ("RSA PUBLIC KEY" or
// "PUBLIC KEY") or from DER in either PKCS#1 or PKIX form.
func ParsePublicKey(data []byte) (*PublicKey, error) {
	der := data
	if block, _ := pem.Decode(data); block != nil {
		der = block.Bytes
	}

	if len(der) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrCryptoFormat)
	}

	if key, err := x509.ParsePKCS1PublicKey(der); err == nil {
		return &PublicKey{key: key}, nil
	}

	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoFormat, err)
	}

	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: expected an RSA key, got %T", ErrCryptoFormat, parsed)
	}

	return &PublicKey{key: key}, nil
}

// RSA returns the underlying key.
func (p *PublicKey) RSA() *rsa.PublicKey {
	return p.key
}

// Size is the modulus size in bytes.
func (p *PublicKey) Size() int {
	return p.key.Size()
}

// MaxPlaintextSize is the longest message Encrypt accepts:
// modulus bytes - 2*hash bytes - 2.
func (p *PublicKey) MaxPlaintextSize() int {
	return p.key.Size() - 2*sha256.Size - 2
}

// Encrypt encrypts plaintext with RSA-OAEP.
func (p *PublicKey) Encrypt(plaintext []byte) ([]byte, error) {
	if max := p.MaxPlaintextSize(); len(plaintext) > max {
		return nil, fmt.Errorf("%w: plaintext is %d bytes, at most %d bytes fit", ErrEncryption, len(plaintext), max)
	}

	ciphertext, err := rsa.EncryptOAEP(sha256.New(), randReader, p.key, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	return ciphertext, nil
}

// Verify checks a PKCS#1 v1.5 SHA-256 signature over message. A signature that
// does not have the length of the modulus returns ErrMalformedSignature.
func (p *PublicKey) Verify(message, signature []byte) (bool, error) {
	if len(signature) != p.key.Size() {
		return false, fmt.Errorf("%w: signature is %d bytes, expected %d", ErrMalformedSignature, len(signature), p.key.Size())
	}

	digest := sha256.Sum256(message)

	if err := rsa.VerifyPKCS1v15(p.key, crypto.SHA256, digest[:], signature); err != nil {
		if errors.Is(err, rsa.ErrVerification) {
			return false, nil
		}

		return false, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}

	return true, nil
}

// MarshalPKIX returns the DER encoded SubjectPublicKeyInfo of the key.
func (p *PublicKey) MarshalPKIX() ([]byte, error) {
	return x509.MarshalPKIXPublicKey(p.key)
}

// MarshalPEM returns the key as a PKCS#1 "RSA PUBLIC KEY" PEM block.
func (p *PublicKey) MarshalPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(p.key),
	})
}
