package pki

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/asn1"
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// DefaultTransportKeyBits is the transport key length used when none is given.
const DefaultTransportKeyBits = 128

var (
	oidAES128CBC = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 2}
	oidAES256CBC = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 42}
)

var (
	ErrUnsupportedKeyLength = errors.New("unsupported transport key length")
	ErrInvalidCiphertext    = errors.New("invalid ciphertext")
)

// TransportKey is an ephemeral AES-CBC key. It is handed to the custodian
// wrapped with the asset public key, and the custodian returns its result
// encrypted under it.
//
// The key material must not outlive the request that created it. TransportKey
// refuses to be marshalled to JSON and never prints its key.
type TransportKey struct {
	key []byte
}

// NewTransportKey generates a random key of the given length in bits. Only 128
// and 256 are supported.
func NewTransportKey(bits int) (*TransportKey, error) {
	if _, err := oidForKeyBits(bits); err != nil {
		return nil, err
	}

	key, err := cryptoRandRead(bits / 8)
	if err != nil {
		return nil, err
	}

	return &TransportKey{key: key}, nil
}

func oidForKeyBits(bits int) (asn1.ObjectIdentifier, error) {
	switch bits {
	case 128:
		return oidAES128CBC, nil
	case 256:
		return oidAES256CBC, nil
	default:
		return nil, fmt.Errorf("%w: %d bits, expected 128 or 256", ErrUnsupportedKeyLength, bits)
	}
}

// Bits is the key length in bits.
func (k *TransportKey) Bits() int {
	return len(k.key) * 8
}

// MarshalASN1 encodes the algorithm and key as expected by the custodian:
//
//	SEQUENCE {
//	  SEQUENCE { OBJECT IDENTIFIER aes-cbc, NULL }
//	  OCTET STRING key
//	}
func (k *TransportKey) MarshalASN1() ([]byte, error) {
	oid, err := oidForKeyBits(k.Bits())
	if err != nil {
		return nil, err
	}

	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(oid)
			b.AddASN1NULL()
		})
		b.AddASN1OctetString(k.key)
	})

	return b.Bytes()
}

// ParseTransportKey reads the ASN.1 form written by MarshalASN1. This is the
// custodian side of the exchange.
func ParseTransportKey(der []byte) (*TransportKey, error) {
	input := cryptobyte.String(der)

	var seq, alg, null cryptobyte.String
	var oid asn1.ObjectIdentifier
	var key []byte

	if !input.ReadASN1(&seq, cryptobyte_asn1.SEQUENCE) || !input.Empty() ||
		!seq.ReadASN1(&alg, cryptobyte_asn1.SEQUENCE) ||
		!alg.ReadASN1ObjectIdentifier(&oid) ||
		!alg.ReadASN1(&null, cryptobyte_asn1.NULL) || !alg.Empty() ||
		!seq.ReadASN1Bytes(&key, cryptobyte_asn1.OCTET_STRING) || !seq.Empty() {
		return nil, fmt.Errorf("%w: malformed transport key", ErrInvalidCiphertext)
	}

	expected, err := oidForKeyBits(len(key) * 8)
	if err != nil {
		return nil, err
	}

	if !oid.Equal(expected) {
		return nil, fmt.Errorf("%w: algorithm %s does not match a %d bit key", ErrUnsupportedKeyLength, oid, len(key)*8)
	}

	return &TransportKey{key: append([]byte(nil), key...)}, nil
}

// Wrap encrypts the ASN.1 form of the key with the public key of the asset.
func (k *TransportKey) Wrap(pub *PublicKey) ([]byte, error) {
	blob, err := k.MarshalASN1()
	if err != nil {
		return nil, err
	}

	return pub.Encrypt(blob)
}

// Seal encrypts plaintext and returns IV || AES-CBC(PKCS#7(plaintext)), the
// layout the custodian uses for its response.
func (k *TransportKey) Seal(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(k.key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	iv, err := cryptoRandRead(block.BlockSize())
	if err != nil {
		return nil, fmt.Errorf("generating iv: %w", err)
	}

	padded := pkcs7Pad(plaintext, block.BlockSize())

	out := make([]byte, len(iv)+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[len(iv):], padded)

	return out, nil
}

// Open reverses Seal.
func (k *TransportKey) Open(payload []byte) ([]byte, error) {
	block, err := aes.NewCipher(k.key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	size := block.BlockSize()
	if len(payload) < 2*size || len(payload)%size != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not an iv followed by whole blocks", ErrInvalidCiphertext, len(payload))
	}

	iv, ciphertext := payload[:size], payload[size:]

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return pkcs7Unpad(plaintext, size)
}

// Zero overwrites the key material. The key can not be used afterwards.
func (k *TransportKey) Zero() {
	for i := range k.key {
		k.key[i] = 0
	}

	k.key = nil
}

func (k *TransportKey) String() string {
	return fmt.Sprintf("TransportKey(aes%d-cbc)", k.Bits())
}

func (k *TransportKey) MarshalJSON() ([]byte, error) {
	return nil, errors.New("transport keys must not be serialized")
}

func pkcs7Pad(data []byte, size int) []byte {
	n := size - len(data)%size
	return append(append(make([]byte, 0, len(data)+n), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, size int) ([]byte, error) {
	if len(data) == 0 || len(data)%size != 0 {
		return nil, fmt.Errorf("%w: bad padded length", ErrInvalidCiphertext)
	}

	n := int(data[len(data)-1])
	if n == 0 || n > size {
		return nil, fmt.Errorf("%w: bad padding", ErrInvalidCiphertext)
	}

	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrInvalidCiphertext)
		}
	}

	return data[:len(data)-n], nil
}
