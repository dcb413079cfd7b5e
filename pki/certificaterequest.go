package pki

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

var (
	oidSHA256WithRSA = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}
)

// PlaceholderSignature is the signature of a certificate request that has not
// been signed yet. It keeps the structure complete so it can be encoded and
// decoded before the signing digest is taken.
var PlaceholderSignature = []byte{0}

var ErrMalformedRequest = errors.New("malformed certificate request")

// Format selects the output encoding of a certificate request.
type Format int

const (
	FormatPEM Format = iota
	FormatDER
)

func (f Format) String() string {
	switch f {
	case FormatPEM:
		return "pem"
	case FormatDER:
		return "der"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Set implements pflag.Value.
func (f *Format) Set(s string) error {
	switch s {
	case "pem", "PEM", "":
		*f = FormatPEM
	case "der", "DER":
		*f = FormatDER
	default:
		return fmt.Errorf("unknown format %q, expected pem or der", s)
	}

	return nil
}

func (f *Format) Type() string {
	return "format"
}

// MarshalCertificateRequestInfo encodes the certificationRequestInfo of a
// PKCS#10 request: version 0, subject, subject public key info and an empty
// attribute set.
func MarshalCertificateRequestInfo(subject pkix.Name, pub *PublicKey) ([]byte, error) {
	rawSubject, err := asn1.Marshal(subject.ToRDNSequence())
	if err != nil {
		return nil, fmt.Errorf("marshal subject: %w", err)
	}

	spki, err := pub.MarshalPKIX()
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}

	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1Int64(0)
		b.AddBytes(rawSubject)
		b.AddBytes(spki)
		b.AddASN1(cryptobyte_asn1.Tag(0).Constructed().ContextSpecific(), func(b *cryptobyte.Builder) {})
	})

	return b.Bytes()
}

// MarshalCertificateRequest encodes a complete sha256WithRSAEncryption
// certificate request with the given signature. Use PlaceholderSignature for
// a request that has not been signed yet.
func MarshalCertificateRequest(subject pkix.Name, pub *PublicKey, signature []byte) ([]byte, error) {
	info, err := MarshalCertificateRequestInfo(subject, pub)
	if err != nil {
		return nil, err
	}

	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddBytes(info)
		b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(oidSHA256WithRSA)
			b.AddASN1NULL()
		})
		b.AddASN1(cryptobyte_asn1.BIT_STRING, func(b *cryptobyte.Builder) {
			b.AddUint8(0) // no unused bits
			b.AddBytes(signature)
		})
	})

	return b.Bytes()
}

// Span is a byte range within an encoding.
type Span struct {
	Offset int
	Length int
}

// Of returns the bytes the span covers in data.
func (s Span) Of(data []byte) []byte {
	return data[s.Offset : s.Offset+s.Length]
}

// SigningSubject decodes a certificate request and returns where its
// certificationRequestInfo element, tag and length included, sits in der. The
// span is taken from the decoded positions, the element is never re-encoded.
func SigningSubject(der []byte) (Span, error) {
	input := cryptobyte.String(der)

	var request cryptobyte.String
	if !input.ReadASN1(&request, cryptobyte_asn1.SEQUENCE) {
		return Span{}, fmt.Errorf("%w: expected a sequence", ErrMalformedRequest)
	}

	if !input.Empty() {
		return Span{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformedRequest, len(input))
	}

	// request runs to the end of der, so its start is what precedes it
	offset := len(der) - len(request)

	var info cryptobyte.String
	if !request.ReadASN1Element(&info, cryptobyte_asn1.SEQUENCE) {
		return Span{}, fmt.Errorf("%w: missing certificationRequestInfo", ErrMalformedRequest)
	}

	return Span{Offset: offset, Length: len(info)}, nil
}

// SignatureOf returns the signature bits of an encoded certificate request.
func SignatureOf(der []byte) ([]byte, error) {
	input := cryptobyte.String(der)

	var request, info, algorithm cryptobyte.String
	var signature asn1.BitString

	if !input.ReadASN1(&request, cryptobyte_asn1.SEQUENCE) ||
		!request.ReadASN1(&info, cryptobyte_asn1.SEQUENCE) ||
		!request.ReadASN1(&algorithm, cryptobyte_asn1.SEQUENCE) ||
		!request.ReadASN1BitString(&signature) {
		return nil, ErrMalformedRequest
	}

	return signature.RightAlign(), nil
}

// EncodeCertificateRequest returns der in the requested format.
func EncodeCertificateRequest(der []byte, format Format) ([]byte, error) {
	switch format {
	case FormatDER:
		return der, nil
	case FormatPEM:
		return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der}), nil
	default:
		return nil, fmt.Errorf("unsupported format %v", format)
	}
}
