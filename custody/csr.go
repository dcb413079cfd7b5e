package custody

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"sync"

	"github.com/infrahq/custody/pki"
)

// CSR is a PKCS#10 certificate request for the key of an asset. The request
// is signed by the device, the private key is never needed locally.
type CSR struct {
	asset   *Asset
	subject pkix.Name

	mu   sync.Mutex
	sign *SignRequest
}

// NewCSR starts a certificate request for subject. Use RequestSign to have
// it signed, and Signed to retrieve it once the signature was given.
func (a *Asset) NewCSR(subject pkix.Name) *CSR {
	return &CSR{asset: a, subject: subject}
}

func (c *CSR) Subject() pkix.Name {
	return c.subject
}

// signingSubject encodes the request with a placeholder signature and
// returns the certificationRequestInfo as found in that encoding.
func (c *CSR) signingSubject(ctx context.Context) ([]byte, error) {
	pub, err := c.asset.Cipher(ctx)
	if err != nil {
		return nil, err
	}

	info, err := pki.MarshalCertificateRequestInfo(c.subject, pub)
	if err != nil {
		return nil, err
	}

	der, err := pki.MarshalCertificateRequest(c.subject, pub, pki.PlaceholderSignature)
	if err != nil {
		return nil, err
	}

	span, err := pki.SigningSubject(der)
	if err != nil {
		return nil, err
	}

	if span.Offset < 0 || span.Offset+span.Length > len(der) {
		return nil, fmt.Errorf("%w: span %d+%d outside of %d bytes", ErrSubjectMismatch, span.Offset, span.Length, len(der))
	}

	subject := span.Of(der)
	if !bytes.Equal(subject, info) {
		return nil, ErrSubjectMismatch
	}

	return subject, nil
}

// Digest is the SHA-256 digest of the signing subject. It is the fingerprint
// that RequestSign submits.
func (c *CSR) Digest(ctx context.Context) ([]byte, error) {
	subject, err := c.signingSubject(ctx)
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256(subject)
	return digest[:], nil
}

// RequestSign asks the device to sign the request. The signing subject is
// the signed data, so the signature is a valid sha256WithRSAEncryption
// signature of the request.
func (c *CSR) RequestSign(ctx context.Context, notify bool) (*SignRequest, error) {
	subject, err := c.signingSubject(ctx)
	if err != nil {
		return nil, err
	}

	sign, err := c.asset.Sign(ctx, subject, "", notify)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.sign = sign
	c.mu.Unlock()

	return sign, nil
}

// ResumeSign attaches a sign request made earlier with RequestSign for the
// same subject and asset.
func (c *CSR) ResumeSign(ctx context.Context, id string) (*SignRequest, error) {
	subject, err := c.signingSubject(ctx)
	if err != nil {
		return nil, err
	}

	sign := c.asset.ResumeSign(id, subject, "")

	c.mu.Lock()
	c.sign = sign
	c.mu.Unlock()

	return sign, nil
}

// SignRequest returns the pending sign request, or nil.
func (c *CSR) SignRequest() *SignRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sign
}

// Signed returns the signed request in format. The signature must be accepted
// and verify before it is placed in the request.
//
// While the sign request is pending it is refreshed through the cache of the
// connector, so Signed does not see the acceptance on its own. The caller
// observes it first, by polling the sign request or by waiting on a cache
// that receives callbacks. Until then Signed returns ErrCSRNotSigned.
func (c *CSR) Signed(ctx context.Context, format pki.Format) ([]byte, error) {
	sign := c.SignRequest()
	if sign == nil {
		return nil, ErrNoPendingSignRequest
	}

	if !sign.IsTerminal() {
		if err := sign.Refresh(ctx); err != nil {
			return nil, fmt.Errorf("refresh sign request: %w", err)
		}
	}

	if state := sign.State(); state != StateAccepted {
		return nil, fmt.Errorf("%w: sign request %s is %s", ErrCSRNotSigned, sign.ID(), state)
	}

	signature, err := sign.Signature(ctx)
	switch {
	case errors.Is(err, ErrVerificationFailed):
		return nil, causeError{sentinel: ErrCSRVerificationFailed, cause: err}
	case err != nil:
		return nil, err
	}

	pub, err := c.asset.Cipher(ctx)
	if err != nil {
		return nil, err
	}

	der, err := pki.MarshalCertificateRequest(c.subject, pub, signature)
	if err != nil {
		return nil, err
	}

	return pki.EncodeCertificateRequest(der, format)
}
