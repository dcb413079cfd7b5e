package custody

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/infrahq/custody/api"
	"github.com/infrahq/custody/pki"
)

// randomDataSize is the length of the data signed when the caller gives none.
const randomDataSize = 32

// verifiable is a request whose result is a signature by the asset over
// locally held data. Only the SHA-256 fingerprint of the data is sent.
type verifiable struct {
	*Request
	asset *Asset
	data  []byte
}

func (a *Asset) newVerifiable(kind api.Kind, data []byte, notify bool) (*verifiable, error) {
	if data == nil {
		random, err := pki.RandomBytes(randomDataSize)
		if err != nil {
			return nil, err
		}
		data = random
	} else {
		data = append([]byte(nil), data...)
	}

	fingerprint := sha256.Sum256(data)

	r := newRequest(a.transport, kind, a.id, notify)
	r.fingerprint = fingerprint[:]

	return &verifiable{Request: r, asset: a, data: data}, nil
}

// Data returns the data that was signed.
func (v *verifiable) Data() []byte {
	return append([]byte(nil), v.data...)
}

// Fingerprint is the SHA-256 digest of Data, as sent to the API.
func (v *verifiable) Fingerprint() []byte {
	return append([]byte(nil), v.fingerprint...)
}

// Verify checks the signature returned by the device against Data. It
// returns nil only when the request was accepted and the signature is valid.
// A malformed signature returns an error that matches both
// ErrVerificationFailed and pki.ErrMalformedSignature.
func (v *verifiable) Verify(ctx context.Context) error {
	if state := v.State(); state != StateAccepted {
		return fmt.Errorf("%w: %s request %s is %s", ErrNotReady, v.kind, v.ID(), state)
	}

	ok, err := v.asset.Verify(ctx, v.data, v.rawResult())
	switch {
	case errors.Is(err, pki.ErrMalformedSignature):
		return causeError{sentinel: ErrVerificationFailed, cause: err}
	case err != nil:
		return err
	case !ok:
		return fmt.Errorf("%w: %s request %s", ErrVerificationFailed, v.kind, v.ID())
	}

	return nil
}

// Signature returns the signature over Data after verifying it.
func (v *verifiable) Signature(ctx context.Context) ([]byte, error) {
	if err := v.Verify(ctx); err != nil {
		return nil, err
	}

	return v.rawResult(), nil
}

// SignRequest asks the asset to sign data.
type SignRequest struct {
	*verifiable
	resourceURI string
}

// AuthenticateRequest asks the owner of the asset to prove their presence by
// signing random or given data.
type AuthenticateRequest struct {
	*verifiable
}

// Sign asks the device to sign data. When data is nil, 32 random bytes are
// signed. Callers that need non-repudiation over a specific payload must pass
// it. resourceURI may point to the document being signed, it is shown on the
// device. With notify set, the device receives a push message.
func (a *Asset) Sign(ctx context.Context, data []byte, resourceURI string, notify bool) (*SignRequest, error) {
	v, err := a.newVerifiable(api.KindSign, data, notify)
	if err != nil {
		return nil, err
	}

	s := &SignRequest{verifiable: v, resourceURI: resourceURI}

	err = s.create(ctx, &api.CreateSignRequest{
		AssetUUID:   a.id,
		ResourceURI: resourceURI,
		Notify:      notify,
		Fingerprint: hex.EncodeToString(v.fingerprint),
	})
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	return s, nil
}

// ResumeSign returns a sign request submitted earlier, for example by
// another process. data must be the data that was submitted.
func (a *Asset) ResumeSign(id string, data []byte, resourceURI string) *SignRequest {
	data = append([]byte(nil), data...)
	fingerprint := sha256.Sum256(data)

	r := resumeRequest(a.transport, api.KindSign, id, a.id)
	r.fingerprint = fingerprint[:]

	return &SignRequest{
		verifiable:  &verifiable{Request: r, asset: a, data: data},
		resourceURI: resourceURI,
	}
}

func (s *SignRequest) ResourceURI() string {
	return s.resourceURI
}

// Authenticate asks the owner of the asset to approve a login. When data is
// nil, 32 random bytes are signed.
func (a *Asset) Authenticate(ctx context.Context, data []byte, notify bool) (*AuthenticateRequest, error) {
	v, err := a.newVerifiable(api.KindAuthenticate, data, notify)
	if err != nil {
		return nil, err
	}

	auth := &AuthenticateRequest{verifiable: v}

	err = auth.create(ctx, &api.CreateAuthenticateRequest{
		AssetUUID:   a.id,
		Notify:      notify,
		Fingerprint: hex.EncodeToString(v.fingerprint),
	})
	if err != nil {
		return nil, fmt.Errorf("authenticate request: %w", err)
	}

	return auth, nil
}
