package custody

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/infrahq/custody/api"
	"github.com/infrahq/custody/pki"
)

type decryptOptions struct {
	keyBits int
}

type DecryptOption func(*decryptOptions)

// WithKeyLength sets the length of the transport key in bits, 128 or 256.
func WithKeyLength(bits int) DecryptOption {
	return func(o *decryptOptions) {
		o.keyBits = bits
	}
}

// DecryptRequest asks the device to decrypt a ciphertext.
//
// The device can only apply its private key. To keep the plaintext private on
// its way back, a fresh AES transport key is sent along, wrapped with the
// asset public key, and the device returns the plaintext encrypted with it.
// The transport key only exists in this request and is wiped once the
// plaintext was recovered.
type DecryptRequest struct {
	*Request

	keyMu     sync.Mutex
	key       *pki.TransportKey
	plaintext []byte
}

// Decrypt asks the device to decrypt ciphertext, which was encrypted with
// the public key of the asset (see Encrypt). An unsupported key length is
// rejected before anything is sent.
func (a *Asset) Decrypt(ctx context.Context, ciphertext []byte, notify bool, opts ...DecryptOption) (*DecryptRequest, error) {
	o := decryptOptions{keyBits: pki.DefaultTransportKeyBits}
	for _, opt := range opts {
		opt(&o)
	}

	key, err := pki.NewTransportKey(o.keyBits)
	if err != nil {
		return nil, err
	}

	pub, err := a.Cipher(ctx)
	if err != nil {
		key.Zero()
		return nil, err
	}

	wrapped, err := key.Wrap(pub)
	if err != nil {
		key.Zero()
		return nil, fmt.Errorf("wrap transport key: %w", err)
	}

	d := &DecryptRequest{
		Request: newRequest(a.transport, api.KindDecrypt, a.id, notify),
		key:     key,
	}

	err = d.create(ctx, &api.CreateDecryptRequest{
		AssetUUID:  a.id,
		Notify:     notify,
		CipherData: hex.EncodeToString(ciphertext),
		CipherKey:  hex.EncodeToString(wrapped),
	})
	if err != nil {
		key.Zero()
		return nil, fmt.Errorf("decrypt request: %w", err)
	}

	return d, nil
}

// PlainText returns the decrypted data once the request was accepted.
func (d *DecryptRequest) PlainText() ([]byte, error) {
	if state := d.State(); state != StateAccepted {
		return nil, fmt.Errorf("%w: decrypt request %s is %s", ErrNotReady, d.ID(), state)
	}

	d.keyMu.Lock()
	defer d.keyMu.Unlock()

	if d.plaintext != nil {
		return append([]byte(nil), d.plaintext...), nil
	}

	if d.key == nil {
		return nil, fmt.Errorf("%w: transport key was discarded", ErrDecryptionFailed)
	}

	plaintext, err := d.key.Open(d.rawResult())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	d.plaintext = plaintext
	d.key.Zero()
	d.key = nil

	return append([]byte(nil), plaintext...), nil
}

// Close wipes the transport key. The plaintext can not be recovered
// afterwards, unless it was already read.
func (d *DecryptRequest) Close() {
	d.keyMu.Lock()
	defer d.keyMu.Unlock()

	if d.key != nil {
		d.key.Zero()
		d.key = nil
	}
}
