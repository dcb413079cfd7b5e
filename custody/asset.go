package custody

import (
	"context"
	"fmt"
	"sync"

	"github.com/infrahq/custody/api"
	"github.com/infrahq/custody/pki"
)

type AssetState int

const (
	AssetCreated AssetState = iota
	AssetActive
	AssetInvalidated
	AssetUnlocked
	AssetLocked
	AssetDestroyed
)

var assetStateNames = [...]string{"created", "active", "invalidated", "unlocked", "locked", "destroyed"}

func (s AssetState) String() string {
	if s >= 0 && int(s) < len(assetStateNames) {
		return assetStateNames[s]
	}
	return fmt.Sprintf("AssetState(%d)", int(s))
}

// Asset is an RSA key pair held by a custodian device. Only the public key
// is known locally. Signing and decryption are requests that the owner of the
// device has to approve.
type Asset struct {
	transport Transport
	id        string

	mu        sync.Mutex
	name      string
	state     AssetState
	publicKey []byte
	cipher    *pki.PublicKey
}

// NewAsset returns the asset with id. Nothing is read from the API until
// the asset is fetched or its public key is needed.
func NewAsset(t Transport, id string) *Asset {
	return &Asset{transport: t, id: id}
}

// NewAssetWithKey returns an asset whose public key is already known. The
// key is not read from the API.
func NewAssetWithKey(t Transport, id string, publicKey []byte) *Asset {
	a := NewAsset(t, id)
	a.publicKey = append([]byte(nil), publicKey...)
	return a
}

func (a *Asset) ID() string {
	return a.id
}

func (a *Asset) Name() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.name
}

func (a *Asset) State() AssetState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// PublicKey returns the public key as received, usually PEM encoded.
func (a *Asset) PublicKey() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]byte(nil), a.publicKey...)
}

// Fetch reads the asset. Unless force is set, the cached copy is used when
// there is one.
func (a *Asset) Fetch(ctx context.Context, force bool) error {
	obj, err := a.transport.Fetch(ctx, api.KindAsset, a.id, force)
	if err != nil {
		return err
	}

	state := AssetState(obj.StatusCode)
	if state < AssetCreated || state > AssetDestroyed {
		return &api.DecodeError{Kind: api.KindAsset, Field: "status_code", Reason: fmt.Sprintf("unknown asset state %d", obj.StatusCode)}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.name = obj.Name
	a.state = state

	if obj.PublicKey != string(a.publicKey) {
		a.publicKey = []byte(obj.PublicKey)
		a.cipher = nil
	}

	return nil
}

// Cipher returns the parsed public key. The asset is fetched first when its
// key is not known yet. The parsed key is kept for later calls.
func (a *Asset) Cipher(ctx context.Context) (*pki.PublicKey, error) {
	a.mu.Lock()
	cipher, known := a.cipher, len(a.publicKey) > 0
	a.mu.Unlock()

	if cipher != nil {
		return cipher, nil
	}

	if !known {
		if err := a.Fetch(ctx, false); err != nil {
			return nil, fmt.Errorf("load public key of asset %s: %w", a.id, err)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cipher == nil {
		pub, err := pki.ParsePublicKey(a.publicKey)
		if err != nil {
			return nil, fmt.Errorf("public key of asset %s: %w", a.id, err)
		}
		a.cipher = pub
	}

	return a.cipher, nil
}

// Encrypt encrypts plaintext with the public key of the asset, using
// RSA-OAEP with SHA-256. The result can be decrypted with Decrypt.
func (a *Asset) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	pub, err := a.Cipher(ctx)
	if err != nil {
		return nil, err
	}

	return pub.Encrypt(plaintext)
}

// Verify checks a PKCS#1 v1.5 SHA-256 signature of the asset over message.
// See pki.PublicKey.Verify.
func (a *Asset) Verify(ctx context.Context, message, signature []byte) (bool, error) {
	pub, err := a.Cipher(ctx)
	if err != nil {
		return false, err
	}

	return pub.Verify(message, signature)
}
