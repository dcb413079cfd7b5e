package custody

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/infrahq/custody/api"
)

type IdentificationState int

const (
	IdentificationCreated IdentificationState = iota
	IdentificationConsumed
	IdentificationExpired
)

func (s IdentificationState) String() string {
	switch s {
	case IdentificationCreated:
		return "created"
	case IdentificationConsumed:
		return "consumed"
	case IdentificationExpired:
		return "expired"
	default:
		return fmt.Sprintf("IdentificationState(%d)", int(s))
	}
}

// Identification registers a new asset. The user scans the QR code, or opens
// the app API URL, and the app creates a key pair. Once the identification
// is consumed it names the new asset.
type Identification struct {
	transport Transport

	mu  sync.Mutex
	obj api.Object
}

func NewIdentification(t Transport, id string) *Identification {
	return &Identification{transport: t, obj: api.Object{Kind: api.KindIdentification, UUID: id}}
}

func (i *Identification) Fetch(ctx context.Context, force bool) error {
	obj, err := i.transport.Fetch(ctx, api.KindIdentification, i.ID(), force)
	if err != nil {
		return err
	}

	i.mu.Lock()
	i.obj = *obj
	i.mu.Unlock()
	return nil
}

func (i *Identification) object() api.Object {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.obj
}

func (i *Identification) ID() string {
	return i.object().UUID
}

func (i *Identification) State() IdentificationState {
	return IdentificationState(i.object().StatusCode)
}

func (i *Identification) StatusText() string {
	return i.object().StatusText
}

func (i *Identification) Nonce() string {
	return i.object().Nonce
}

// NonceFormatted is the nonce as the app shows it.
func (i *Identification) NonceFormatted() string {
	return i.object().NonceFormatted
}

// AppAPI is the app-to-app URL that opens the identification in the app.
func (i *Identification) AppAPI() string {
	return i.object().AppAPI
}

// QRCode is the base64 encoded PNG image of the QR code.
func (i *Identification) QRCode() string {
	return i.object().QRCode
}

func (i *Identification) QRCodePNG() ([]byte, error) {
	png, err := base64.StdEncoding.Strict().DecodeString(i.object().QRCode)
	if err != nil {
		return nil, fmt.Errorf("cannot base64 decode qr code png image: %w", err)
	}
	return png, nil
}

// Asset returns the registered asset, or nil while the identification has not
// been consumed.
func (i *Identification) Asset() *Asset {
	id := i.object().AssetUUID
	if id == "" {
		return nil
	}
	return NewAsset(i.transport, id)
}
