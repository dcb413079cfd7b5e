package custody

import (
	"bytes"
	"context"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/infrahq/custody/api"
	"github.com/infrahq/custody/custody/custodytest"
	"github.com/infrahq/custody/internal/logging"
)

func TestCreateServiceProvider(t *testing.T) {
	logging.PatchLogger(t, nil)
	custodian := custodytest.New(t, "")
	ctx := context.Background()

	conn := NewConnector(ConnectorOptions{URL: custodian.URL(), APIKey: "previous-key"})

	sp, err := CreateServiceProvider(ctx, conn, ServiceProviderOptions{
		Name:        "Example",
		URL:         "https://example.com",
		CallbackURL: "https://example.com/callback",
	})
	assert.NilError(t, err)

	assert.Equal(t, sp.Name(), "Example")
	assert.Equal(t, sp.State(), ServiceProviderCreated)
	assert.Equal(t, sp.CallbackURL(), "https://example.com/callback")
	assert.Equal(t, sp.DomainChallengeURL(), "https://example.com/.well-known/uqfree")
	assert.Equal(t, sp.NonceFormatted(), "111 222 333")
	assert.Equal(t, sp.APIKey(), "key-"+sp.ID())

	// the connector now uses the new key
	assert.NilError(t, conn.Ping(ctx))

	t.Run("fetch keeps the key", func(t *testing.T) {
		assert.NilError(t, sp.Fetch(ctx, true))
		assert.Equal(t, sp.APIKey(), "")
		assert.NilError(t, conn.Ping(ctx))
	})

	t.Run("validate domain", func(t *testing.T) {
		ok, err := sp.ValidateDomain(ctx, false)
		assert.NilError(t, err)
		assert.Assert(t, ok)
	})

	t.Run("identification", func(t *testing.T) {
		ident, err := sp.CreateIdentification(ctx)
		assert.NilError(t, err)
		assert.Equal(t, ident.State(), IdentificationCreated)
		assert.Equal(t, ident.AppAPI(), "uqfree://identification/"+ident.ID())
		assert.Assert(t, ident.Asset() == nil)

		png, err := ident.QRCodePNG()
		assert.NilError(t, err)
		assert.Assert(t, bytes.HasPrefix(png, []byte("\x89PNG")))

		again := NewIdentification(conn, ident.ID())
		assert.NilError(t, again.Fetch(ctx, false))
		assert.Equal(t, again.Nonce(), ident.Nonce())
	})

	t.Run("wrong key", func(t *testing.T) {
		other := NewConnector(ConnectorOptions{URL: custodian.URL(), APIKey: "wrong"})
		err := other.Ping(ctx)
		assert.Equal(t, api.ErrorStatusCode(err), int32(401))
		assert.ErrorContains(t, err, "invalid api key")
		assert.Equal(t, other.LastStatus(), 401)
	})

	t.Run("admin asset", func(t *testing.T) {
		assert.Equal(t, NewServiceProvider(conn, sp.ID()).AdminAsset().ID(), "")
		assert.Equal(t, sp.Asset("a").ID(), "a")
	})
}

func TestIdentificationQRCode(t *testing.T) {
	ident := &Identification{obj: api.Object{QRCode: "not base64!"}}
	_, err := ident.QRCodePNG()
	assert.ErrorContains(t, err, "cannot base64 decode")

	consumed := &Identification{obj: api.Object{StatusCode: 1, AssetUUID: "asset-id"}}
	assert.Equal(t, consumed.State(), IdentificationConsumed)
	assert.Equal(t, consumed.Asset().ID(), "asset-id")
}
