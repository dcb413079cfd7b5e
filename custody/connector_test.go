package custody

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"gotest.tools/v3/assert"

	"github.com/infrahq/custody/api"
	"github.com/infrahq/custody/custody/custodytest"
	"github.com/infrahq/custody/internal/cache"
	"github.com/infrahq/custody/internal/logging"
)

func TestConnectorCache(t *testing.T) {
	custodian, conn := setupCustodian(t)
	id, _ := custodian.AddAsset("laptop")
	ctx := context.Background()

	assert.Equal(t, conn.LastStatus(), 0)

	sign, err := NewAsset(conn, id).Sign(ctx, nil, "", false)
	assert.NilError(t, err)
	assert.Equal(t, conn.LastStatus(), http.StatusOK)

	calls := custodian.Calls()
	obj, err := conn.Fetch(ctx, api.KindSign, sign.ID(), false)
	assert.NilError(t, err)
	assert.Equal(t, obj.StatusCode, custodytest.StatusCreated)
	assert.Equal(t, custodian.Calls(), calls)

	custodian.Accept(sign.ID())

	obj, err = conn.Fetch(ctx, api.KindSign, sign.ID(), true)
	assert.NilError(t, err)
	assert.Equal(t, obj.StatusCode, custodytest.StatusAccepted)
	assert.Equal(t, custodian.Calls(), calls+1)

	cached, err := conn.Cache().Read(ctx, api.KindSign, sign.ID())
	assert.NilError(t, err)
	assert.Equal(t, cached.StatusCode, custodytest.StatusAccepted)
}

func TestConnectorRedisCache(t *testing.T) {
	logging.PatchLogger(t, nil)
	srv := miniredis.RunT(t)
	port, err := strconv.Atoi(srv.Port())
	assert.NilError(t, err)

	store, err := cache.NewRedis(cache.Options{Host: srv.Host(), Port: port})
	assert.NilError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	custodian := custodytest.New(t, testAPIKey)
	id, _ := custodian.AddAsset("laptop")
	ctx := context.Background()

	conn := NewConnector(ConnectorOptions{URL: custodian.URL(), APIKey: testAPIKey, Cache: store})
	sign, err := NewAsset(conn, id).Sign(ctx, []byte("shared"), "", false)
	assert.NilError(t, err)

	// a callback received by another process
	receiver, err := cache.NewRedis(cache.Options{Host: srv.Host(), Port: port})
	assert.NilError(t, err)
	t.Cleanup(func() { _ = receiver.Close() })

	custodian.Accept(sign.ID())
	_, err = NewCallbackHandler(receiver, nil).Handle(ctx, custodian.CallbackPayload(sign.ID()))
	assert.NilError(t, err)

	calls := custodian.Calls()
	assert.NilError(t, sign.Refresh(ctx))
	assert.Equal(t, sign.State(), StateAccepted)
	assert.Equal(t, custodian.Calls(), calls)
	assert.NilError(t, sign.Verify(ctx))
}

func TestConnectorMismatchedObject(t *testing.T) {
	logging.PatchLogger(t, nil)
	other := "6b1c9a8e-0d4e-4a57-8f3a-2b0c9d8e7f61"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", api.MediaType)
		_, _ = w.Write([]byte(`{"result": {"type": "sign", "uuid": "` + other + `", "status_code": 1}}`))
	}))
	t.Cleanup(srv.Close)

	conn := NewConnector(ConnectorOptions{URL: srv.URL})
	ctx := context.Background()

	_, err := conn.Fetch(ctx, api.KindSign, requestID, true)
	var decodeErr *api.DecodeError
	assert.Assert(t, errors.As(err, &decodeErr))
	assert.Equal(t, decodeErr.Field, "uuid")

	_, err = conn.Fetch(ctx, api.KindSign, requestID, false)
	assert.Assert(t, errors.As(err, &decodeErr))

	_, err = conn.Create(ctx, api.KindDecrypt, nil)
	assert.Assert(t, errors.As(err, &decodeErr))
	assert.Equal(t, decodeErr.Field, "type")
}

func TestConnectorUserAgent(t *testing.T) {
	var agent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent = r.UserAgent()
		_, _ = w.Write([]byte(`{"result": {}}`))
	}))
	t.Cleanup(srv.Close)

	conn := NewConnector(ConnectorOptions{URL: srv.URL, UserAgent: "custody/1.0.0"})
	assert.NilError(t, conn.Ping(context.Background()))
	assert.Equal(t, agent, "custody/1.0.0")
}
