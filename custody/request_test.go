package custody

import (
	"context"
	"errors"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/infrahq/custody/api"
	"github.com/infrahq/custody/custody/custodytest"
)

func TestCanTransition(t *testing.T) {
	type testCase struct {
		from, to State
		expected bool
	}

	testCases := []testCase{
		{from: StatePrepared, to: StateCreated, expected: true},
		{from: StatePrepared, to: StateAccepted, expected: true},
		{from: StateCreated, to: StateCreated, expected: true},
		{from: StateCreated, to: StateAccepted, expected: true},
		{from: StateCreated, to: StateExpired, expected: true},
		{from: StateCreated, to: StatePrepared, expected: false},
		{from: StateAccepted, to: StateAccepted, expected: true},
		{from: StateAccepted, to: StateRejected, expected: false},
		{from: StateRejected, to: StateCreated, expected: false},
		{from: StateFailed, to: StateAccepted, expected: false},
	}

	for _, tc := range testCases {
		assert.Equal(t, canTransition(tc.from, tc.to), tc.expected, "%s -> %s", tc.from, tc.to)
	}
}

func TestState(t *testing.T) {
	assert.Equal(t, StateAccepted.String(), "accepted")
	assert.Equal(t, State(9).String(), "State(9)")
	assert.Assert(t, !StateCreated.IsTerminal())
	assert.Assert(t, StateExpired.IsTerminal())
}

const requestID = "1b4e28ba-2fa1-11d2-883f-0016d3cca427"

func signObject(status int) *api.Object {
	return &api.Object{Kind: api.KindSign, UUID: requestID, StatusCode: status, StatusText: "status"}
}

func submittedRequest(t *testing.T) *Request {
	t.Helper()
	stub := &stubTransport{
		create: func(api.Kind, interface{}) (*api.Object, error) { return signObject(0), nil },
	}

	r := newRequest(stub, api.KindSign, "asset", false)
	assert.NilError(t, r.create(context.Background(), nil))
	return r
}

func TestRequestCreate(t *testing.T) {
	t.Run("prepared response is created", func(t *testing.T) {
		r := submittedRequest(t)
		assert.Equal(t, r.State(), StateCreated)
		assert.Equal(t, r.ID(), requestID)
		assert.Assert(t, !r.IsAccepted())
	})

	t.Run("failed submit stays prepared", func(t *testing.T) {
		stub := &stubTransport{
			create: func(api.Kind, interface{}) (*api.Object, error) { return nil, errors.New("connection refused") },
		}

		r := newRequest(stub, api.KindSign, "asset", false)
		err := r.create(context.Background(), nil)
		assert.ErrorContains(t, err, "connection refused")
		assert.Equal(t, r.State(), StatePrepared)
		assert.Equal(t, r.ID(), "")
		assert.Assert(t, !r.IsAccepted())
	})

	t.Run("submitted twice", func(t *testing.T) {
		r := submittedRequest(t)
		err := r.create(context.Background(), nil)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestRequestApply(t *testing.T) {
	t.Run("before submit", func(t *testing.T) {
		r := newRequest(&stubTransport{}, api.KindSign, "asset", false)
		err := r.Apply(signObject(2))
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, r.State(), StatePrepared)
	})

	t.Run("idempotent", func(t *testing.T) {
		r := submittedRequest(t)
		accepted := signObject(2)
		accepted.Signature = "0102"

		assert.NilError(t, r.Apply(accepted))
		assert.NilError(t, r.Apply(accepted))
		assert.Equal(t, r.State(), StateAccepted)
		assert.DeepEqual(t, r.rawResult(), []byte{1, 2})
	})

	t.Run("terminal state conflict", func(t *testing.T) {
		r := submittedRequest(t)
		assert.NilError(t, r.Apply(signObject(2)))

		err := r.Apply(signObject(3))
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, r.State(), StateAccepted)
	})

	t.Run("pending again", func(t *testing.T) {
		r := submittedRequest(t)
		assert.NilError(t, r.Apply(signObject(0)))
		assert.Equal(t, r.State(), StateCreated)
	})

	t.Run("other request", func(t *testing.T) {
		r := submittedRequest(t)
		obj := signObject(2)
		obj.UUID = "0f9d2e2c-6a5b-4f43-9b39-3a3c0d7b8c11"
		assert.ErrorIs(t, r.Apply(obj), ErrObjectMismatch)

		obj = signObject(2)
		obj.Kind = api.KindDecrypt
		assert.ErrorIs(t, r.Apply(obj), ErrObjectMismatch)
		assert.Equal(t, r.State(), StateCreated)
	})

	t.Run("uuid case is ignored", func(t *testing.T) {
		r := submittedRequest(t)
		obj := signObject(2)
		obj.UUID = "1B4E28BA-2FA1-11D2-883F-0016D3CCA427"
		assert.NilError(t, r.Apply(obj))
	})

	t.Run("unknown status code", func(t *testing.T) {
		r := submittedRequest(t)
		var decodeErr *api.DecodeError
		assert.Assert(t, errors.As(r.Apply(signObject(17)), &decodeErr))
		assert.Equal(t, decodeErr.Field, "status_code")
	})

	t.Run("signature not hex", func(t *testing.T) {
		r := submittedRequest(t)
		obj := signObject(2)
		obj.Signature = "not hex"

		var decodeErr *api.DecodeError
		assert.Assert(t, errors.As(r.Apply(obj), &decodeErr))
		assert.Equal(t, decodeErr.Field, "signature")
		assert.Equal(t, r.State(), StateCreated)
	})
}

func TestRequestRefreshBeforeSubmit(t *testing.T) {
	r := newRequest(&stubTransport{}, api.KindSign, "asset", false)
	assert.ErrorIs(t, r.Fetch(context.Background()), ErrNotReady)
}

func TestDebugPollForResponse(t *testing.T) {
	custodian, conn := setupCustodian(t)
	assetID, _ := custodian.AddAsset("poll")
	ctx := context.Background()

	sign, err := NewAsset(conn, assetID).Sign(ctx, []byte("data"), "", false)
	assert.NilError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		custodian.Accept(sign.ID())
	}()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	assert.NilError(t, sign.DebugPollForResponse(ctx, 5*time.Millisecond))
	assert.Assert(t, sign.IsAccepted())
	assert.NilError(t, sign.Verify(ctx))
}

func TestWaitForCallback(t *testing.T) {
	custodian, conn := setupCustodian(t)
	assetID, _ := custodian.AddAsset("callback")
	ctx := context.Background()

	sign, err := NewAsset(conn, assetID).Sign(ctx, []byte("data"), "", false)
	assert.NilError(t, err)

	t.Run("times out without callback", func(t *testing.T) {
		custodian.Accept(sign.ID())

		ctx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
		defer cancel()

		err := sign.WaitForCallback(ctx, 5*time.Millisecond)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, sign.State(), StateCreated)
	})

	t.Run("callback updates the cache", func(t *testing.T) {
		handler := NewCallbackHandler(conn.Cache(), nil)
		_, err := handler.Handle(ctx, custodian.CallbackPayload(sign.ID()))
		assert.NilError(t, err)

		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		assert.NilError(t, sign.WaitForCallback(ctx, 5*time.Millisecond))
		assert.Equal(t, sign.State(), StateAccepted)
	})

	t.Run("terminal returns at once", func(t *testing.T) {
		calls := custodian.Calls()
		assert.NilError(t, sign.WaitForCallback(ctx, time.Hour))
		assert.Equal(t, custodian.Calls(), calls)
	})
}

func TestTracker(t *testing.T) {
	tracker := NewTracker()
	r := submittedRequest(t)
	tracker.Track(r)
	assert.Equal(t, tracker.Len(), 1)

	found, err := tracker.Dispatch(&api.Object{Kind: api.KindDecrypt, UUID: requestID, StatusCode: 2})
	assert.NilError(t, err)
	assert.Assert(t, !found)

	assert.Equal(t, tracker.Prune(), 0)

	obj := signObject(custodytest.StatusExpired)
	obj.UUID = "1B4E28BA-2FA1-11D2-883F-0016D3CCA427"
	found, err = tracker.Dispatch(obj)
	assert.NilError(t, err)
	assert.Assert(t, found)
	assert.Equal(t, r.State(), StateExpired)

	found, err = tracker.Dispatch(signObject(custodytest.StatusAccepted))
	assert.Assert(t, found)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	assert.Equal(t, tracker.Prune(), 1)
	assert.Equal(t, tracker.Len(), 0)
}
