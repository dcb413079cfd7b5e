package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestErrorStatusCode(t *testing.T) {
	t.Run("nil error returns 0", func(t *testing.T) {
		assert.Equal(t, ErrorStatusCode(nil), int32(0))
	})

	t.Run("other errors return 0", func(t *testing.T) {
		assert.Equal(t, ErrorStatusCode(fmt.Errorf("other error")), int32(0))
	})

	t.Run("from wrapped error", func(t *testing.T) {
		err := fmt.Errorf("with some wrapping: %w",
			Error{Code: int32(http.StatusInternalServerError)})

		actual := ErrorStatusCode(err)
		assert.Equal(t, actual, int32(http.StatusInternalServerError))
	})
}

type recordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, <-chan recordedRequest) {
	t.Helper()

	requestCh := make(chan recordedRequest, 5)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requestCh <- recordedRequest{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone(), Body: body}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	return srv, requestCh
}

func TestClient_Create(t *testing.T) {
	id := uuid.NewString()

	srv, requestCh := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"result": {"type": "sign", "uuid": %q, "status_code": 1, "status_text": "created", "fingerprint": "aa"}}`, id)
	})

	var observed []int
	c := Client{
		URL:    srv.URL + "/api/",
		APIKey: "the-api-key",
		ObserveResponse: func(method, path string, status int) {
			observed = append(observed, status)
		},
	}

	obj, err := c.Create(context.Background(), KindSign, &CreateSignRequest{
		AssetUUID:   "asset-id",
		Notify:      true,
		Fingerprint: "aa",
	})
	assert.NilError(t, err)

	expected := &Object{
		Kind:        KindSign,
		UUID:        id,
		StatusCode:  1,
		StatusText:  "created",
		Fingerprint: "aa",
	}
	assert.DeepEqual(t, obj, expected)
	assert.DeepEqual(t, observed, []int{http.StatusOK})

	req := <-requestCh
	assert.Equal(t, req.Method, http.MethodPost)
	assert.Equal(t, req.Path, "/api/sign")
	assert.Equal(t, req.Header.Get("Accept"), MediaType)
	assert.Equal(t, req.Header.Get("Content-Type"), "application/json")
	assert.Equal(t, req.Header.Get("X-Api-Key"), "the-api-key")

	var body map[string]interface{}
	assert.NilError(t, json.Unmarshal(req.Body, &body))
	assert.DeepEqual(t, body, map[string]interface{}{
		"asset_uuid":   "asset-id",
		"resource_uri": "",
		"notify":       true,
		"fingerprint":  "aa",
	})
}

func TestClient_Fetch(t *testing.T) {
	id := uuid.NewString()

	srv, requestCh := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/asset/" + id:
			fmt.Fprintf(w, `{"result": {"type": "asset", "uuid": %q, "public_key": "pem", "created_at": "2019-03-01T10:11:12.123456+01:00"}}`, id)
		case "/asset/missing":
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"errors": ["asset not found"]}`)
		case "/asset/broken":
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `<html>bad gateway</html>`)
		case "/asset/noresult":
			fmt.Fprint(w, `{}`)
		case "/asset/nojson":
			fmt.Fprint(w, `not json`)
		}
	})

	c := Client{URL: srv.URL}

	t.Run("success", func(t *testing.T) {
		obj, err := c.Fetch(context.Background(), KindAsset, id)
		assert.NilError(t, err)
		assert.Equal(t, obj.Kind, KindAsset)
		assert.Equal(t, obj.PublicKey, "pem")
		assert.Equal(t, obj.CreatedAt.Nanosecond(), 123456000)

		req := <-requestCh
		assert.Equal(t, req.Method, http.MethodGet)
		assert.Equal(t, req.Header.Get("X-Api-Key"), "")
		assert.Equal(t, req.Header.Get("Content-Type"), "")
		assert.Assert(t, is.Len(req.Body, 0))
	})

	t.Run("errors envelope", func(t *testing.T) {
		_, err := c.Fetch(context.Background(), KindAsset, "missing")
		<-requestCh

		var apiError Error
		assert.Assert(t, errors.As(err, &apiError))
		assert.Equal(t, apiError.Code, int32(http.StatusNotFound))
		assert.Equal(t, apiError.Path, "/asset/missing")
		assert.DeepEqual(t, apiError.Details, []string{"asset not found"})
		assert.ErrorContains(t, err, "GET /asset/missing responded 404: api returned error(s): asset not found")
	})

	t.Run("error status without json", func(t *testing.T) {
		_, err := c.Fetch(context.Background(), KindAsset, "broken")
		<-requestCh

		assert.Equal(t, ErrorStatusCode(err), int32(http.StatusBadGateway))
		assert.ErrorContains(t, err, "<html>bad gateway</html>")
	})

	t.Run("no result", func(t *testing.T) {
		_, err := c.Fetch(context.Background(), KindAsset, "noresult")
		<-requestCh

		var decodeErr *DecodeError
		assert.Assert(t, errors.As(err, &decodeErr))
		assert.Equal(t, decodeErr.Field, "result")
	})

	t.Run("not json", func(t *testing.T) {
		_, err := c.Fetch(context.Background(), KindAsset, "nojson")
		<-requestCh

		var decodeErr *DecodeError
		assert.Assert(t, errors.As(err, &decodeErr))
		assert.ErrorContains(t, err, `partial text: "not json"`)
	})
}

func TestClient_ValidateDomain(t *testing.T) {
	srv, requestCh := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result": {"success": true}}`)
	})

	c := Client{URL: srv.URL, APIKey: "key"}

	ok, err := c.ValidateDomain(context.Background())
	assert.NilError(t, err)
	assert.Assert(t, ok)

	req := <-requestCh
	assert.Equal(t, req.Path, "/serviceprovider/validatedomain")
	assert.Equal(t, string(req.Body), "{}")
}

func TestClient_Headers(t *testing.T) {
	srv, requestCh := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result": {"pong": true}}`)
	})

	c := Client{URL: srv.URL, Headers: http.Header{"User-Agent": []string{"custody/1.0.0"}}}
	assert.NilError(t, c.Ping(context.Background()))

	req := <-requestCh
	assert.Equal(t, req.Path, "/ping")
	assert.Equal(t, req.Header.Get("User-Agent"), "custody/1.0.0")
}

func TestClient_ContextCancelled(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Client{URL: srv.URL}.Fetch(ctx, KindAsset, "any")
	assert.ErrorIs(t, err, context.Canceled)
}
