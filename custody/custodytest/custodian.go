// Package custodytest provides a custodian API server for tests. It holds the
// private keys of its assets and answers requests the way a device would
// once its owner approves them.
package custodytest

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/infrahq/custody/api"
	"github.com/infrahq/custody/pki"
)

// Status codes of asset requests.
const (
	StatusCreated  = 1
	StatusAccepted = 2
	StatusRejected = 3
	StatusExpired  = 4
	StatusFailed   = 5
)

type asset struct {
	key *rsa.PrivateKey
	obj api.Object
}

type request struct {
	obj        api.Object
	cipherData []byte
	cipherKey  []byte
}

type Custodian struct {
	t      testing.TB
	server *httptest.Server

	mu       sync.Mutex
	apiKey   string
	assets   map[string]*asset
	requests map[string]*request
	order    []string
	others   map[string]api.Object
	calls    int
}

// New starts a custodian that is stopped when the test ends. When apiKey is
// not empty, every request except the creation of a service provider must
// carry it.
func New(t testing.TB, apiKey string) *Custodian {
	t.Helper()
	gin.SetMode(gin.TestMode)

	c := &Custodian{
		t:        t,
		apiKey:   apiKey,
		assets:   make(map[string]*asset),
		requests: make(map[string]*request),
		others:   make(map[string]api.Object),
	}

	router := gin.New()
	router.Use(c.count, c.authenticate)
	router.POST("/:kind", c.create)
	router.POST("/:kind/:action", c.action)
	router.GET("/:kind", c.ping)
	router.GET("/:kind/:id", c.fetch)

	c.server = httptest.NewServer(router)
	t.Cleanup(c.server.Close)

	return c
}

func (c *Custodian) URL() string {
	return c.server.URL
}

// Calls is the number of requests received.
func (c *Custodian) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Requests returns the ids of the asset requests received, oldest first.
func (c *Custodian) Requests() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// AddAsset creates an active asset with a new 2048 bit key.
func (c *Custodian) AddAsset(name string) (string, *rsa.PrivateKey) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		c.t.Fatalf("generate key: %v", err)
	}

	return c.AddAssetWithKey(name, key), key
}

// AddAssetWithKey creates an active asset that uses key.
func (c *Custodian) AddAssetWithKey(name string, key *rsa.PrivateKey) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := uuid.NewString()
	now := time.Now().UTC()
	c.assets[id] = &asset{
		key: key,
		obj: api.Object{
			Kind:       api.KindAsset,
			UUID:       id,
			Name:       name,
			StatusCode: 1,
			StatusText: "active",
			PublicKey:  string(pki.NewPublicKey(&key.PublicKey).MarshalPEM()),
			CreatedAt:  now,
			UpdatedAt:  now,
		},
	}
	return id
}

// Object returns the current state of the object with id.
func (c *Custodian) Object(id string) api.Object {
	c.mu.Lock()
	defer c.mu.Unlock()

	obj, ok := c.lookup(id)
	if !ok {
		c.t.Fatalf("no object %s", id)
	}
	return obj
}

func (c *Custodian) lookup(id string) (api.Object, bool) {
	if r, ok := c.requests[id]; ok {
		return r.obj, true
	}
	if a, ok := c.assets[id]; ok {
		return a.obj, true
	}
	obj, ok := c.others[id]
	return obj, ok
}

// Accept approves the request with id. Sign and authenticate requests are
// signed, decrypt requests are decrypted and sealed with the transport key.
// A decrypt request that can not be decrypted fails instead.
func (c *Custodian) Accept(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.request(id)
	a := c.assets[r.obj.AssetUUID]

	switch r.obj.Kind {
	case api.KindSign, api.KindAuthenticate:
		fingerprint, err := hex.DecodeString(r.obj.Fingerprint)
		if err != nil {
			c.t.Fatalf("fingerprint of %s: %v", id, err)
		}

		signature, err := rsa.SignPKCS1v15(rand.Reader, a.key, crypto.SHA256, fingerprint)
		if err != nil {
			c.t.Fatalf("sign %s: %v", id, err)
		}

		r.obj.Signature = hex.EncodeToString(signature)
	case api.KindDecrypt:
		sealed, err := decrypt(a.key, r.cipherKey, r.cipherData)
		if err != nil {
			c.setStatus(r, StatusFailed, err.Error())
			return
		}

		r.obj.Signature = hex.EncodeToString(sealed)
	}

	c.setStatus(r, StatusAccepted, "accepted")
}

// decrypt does what the device does with a decrypt request.
func decrypt(key *rsa.PrivateKey, cipherKey, cipherData []byte) ([]byte, error) {
	der, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, key, cipherKey, nil)
	if err != nil {
		return nil, fmt.Errorf("unwrap transport key: %w", err)
	}

	transportKey, err := pki.ParseTransportKey(der)
	if err != nil {
		return nil, err
	}
	defer transportKey.Zero()

	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, key, cipherData, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt data: %w", err)
	}

	return transportKey.Seal(plaintext)
}

// SetStatus moves the request with id to status without producing a result.
func (c *Custodian) SetStatus(id string, status int, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setStatus(c.request(id), status, text)
}

// SetResult replaces the result of the request with id.
func (c *Custodian) SetResult(id string, result []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.request(id)
	r.obj.Signature = hex.EncodeToString(result)
}

func (c *Custodian) setStatus(r *request, status int, text string) {
	r.obj.StatusCode = status
	r.obj.StatusText = text
	r.obj.UpdatedAt = time.Now().UTC()
}

func (c *Custodian) request(id string) *request {
	r, ok := c.requests[id]
	if !ok {
		c.t.Fatalf("no request %s", id)
	}
	return r
}

// NotificationPayload is the body the API posts to a notification URL for
// the object with id.
func (c *Custodian) NotificationPayload(id string) []byte {
	obj := c.Object(id)
	return c.marshal(api.NotificationPayload{Notification: &api.Notification{Kind: obj.Kind, UUID: obj.UUID}})
}

// CallbackPayload is the body the API posts to a callback URL for the object
// with id.
func (c *Custodian) CallbackPayload(id string) []byte {
	obj := c.Object(id)
	return c.marshal(map[string]interface{}{"callback": obj})
}

func (c *Custodian) marshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		c.t.Fatalf("marshal: %v", err)
	}
	return b
}

func (c *Custodian) count(ctx *gin.Context) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *Custodian) authenticate(ctx *gin.Context) {
	if c.apiKey == "" {
		return
	}

	if ctx.Request.Method == http.MethodPost && ctx.Request.URL.Path == "/serviceprovider" {
		return
	}

	if ctx.GetHeader("X-Api-Key") != c.apiKey {
		fail(ctx, http.StatusUnauthorized, "invalid api key")
		ctx.Abort()
	}
}

func fail(ctx *gin.Context, status int, format string, args ...interface{}) {
	ctx.JSON(status, gin.H{"errors": []string{fmt.Sprintf(format, args...)}})
}

func respond(ctx *gin.Context, result interface{}) {
	ctx.JSON(http.StatusOK, gin.H{"result": result})
}

type createRequest struct {
	AssetUUID   string `json:"asset_uuid"`
	Notify      bool   `json:"notify"`
	Fingerprint string `json:"fingerprint"`
	ResourceURI string `json:"resource_uri"`
	CipherData  string `json:"cipher_data"`
	CipherKey   string `json:"cipher_key"`

	Name        string `json:"name"`
	Template    string `json:"template"`
	URL         string `json:"url"`
	CallbackURL string `json:"callback_url"`
}

func (c *Custodian) create(ctx *gin.Context) {
	var req createRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		fail(ctx, http.StatusBadRequest, "invalid body: %v", err)
		return
	}

	now := time.Now().UTC()
	obj := api.Object{
		Kind:       api.Kind(ctx.Param("kind")),
		UUID:       uuid.NewString(),
		StatusCode: StatusCreated,
		StatusText: "created",
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch obj.Kind {
	case api.KindSign, api.KindAuthenticate, api.KindDecrypt:
		if _, ok := c.assets[req.AssetUUID]; !ok {
			fail(ctx, http.StatusNotFound, "asset %q not found", req.AssetUUID)
			return
		}

		obj.AssetUUID = req.AssetUUID
		obj.Notify = req.Notify
		obj.Nonce = "123456789"
		obj.NonceFormatted = "123 456 789"

		r := &request{obj: obj}

		if obj.Kind == api.KindDecrypt {
			var err error
			if r.cipherData, err = hex.DecodeString(req.CipherData); err != nil {
				fail(ctx, http.StatusBadRequest, "cipher_data: %v", err)
				return
			}
			if r.cipherKey, err = hex.DecodeString(req.CipherKey); err != nil {
				fail(ctx, http.StatusBadRequest, "cipher_key: %v", err)
				return
			}
		} else {
			fingerprint, err := hex.DecodeString(req.Fingerprint)
			if err != nil || len(fingerprint) != sha256.Size {
				fail(ctx, http.StatusBadRequest, "fingerprint must be a hex encoded sha256 digest")
				return
			}
			r.obj.Fingerprint = req.Fingerprint
			r.obj.ResourceURI = req.ResourceURI
		}

		c.requests[obj.UUID] = r
		c.order = append(c.order, obj.UUID)
		respond(ctx, r.obj)

	case api.KindIdentification:
		obj.StatusCode = 0
		obj.Nonce = "987654321"
		obj.NonceFormatted = "987 654 321"
		obj.AppAPI = "uqfree://identification/" + obj.UUID
		obj.QRCode = base64.StdEncoding.EncodeToString([]byte("\x89PNG\r\n\x1a\n"))
		c.others[obj.UUID] = obj
		respond(ctx, obj)

	case api.KindServiceProvider:
		if req.Name == "" {
			fail(ctx, http.StatusBadRequest, "name is required")
			return
		}

		obj.StatusCode = 0
		obj.Name = req.Name
		obj.CallbackURL = req.CallbackURL
		obj.Nonce = "111222333"
		obj.NonceFormatted = "111 222 333"
		obj.DomainChallenge = "challenge-" + obj.UUID
		obj.DomainChallengeURL = req.URL + "/.well-known/uqfree"

		// the key is only returned in the create response
		stored := obj
		c.apiKey = "key-" + obj.UUID
		obj.APIKey = c.apiKey
		c.others[obj.UUID] = stored
		respond(ctx, obj)

	default:
		fail(ctx, http.StatusNotFound, "unknown object type %q", obj.Kind)
	}
}

func (c *Custodian) action(ctx *gin.Context) {
	if ctx.Param("kind") != "serviceprovider" || ctx.Param("action") != "validatedomain" {
		fail(ctx, http.StatusNotFound, "not found")
		return
	}

	respond(ctx, api.ValidateDomainResponse{Success: true})
}

func (c *Custodian) ping(ctx *gin.Context) {
	if ctx.Param("kind") != "ping" {
		fail(ctx, http.StatusNotFound, "not found")
		return
	}

	respond(ctx, gin.H{"pong": true})
}

func (c *Custodian) fetch(ctx *gin.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	obj, ok := c.lookup(ctx.Param("id"))
	if !ok || string(obj.Kind) != ctx.Param("kind") {
		fail(ctx, http.StatusNotFound, "%s %q not found", ctx.Param("kind"), ctx.Param("id"))
		return
	}

	respond(ctx, obj)
}
