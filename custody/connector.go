package custody

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/infrahq/custody/api"
	"github.com/infrahq/custody/internal/cache"
	"github.com/infrahq/custody/internal/logging"
	"github.com/infrahq/custody/metrics"
)

// Transport creates and reads remote objects.
type Transport interface {
	// Create submits payload to the collection of kind.
	Create(ctx context.Context, kind api.Kind, payload interface{}) (*api.Object, error)
	// Fetch reads an object. Unless force is set a cached copy may be
	// returned.
	Fetch(ctx context.Context, kind api.Kind, id string, force bool) (*api.Object, error)
}

type ConnectorOptions struct {
	// URL of the API, api.DefaultURL when empty.
	URL    string
	APIKey string
	// Timeout of each HTTP request. Zero means no timeout.
	Timeout   time.Duration
	UserAgent string
	// Cache holds the last known state of every object read or created. A
	// new memory cache is used when nil.
	Cache cache.Store
}

// Connector is the Transport to the custodian API. Every object it receives
// is written to its cache, and non-forced fetches are served from the cache
// when possible.
type Connector struct {
	mu         sync.Mutex
	client     api.Client
	cache      cache.Store
	lastStatus int
}

var _ Transport = (*Connector)(nil)

func NewConnector(opts ConnectorOptions) *Connector {
	c := &Connector{cache: opts.Cache}
	if c.cache == nil {
		c.cache = cache.NewMemory()
	}

	c.client = api.Client{
		URL:             opts.URL,
		APIKey:          opts.APIKey,
		HTTP:            http.Client{Timeout: opts.Timeout},
		Headers:         http.Header{},
		ObserveResponse: c.observe,
	}

	if opts.UserAgent != "" {
		c.client.Headers.Set("User-Agent", opts.UserAgent)
	}

	return c
}

func (c *Connector) observe(method, path string, status int) {
	c.mu.Lock()
	c.lastStatus = status
	c.mu.Unlock()

	kind := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 2)[0]
	metrics.ObserveAPIResponse(method, kind, status)
}

func (c *Connector) api() api.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.client
}

// SetAPIKey changes the key sent with every following request. An empty key
// removes it.
func (c *Connector) SetAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.client.APIKey = key
}

// LastStatus is the HTTP status of the last response, or 0 when no response
// was received yet.
func (c *Connector) LastStatus() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastStatus
}

// Cache returns the store the connector reads from and writes to.
func (c *Connector) Cache() cache.Store {
	return c.cache
}

func (c *Connector) Create(ctx context.Context, kind api.Kind, payload interface{}) (*api.Object, error) {
	obj, err := c.api().Create(ctx, kind, payload)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", kind, err)
	}

	if obj.Kind != kind {
		return nil, &api.DecodeError{Kind: obj.Kind, Field: "type", Reason: fmt.Sprintf("created %s, expected %s", obj.Kind, kind)}
	}

	c.store(ctx, obj)
	return obj, nil
}

func (c *Connector) Fetch(ctx context.Context, kind api.Kind, id string, force bool) (*api.Object, error) {
	if !force {
		obj, err := c.cache.Read(ctx, kind, id)
		switch {
		case err == nil:
			logging.Debugf("cache hit for %s %s", kind, id)
			return obj, nil
		case errors.Is(err, cache.ErrMiss):
		default:
			logging.Warnf("cache read for %s %s: %v", kind, id, err)
		}
	}

	obj, err := c.api().Fetch(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", kind, id, err)
	}

	if obj.Kind != kind || !strings.EqualFold(obj.UUID, id) {
		return nil, &api.DecodeError{
			Kind:   obj.Kind,
			Field:  "uuid",
			Reason: fmt.Sprintf("received %s %s, expected %s %s", obj.Kind, obj.UUID, kind, id),
		}
	}

	c.store(ctx, obj)
	return obj, nil
}

// store writes obj to the cache. The cache only saves round trips, so a
// failed write is logged and otherwise ignored.
func (c *Connector) store(ctx context.Context, obj *api.Object) {
	if err := c.cache.Write(ctx, obj); err != nil {
		logging.Warnf("cache write for %s %s: %v", obj.Kind, obj.UUID, err)
	}
}

// ValidateDomain asks the custodian to validate the domain of the service
// provider that owns the API key.
func (c *Connector) ValidateDomain(ctx context.Context) (bool, error) {
	ok, err := c.api().ValidateDomain(ctx)
	if err != nil {
		return false, fmt.Errorf("validate domain: %w", err)
	}
	return ok, nil
}

// Ping checks that the API is reachable and accepts the API key.
func (c *Connector) Ping(ctx context.Context) error {
	if err := c.api().Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}
