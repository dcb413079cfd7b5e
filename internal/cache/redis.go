package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/infrahq/custody/api"
	"github.com/infrahq/custody/internal/logging"
)

const DefaultTTL = 24 * time.Hour

// Redis is a Store shared by every process connected to the same server.
// Objects are stored as JSON and expire after TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	// Options are the query parameters of a redis:// URL, for example
	// "db=2&dial_timeout=3s".
	Options string
	TTL     time.Duration
	Prefix  string
}

func NewRedis(options Options) (*Redis, error) {
	if options.Host == "" {
		return nil, errors.New("redis host is required")
	}

	redisOptions, err := redis.ParseURL(fmt.Sprintf("redis://%s:%d?%s", options.Host, options.Port, options.Options))
	if err != nil {
		return nil, fmt.Errorf("invalid redis options: %w", err)
	}

	redisOptions.Username = options.Username
	redisOptions.Password = options.Password

	r := &Redis{
		client: redis.NewClient(redisOptions),
		ttl:    options.TTL,
		prefix: options.Prefix,
	}

	if r.ttl == 0 {
		r.ttl = DefaultTTL
	}

	if r.prefix == "" {
		r.prefix = "custody"
	}

	return r, nil
}

func (r *Redis) key(kind api.Kind, id string) string {
	return fmt.Sprintf("%s:object:%s:%s", r.prefix, kind, id)
}

func (r *Redis) Read(ctx context.Context, kind api.Kind, id string) (*api.Object, error) {
	data, err := r.client.Get(ctx, r.key(kind, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var obj api.Object
	if err := json.Unmarshal(data, &obj); err != nil {
		// a corrupt entry is treated as a miss so the object is fetched again
		logging.Warnf("discarding unreadable cache entry %s: %v", r.key(kind, id), err)
		return nil, ErrMiss
	}

	return &obj, nil
}

func (r *Redis) Write(ctx context.Context, obj *api.Object) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("marshal object: %w", err)
	}

	if err := r.client.Set(ctx, r.key(obj.Kind, obj.UUID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
