// Package cache stores the last known state of remote objects, keyed by kind
// and uuid. A Store is shared between the code that creates and polls
// objects and the receivers of pushed callbacks.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/infrahq/custody/api"
)

// ErrMiss is returned by Read when no object is stored under the key.
var ErrMiss = errors.New("cache miss")

type Store interface {
	Read(ctx context.Context, kind api.Kind, id string) (*api.Object, error)
	Write(ctx context.Context, obj *api.Object) error
}

type key struct {
	kind api.Kind
	id   string
}

// Memory is a Store for a single process. Entries expire after a TTL, the
// same as with Redis, and expired entries are removed on a later Write.
type Memory struct {
	mu        sync.RWMutex
	objects   map[key]entry
	ttl       time.Duration
	nextSweep time.Time
	now       func() time.Time
}

type entry struct {
	obj     api.Object
	expires time.Time
}

// NewMemory returns a Memory store with DefaultTTL.
func NewMemory() *Memory {
	return NewMemoryWithTTL(DefaultTTL)
}

// NewMemoryWithTTL returns a Memory store whose entries expire after ttl. A
// zero ttl uses DefaultTTL.
func NewMemoryWithTTL(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		objects: make(map[key]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *Memory) Read(_ context.Context, kind api.Kind, id string) (*api.Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.objects[key{kind: kind, id: id}]
	if !ok || !m.now().Before(e.expires) {
		return nil, ErrMiss
	}

	obj := e.obj
	return &obj, nil
}

func (m *Memory) Write(_ context.Context, obj *api.Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.After(m.nextSweep) {
		for k, e := range m.objects {
			if !now.Before(e.expires) {
				delete(m.objects, k)
			}
		}
		m.nextSweep = now.Add(m.ttl)
	}

	m.objects[key{kind: obj.Kind, id: obj.UUID}] = entry{obj: *obj, expires: now.Add(m.ttl)}
	return nil
}

// Len returns the number of stored entries, including expired entries that
// were not removed yet.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.objects)
}
