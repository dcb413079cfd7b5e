package custody

import (
	"strings"
	"sync"

	"github.com/infrahq/custody/api"
)

type trackerKey struct {
	kind api.Kind
	id   string
}

// Tracker routes objects received from notifications and callbacks to the
// requests that are waiting for them.
type Tracker struct {
	mu       sync.Mutex
	requests map[trackerKey]*Request
}

func NewTracker() *Tracker {
	return &Tracker{requests: make(map[trackerKey]*Request)}
}

// Track registers a submitted request.
func (t *Tracker) Track(r *Request) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.requests[trackerKey{kind: r.Kind(), id: strings.ToLower(r.ID())}] = r
}

// Dispatch applies obj to the tracked request it belongs to. It returns false
// when no request is waiting for obj.
func (t *Tracker) Dispatch(obj *api.Object) (bool, error) {
	t.mu.Lock()
	r, ok := t.requests[trackerKey{kind: obj.Kind, id: strings.ToLower(obj.UUID)}]
	t.mu.Unlock()

	if !ok {
		return false, nil
	}

	return true, r.Apply(obj)
}

// Prune stops tracking requests in a terminal state and returns how many
// were removed.
func (t *Tracker) Prune() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for k, r := range t.requests {
		if r.IsTerminal() {
			delete(t.requests, k)
			n++
		}
	}
	return n
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}
