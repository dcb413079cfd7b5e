package custody

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/infrahq/custody/api"
	"github.com/infrahq/custody/internal/logging"
	"github.com/infrahq/custody/internal/repeat"
	"github.com/infrahq/custody/metrics"
)

// State is the outcome of an asset request. The numeric values are the
// status codes used by the API.
type State int

const (
	StatePrepared State = iota
	StateCreated
	StateAccepted
	StateRejected
	StateExpired
	StateFailed
)

var stateNames = [...]string{"prepared", "created", "accepted", "rejected", "expired", "failed"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// IsTerminal is true for the states a request can never leave.
func (s State) IsTerminal() bool {
	return s >= StateAccepted && s <= StateFailed
}

func stateFromCode(kind api.Kind, code int) (State, error) {
	s := State(code)
	if s < StatePrepared || s > StateFailed {
		return 0, &api.DecodeError{Kind: kind, Field: "status_code", Reason: fmt.Sprintf("unknown status code %d", code)}
	}
	return s, nil
}

func canTransition(from, to State) bool {
	switch {
	case from == StatePrepared:
		// the first response may already carry a final outcome
		return true
	case from == StateCreated:
		return to != StatePrepared
	default:
		return from == to
	}
}

// Request is the state shared by every request that needs approval on the
// custodian device: authenticate, sign and decrypt.
//
// A Request starts Prepared, becomes Created when it is submitted, and ends
// in one of the terminal states once the outcome is observed, by fetching
// or from a pushed notification or callback. All of those paths go through
// Apply.
type Request struct {
	transport Transport
	kind      api.Kind

	mu             sync.Mutex
	id             string
	assetID        string
	state          State
	statusText     string
	result         []byte
	nonce          string
	nonceFormatted string
	fingerprint    []byte
	notify         bool
	createdAt      time.Time
	updatedAt      time.Time
}

func newRequest(t Transport, kind api.Kind, assetID string, notify bool) *Request {
	return &Request{
		transport: t,
		kind:      kind,
		assetID:   assetID,
		notify:    notify,
	}
}

// resumeRequest returns a request that was submitted earlier, possibly by
// another process. Its state is refreshed on the next Fetch or Apply.
func resumeRequest(t Transport, kind api.Kind, id, assetID string) *Request {
	r := newRequest(t, kind, assetID, false)
	r.id = id
	r.state = StateCreated
	return r
}

// create submits payload and applies the response. A request that fails to
// submit stays Prepared.
func (r *Request) create(ctx context.Context, payload interface{}) error {
	r.mu.Lock()
	state := r.state
	r.mu.Unlock()

	if state != StatePrepared {
		return fmt.Errorf("%w: can not submit %s request in state %s", ErrInvalidTransition, r.kind, state)
	}

	obj, err := r.transport.Create(ctx, r.kind, payload)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.apply(obj); err != nil {
		return err
	}

	logging.Debugf("submitted %s request %s for asset %s", r.kind, r.id, r.assetID)
	return nil
}

// Apply updates the request from an object received from the API. It is
// idempotent: applying the same object twice has the same effect as applying
// it once. A request in a terminal state accepts the same state again and
// returns ErrInvalidTransition for any other state, leaving the request as
// it was.
func (r *Request) Apply(obj *api.Object) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StatePrepared {
		return fmt.Errorf("%w: %s request has not been submitted", ErrInvalidTransition, r.kind)
	}

	return r.apply(obj)
}

func (r *Request) apply(obj *api.Object) error {
	if obj.Kind != r.kind {
		return fmt.Errorf("%w: %s object applied to %s request", ErrObjectMismatch, obj.Kind, r.kind)
	}

	if r.id != "" && !strings.EqualFold(obj.UUID, r.id) {
		return fmt.Errorf("%w: object %s applied to request %s", ErrObjectMismatch, obj.UUID, r.id)
	}

	next, err := stateFromCode(obj.Kind, obj.StatusCode)
	if err != nil {
		return err
	}

	// once submitted, a request the API still reports as prepared is pending
	if next == StatePrepared {
		next = StateCreated
	}

	if !canTransition(r.state, next) {
		return fmt.Errorf("%w: %s request %s is %s, received %s", ErrInvalidTransition, r.kind, r.id, r.state, next)
	}

	if r.state.IsTerminal() {
		return nil
	}

	var result []byte
	if obj.Signature != "" {
		result, err = hex.DecodeString(obj.Signature)
		if err != nil {
			return &api.DecodeError{Kind: obj.Kind, Field: "signature", Reason: "not hex encoded", Err: err}
		}
	}

	r.id = obj.UUID
	r.state = next
	r.statusText = obj.StatusText
	r.result = result
	r.nonce = obj.Nonce
	r.nonceFormatted = obj.NonceFormatted
	r.createdAt = obj.CreatedAt
	r.updatedAt = obj.UpdatedAt

	if obj.AssetUUID != "" {
		r.assetID = obj.AssetUUID
	}

	if next.IsTerminal() {
		logging.Infof("%s request %s is %s", r.kind, r.id, next)
		metrics.ObserveOutcome(string(r.kind), next.String())
	}

	return nil
}

// Fetch reads the request from the API, bypassing the cache.
func (r *Request) Fetch(ctx context.Context) error {
	return r.refresh(ctx, true)
}

// Refresh reads the request through the cache, which receives the state
// pushed by callbacks.
func (r *Request) Refresh(ctx context.Context) error {
	return r.refresh(ctx, false)
}

func (r *Request) refresh(ctx context.Context, force bool) error {
	id := r.ID()
	if id == "" {
		return fmt.Errorf("%w: %s request has not been submitted", ErrNotReady, r.kind)
	}

	obj, err := r.transport.Fetch(ctx, r.kind, id, force)
	if err != nil {
		return err
	}

	return r.Apply(obj)
}

// DebugPollForResponse fetches the request every interval until it reaches
// a terminal state or ctx is done. It is meant for local debugging.
// Production code should receive notifications or callbacks instead.
func (r *Request) DebugPollForResponse(ctx context.Context, interval time.Duration) error {
	return r.waitFor(ctx, interval, true)
}

// WaitForCallback rereads the request through the cache every interval
// until it reaches a terminal state or ctx is done. The cache has to be
// shared with the receiver of callbacks.
func (r *Request) WaitForCallback(ctx context.Context, interval time.Duration) error {
	return r.waitFor(ctx, interval, false)
}

func (r *Request) waitFor(ctx context.Context, interval time.Duration, force bool) error {
	if r.IsTerminal() {
		return nil
	}

	return repeat.Until(ctx, repeat.NewFixedWaiter(interval, 0), func(ctx context.Context) (bool, error) {
		if err := r.refresh(ctx, force); err != nil {
			return false, err
		}

		if r.IsTerminal() {
			return true, nil
		}

		logging.Infof("waiting for response on %s request %s (state %s: %q)", r.kind, r.ID(), r.State(), r.StatusText())
		return false, nil
	})
}

func (r *Request) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

func (r *Request) Kind() api.Kind {
	return r.kind
}

func (r *Request) AssetID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.assetID
}

func (r *Request) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// StatusText is the description of the state given by the API.
func (r *Request) StatusText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusText
}

// IsAccepted is true only once the request was approved on the device.
func (r *Request) IsAccepted() bool {
	return r.State() == StateAccepted
}

func (r *Request) IsTerminal() bool {
	return r.State().IsTerminal()
}

// Nonce is shown on the device so the user can match the prompt to the
// request.
func (r *Request) Nonce() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nonce
}

func (r *Request) NonceFormatted() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nonceFormatted
}

func (r *Request) Notify() bool {
	return r.notify
}

func (r *Request) CreatedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createdAt
}

func (r *Request) UpdatedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updatedAt
}

// rawResult returns a copy of the bytes returned by the API. Their meaning
// depends on the kind of request.
func (r *Request) rawResult() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.result...)
}
