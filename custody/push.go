package custody

import (
	"context"
	"errors"

	"github.com/infrahq/custody/api"
	"github.com/infrahq/custody/internal/cache"
	"github.com/infrahq/custody/internal/logging"
)

// NotificationHandler handles notifications pushed by the API. A
// notification only names an object, so the object is fetched.
type NotificationHandler struct {
	transport Transport
	tracker   *Tracker
}

// NewNotificationHandler returns a handler that fetches notified objects
// through t. tracker may be nil.
func NewNotificationHandler(t Transport, tracker *Tracker) *NotificationHandler {
	return &NotificationHandler{transport: t, tracker: tracker}
}

// Handle decodes a {"notification": {"type", "uuid"}} payload and returns
// the current state of the object it names.
func (h *NotificationHandler) Handle(ctx context.Context, body []byte) (*api.Object, error) {
	n, err := api.DecodeNotification(body)
	if err != nil {
		return nil, err
	}

	obj, err := h.transport.Fetch(ctx, n.Kind, n.UUID, true)
	if err != nil {
		return nil, err
	}

	dispatch(h.tracker, obj)
	return obj, nil
}

// CallbackHandler handles callbacks pushed by the API. A callback carries
// the complete object, which is written to the cache.
type CallbackHandler struct {
	cache   cache.Store
	tracker *Tracker
}

// NewCallbackHandler returns a handler that writes to store. tracker may be
// nil.
func NewCallbackHandler(store cache.Store, tracker *Tracker) *CallbackHandler {
	return &CallbackHandler{cache: store, tracker: tracker}
}

// Handle decodes a {"callback": {...}} payload, stores the object and
// returns it.
func (h *CallbackHandler) Handle(ctx context.Context, body []byte) (*api.Object, error) {
	obj, err := api.DecodeCallback(body)
	if err != nil {
		return nil, err
	}

	if err := h.cache.Write(ctx, obj); err != nil {
		return nil, err
	}

	dispatch(h.tracker, obj)
	return obj, nil
}

// dispatch applies obj to a tracked request. The object was received
// correctly, so a request that rejects it is logged and not reported.
func dispatch(tracker *Tracker, obj *api.Object) {
	if tracker == nil {
		return
	}

	found, err := tracker.Dispatch(obj)
	switch {
	case errors.Is(err, ErrInvalidTransition):
		logging.Warnf("ignoring pushed state for %s %s: %v", obj.Kind, obj.UUID, err)
	case err != nil:
		logging.Errorf("applying pushed state for %s %s: %v", obj.Kind, obj.UUID, err)
	case found:
		logging.Debugf("applied pushed state for %s %s", obj.Kind, obj.UUID)
	default:
		logging.Debugf("no request is waiting for %s %s", obj.Kind, obj.UUID)
	}
}
