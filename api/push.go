package api

import (
	"encoding/json"
)

// Notification announces that the object of Kind with UUID has changed. It
// carries no state, the object has to be fetched.
type Notification struct {
	Kind Kind   `json:"type"`
	UUID string `json:"uuid"`
}

type NotificationPayload struct {
	Notification *Notification `json:"notification"`
}

type CallbackPayload struct {
	Callback map[string]interface{} `json:"callback"`
}

// DecodeNotification reads a {"notification": {"type", "uuid"}} payload.
func DecodeNotification(body []byte) (*Notification, error) {
	var payload NotificationPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &DecodeError{Reason: "cannot decode notification payload", Err: err}
	}

	n := payload.Notification
	switch {
	case n == nil:
		return nil, &DecodeError{Field: "notification", Reason: "no notification object in payload"}
	case n.Kind == "":
		return nil, &DecodeError{Field: "type", Reason: "expected property in notification"}
	case n.UUID == "":
		return nil, &DecodeError{Field: "uuid", Reason: "expected property in notification"}
	}

	if _, err := ParseKind(string(n.Kind)); err != nil {
		return nil, &DecodeError{Field: "type", Reason: "unsupported object type", Err: err}
	}

	return n, nil
}

// DecodeCallback reads a {"callback": {...}} payload. The callback carries
// the complete object.
func DecodeCallback(body []byte) (*Object, error) {
	var payload CallbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &DecodeError{Reason: "cannot decode callback payload", Err: err}
	}

	if payload.Callback == nil {
		return nil, &DecodeError{Field: "callback", Reason: "no callback object in payload"}
	}

	return DecodeObject(payload.Callback)
}
