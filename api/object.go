package api

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"

	"github.com/infrahq/custody/internal/logging"
)

// Object is any object returned by the custodian API. Fields that do not
// apply to a Kind are left empty.
type Object struct {
	Kind       Kind      `json:"type"`
	UUID       string    `json:"uuid"`
	Name       string    `json:"name,omitempty"`
	StatusCode int       `json:"status_code"`
	StatusText string    `json:"status_text,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// asset
	PublicKey string `json:"public_key,omitempty"`

	// authenticate, sign and decrypt
	AssetUUID      string `json:"asset_uuid,omitempty"`
	Token          string `json:"token,omitempty"`
	OTP            string `json:"otp,omitempty"`
	Verified       bool   `json:"verified,omitempty"`
	Fingerprint    string `json:"fingerprint,omitempty"`
	Signature      string `json:"signature,omitempty"`
	Nonce          string `json:"nonce,omitempty"`
	NonceFormatted string `json:"nonce_formatted,omitempty"`
	Notify         bool   `json:"notify,omitempty"`
	ResourceURI    string `json:"resource_uri,omitempty"`

	// identification
	AppAPI string `json:"appapi,omitempty"`
	QRCode string `json:"qrcode,omitempty"`

	// serviceprovider
	DomainChallenge    string `json:"domain_challenge,omitempty"`
	DomainChallengeURL string `json:"domain_challenge_url,omitempty"`
	DomainValidated    bool   `json:"domain_validated,omitempty"`
	CallbackURL        string `json:"callback_url,omitempty"`
	NotificationURL    string `json:"notification_url,omitempty"`
	AssetCount         int    `json:"asset_count,omitempty"`
	APIKey             string `json:"api_key,omitempty"`
}

// DecodeError is returned when a payload from the custodian, or pushed to a
// callback receiver, does not have the expected shape.
type DecodeError struct {
	Kind   Kind
	Field  string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := "decode"
	if e.Kind != "" {
		msg += " " + string(e.Kind)
	}
	if e.Field != "" {
		msg += fmt.Sprintf(" field %q", e.Field)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// UnmarshalObject decodes a JSON encoded object. See DecodeObject.
func UnmarshalObject(data []byte) (*Object, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &DecodeError{Reason: "invalid json", Err: err}
	}

	return DecodeObject(raw)
}

// DecodeObject decodes the generic form of an object. The type and uuid
// fields are required. Fields that Object does not know are logged and
// otherwise ignored.
func DecodeObject(raw map[string]interface{}) (*Object, error) {
	if raw == nil {
		return nil, &DecodeError{Reason: "expected an object"}
	}

	for _, field := range []string{"type", "uuid"} {
		v, ok := raw[field].(string)
		if !ok || v == "" {
			return nil, &DecodeError{Field: field, Reason: "required field is missing"}
		}
	}

	obj := &Object{}
	var md mapstructure.Metadata

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		Metadata:   &md,
		Result:     obj,
		TagName:    "json",
	})
	if err != nil {
		return nil, err
	}

	if err := decoder.Decode(raw); err != nil {
		return nil, &DecodeError{Kind: Kind(fmt.Sprint(raw["type"])), Reason: "malformed object", Err: err}
	}

	if _, err := uuid.Parse(obj.UUID); err != nil {
		return nil, &DecodeError{Kind: obj.Kind, Field: "uuid", Reason: "not a uuid", Err: err}
	}

	sort.Strings(md.Unused)
	for _, key := range md.Unused {
		logging.Warnf("received unknown property %q for %s from api", key, obj.Kind)
	}

	return obj, nil
}
