package logging

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"
)

const invalidHeaderValue = "invalid header field value"

// FilteredHTTPLogger is the error log of the receiver's HTTP servers. net/http
// quotes the rejected value in "invalid header field value" errors, which may
// be an api key, so the value is removed before the line is logged.
type FilteredHTTPLogger struct {
	zerolog.Logger
}

func NewFilteredHTTPLogger() *FilteredHTTPLogger {
	return &FilteredHTTPLogger{L.With().Logger()}
}

func (l FilteredHTTPLogger) Write(b []byte) (int, error) {
	if !bytes.Contains(b, []byte(invalidHeaderValue)) {
		return l.Logger.Write(b)
	}

	if b[0] != '{' {
		return l.Logger.Write([]byte(redactHeaderValue(string(b))))
	}

	m := map[string]interface{}{}
	if err := json.Unmarshal(b, &m); err != nil {
		// the value can not be found, drop the line
		return 0, nil // nolint
	}
	for key, v := range m {
		if s, ok := v.(string); ok {
			m[key] = redactHeaderValue(s)
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return 0, nil // nolint
	}
	return l.Logger.Write(out)
}

// redactHeaderValue removes the quoted value that follows
// "invalid header field value", and keeps the name of the header.
func redactHeaderValue(s string) string {
	idx := strings.Index(s, invalidHeaderValue)
	if idx < 0 {
		return s
	}

	end := idx + len(invalidHeaderValue)
	if forKey := strings.Index(s[end:], " for key"); forKey >= 0 {
		return s[:end] + s[end+forKey:]
	}
	return s[:end]
}
