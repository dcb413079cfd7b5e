package secrets

import (
	"encoding/base64"
	"fmt"
)

// GenericConfig describes how a stored secret is encoded.
type GenericConfig struct {
	Base64           bool `yaml:"base64"`
	Base64URLEncoded bool `yaml:"base64UrlEncoded"`
	Base64Raw        bool `yaml:"base64Raw"`
}

func (c GenericConfig) encoder() *base64.Encoding {
	switch {
	case c.Base64URLEncoded && c.Base64Raw:
		return base64.RawURLEncoding
	case c.Base64URLEncoded:
		return base64.URLEncoding
	case c.Base64Raw:
		return base64.RawStdEncoding
	default:
		return base64.StdEncoding
	}
}

// decode returns the secret stored as b.
func (c GenericConfig) decode(b []byte) ([]byte, error) {
	if !c.Base64 {
		return b, nil
	}

	result := make([]byte, c.encoder().DecodedLen(len(b)))

	written, err := c.encoder().Decode(result, b)
	if err != nil {
		return nil, fmt.Errorf("base64 decoding: %w", err)
	}

	return result[:written], nil
}
