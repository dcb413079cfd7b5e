package secrets

import (
	"context"
	"os"
	"regexp"
	"strings"
)

// EnvSecretProvider reads secrets from environment variables.
type EnvSecretProvider struct {
	GenericConfig
}

func NewEnvSecretProviderFromConfig(cfg GenericConfig) *EnvSecretProvider {
	return &EnvSecretProvider{GenericConfig: cfg}
}

var _ SecretStorage = &EnvSecretProvider{}

var invalidEnvNameChars = regexp.MustCompile(`[^\w-]`)

// GetSecret reads the variable name. Characters that can not appear in a
// variable name are read as underscores. A name containing $ is expanded
// instead, so "https://$HOST/api" combines text and variables. An empty
// variable is not found.
func (p *EnvSecretProvider) GetSecret(_ context.Context, name string) ([]byte, error) {
	var value string
	if strings.Contains(name, "$") {
		value = os.ExpandEnv(name)
	} else {
		value = os.Getenv(invalidEnvNameChars.ReplaceAllString(name, "_"))
	}

	if value == "" {
		return nil, ErrNotFound
	}
	return p.decode([]byte(value))
}

// PlainSecretProvider stores the secret in the reference itself, so
// "plain:abc" is the secret "abc". It makes a literal secret that contains a
// colon explicit.
type PlainSecretProvider struct {
	GenericConfig
}

func NewPlainSecretProviderFromConfig(cfg GenericConfig) *PlainSecretProvider {
	return &PlainSecretProvider{GenericConfig: cfg}
}

var _ SecretStorage = &PlainSecretProvider{}

func (p *PlainSecretProvider) GetSecret(_ context.Context, name string) ([]byte, error) {
	return p.decode([]byte(name))
}
