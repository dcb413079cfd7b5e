// Package secrets resolves references to secrets, such as the API key of the
// service provider, from the places they are kept.
//
// A reference has the form "kind:name", for example "env:CUSTODY_API_KEY",
// "file:/run/secrets/api-key" or "vault:custody/api-key". A reference without
// a known kind is the secret itself.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrNotFound = errors.New("secret not found")

// SecretStorage is implemented by every place a secret can be read from.
type SecretStorage interface {
	GetSecret(ctx context.Context, name string) ([]byte, error)
}

// Resolver reads secret references using the storage registered for their
// kind.
type Resolver struct {
	storage map[string]SecretStorage
}

// NewResolver returns a resolver that knows the env, file and plain kinds.
func NewResolver() *Resolver {
	r := &Resolver{storage: make(map[string]SecretStorage)}
	r.Register("env", NewEnvSecretProviderFromConfig(GenericConfig{}))
	r.Register("file", NewFileSecretProviderFromConfig(FileConfig{}))
	r.Register("plain", NewPlainSecretProviderFromConfig(GenericConfig{}))
	return r
}

// Register makes storage available for references of kind, replacing any
// storage registered before.
func (r *Resolver) Register(kind string, storage SecretStorage) {
	r.storage[kind] = storage
}

// Kinds lists the registered kinds.
func (r *Resolver) Kinds() []string {
	kinds := make([]string, 0, len(r.storage))
	for kind := range r.storage {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Resolve returns the secret ref refers to.
func (r *Resolver) Resolve(ctx context.Context, ref string) ([]byte, error) {
	kind, name, ok := strings.Cut(ref, ":")
	storage, known := r.storage[kind]
	if !ok || !known {
		// a literal secret, which may contain a colon
		return []byte(ref), nil
	}

	if name == "" {
		return nil, fmt.Errorf("secret reference %q: missing name", ref)
	}

	secret, err := storage.GetSecret(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%s secret %q: %w", kind, name, err)
	}

	return secret, nil
}

// Config enables the remote kinds. A nil entry leaves the kind unknown, so
// references of that kind are treated as literal secrets.
type Config struct {
	Vault             *VaultConfig `yaml:"vault"`
	AWSSecretsManager *AWSConfig   `yaml:"awsSecretsManager"`
	AWSSSM            *AWSConfig   `yaml:"awsSSM"`
}

// NewResolverFromConfig returns a resolver for the env, file and plain kinds
// and the remote kinds enabled in cfg: vault, awssm and ssm.
func NewResolverFromConfig(cfg Config) (*Resolver, error) {
	r := NewResolver()

	if cfg.Vault != nil {
		v, err := NewVaultSecretProviderFromConfig(*cfg.Vault)
		if err != nil {
			return nil, fmt.Errorf("vault: %w", err)
		}
		r.Register("vault", v)
	}

	if cfg.AWSSecretsManager != nil {
		sm, err := NewAWSSecretsManagerFromConfig(*cfg.AWSSecretsManager)
		if err != nil {
			return nil, err
		}
		r.Register("awssm", sm)
	}

	if cfg.AWSSSM != nil {
		ps, err := NewAWSSSMSecretProviderFromConfig(*cfg.AWSSSM)
		if err != nil {
			return nil, err
		}
		r.Register("ssm", ps)
	}

	return r, nil
}
