package secrets

import (
	"context"
	"fmt"
	"strings"

	vault "github.com/hashicorp/vault/api"
)

// VaultSecretProvider reads secrets from a key/value version 2 secrets
// engine.
type VaultSecretProvider struct {
	VaultConfig
	client *vault.Client
}

type VaultConfig struct {
	SecretMount string `yaml:"secretMount"` // mounting point. defaults to secret
	// Key is the field of the secret that holds the value. Defaults to data.
	Key       string `yaml:"key"`
	Token     string `yaml:"token"`
	Namespace string `yaml:"namespace"`
	Address   string `yaml:"address"`
}

var _ SecretStorage = &VaultSecretProvider{}

func NewVaultConfig() VaultConfig {
	return VaultConfig{
		SecretMount: "secret",
		Key:         "data",
		Address:     "https://vault",
	}
}

func NewVaultSecretProviderFromConfig(cfg VaultConfig) (*VaultSecretProvider, error) {
	defaults := NewVaultConfig()
	if cfg.SecretMount == "" {
		cfg.SecretMount = defaults.SecretMount
	}
	if cfg.Key == "" {
		cfg.Key = defaults.Key
	}
	if cfg.Address == "" {
		cfg.Address = defaults.Address
	}

	c, err := vault.NewClient(&vault.Config{
		Address: cfg.Address,
	})
	if err != nil {
		return nil, err
	}

	c.SetToken(cfg.Token)

	if len(cfg.Namespace) > 0 {
		c.SetNamespace(cfg.Namespace)
	}

	return &VaultSecretProvider{
		VaultConfig: cfg,
		client:      c,
	}, nil
}

func (v *VaultSecretProvider) GetSecret(_ context.Context, name string) ([]byte, error) {
	path := fmt.Sprintf("%s/data/%s", strings.Trim(v.SecretMount, "/"), nameEscape(name))

	sec, err := v.client.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}

	if sec == nil || sec.Data == nil {
		return nil, ErrNotFound
	}

	if _, ok := sec.Data["data"]; !ok {
		return nil, ErrNotFound
	}

	data, ok := sec.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("vault: secret data is unexpectedly not stored in a map")
	}

	value, ok := data[v.Key]
	if !ok {
		return nil, fmt.Errorf("vault: secret has no field %q", v.Key)
	}

	if s, ok := value.(string); ok {
		return []byte(s), nil
	}

	return nil, fmt.Errorf("vault: field %q of secret is not a string", v.Key)
}

// nameEscape keeps a name within one path of the mount. Slashes are kept,
// they address nested secrets.
func nameEscape(name string) string {
	rpl := strings.NewReplacer(
		"..", "_",
		":", "_",
	)

	return rpl.Replace(strings.Trim(name, "/"))
}
