package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// implements file storage for secret config

type FileConfig struct {
	GenericConfig
	// Path is the directory relative names are read from.
	Path string `yaml:"path"`
}

type FileSecretProvider struct {
	FileConfig
}

func NewFileSecretProviderFromConfig(cfg FileConfig) *FileSecretProvider {
	return &FileSecretProvider{
		FileConfig: cfg,
	}
}

var _ SecretStorage = &FileSecretProvider{}

// GetSecret reads the file name. Trailing newlines are removed, most editors
// add one.
func (fp *FileSecretProvider) GetSecret(_ context.Context, name string) ([]byte, error) {
	fullPath := name
	if !filepath.IsAbs(name) && fp.Path != "" {
		fullPath = filepath.Join(fp.Path, name)
	}

	b, err := os.ReadFile(fullPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("reading file %q: %w", fullPath, err)
	}

	return fp.decode([]byte(strings.TrimRight(string(b), "\r\n")))
}
