package cmd

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/infrahq/custody/internal/cache"
	"github.com/infrahq/custody/internal/cmd/cliopts"
	"github.com/infrahq/custody/secrets"
)

const envPrefix = "CUSTODY"

// Options configure every command. They are loaded from the config file, the
// CUSTODY_ environment variables and the command line flags, in that order.
type Options struct {
	API      APIOptions
	Secrets  secrets.Config
	Cache    CacheOptions
	Server   ServerOptions
	LogLevel string
	LogFile  string
}

type APIOptions struct {
	URL string
	// Key is a secret reference, such as env:NAME, file:/path or
	// vault:name. A value without a known kind is used as the key.
	Key     string
	Timeout time.Duration
}

type CacheOptions struct {
	// Redis is used when Host is set. The cache must be shared with the
	// receiver of callbacks for --callback to work. Redis.TTL also applies to
	// the memory cache.
	Redis cache.Options
}

type ServerOptions struct {
	Addr          string
	MetricsAddr   string
	PruneInterval time.Duration
}

func defaultOptions() Options {
	return Options{
		API: APIOptions{
			Timeout: 30 * time.Second,
		},
		Cache: CacheOptions{
			Redis: cache.Options{Port: 6379, TTL: cache.DefaultTTL},
		},
		Server: ServerOptions{
			Addr:          ":8080",
			MetricsAddr:   ":9090",
			PruneInterval: time.Minute,
		},
		LogLevel: "info",
	}
}

func defaultConfigFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".custody", "config.yaml")
}

// parseOptions loads the options for cmd. The default config file may be
// missing, a file named with --config-file must exist.
func parseOptions(cmd *cobra.Command, options *Options) error {
	filename, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}

	optional := false
	if filename == "" {
		filename = defaultConfigFile()
		optional = true
	}

	return cliopts.Load(options, cliopts.Options{
		Filename:     filename,
		FileOptional: optional,
		EnvPrefix:    envPrefix,
		Flags:        cliopts.ChangedFlags(cmd.Flags()),
	})
}
