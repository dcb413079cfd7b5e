package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/infrahq/custody/custody"
	"github.com/infrahq/custody/internal"
	"github.com/infrahq/custody/internal/cache"
	"github.com/infrahq/custody/internal/cmd/cliopts"
	"github.com/infrahq/custody/internal/logging"
	"github.com/infrahq/custody/secrets"
)

// Run the main CLI command with the given args. The args should not contain
// the name of the binary (ex: os.Args[1:]).
func Run(ctx context.Context, args ...string) error {
	cli := newCLI(ctx)
	cmd := NewRootCmd(cli)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if cli.logFile != nil {
		_ = cli.logFile.Close()
	}
	return userError(err)
}

func NewRootCmd(cli *CLI) *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:               "custody",
		Short:             "Sign, decrypt and request certificates with keys held by a custodian device",
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := cliopts.DefaultsFromEnv(envPrefix, cmd.Flags()); err != nil {
				return err
			}

			cli.options = defaultOptions()
			if err := parseOptions(cmd, &cli.options); err != nil {
				return err
			}

			if cli.options.LogFile != "" {
				cli.logFile = logging.UseFileLogger(cli.options.LogFile)
			}
			return logging.SetLevel(cli.options.LogLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(
		newAssetCmd(cli),
		newEncryptCmd(cli),
		newSignCmd(cli),
		newAuthenticateCmd(cli),
		newDecryptCmd(cli),
		newCSRCmd(cli),
		newRequestCmd(cli),
		newServiceProviderCmd(cli),
		newIdentificationCmd(cli),
		newPingCmd(cli),
		newVersionCmd(cli),
		newServerCmd(cli))

	flags := rootCmd.PersistentFlags()
	flags.Bool("help", false, "Display help")
	flags.StringP("config-file", "f", "", "Configuration file (default $HOME/.custody/config.yaml)")
	flags.String("log-level", "info", "Show logs when running the command [error, warn, info, debug]")
	flags.String("log-file", "", "Write logs to this file instead of stderr")
	flags.String("api-url", "", "URL of the custodian API")
	flags.String("api-key", "", "API key of the service provider, or a reference to it (secret)")
	flags.Duration("api-timeout", 0, "Timeout of each API request")
	addCacheFlags(flags)

	rootCmd.SetUsageTemplate(usageTemplate())
	return rootCmd
}

func addCacheFlags(flags *pflag.FlagSet) {
	flags.String("cache-redis-host", "", "Share the object cache through this redis server")
	flags.Int("cache-redis-port", 0, "Port of the redis server")
	flags.String("cache-redis-username", "", "Redis username")
	flags.String("cache-redis-password", "", "Redis password (secret)")
	flags.String("cache-redis-options", "", "Additional redis options, for example db=2&dial_timeout=3s")
}

// newConnector returns a connector configured from the options. With
// requireKey, a missing API key is an error.
func (c *CLI) newConnector(ctx context.Context, requireKey bool) (*custody.Connector, error) {
	opts := c.options

	key, err := c.resolveAPIKey(ctx)
	if err != nil {
		return nil, err
	}
	if key == "" && requireKey {
		return nil, errMissingAPIKey
	}

	store, err := newCache(ctx, opts.Cache)
	if err != nil {
		return nil, err
	}

	return custody.NewConnector(custody.ConnectorOptions{
		URL:       opts.API.URL,
		APIKey:    key,
		Timeout:   opts.API.Timeout,
		UserAgent: "custody/" + internal.FullVersion(),
		Cache:     store,
	}), nil
}

func (c *CLI) resolveAPIKey(ctx context.Context) (string, error) {
	if c.options.API.Key == "" {
		return "", nil
	}

	resolver, err := secrets.NewResolverFromConfig(c.options.Secrets)
	if err != nil {
		return "", fmt.Errorf("secret storage: %w", err)
	}

	key, err := resolver.Resolve(ctx, c.options.API.Key)
	if err != nil {
		return "", Error{
			Cause:         "could not read the api key",
			OriginalError: err,
			Suggestion:    fmt.Sprintf("Supported references are %v.", resolver.Kinds()),
		}
	}
	return string(key), nil
}

func newCache(ctx context.Context, opts CacheOptions) (cache.Store, error) {
	if opts.Redis.Host == "" {
		return cache.NewMemoryWithTTL(opts.Redis.TTL), nil
	}

	store, err := cache.NewRedis(opts.Redis)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	if err := store.Ping(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return store, nil
}

// readInput reads a file, or standard input when name is "-".
func (c *CLI) readInput(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(c.Stdin)
	}
	return os.ReadFile(name)
}

// writeOutput writes to a file, or standard output when name is "-".
func (c *CLI) writeOutput(name string, data []byte) error {
	if name == "-" {
		_, err := c.Stdout.Write(data)
		return err
	}
	return os.WriteFile(name, data, 0o600)
}

func usageTemplate() string {
	return `Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}

Available Commands:{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasHelpSubCommands}}

Additional help topics:{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .CommandPath .CommandPathPadding}} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableSubCommands}}

Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`
}
