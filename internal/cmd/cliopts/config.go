package cliopts

import (
	"errors"
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v2"
)

type Options struct {
	Filename string
	// FileOptional skips a Filename that does not exist. Any other error
	// reading the file is still returned.
	FileOptional bool
	EnvPrefix    string
	Flags        FlagSet
}

// Load configuration into target. Configuration may come from multiple sources.
//
// To set default values, apply them to target before calling Load.
// Configuration is loaded in the following order:
//  1. from a yaml file identified by opts.Filename
//  2. from environment variables that start with opts.EnvPrefix
//  3. from command line flags in opts.Flags
//
// Values are matched to the fields in target by convention. To override the
// convention use the 'config' struct field tag to specify a different name.
//
// For example, the field target.Cache.Redis.Host would be set from:
//
//	# YAML
//	cache:
//	  redis:
//	    host: value
//	# environment variable
//	CUSTODY_CACHE_REDIS_HOST=value
//	# command line flag
//	flags.String("cache-redis-host", ...)
func Load(target interface{}, opts Options) error {
	if opts.Filename != "" {
		if err := loadFromFile(target, opts); err != nil {
			return err
		}
	}
	if opts.EnvPrefix != "" {
		if err := loadFromEnv(target, opts); err != nil {
			return err
		}
	}
	if opts.Flags != nil {
		if err := loadFromFlags(target, opts); err != nil {
			return err
		}
	}
	return nil
}

func loadFromFile(target interface{}, opts Options) error {
	fh, err := os.Open(opts.Filename)
	switch {
	case opts.FileOptional && errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer fh.Close()

	var raw map[string]interface{}
	if err := yaml.NewDecoder(fh).Decode(&raw); err != nil {
		return fmt.Errorf("failed to decode yaml from %s: %w", opts.Filename, err)
	}

	cfg := DecodeConfig(target)
	decoder, err := mapstructure.NewDecoder(&cfg)
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("failed to decode from %s: %w", opts.Filename, err)
	}
	return nil
}

const fieldTagName = "config"

// DecodeConfig returns the default DecoderConfig used by Load. This config
// can be used by tests in other packages to simulate a call to Load.
func DecodeConfig(target interface{}) mapstructure.DecoderConfig {
	return mapstructure.DecoderConfig{
		Squash:  true,
		Result:  target,
		TagName: fieldTagName,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			hookFlagValueSlice,
			hookSetFromString,
		),
	}
}
