package cliopts

import (
	"fmt"
	"os"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/spf13/pflag"
)

type FlagSet interface {
	VisitAll(fn func(*pflag.Flag))
}

// DefaultsFromEnv sets each flag that was not given on the command line from
// its environment variable. The variable name is the prefix followed by the
// flag name in screaming snake case, eg. --api-url is read from
// CUSTODY_API_URL. Empty variables are treated as unset.
//
// Call DefaultsFromEnv after the flags are parsed, and before they are read.
func DefaultsFromEnv(prefix string, flags FlagSet) error {
	var errs []error
	flags.VisitAll(func(flag *pflag.Flag) {
		if flag.Changed {
			return
		}

		key := strings.ToUpper(prefix) + "_" + strcase.ToScreamingSnake(flag.Name)
		v := os.Getenv(key)
		if v == "" {
			return
		}
		if err := flag.Value.Set(v); err != nil {
			errs = append(errs, fmt.Errorf("failed to set %v from environment variable %v: %w", flag.Name, key, err))
		}
	})

	if len(errs) > 0 {
		return MultiError(errs)
	}
	return nil
}

// ChangedFlags returns a FlagSet for Load that only contains the flags given
// on the command line. The default value of a flag that was not given does
// not replace a value from the config file or the environment.
func ChangedFlags(flags *pflag.FlagSet) FlagSet {
	return changedFlags{flags: flags}
}

type changedFlags struct {
	flags *pflag.FlagSet
}

func (f changedFlags) VisitAll(fn func(*pflag.Flag)) {
	f.flags.Visit(fn)
}

type MultiError []error

func (e MultiError) Error() string {
	errs := ([]error)(e)
	switch len(errs) {
	case 1:
		return errs[0].Error()
	default:
		var sb strings.Builder
		sb.WriteString("multiple errors:")
		for _, err := range errs {
			sb.WriteString("\n    " + err.Error())
		}
		sb.WriteString("\n")
		return sb.String()
	}
}
