package cliopts

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/mitchellh/mapstructure"
	"github.com/mitchellh/reflectwalk"
	"github.com/spf13/pflag"
)

// flatNames describes how a nested field is named in a flat source, such as
// environment variables (CUSTODY_CACHE_REDIS_HOST) or command line flags
// (cache-redis-host).
type flatNames struct {
	prefix    string
	field     func(string) string
	separator string
}

var (
	envNames = flatNames{
		field:     func(name string) string { return strings.ToUpper(strcase.ToSnake(name)) },
		separator: "_",
	}
	flagNames = flatNames{
		field:     strcase.ToKebab,
		separator: "-",
	}
)

func loadFromEnv(target interface{}, opts Options) error {
	names := envNames
	names.prefix = strings.ToUpper(opts.EnvPrefix)

	if err := loadFlat(target, envSource(names.prefix, os.Environ()), names); err != nil {
		return fmt.Errorf("failed to load from environment variables: %w", err)
	}
	return nil
}

func loadFromFlags(target interface{}, opts Options) error {
	source := map[string]interface{}{}
	opts.Flags.VisitAll(func(flag *pflag.Flag) {
		source[flag.Name] = flag.Value
	})

	if err := loadFlat(target, source, flagNames); err != nil {
		return fmt.Errorf("failed to load from command line flag: %w", err)
	}
	return nil
}

// loadFlat walks every struct in target, and decodes the keys of source that
// match the full name of a field.
func loadFlat(target interface{}, source map[string]interface{}, names flatNames) error {
	w := &flatWalker{source: source, names: names}
	if names.prefix != "" {
		w.path = []string{names.prefix}
	}
	return reflectwalk.Walk(target, w)
}

type flatWalker struct {
	source map[string]interface{}
	names  flatNames
	// path holds the names of the structs that contain the current field.
	// Embedded structs add an empty name.
	path []string
}

func (w *flatWalker) Enter(reflectwalk.Location) error {
	return nil
}

func (w *flatWalker) Exit(loc reflectwalk.Location) error {
	if loc == reflectwalk.Struct && len(w.path) > 0 {
		w.path = w.path[:len(w.path)-1]
	}
	return nil
}

func (w *flatWalker) Struct(value reflect.Value) error {
	if !value.CanAddr() {
		// a struct held by value in an interface or map can not be set
		return nil
	}

	cfg := DecodeConfig(value.Addr().Interface())
	cfg.WeaklyTypedInput = true
	cfg.MatchName = w.matchName

	decoder, err := mapstructure.NewDecoder(&cfg)
	if err != nil {
		return fmt.Errorf("failed to create decoder for struct: %w", err)
	}
	if err := decoder.Decode(w.source); err != nil {
		return fmt.Errorf("failed to decode into struct: %w", err)
	}
	return nil
}

func (w *flatWalker) StructField(field reflect.StructField, value reflect.Value) error {
	isStruct := value.Kind() == reflect.Struct ||
		value.Kind() == reflect.Ptr && value.Elem().Kind() == reflect.Struct
	if !isStruct {
		return nil
	}

	if field.Anonymous {
		w.path = append(w.path, "")
	} else {
		w.path = append(w.path, w.names.field(field.Name))
	}
	return nil
}

func (w *flatWalker) matchName(key string, fieldName string) bool {
	parts := make([]string, 0, len(w.path)+1)
	for _, part := range w.path {
		if part != "" {
			parts = append(parts, part)
		}
	}
	parts = append(parts, w.names.field(fieldName))
	return key == strings.Join(parts, w.names.separator)
}

// envSource returns the non-empty environment variables that start with
// prefix. Other variables could never match a field, and are left out so
// mapstructure has less to iterate over. Empty variables are treated as unset,
// the same as DefaultsFromEnv does.
func envSource(prefix string, environ []string) map[string]interface{} {
	result := map[string]interface{}{}
	for _, raw := range environ {
		key, value := splitEnv(raw)
		if value != "" && strings.HasPrefix(key, prefix) {
			result[key] = value
		}
	}
	return result
}

// splitEnv splits a KEY=value entry of os.Environ. On Windows a key may
// start with "=", which is part of the key.
func splitEnv(raw string) (key, value string) {
	if raw == "" {
		return "", ""
	}
	key, value, _ = strings.Cut(raw[1:], "=")
	return raw[:1] + key, value
}
