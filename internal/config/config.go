package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to every env tag when reading overrides.
const EnvPrefix = "CAMSTREAM_"

var durationType = reflect.TypeFor[time.Duration]()

// binding ties one field of an options struct to the places its value can come from.
type binding struct {
	name  string
	flag  string
	toml  string
	env   string
	value reflect.Value
}

// LoadConfig fills opts, a pointer to a flat options struct, from the TOML
// file named by its Config field and then from CAMSTREAM_ environment
// variables. Fields whose flag was set on cmd are left alone, so the
// precedence is flags, then env, then file. Values that do not convert are
// skipped and reported together in the returned error.
func LoadConfig(opts any, cmd *cobra.Command) error {
	rv := reflect.ValueOf(opts)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("options must be a pointer to a struct, got %T", opts)
	}

	fields, path := bindFields(rv.Elem())
	tree, err := readTree(path)
	if err != nil {
		return err
	}

	explicit := changedFlags(cmd)
	var errs []error
	for _, f := range fields {
		if explicit[f.flag] {
			continue
		}
		if raw, ok := lookup(tree, f.toml); ok {
			if err := assign(f.value, raw); err != nil {
				errs = append(errs, fmt.Errorf("%s (toml %s): %w", f.name, f.toml, err))
			}
		}
		if f.env == "" {
			continue
		}
		if s := os.Getenv(EnvPrefix + f.env); s != "" {
			if err := assignString(f.value, s); err != nil {
				errs = append(errs, fmt.Errorf("%s (env %s%s): %w", f.name, EnvPrefix, f.env, err))
			}
		}
	}
	return errors.Join(errs...)
}

func bindFields(v reflect.Value) ([]binding, string) {
	var (
		fields []binding
		path   string
	)
	for i := range v.NumField() {
		sf := v.Type().Field(i)
		if !sf.IsExported() {
			continue
		}
		if sf.Name == "Config" && sf.Type.Kind() == reflect.String {
			path = v.Field(i).String()
			continue
		}
		fields = append(fields, binding{
			name:  sf.Name,
			flag:  flagName(sf.Name),
			toml:  sf.Tag.Get("toml"),
			env:   sf.Tag.Get("env"),
			value: v.Field(i),
		})
	}
	return fields, path
}

func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := make(map[string]bool)
	if cmd == nil {
		return changed
	}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })
	return changed
}

// readTree parses the file at path. A missing file yields an empty tree.
func readTree(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var tree map[string]any
	if err := toml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}
	return tree, nil
}

// flagName converts a field name to its kebab-case flag, keeping runs of
// capitals together: "LoggingLevel" is "logging-level" and
// "CORSAllowOrigin" is "cors-allow-origin".
func flagName(field string) string {
	runes := []rune(field)
	var b strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || (unicode.IsUpper(runes[i-1]) && nextLower) {
				b.WriteByte('-')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// lookup resolves a dotted path such as "server.port" in a decoded TOML tree.
func lookup(tree map[string]any, path string) (any, bool) {
	if tree == nil || path == "" {
		return nil, false
	}
	head, rest, nested := strings.Cut(path, ".")
	value, ok := tree[head]
	if !ok || !nested {
		return value, ok
	}
	sub, isTable := value.(map[string]any)
	if !isTable {
		return nil, false
	}
	return lookup(sub, rest)
}

// assign stores a decoded TOML value in v. Strings go through assignString,
// which covers durations written as "500ms".
func assign(v reflect.Value, raw any) error {
	if s, ok := raw.(string); ok {
		return assignString(v, s)
	}

	switch v.Kind() {
	case reflect.Bool:
		if b, ok := raw.(bool); ok {
			v.SetBool(b)
			return nil
		}
	case reflect.Int, reflect.Int32, reflect.Int64:
		if v.Type() == durationType {
			break
		}
		if n, ok := raw.(int64); ok && !v.OverflowInt(n) {
			v.SetInt(n)
			return nil
		}
	case reflect.Float64:
		switch n := raw.(type) {
		case float64:
			v.SetFloat(n)
			return nil
		case int64:
			v.SetFloat(float64(n))
			return nil
		}
	case reflect.Slice:
		items, ok := raw.([]any)
		if !ok || v.Type().Elem().Kind() != reflect.String {
			break
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			s, isString := item.(string)
			if !isString {
				return fmt.Errorf("list item %v is not a string", item)
			}
			out = append(out, s)
		}
		v.Set(reflect.ValueOf(out))
		return nil
	}
	return fmt.Errorf("cannot use %T value for %s", raw, v.Type())
}

// assignString parses s into v. String slices take comma-separated values.
func assignString(v reflect.Value, s string) error {
	if v.Type() == durationType {
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		v.SetInt(int64(d))
		return nil
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		v.SetFloat(f)
	case reflect.Slice:
		if v.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported type %s", v.Type())
		}
		var out []string
		for part := range strings.SplitSeq(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		v.Set(reflect.ValueOf(out))
	default:
		return fmt.Errorf("unsupported type %s", v.Type())
	}
	return nil
}
