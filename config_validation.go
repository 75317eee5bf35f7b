package webmod

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	tagDefault  = "default"
	tagRequired = "required"
	tagDesc     = "desc"
)

// ConfigValidator is implemented by config structs with checks beyond
// required fields. LoadConfig calls Validate after defaults and feeders.
type ConfigValidator interface {
	Validate() error
}

// ProcessConfigDefaults applies `default:"value"` tags to zero-valued fields
// of the struct cfg points to, recursing into nested structs.
//
// Supported field types are strings, bools, integers, floats,
// time.Duration and string slices. Slice defaults are either a JSON array
// or a comma-separated list.
func ProcessConfigDefaults(cfg any) error {
	v, err := structValue(cfg)
	if err != nil {
		return err
	}
	return processStructDefaults(v)
}

func structValue(cfg any) (reflect.Value, error) {
	if cfg == nil {
		return reflect.Value{}, ErrConfigNil
	}
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return reflect.Value{}, ErrConfigNotPointer
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, ErrConfigNotStruct
	}
	return v, nil
}

// walkLeaves calls fn for every settable non-struct field below v, with its
// dotted Go field path. Nil struct pointers are skipped.
func walkLeaves(v reflect.Value, prefix string, fn func(path string, field reflect.Value, sf reflect.StructField) error) error {
	t := v.Type()
	for i := range v.NumField() {
		field, sf := v.Field(i), t.Field(i)
		if !field.CanSet() {
			continue
		}
		path := sf.Name
		if prefix != "" {
			path = prefix + "." + sf.Name
		}
		switch {
		case field.Kind() == reflect.Struct:
			if err := walkLeaves(field, path, fn); err != nil {
				return err
			}
		case field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct:
			if field.IsNil() {
				continue
			}
			if err := walkLeaves(field.Elem(), path, fn); err != nil {
				return err
			}
		default:
			if err := fn(path, field, sf); err != nil {
				return err
			}
		}
	}
	return nil
}

func processStructDefaults(v reflect.Value) error {
	return walkLeaves(v, "", func(path string, field reflect.Value, sf reflect.StructField) error {
		def, ok := sf.Tag.Lookup(tagDefault)
		if !ok || !isZeroValue(field) {
			return nil
		}
		if err := setDefaultValue(field, def); err != nil {
			return fmt.Errorf("default for %s: %w", path, err)
		}
		return nil
	})
}

// ValidateConfigRequired checks every `required:"true"` field is non-zero.
func ValidateConfigRequired(cfg any) error {
	v, err := structValue(cfg)
	if err != nil {
		return err
	}
	var missing []string
	_ = walkLeaves(v, "", func(path string, field reflect.Value, sf reflect.StructField) error {
		if sf.Tag.Get(tagRequired) == "true" && isZeroValue(field) {
			missing = append(missing, path)
		}
		return nil
	})
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigRequiredFieldMissing, strings.Join(missing, ", "))
	}
	return nil
}

func isZeroValue(v reflect.Value) bool {
	switch v.Kind() { //nolint:exhaustive // remaining kinds are never defaulted
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Ptr:
		return v.IsNil()
	case reflect.Invalid:
		return true
	default:
		return false
	}
}

// setDefaultValue parses raw into field according to the field's type.
func setDefaultValue(field reflect.Value, raw string) error {
	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("%w: duration %q: %w", ErrDefaultValueParseError, raw, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() { //nolint:exhaustive // unsupported kinds fall through to the error
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%w: bool %q: %w", ErrDefaultValueParseError, raw, err)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: int %q: %w", ErrDefaultValueParseError, raw, err)
		}
		if field.OverflowInt(i) {
			return fmt.Errorf("%w: %d overflows %s", ErrDefaultValueOverflowsInt, i, field.Type())
		}
		field.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: uint %q: %w", ErrDefaultValueParseError, raw, err)
		}
		if field.OverflowUint(u) {
			return fmt.Errorf("%w: %d overflows %s", ErrDefaultValueOverflowsUint, u, field.Type())
		}
		field.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("%w: float %q: %w", ErrDefaultValueParseError, raw, err)
		}
		if field.OverflowFloat(f) {
			return fmt.Errorf("%w: %f overflows %s", ErrDefaultValueOverflowsFloat, f, field.Type())
		}
		field.SetFloat(f)
	case reflect.Slice:
		return setDefaultStrings(field, raw)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedTypeForDefault, field.Kind())
	}
	return nil
}

func setDefaultStrings(field reflect.Value, defaultVal string) error {
	if field.Type().Elem().Kind() != reflect.String {
		return fmt.Errorf("%w: slice of %s", ErrUnsupportedTypeForDefault, field.Type().Elem().Kind())
	}
	var strs []string
	if strings.HasPrefix(strings.TrimSpace(defaultVal), "[") {
		if err := json.Unmarshal([]byte(defaultVal), &strs); err != nil {
			return fmt.Errorf("%w: JSON array: %w", ErrDefaultValueParseError, err)
		}
	} else {
		for _, s := range strings.Split(defaultVal, ",") {
			if s = strings.TrimSpace(s); s != "" {
				strs = append(strs, s)
			}
		}
	}
	sliceVal := reflect.MakeSlice(field.Type(), len(strs), len(strs))
	for i, s := range strs {
		sliceVal.Index(i).SetString(s)
	}
	field.Set(sliceVal)
	return nil
}

// MarshalConfig renders cfg as "yaml", "json" or "toml".
func MarshalConfig(cfg any, format string) ([]byte, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	switch strings.ToLower(format) {
	case "yaml", "yml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal to YAML: %w", err)
		}
		return data, nil
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal to JSON: %w", err)
		}
		return data, nil
	case "toml":
		var buf strings.Builder
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, fmt.Errorf("failed to marshal to TOML: %w", err)
		}
		return []byte(buf.String()), nil
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrConfigValidationFailed, format)
	}
}

// DescribeConfig lists the dotted yaml key, default and description of
// every leaf field in cfg.
func DescribeConfig(cfg any) ([]ConfigField, error) {
	v, err := structValue(cfg)
	if err != nil {
		return nil, err
	}
	var fields []ConfigField
	describeStruct(v.Type(), "", &fields)
	return fields, nil
}

// ConfigField documents one configuration key.
type ConfigField struct {
	Key         string
	Default     string
	Description string
}

func describeStruct(t reflect.Type, prefix string, fields *[]ConfigField) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		key, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if key == "-" {
			continue
		}
		if key == "" {
			key = strings.ToLower(f.Name)
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Duration(0)) {
			describeStruct(f.Type, key, fields)
			continue
		}
		*fields = append(*fields, ConfigField{
			Key:         key,
			Default:     f.Tag.Get(tagDefault),
			Description: f.Tag.Get(tagDesc),
		})
	}
}
