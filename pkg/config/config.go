// Package config fills structs from an optional YAML file and environment
// variables, driven by struct tags:
//
//	env:"NAME"        environment variable; an empty value counts as unset
//	yaml:"name"       key in the YAML file
//	default:"value"   applied when the field is still zero and not set from env
//	required:"true"   zero after loading is an error, unless a default exists
//
// Nested structs are walked recursively. Supported kinds are string, bool,
// int, int64, float32, float64, time.Duration and []string (comma separated).
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Validator is run after loading when the config type implements it.
type Validator interface {
	Validate() error
}

// setFromString parses raw into field according to its type.
func setFromString(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("failed to convert %s to duration: %v", raw, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("failed to convert %s to int: %v", raw, err)
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("failed to convert %s to %s: %v", raw, field.Kind(), err)
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("failed to convert %s to bool: %v", raw, err)
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		parts := strings.Split(raw, ",")
		slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for i, p := range parts {
			slice.Index(i).SetString(strings.TrimSpace(p))
		}
		field.Set(slice)
	default:
		return fmt.Errorf("unsupported kind %s", field.Kind())
	}
	return nil
}

func isRequired(tag reflect.StructTag) bool {
	switch strings.ToLower(tag.Get("required")) {
	case "true", "1":
		return tag.Get("default") == ""
	}
	return false
}

// applyTags overlays env values, then defaults, then checks required
// fields. All problems are collected.
func applyTags(val reflect.Value) error {
	var result error
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field, sf := val.Field(i), typ.Field(i)

		if field.Kind() == reflect.Struct {
			if err := applyTags(field); err != nil {
				result = multierror.Append(result, err)
			}
			continue
		}

		if name := sf.Tag.Get("env"); name != "" {
			if raw := os.Getenv(name); raw != "" {
				if err := setFromString(field, raw); err != nil {
					result = multierror.Append(result, fmt.Errorf("%s: %w", name, err))
				}
				continue
			}
		}

		if !field.IsZero() {
			continue
		}
		if def := sf.Tag.Get("default"); def != "" {
			if err := setFromString(field, def); err != nil {
				result = multierror.Append(result, fmt.Errorf("default for %s: %w", sf.Name, err))
			}
			continue
		}
		if isRequired(sf.Tag) {
			result = multierror.Append(result, fmt.Errorf("required field env:%s / yaml:%s is missing", sf.Tag.Get("env"), sf.Tag.Get("yaml")))
		}
	}
	return result
}

// GetConfigFromEnvVars fills dest from environment variables and tag
// defaults only. On a tag error dest is reset to its zero value.
func GetConfigFromEnvVars[T any](dest *T) error {
	if err := applyTags(reflect.ValueOf(dest).Elem()); err != nil {
		var zero T
		*dest = zero
		return err
	}

	if v, ok := any(*dest).(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}
	return nil
}

// GetConfig reads the YAML file at path, expanding ${VAR} references from
// the environment, then overlays environment variables. An empty path
// loads from the environment only. With allowFileErrors a missing or
// malformed file is ignored.
func GetConfig[T any](dest *T, path string, allowFileErrors bool) error {
	if path == "" {
		return GetConfigFromEnvVars(dest)
	}

	data, err := os.ReadFile(path)
	if err == nil {
		err = yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), dest)
		if err != nil {
			err = fmt.Errorf("failed to unmarshal YAML: %w", err)
		}
	} else {
		err = fmt.Errorf("failed to read file: %w", err)
	}
	if err != nil && !allowFileErrors {
		return err
	}
	return GetConfigFromEnvVars(dest)
}
