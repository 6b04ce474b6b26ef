// Package configutil validates and decodes the free-form settings maps that
// vendor blocks carry.
package configutil

import (
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/harunnryd/clinirelay/pkg/errorsx"
)

// DecodeSettings decodes settings into out. Keys match struct fields
// ignoring case, underscores and hyphens; durations accept "5s" strings.
func DecodeSettings(input map[string]any, out any) error {
	if len(input) == 0 {
		return nil
	}
	cfg := &mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		MatchName: func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		},
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return err
	}
	if err := decoder.Decode(input); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonValidation)
	}
	return nil
}

// Load validates input against schema, then decodes it.
func Load(input map[string]any, schema Schema, out any) error {
	if err := ValidateSettings(input, schema); err != nil {
		return err
	}
	return DecodeSettings(input, out)
}

// RequireString ensures a value is present for a required config field.
func RequireString(value, path string) error {
	if strings.TrimSpace(value) == "" {
		return errorsx.New(errorsx.ReasonValidation, "%s is required", path)
	}
	return nil
}

// Positive ensures a numeric setting is greater than zero.
func Positive[N int | int64 | float64](value N, path string) error {
	if value <= 0 {
		return errorsx.New(errorsx.ReasonValidation, "%s must be positive, got %v", path, value)
	}
	return nil
}

func normalizeKey(value string) string {
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, "_", "")
	value = strings.ReplaceAll(value, "-", "")
	return value
}

// Path joins config key segments with dots.
func Path(parts ...string) string {
	return strings.Join(parts, ".")
}
