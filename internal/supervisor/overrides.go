package supervisor

import (
	"fmt"
	"reflect"

	plugerrors "github.com/harborlight/plugind/pkg/errors"
)

// validateOverrides rejects overrides whose value type is incompatible
// with the manifest default for the same key. Keys without a manifest
// default are plugin-specific and pass through untyped.
func validateOverrides(plugin string, defaults, overrides map[string]any) error {
	for key, value := range overrides {
		base, ok := defaults[key]
		if !ok || base == nil || value == nil {
			continue
		}
		if kindGroup(base) != kindGroup(value) {
			return plugerrors.NewConfigValidationError(plugin, key,
				fmt.Sprintf("expected %s, got %s", kindGroup(base), kindGroup(value)))
		}
	}
	return nil
}

// kindGroup collapses Go kinds into the value families a manifest document
// can express. JSON decodes numbers as float64 while YAML yields ints, so
// all numeric kinds share one group.
func kindGroup(value any) string {
	switch reflect.ValueOf(value).Kind() {
	case reflect.Bool:
		return "boolean"
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "list"
	case reflect.Map:
		return "mapping"
	default:
		return "unknown"
	}
}
