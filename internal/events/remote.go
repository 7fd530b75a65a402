package events

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/chromedp/cdproto/runtime"
)

// printable renders a CDP RemoteObject the way a console would print it.
// This handles primitives, objects, arrays, and special values like undefined/null.
func printable(obj *runtime.RemoteObject) string {
	if obj == nil {
		return "undefined"
	}

	// Infinity, -Infinity, NaN, -0 and bigints
	if obj.UnserializableValue != "" {
		return string(obj.UnserializableValue)
	}

	if obj.Value != nil {
		var v interface{}
		if err := json.Unmarshal(obj.Value, &v); err != nil {
			return string(obj.Value)
		}
		switch val := v.(type) {
		case string:
			return val
		case nil:
			return "null"
		case float64:
			return strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(val)
		default:
			return string(obj.Value)
		}
	}

	if obj.Type == runtime.TypeUndefined {
		return "undefined"
	}
	if obj.Subtype == runtime.SubtypeNull {
		return "null"
	}

	// Errors carry the stack in their description.
	if obj.Subtype == runtime.SubtypeError && obj.Description != "" {
		return obj.Description
	}

	if obj.Preview != nil {
		return previewString(obj.Preview)
	}

	if obj.Description != "" {
		return obj.Description
	}
	return string(obj.Type)
}

// previewString renders an abbreviated object or array.
func previewString(preview *runtime.ObjectPreview) string {
	parts := make([]string, 0, len(preview.Properties)+1)

	if preview.Subtype == runtime.SubtypeArray {
		for _, prop := range preview.Properties {
			parts = append(parts, propertyString(prop))
		}
		if preview.Overflow {
			parts = append(parts, "...")
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}

	for _, prop := range preview.Properties {
		parts = append(parts, prop.Name+": "+propertyString(prop))
	}
	if preview.Overflow {
		parts = append(parts, "...")
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func propertyString(prop *runtime.PropertyPreview) string {
	if prop.ValuePreview != nil {
		return previewString(prop.ValuePreview)
	}
	if prop.Type == runtime.TypeString {
		return "'" + prop.Value + "'"
	}
	return prop.Value
}
