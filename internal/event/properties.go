package event

import (
	"encoding/json"
	"sort"

	"go.uber.org/zap"
)

// PropertyKind discriminates the typed value of a flattened property.
type PropertyKind int

const (
	PropertyString PropertyKind = iota
	PropertyNumber
	PropertyBool
)

// Property is one flattened event property. Nested objects contribute their
// path as a double-underscore-joined key prefix.
type Property struct {
	Key    string
	Kind   PropertyKind
	String string
	Number float64
	Bool   bool
}

// FlattenProperties turns the nested property map into typed properties with
// parent__child__leaf keys. Integers widen to float64; values that have no
// typed representation (arrays, nulls, unparsable numbers) are dropped with
// a warning. Keys are emitted in sorted order for a deterministic wire image.
func FlattenProperties(properties map[string]interface{}, log *zap.Logger) []Property {
	var out []Property
	flattenInto("", properties, &out, log)
	return out
}

func flattenInto(prefix string, properties map[string]interface{}, out *[]Property, log *zap.Logger) {
	keys := make([]string, 0, len(properties))
	for key := range properties {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		prefixed := prefix + key

		switch value := properties[key].(type) {
		case string:
			*out = append(*out, Property{Key: prefixed, Kind: PropertyString, String: value})
		case bool:
			*out = append(*out, Property{Key: prefixed, Kind: PropertyBool, Bool: value})
		case float64:
			*out = append(*out, Property{Key: prefixed, Kind: PropertyNumber, Number: value})
		case json.Number:
			num, err := value.Float64()
			if err != nil {
				log.Warn("dropping unrepresentable number property",
					zap.String("key", prefixed),
					zap.String("value", value.String()),
				)
				continue
			}
			*out = append(*out, Property{Key: prefixed, Kind: PropertyNumber, Number: num})
		case map[string]interface{}:
			flattenInto(prefixed+"__", value, out, log)
		default:
			log.Warn("dropping property with unsupported JSON type",
				zap.String("key", prefixed),
				zap.Any("value", value),
			)
		}
	}
}
