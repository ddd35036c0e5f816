package schema

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Struct returns a schema that decodes a JSON object into T, honoring
// json tags. Unknown keys are rejected. An optional validate function
// runs after decoding and may reject the typed value.
func Struct[T any](validate ...func(T) error) Schema {
	return Func(func(v any) (any, error) {
		if v == nil {
			v = map[string]any{}
		}
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected an object, got %T", v)
		}

		var out T
		var meta mapstructure.Metadata
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName:          "json",
			Result:           &out,
			Metadata:         &meta,
			WeaklyTypedInput: false,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(obj); err != nil {
			return nil, err
		}
		if len(meta.Unused) > 0 {
			return nil, fmt.Errorf("unknown field: %s", meta.Unused[0])
		}

		for _, fn := range validate {
			if err := fn(out); err != nil {
				return nil, err
			}
		}
		return out, nil
	})
}
