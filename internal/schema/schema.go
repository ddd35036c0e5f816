// Package schema provides value-level input validation for procedures.
// A Schema inspects an unknown decoded-JSON value and either returns the
// parsed (possibly coerced) input or an error describing the failure.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Schema validates and parses an unknown value.
type Schema interface {
	Parse(v any) (any, error)
}

// Func adapts a plain function to the Schema interface.
type Func func(v any) (any, error)

// Parse implements Schema.
func (f Func) Parse(v any) (any, error) {
	return f(v)
}

// Kind constrains the JSON type of a field value.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "boolean"
	KindObject Kind = "object"
	KindArray  Kind = "array"
	KindAny    Kind = "any"
)

// Field is one rule of an Object schema.
type Field struct {
	Kind     Kind
	Required bool
	// Min and Max bound numbers by value and strings by length. Nil
	// means unbounded.
	Min *float64
	Max *float64
	// Enum restricts string values to the listed set.
	Enum []string
}

// Object validates a JSON object against per-field rules. Unknown keys
// pass through unchanged; the rules only constrain the declared fields.
type Object struct {
	fields map[string]Field
	order  []string
}

// NewObject creates an empty object schema.
func NewObject() *Object {
	return &Object{fields: map[string]Field{}}
}

// Field declares a rule for the named key, returning a new schema value.
// The receiver is left untouched.
func (o *Object) Field(name string, f Field) *Object {
	next := &Object{fields: make(map[string]Field, len(o.fields)+1), order: make([]string, len(o.order), len(o.order)+1)}
	for k, v := range o.fields {
		next.fields[k] = v
	}
	copy(next.order, o.order)
	if _, exists := o.fields[name]; !exists {
		next.order = append(next.order, name)
	}
	next.fields[name] = f
	return next
}

// Parse implements Schema.
func (o *Object) Parse(v any) (any, error) {
	if v == nil {
		v = map[string]any{}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object, got %T", v)
	}

	var problems []string
	parsed := make(map[string]any, len(obj))
	for k, val := range obj {
		parsed[k] = val
	}

	for _, name := range o.order {
		rule := o.fields[name]
		val, present := obj[name]
		if !present || val == nil {
			if rule.Required {
				problems = append(problems, fmt.Sprintf("%s: required", name))
			}
			continue
		}
		coerced, err := rule.check(name, val)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		parsed[name] = coerced
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, fmt.Errorf("invalid input: %s", strings.Join(problems, "; "))
	}
	return parsed, nil
}

func (f Field) check(name string, val any) (any, error) {
	switch f.Kind {
	case KindString:
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("%s: expected string, got %T", name, val)
		}
		if f.Min != nil && float64(len(s)) < *f.Min {
			return nil, fmt.Errorf("%s: shorter than %v", name, *f.Min)
		}
		if f.Max != nil && float64(len(s)) > *f.Max {
			return nil, fmt.Errorf("%s: longer than %v", name, *f.Max)
		}
		if len(f.Enum) > 0 && !contains(f.Enum, s) {
			return nil, fmt.Errorf("%s: must be one of %s", name, strings.Join(f.Enum, ", "))
		}
		return s, nil
	case KindNumber:
		n, ok := toNumber(val)
		if !ok {
			return nil, fmt.Errorf("%s: expected number, got %T", name, val)
		}
		if f.Min != nil && n < *f.Min {
			return nil, fmt.Errorf("%s: below minimum %v", name, *f.Min)
		}
		if f.Max != nil && n > *f.Max {
			return nil, fmt.Errorf("%s: above maximum %v", name, *f.Max)
		}
		return n, nil
	case KindBool:
		b, ok := val.(bool)
		if !ok {
			return nil, fmt.Errorf("%s: expected boolean, got %T", name, val)
		}
		return b, nil
	case KindObject:
		m, ok := val.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: expected object, got %T", name, val)
		}
		return m, nil
	case KindArray:
		a, ok := val.([]any)
		if !ok {
			return nil, fmt.Errorf("%s: expected array, got %T", name, val)
		}
		return a, nil
	default:
		return val, nil
	}
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// Convenience rule constructors.

// String declares an optional string field.
func String() Field { return Field{Kind: KindString} }

// Number declares an optional number field.
func Number() Field { return Field{Kind: KindNumber} }

// Bool declares an optional boolean field.
func Bool() Field { return Field{Kind: KindBool} }

// ObjectField declares an optional nested object field.
func ObjectField() Field { return Field{Kind: KindObject} }

// Array declares an optional array field.
func Array() Field { return Field{Kind: KindArray} }

// WithRequired marks the field as required.
func (f Field) WithRequired() Field {
	f.Required = true
	return f
}

// WithMin bounds numbers by value and strings by length.
func (f Field) WithMin(min float64) Field {
	f.Min = &min
	return f
}

// WithMax bounds numbers by value and strings by length.
func (f Field) WithMax(max float64) Field {
	f.Max = &max
	return f
}

// WithEnum restricts a string field to the given values.
func (f Field) WithEnum(values ...string) Field {
	f.Enum = values
	return f
}
