// Package schema validates and coerces loosely typed values, such as
// decoded YAML or JSON, against declared shapes.
//
// A Schema returns a coerced copy of its input: integers of any Go kind
// become int, numbers become float64 for Float, and Object fills declared
// defaults. Item state definitions and configuration domains both use it.
//
//	brightness := schema.Object(
//	    schema.Key("brightness", schema.IntRange(0, 100)),
//	    schema.KeyDefault("transition", schema.Float(), 0.5),
//	)
//	v, err := brightness.Validate(map[string]any{"brightness": 150})
//	// errors.Is(err, schema.ErrInvalid) == true
package schema

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
)

// ErrInvalid matches every validation failure.
var ErrInvalid = errors.New("schema: invalid value")

// Error describes a validation failure at a path inside the value.
type Error struct {
	Path []string
	Msg  string
}

func (e *Error) Error() string {
	if len(e.Path) == 0 {
		return "schema: " + e.Msg
	}
	return "schema: " + strings.Join(e.Path, ".") + ": " + e.Msg
}

// Is makes errors.Is(err, ErrInvalid) true.
func (e *Error) Is(target error) bool {
	return target == ErrInvalid
}

func invalid(format string, args ...any) error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// prefix prepends a path element to a nested validation error.
func prefix(elem string, err error) error {
	var se *Error
	if errors.As(err, &se) {
		return &Error{Path: append([]string{elem}, se.Path...), Msg: se.Msg}
	}
	return &Error{Path: []string{elem}, Msg: err.Error()}
}

// Schema validates a value and returns its coerced form.
type Schema interface {
	Validate(v any) (any, error)
}

// Func adapts a function to Schema.
type Func func(v any) (any, error)

func (f Func) Validate(v any) (any, error) {
	return f(v)
}

// Any accepts every value unchanged.
func Any() Schema {
	return Func(func(v any) (any, error) { return v, nil })
}

// Bool accepts only booleans.
func Bool() Schema {
	return Func(func(v any) (any, error) {
		b, ok := v.(bool)
		if !ok {
			return nil, invalid("expected bool, got %T", v)
		}
		return b, nil
	})
}

// String accepts only strings.
func String() Schema {
	return Func(func(v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return nil, invalid("expected string, got %T", v)
		}
		return s, nil
	})
}

// Int accepts any integer kind, or a float with no fractional part, and
// returns an int.
func Int() Schema {
	return Func(func(v any) (any, error) {
		return toInt(v)
	})
}

// IntRange is Int restricted to [lo, hi].
func IntRange(lo, hi int) Schema {
	return Func(func(v any) (any, error) {
		n, err := toInt(v)
		if err != nil {
			return nil, err
		}
		if n < lo || n > hi {
			return nil, invalid("value %d not in range %d..%d", n, lo, hi)
		}
		return n, nil
	})
}

// Float accepts any number and returns a float64.
func Float() Schema {
	return Func(func(v any) (any, error) {
		return toFloat(v)
	})
}

// FloatRange is Float restricted to [lo, hi].
func FloatRange(lo, hi float64) Schema {
	return Func(func(v any) (any, error) {
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		if f < lo || f > hi {
			return nil, invalid("value %g not in range %g..%g", f, lo, hi)
		}
		return f, nil
	})
}

// OneOf accepts values equal to one of the allowed values.
func OneOf(allowed ...any) Schema {
	return Func(func(v any) (any, error) {
		for _, a := range allowed {
			if reflect.DeepEqual(a, v) {
				return v, nil
			}
		}
		return nil, invalid("value %v not one of %v", v, allowed)
	})
}

// Nullable accepts nil in addition to whatever s accepts.
func Nullable(s Schema) Schema {
	return Func(func(v any) (any, error) {
		if v == nil {
			return nil, nil
		}
		return s.Validate(v)
	})
}

// List accepts a slice whose elements all satisfy elem. nil is an empty
// list.
func List(elem Schema) Schema {
	return Func(func(v any) (any, error) {
		if v == nil {
			return []any{}, nil
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, invalid("expected list, got %T", v)
		}
		out := make([]any, rv.Len())
		for i := range out {
			ev, err := elem.Validate(rv.Index(i).Interface())
			if err != nil {
				return nil, prefix(fmt.Sprintf("[%d]", i), err)
			}
			out[i] = ev
		}
		return out, nil
	})
}

// Map accepts a string-keyed mapping whose values all satisfy value.
// nil is an empty mapping.
func Map(value Schema) Schema {
	return Func(func(v any) (any, error) {
		m, err := toMap(v)
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, len(m))
		for k, raw := range m {
			ev, err := value.Validate(raw)
			if err != nil {
				return nil, prefix(k, err)
			}
			out[k] = ev
		}
		return out, nil
	})
}

// Field is one declared key of an Object.
type Field struct {
	Name       string
	Schema     Schema
	Required   bool
	Default    any
	hasDefault bool
}

// Key declares a required field.
func Key(name string, s Schema) Field {
	return Field{Name: name, Schema: s, Required: true}
}

// KeyDefault declares an optional field filled with def when absent.
func KeyDefault(name string, s Schema, def any) Field {
	return Field{Name: name, Schema: s, Default: def, hasDefault: true}
}

// KeyOptional declares an optional field with no default.
func KeyOptional(name string, s Schema) Field {
	return Field{Name: name, Schema: s}
}

// ObjectSchema validates a string-keyed mapping field by field.
type ObjectSchema struct {
	fields []Field
	extra  bool
}

// Object creates a mapping schema. Undeclared keys are rejected unless
// AllowExtra is called.
func Object(fields ...Field) *ObjectSchema {
	return &ObjectSchema{fields: fields}
}

// AllowExtra keeps undeclared keys unchanged instead of rejecting them.
func (o *ObjectSchema) AllowExtra() *ObjectSchema {
	o.extra = true
	return o
}

// Validate checks every declared field, fills defaults and returns a new
// mapping. nil is treated as an empty mapping.
func (o *ObjectSchema) Validate(v any) (any, error) {
	m, err := toMap(v)
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(m))
	declared := make(map[string]struct{}, len(o.fields))

	for _, f := range o.fields {
		declared[f.Name] = struct{}{}

		raw, ok := m[f.Name]
		if !ok {
			switch {
			case f.hasDefault:
				out[f.Name] = Copy(f.Default)
			case f.Required:
				return nil, &Error{Path: []string{f.Name}, Msg: "required key missing"}
			}
			continue
		}

		cv, err := f.Schema.Validate(raw)
		if err != nil {
			return nil, prefix(f.Name, err)
		}
		out[f.Name] = cv
	}

	var unknown []string
	for k, raw := range m {
		if _, ok := declared[k]; ok {
			continue
		}
		if !o.extra {
			unknown = append(unknown, k)
			continue
		}
		out[k] = raw
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, invalid("unexpected keys %s", strings.Join(unknown, ", "))
	}

	return out, nil
}

func toMap(v any) (map[string]any, error) {
	switch m := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return m, nil
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, invalid("expected string key, got %T", k)
			}
			out[ks] = val
		}
		return out, nil
	default:
		return nil, invalid("expected mapping, got %T", v)
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint:
		return int(n), nil
	case uint8:
		return int(n), nil
	case uint16:
		return int(n), nil
	case uint32:
		return int(n), nil
	case uint64:
		if n > math.MaxInt {
			return 0, invalid("value %d overflows int", n)
		}
		return int(n), nil
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	}
	return 0, invalid("expected int, got %T", v)
}

func floatToInt(f float64) (int, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, invalid("expected int, got %g", f)
	}
	return int(f), nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case bool:
		return 0, invalid("expected number, got bool")
	}
	i, err := toInt(v)
	if err != nil {
		return 0, invalid("expected number, got %T", v)
	}
	return float64(i), nil
}

// Copy returns a deep copy of maps and slices inside v. Other values are
// returned as is.
func Copy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = Copy(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = Copy(e)
		}
		return out
	default:
		return v
	}
}
