package automation

import (
	"fmt"
	"math"
	"sort"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// maxConditionSteps bounds one condition evaluation.
const maxConditionSteps = 100000

// Condition is a compiled Starlark expression over the trigger payload.
// The expression sees one global, event, a dict with "name" and "data":
//
//	event["data"]["changes"]["level"] > 50 and event["name"] == "state_change"
type Condition struct {
	src string
}

var conditionOptions = &syntax.FileOptions{}

// CompileCondition parses src and checks that it references no names other
// than event and the Starlark builtins.
func CompileCondition(src string) (*Condition, error) {
	expr, err := conditionOptions.ParseExpr("condition", src, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCondition, err)
	}
	isPredeclared := func(name string) bool { return name == "event" }
	if _, err := resolve.Expr(expr, isPredeclared, starlark.Universe.Has); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCondition, err)
	}
	return &Condition{src: src}, nil
}

// String returns the expression source.
func (c *Condition) String() string { return c.src }

// Eval reports the truth of the expression for one event. name is the
// event name and data the JSON form of its payload.
func (c *Condition) Eval(name string, data any) (bool, error) {
	ev := starlark.NewDict(2)
	_ = ev.SetKey(starlark.String("name"), starlark.String(name))
	_ = ev.SetKey(starlark.String("data"), toStarlark(data))

	thread := &starlark.Thread{Name: "condition"}
	thread.SetMaxExecutionSteps(maxConditionSteps)

	v, err := starlark.EvalOptions(conditionOptions, thread, "condition", c.src, starlark.StringDict{"event": ev})
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrConditionFailed, err)
	}
	return bool(v.Truth()), nil
}

// toStarlark converts a decoded JSON value. Integral numbers become ints
// so comparisons like level == 3 hold.
func toStarlark(v any) starlark.Value {
	switch val := v.(type) {
	case nil:
		return starlark.None
	case bool:
		return starlark.Bool(val)
	case string:
		return starlark.String(val)
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return starlark.MakeInt64(int64(val))
		}
		return starlark.Float(val)
	case int:
		return starlark.MakeInt(val)
	case int64:
		return starlark.MakeInt64(val)
	case []any:
		elems := make([]starlark.Value, len(val))
		for i, e := range val {
			elems[i] = toStarlark(e)
		}
		return starlark.NewList(elems)
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := starlark.NewDict(len(val))
		for _, k := range keys {
			_ = d.SetKey(starlark.String(k), toStarlark(val[k]))
		}
		return d
	default:
		return starlark.String(fmt.Sprint(val))
	}
}
