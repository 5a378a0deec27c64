package automation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/nerrad567/homecontrol-core/internal/infrastructure/config"
	"github.com/nerrad567/homecontrol-core/internal/schema"
)

const (
	maxActions    = 100
	maxDelayMS    = 300000 // 5 minutes
	maxIntervalS  = 86400
	maxAliasLen   = 100
	maxDataKeys   = 20
	defaultPrefix = "rule"
)

// RulesSchema validates the shape of the automation domain. Provider
// specific requirements are checked when the rules are compiled.
func RulesSchema() schema.Schema {
	return schema.List(schema.Object(
		schema.KeyOptional("alias", schema.String()),
		schema.Key("trigger", schema.Object(
			schema.Key("provider", schema.OneOf(TriggerEvent, TriggerState, TriggerTimer)),
			schema.KeyOptional("type", schema.String()),
			schema.KeyOptional("data", schema.Map(schema.Any())),
			schema.KeyOptional("target", schema.String()),
			schema.KeyOptional("state", schema.String()),
			schema.KeyOptional("interval", schema.IntRange(1, maxIntervalS)),
		)),
		schema.KeyOptional("condition", schema.String()),
		schema.Key("action", schema.Object(
			schema.Key("provider", schema.OneOf(ActionState, ActionItem, ActionScene)),
			schema.Key("target", schema.String()),
			schema.KeyOptional("action", schema.String()),
			schema.KeyOptional("data", schema.Map(schema.Any())),
			schema.KeyOptional("var_data", schema.Map(schema.String())),
		)),
	))
}

// ScenesSchema validates the shape of the scenes domain.
func ScenesSchema() schema.Schema {
	return schema.List(schema.Object(
		schema.Key("alias", schema.String()),
		schema.KeyOptional("name", schema.String()),
		schema.Key("actions", schema.List(schema.Object(
			schema.Key("target", schema.String()),
			schema.KeyOptional("states", schema.Map(schema.Any())),
			schema.KeyOptional("action", schema.String()),
			schema.KeyOptional("data", schema.Map(schema.Any())),
			schema.KeyDefault("delay_ms", schema.IntRange(0, maxDelayMS), 0),
			schema.KeyDefault("parallel", schema.Bool(), false),
			schema.KeyDefault("continue_on_error", schema.Bool(), false),
		))),
	))
}

// compiledRule is a validated rule ready to run.
type compiledRule struct {
	Rule
	condition *Condition
	// match is Trigger.Data in JSON form, comparable with event payloads.
	match map[string]any
}

// compileRules decodes and checks a value approved by RulesSchema.
// Rules without an alias are named rule-<index>.
func compileRules(value any) ([]*compiledRule, error) {
	var rules []Rule
	if err := config.Decode(value, &rules); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRule, err)
	}

	out := make([]*compiledRule, 0, len(rules))
	seen := make(map[string]struct{}, len(rules))
	for i, r := range rules {
		if strings.TrimSpace(r.Alias) == "" {
			r.Alias = fmt.Sprintf("%s-%d", defaultPrefix, i)
		}
		if _, dup := seen[r.Alias]; dup {
			return nil, fmt.Errorf("%w: duplicate alias %q", ErrInvalidRule, r.Alias)
		}
		seen[r.Alias] = struct{}{}

		cr, err := compileRule(r)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Alias, err)
		}
		out = append(out, cr)
	}
	return out, nil
}

func compileRule(r Rule) (*compiledRule, error) {
	if len(r.Alias) > maxAliasLen {
		return nil, fmt.Errorf("%w: alias exceeds %d characters", ErrInvalidRule, maxAliasLen)
	}
	if err := validateTrigger(r.Trigger); err != nil {
		return nil, err
	}
	if err := validateAction(r.Action); err != nil {
		return nil, err
	}

	cr := &compiledRule{Rule: r}
	if r.Condition != "" {
		cond, err := CompileCondition(r.Condition)
		if err != nil {
			return nil, err
		}
		cr.condition = cond
	}
	if len(r.Trigger.Data) > 0 {
		match, err := jsonValue(r.Trigger.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: trigger data: %w", ErrInvalidRule, err)
		}
		cr.match, _ = match.(map[string]any)
	}
	return cr, nil
}

func validateTrigger(t Trigger) error {
	switch t.Provider {
	case TriggerEvent:
		if t.Type == "" {
			return fmt.Errorf("%w: event trigger needs a type", ErrInvalidRule)
		}
	case TriggerState:
		if t.Target == "" || t.State == "" {
			return fmt.Errorf("%w: state trigger needs target and state", ErrInvalidRule)
		}
	case TriggerTimer:
		if t.Interval <= 0 {
			return fmt.Errorf("%w: timer trigger needs a positive interval", ErrInvalidRule)
		}
	default:
		return fmt.Errorf("%w: unknown trigger provider %q", ErrInvalidRule, t.Provider)
	}
	return nil
}

func validateAction(a Action) error {
	switch a.Provider {
	case ActionState:
		if len(a.Data)+len(a.VarData) == 0 {
			return fmt.Errorf("%w: state action sets nothing", ErrInvalidRule)
		}
	case ActionItem:
		if a.Action == "" {
			return fmt.Errorf("%w: item action needs an action name", ErrInvalidRule)
		}
	case ActionScene:
	default:
		return fmt.Errorf("%w: unknown action provider %q", ErrInvalidRule, a.Provider)
	}
	if a.Target == "" {
		return fmt.Errorf("%w: action needs a target", ErrInvalidRule)
	}
	if len(a.Data) > maxDataKeys || len(a.VarData) > maxDataKeys {
		return fmt.Errorf("%w: action data exceeds %d keys", ErrInvalidRule, maxDataKeys)
	}
	for name, path := range a.VarData {
		if path == "" {
			return fmt.Errorf("%w: var_data %s has an empty path", ErrInvalidRule, name)
		}
	}
	return nil
}

// CompileScenes decodes and checks a value approved by ScenesSchema.
func CompileScenes(value any) (map[string]*Scene, error) {
	var scenes []Scene
	if err := config.Decode(value, &scenes); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScene, err)
	}

	out := make(map[string]*Scene, len(scenes))
	for i := range scenes {
		s := &scenes[i]
		if err := ValidateScene(s); err != nil {
			return nil, fmt.Errorf("scene %q: %w", s.Alias, err)
		}
		if _, dup := out[s.Alias]; dup {
			return nil, fmt.Errorf("%w: duplicate alias %q", ErrInvalidScene, s.Alias)
		}
		out[s.Alias] = s
	}
	return out, nil
}

// ValidateScene checks one scene.
func ValidateScene(s *Scene) error {
	if s == nil {
		return ErrInvalidScene
	}
	if strings.TrimSpace(s.Alias) == "" || len(s.Alias) > maxAliasLen {
		return fmt.Errorf("%w: alias must be 1-%d characters", ErrInvalidScene, maxAliasLen)
	}
	if len(s.Actions) == 0 {
		return fmt.Errorf("%w: no actions", ErrInvalidScene)
	}
	if len(s.Actions) > maxActions {
		return fmt.Errorf("%w: exceeds maximum of %d actions", ErrInvalidScene, maxActions)
	}
	for i, a := range s.Actions {
		if err := ValidateSceneAction(a); err != nil {
			return fmt.Errorf("action[%d]: %w", i, err)
		}
	}
	return nil
}

// ValidateSceneAction checks that a step sets states or runs an action,
// but not both.
func ValidateSceneAction(a SceneAction) error {
	if a.Target == "" {
		return fmt.Errorf("%w: target is required", ErrInvalidScene)
	}
	if (len(a.States) > 0) == (a.Action != "") {
		return fmt.Errorf("%w: exactly one of states and action is required", ErrInvalidScene)
	}
	if a.DelayMS < 0 || a.DelayMS > maxDelayMS {
		return fmt.Errorf("%w: delay_ms must be 0-%d", ErrInvalidScene, maxDelayMS)
	}
	if len(a.Data) > maxDataKeys {
		return fmt.Errorf("%w: data exceeds %d keys", ErrInvalidScene, maxDataKeys)
	}
	return nil
}

// jsonValue returns v as encoding/json would decode it: numbers become
// float64 and structs become maps.
func jsonValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return gjson.ParseBytes(data).Value(), nil
}
