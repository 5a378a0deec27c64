package automation

import "time"

// Trigger providers.
const (
	// TriggerEvent fires on a bus event whose payload contains Data.
	TriggerEvent = "event"
	// TriggerState fires when State of item Target changes.
	TriggerState = "state"
	// TriggerTimer fires every Interval seconds.
	TriggerTimer = "timer"
)

// Action providers.
const (
	// ActionState sets states of item Target.
	ActionState = "state"
	// ActionItem runs action Action of item Target.
	ActionItem = "action"
	// ActionScene activates scene Target.
	ActionScene = "scene"
)

// Rule is one entry of the automation domain:
//
//	automation:
//	  - alias: hall light on motion
//	    trigger:
//	      provider: event
//	      type: mqtt_message_received
//	      data: {topic: sensors/hall/motion}
//	    condition: event["data"]["payload"] == "1"
//	    action:
//	      provider: state
//	      target: hall_light
//	      data: {on: true}
type Rule struct {
	Alias     string  `json:"alias" yaml:"alias"`
	Trigger   Trigger `json:"trigger" yaml:"trigger"`
	Condition string  `json:"condition,omitempty" yaml:"condition"`
	Action    Action  `json:"action" yaml:"action"`
}

// Trigger selects when a rule runs. Which fields apply depends on
// Provider.
type Trigger struct {
	Provider string `json:"provider" yaml:"provider"`

	// Type and Data configure TriggerEvent. Data is matched as a subset of
	// the JSON form of the event payload.
	Type string         `json:"type,omitempty" yaml:"type"`
	Data map[string]any `json:"data,omitempty" yaml:"data"`

	// Target and State configure TriggerState.
	Target string `json:"target,omitempty" yaml:"target"`
	State  string `json:"state,omitempty" yaml:"state"`

	// Interval configures TriggerTimer, in seconds.
	Interval int `json:"interval,omitempty" yaml:"interval"`
}

// Action is what a rule does when it fires.
type Action struct {
	Provider string `json:"provider" yaml:"provider"`
	Target   string `json:"target" yaml:"target"`

	// Action names the item action for ActionItem.
	Action string `json:"action,omitempty" yaml:"action"`

	// Data holds fixed state values or action arguments.
	Data map[string]any `json:"data,omitempty" yaml:"data"`

	// VarData maps a state or argument name to a gjson path evaluated
	// against the trigger payload. It overrides Data.
	VarData map[string]string `json:"var_data,omitempty" yaml:"var_data"`
}

// Scene is one entry of the scenes domain: item changes that run
// together.
type Scene struct {
	Alias   string        `json:"alias" yaml:"alias"`
	Name    string        `json:"name,omitempty" yaml:"name"`
	Actions []SceneAction `json:"actions" yaml:"actions"`
}

// SceneAction is one step of a scene. It sets States on Target or runs
// its Action with Data as arguments.
//
// Steps run in order. A step with Parallel set joins the previous step's
// group and runs concurrently with it.
type SceneAction struct {
	Target string         `json:"target" yaml:"target"`
	States map[string]any `json:"states,omitempty" yaml:"states"`
	Action string         `json:"action,omitempty" yaml:"action"`
	Data   map[string]any `json:"data,omitempty" yaml:"data"`

	// DelayMS waits before the step runs.
	DelayMS int `json:"delay_ms,omitempty" yaml:"delay_ms"`

	Parallel bool `json:"parallel,omitempty" yaml:"parallel"`

	// ContinueOnError keeps the scene running when this step fails.
	ContinueOnError bool `json:"continue_on_error,omitempty" yaml:"continue_on_error"`
}

// SceneExecution reports one activation of a scene.
type SceneExecution struct {
	ID          string          `json:"id"`
	Scene       string          `json:"scene"`
	TriggerType string          `json:"trigger_type"` // manual, automation, api
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
	Status      ExecutionStatus `json:"status"`

	ActionsTotal     int `json:"actions_total"`
	ActionsCompleted int `json:"actions_completed"`
	ActionsFailed    int `json:"actions_failed"`
	ActionsSkipped   int `json:"actions_skipped"`

	Failures []ActionFailure `json:"failures,omitempty"`

	DurationMS int64 `json:"duration_ms"`
}

// ActionFailure records one failed scene step.
type ActionFailure struct {
	ActionIndex int    `json:"action_index"`
	Target      string `json:"target"`
	Error       string `json:"error"`
}

// ExecutionStatus is the outcome of a scene activation.
type ExecutionStatus string

const (
	StatusCompleted ExecutionStatus = "completed"
	StatusPartial   ExecutionStatus = "partial"   // some steps failed, scene continued
	StatusFailed    ExecutionStatus = "failed"    // a step without continue_on_error failed
	StatusCancelled ExecutionStatus = "cancelled" // context ended mid-activation
)

// DeepCopy returns a copy sharing no maps or slices with s.
func (s *Scene) DeepCopy() *Scene {
	if s == nil {
		return nil
	}

	cpy := *s
	if s.Actions != nil {
		cpy.Actions = make([]SceneAction, len(s.Actions))
		for i, a := range s.Actions {
			cpy.Actions[i] = a
			cpy.Actions[i].States = deepCopyMap(a.States)
			cpy.Actions[i].Data = deepCopyMap(a.Data)
		}
	}
	return &cpy
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}
