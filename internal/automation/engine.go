package automation

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/nerrad567/homecontrol-core/internal/item"
)

// Events published by the engine.
const (
	// EventRuleTriggered fires after a rule's action succeeded.
	// Payload: "alias", "trigger", "action".
	EventRuleTriggered = "automation_triggered"

	// EventRuleFailed fires when a rule's condition or action failed.
	// Payload: "alias", "error".
	EventRuleFailed = "automation_failed"

	// EventSceneActivated fires after every scene activation.
	// Payload: "scene", "execution" (*SceneExecution), "status".
	EventSceneActivated = "scene_activated"
)

// maxSceneExecutionTime bounds one scene activation.
const maxSceneExecutionTime = 60 * time.Second

// Items is the part of the item registry the engine needs.
// *item.Registry satisfies it.
type Items interface {
	GetItem(id string) (*item.Item, bool)
}

// Publisher receives the engine's events. *event.Bus satisfies it.
type Publisher interface {
	Broadcast(name string, data map[string]any)
}

// Engine runs rule actions and activates scenes.
//
// Thread Safety: all methods are safe for concurrent use.
type Engine struct {
	registry *Registry
	items    Items
	bus      Publisher
	logger   Logger
}

// NewEngine creates an engine. logger may be nil.
func NewEngine(registry *Registry, items Items, bus Publisher, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{
		registry: registry,
		items:    items,
		bus:      bus,
		logger:   logger,
	}
}

// trigger is what fired a rule: the event name and its payload, both as a
// decoded JSON value for conditions and as raw JSON for var_data paths.
type trigger struct {
	name    string
	payload any
	raw     []byte
}

// fire runs one rule. A false condition is not an error.
func (e *Engine) fire(ctx context.Context, cr *compiledRule, t trigger) error {
	if cr.condition != nil {
		ok, err := cr.condition.Eval(t.name, t.payload)
		if err != nil {
			return e.ruleFailed(cr, err)
		}
		if !ok {
			e.logger.Debug("automation condition not met", "alias", cr.Alias)
			return nil
		}
	}

	values := deepCopyMap(cr.Action.Data)
	if len(cr.Action.VarData) > 0 {
		if values == nil {
			values = make(map[string]any, len(cr.Action.VarData))
		}
		for name, path := range cr.Action.VarData {
			values[name] = gjson.GetBytes(t.raw, path).Value()
		}
	}

	var err error
	switch cr.Action.Provider {
	case ActionState:
		err = e.setStates(ctx, cr.Action.Target, values)
	case ActionItem:
		err = e.runAction(ctx, cr.Action.Target, cr.Action.Action, values)
	case ActionScene:
		_, err = e.ActivateScene(ctx, cr.Action.Target, "automation")
	}
	if err != nil {
		return e.ruleFailed(cr, err)
	}

	e.logger.Info("automation rule triggered", "alias", cr.Alias, "trigger", t.name)
	e.bus.Broadcast(EventRuleTriggered, map[string]any{
		"alias":   cr.Alias,
		"trigger": t.name,
		"action":  cr.Action.Provider,
	})
	return nil
}

func (e *Engine) ruleFailed(cr *compiledRule, err error) error {
	e.logger.Warn("automation rule failed", "alias", cr.Alias, "error", err)
	e.bus.Broadcast(EventRuleFailed, map[string]any{
		"alias": cr.Alias,
		"error": err.Error(),
	})
	return fmt.Errorf("rule %q: %w", cr.Alias, err)
}

func (e *Engine) lookup(id string) (*item.Item, error) {
	it, ok := e.items.GetItem(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, id)
	}
	return it, nil
}

// setStates applies values in name order through the item's setters.
func (e *Engine) setStates(ctx context.Context, target string, values map[string]any) error {
	it, err := e.lookup(target)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := it.States().Set(ctx, name, values[name]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) runAction(ctx context.Context, target, action string, args map[string]any) error {
	it, err := e.lookup(target)
	if err != nil {
		return err
	}
	_, err = it.RunAction(ctx, action, args)
	return err
}

// ActivateScene runs a scene's steps.
//
// Steps are grouped by their parallel flag; groups run in order and the
// steps of one group run concurrently. A failed step without
// continue_on_error aborts the remaining groups.
//
// Returns:
//   - *SceneExecution: the outcome, also published as scene_activated
//   - error: ErrSceneNotFound; step failures are reported in the execution
func (e *Engine) ActivateScene(ctx context.Context, alias, triggerType string) (*SceneExecution, error) {
	ctx, cancel := context.WithTimeout(ctx, maxSceneExecutionTime)
	defer cancel()

	scene, err := e.registry.GetScene(alias)
	if err != nil {
		return nil, err
	}

	exec := &SceneExecution{
		ID:           uuid.New().String(),
		Scene:        alias,
		TriggerType:  triggerType,
		StartedAt:    time.Now().UTC(),
		ActionsTotal: len(scene.Actions),
	}

	e.logger.Info("scene activation started",
		"scene", alias,
		"execution_id", exec.ID,
		"actions", len(scene.Actions),
	)

	var (
		failures  []ActionFailure
		completed int
		skipped   int
		aborted   bool
		cancelled bool
		offset    int
	)
	for _, group := range groupActions(scene.Actions) {
		start := offset
		offset += len(group)
		if aborted || cancelled {
			skipped += len(group)
			continue
		}
		if ctx.Err() != nil {
			skipped += len(group)
			cancelled = true
			continue
		}

		groupFailures := e.executeGroup(ctx, start, group)
		completed += len(group) - len(groupFailures)
		failures = append(failures, groupFailures...)

		for _, f := range groupFailures {
			if !scene.Actions[f.ActionIndex].ContinueOnError {
				aborted = true
				break
			}
		}
	}

	exec.CompletedAt = time.Now().UTC()
	exec.ActionsCompleted = completed
	exec.ActionsFailed = len(failures)
	exec.ActionsSkipped = skipped
	exec.Failures = failures
	exec.DurationMS = exec.CompletedAt.Sub(exec.StartedAt).Milliseconds()

	switch {
	case cancelled:
		exec.Status = StatusCancelled
	case aborted:
		exec.Status = StatusFailed
	case len(failures) > 0:
		exec.Status = StatusPartial
	default:
		exec.Status = StatusCompleted
	}

	e.logger.Info("scene activation complete",
		"scene", alias,
		"execution_id", exec.ID,
		"status", exec.Status,
		"completed", completed,
		"failed", len(failures),
		"skipped", skipped,
		"duration_ms", exec.DurationMS,
	)
	e.bus.Broadcast(EventSceneActivated, map[string]any{
		"scene":     alias,
		"execution": exec,
		"status":    string(exec.Status),
	})
	return exec, nil
}

// executeGroup runs the steps of one group concurrently. offset is the
// index of the group's first step within the scene.
func (e *Engine) executeGroup(ctx context.Context, offset int, actions []SceneAction) []ActionFailure {
	var (
		mu       sync.Mutex
		failures []ActionFailure
		wg       sync.WaitGroup
	)

	for i, action := range actions {
		wg.Add(1)
		go func(idx int, a SceneAction) {
			defer wg.Done()

			if err := e.executeAction(ctx, a); err != nil {
				mu.Lock()
				failures = append(failures, ActionFailure{
					ActionIndex: idx,
					Target:      a.Target,
					Error:       err.Error(),
				})
				mu.Unlock()
			}
		}(offset+i, action)
	}

	wg.Wait()
	sort.Slice(failures, func(i, j int) bool { return failures[i].ActionIndex < failures[j].ActionIndex })
	return failures
}

func (e *Engine) executeAction(ctx context.Context, a SceneAction) error {
	if a.DelayMS > 0 {
		select {
		case <-time.After(time.Duration(a.DelayMS) * time.Millisecond):
		case <-ctx.Done():
			return fmt.Errorf("action delayed: %w", ctx.Err())
		}
	}
	if a.Action != "" {
		return e.runAction(ctx, a.Target, a.Action, deepCopyMap(a.Data))
	}
	return e.setStates(ctx, a.Target, a.States)
}

// groupActions splits actions into sequential groups based on the
// Parallel flag.
//
// The first action always starts a new group. Subsequent actions with
// Parallel=true join the current group; Parallel=false starts a new group.
//
//	actions: [A(parallel=false), B(parallel=true), C(parallel=true), D(parallel=false)]
//	groups:  [[A, B, C], [D]]
func groupActions(actions []SceneAction) [][]SceneAction {
	if len(actions) == 0 {
		return nil
	}

	var groups [][]SceneAction
	current := []SceneAction{actions[0]}

	for _, action := range actions[1:] {
		if action.Parallel {
			current = append(current, action)
		} else {
			groups = append(groups, current)
			current = []SceneAction{action}
		}
	}
	return append(groups, current)
}

// matches reports whether pattern is a subset of value. Maps match when
// every key of pattern is present in value and matches recursively; other
// values must be equal.
func matches(pattern, value any) bool {
	pm, ok := pattern.(map[string]any)
	if !ok {
		return reflect.DeepEqual(pattern, value)
	}
	vm, ok := value.(map[string]any)
	if !ok {
		return false
	}
	for k, pv := range pm {
		v, ok := vm[k]
		if !ok || !matches(pv, v) {
			return false
		}
	}
	return true
}
