package automation

import (
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry and Engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry holds the active rules and scenes. Both sets are replaced
// whole when their domain is applied, so a reader never sees a mix of
// old and new entries.
//
// All public methods are thread-safe.
type Registry struct {
	mu     sync.RWMutex
	rules  []*compiledRule
	scenes map[string]*Scene
	logger Logger
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		scenes: make(map[string]*Scene),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

func (r *Registry) replaceRules(rules []*compiledRule) {
	r.mu.Lock()
	r.rules = rules
	r.mu.Unlock()
	r.logger.Info("automation rules loaded", "count", len(rules))
}

func (r *Registry) replaceScenes(scenes map[string]*Scene) {
	r.mu.Lock()
	r.scenes = scenes
	r.mu.Unlock()
	r.logger.Info("scenes loaded", "count", len(scenes))
}

// compiled returns the current rule set. The slice is never modified in
// place.
func (r *Registry) compiled() []*compiledRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rules
}

// Rules returns the active rules in configuration order.
func (r *Registry) Rules() []Rule {
	rules := r.compiled()
	out := make([]Rule, len(rules))
	for i, cr := range rules {
		out[i] = cr.Rule
	}
	return out
}

// GetScene returns a deep copy of the scene with the alias.
func (r *Registry) GetScene(alias string) (*Scene, error) {
	r.mu.RLock()
	s, ok := r.scenes[alias]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSceneNotFound
	}
	return s.DeepCopy(), nil
}

// ListScenes returns deep copies of every scene, sorted by alias.
func (r *Registry) ListScenes() []Scene {
	r.mu.RLock()
	out := make([]Scene, 0, len(r.scenes))
	for _, s := range r.scenes {
		out = append(out, *s.DeepCopy())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}
