package module

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/nerrad567/homecontrol-core/internal/event"
	"github.com/nerrad567/homecontrol-core/internal/metrics"
)

// Logger is the logging interface used by the manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Publisher is the part of the event bus the manager uses.
type Publisher interface {
	Broadcast(name string, data map[string]any)
}

// ReleaseFunc releases resources owned by a module after it stopped,
// typically its items.
type ReleaseFunc func(ctx context.Context, module string)

type entry struct {
	mod     Module
	status  Status
	err     error
	initRan bool
	done    chan struct{}
}

// Manager owns the set of modules and drives their lifecycle.
//
// Thread Safety: all methods are safe for concurrent use.
type Manager struct {
	mu          sync.RWMutex
	entries     map[string]*entry
	added       []string
	order       []string
	initialized bool
	stopped     bool
	stopMu      sync.Mutex

	bus     Publisher
	release ReleaseFunc
	logger  Logger
	metrics metrics.Recorder
}

// NewManager creates a manager publishing lifecycle events on bus.
func NewManager(bus Publisher) *Manager {
	return &Manager{
		entries: make(map[string]*entry),
		bus:     bus,
		logger:  noopLogger{},
		metrics: metrics.Noop{},
	}
}

// SetLogger sets the logger for lifecycle messages.
func (m *Manager) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// SetMetrics sets the recorder for module status.
func (m *Manager) SetMetrics(r metrics.Recorder) {
	if r != nil {
		m.metrics = r
	}
}

// SetReleaser sets the hook run for each module after it stopped.
func (m *Manager) SetReleaser(fn ReleaseFunc) {
	m.release = fn
}

// Add registers modules in the discovered state. Add fails once Init
// has been called.
func (m *Manager) Add(mods ...Module) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return ErrAlreadyInitialized
	}
	for _, mod := range mods {
		name := mod.Name()
		if name == "" {
			return fmt.Errorf("module: empty module name")
		}
		if _, ok := m.entries[name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateModule, name)
		}
		m.entries[name] = &entry{mod: mod, status: StatusDiscovered, done: make(chan struct{})}
		m.added = append(m.added, name)
		m.metrics.ModuleStatus(name, string(StatusDiscovered))
	}
	return nil
}

// Init resolves dependencies and initialises every module, then
// publishes core_bootstrap_complete. Individual module failures do not
// make Init fail; they are reported through module_failed and Status.
// Init returns ctx.Err() if ctx was cancelled before all modules settled.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return ErrAlreadyInitialized
	}
	m.initialized = true
	for _, name := range m.added {
		m.setStatusLocked(name, StatusResolving, nil)
	}
	order, failed := m.resolveLocked()
	m.order = order
	for name, err := range failed {
		m.setStatusLocked(name, StatusError, err)
		close(m.entries[name].done)
	}
	m.mu.Unlock()

	for _, name := range sortedKeys(failed) {
		m.logger.Error("module dependency unresolved", "module", name, "error", failed[name])
		m.bus.Broadcast(event.ModuleFailed, map[string]any{"module": name, "error": failed[name].Error()})
	}

	var wg sync.WaitGroup
	for _, name := range order {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.initModule(ctx, name)
		}()
	}
	wg.Wait()

	active, errored := m.partition()
	m.logger.Info("bootstrap complete", "active", len(active), "failed", len(errored))
	m.bus.Broadcast(event.BootstrapComplete, map[string]any{"active": active, "failed": errored})
	return ctx.Err()
}

// initModule waits for the module's dependencies and runs its Init.
func (m *Manager) initModule(ctx context.Context, name string) {
	m.mu.RLock()
	e := m.entries[name]
	m.mu.RUnlock()
	defer close(e.done)

	m.mu.RLock()
	hard := e.mod.Dependencies()
	all := m.edgesLocked(name)
	m.mu.RUnlock()

	for _, dep := range all {
		m.mu.RLock()
		d := m.entries[dep]
		m.mu.RUnlock()

		select {
		case <-d.done:
		case <-ctx.Done():
			m.fail(name, fmt.Errorf("module %s: %w", name, ctx.Err()))
			return
		}
		if slices.Contains(hard, dep) && m.statusOf(dep) != StatusActive {
			m.fail(name, &DependencyError{Module: name, Dependency: dep, Reason: ReasonFailed})
			return
		}
	}

	m.mu.Lock()
	e.initRan = true
	m.setStatusLocked(name, StatusInitializing, nil)
	m.mu.Unlock()
	m.logger.Debug("initializing module", "module", name)

	if err := safeInit(ctx, e.mod); err != nil {
		m.fail(name, err)
		return
	}

	m.mu.Lock()
	m.setStatusLocked(name, StatusActive, nil)
	m.mu.Unlock()
	m.logger.Info("module loaded", "module", name)
	m.bus.Broadcast(event.ModuleLoaded, map[string]any{"module": name})
}

func safeInit(ctx context.Context, mod Module) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrInitPanic, mod.Name(), r)
		}
	}()
	return mod.Init(ctx)
}

func (m *Manager) fail(name string, err error) {
	m.mu.Lock()
	m.setStatusLocked(name, StatusError, err)
	m.mu.Unlock()
	m.logger.Error("module failed", "module", name, "error", err)
	m.bus.Broadcast(event.ModuleFailed, map[string]any{"module": name, "error": err.Error()})
}

// Stop tears modules down in reverse dependency order. A module's Stop
// hook runs if its Init was started, even if Init failed. Failures are
// logged and teardown continues. Calling Stop again is a no-op.
func (m *Manager) Stop(ctx context.Context) {
	m.stopMu.Lock()
	defer m.stopMu.Unlock()

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	order := slices.Clone(m.order)
	m.mu.Unlock()

	for _, name := range slices.Backward(order) {
		m.stopModule(ctx, name)
	}
}

func (m *Manager) stopModule(ctx context.Context, name string) {
	m.mu.Lock()
	e := m.entries[name]
	if !e.initRan {
		m.mu.Unlock()
		return
	}
	prev, prevErr := e.status, e.err
	m.setStatusLocked(name, StatusStopping, prevErr)
	m.mu.Unlock()

	var stopErr error
	if s, ok := e.mod.(Stopper); ok {
		stopErr = safeStop(ctx, s, name)
	}
	if m.release != nil {
		m.release(ctx, name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case stopErr != nil:
		m.logger.Warn("module stop failed", "module", name, "error", stopErr)
		m.setStatusLocked(name, StatusError, stopErr)
	case prev == StatusError:
		m.setStatusLocked(name, StatusError, prevErr)
	default:
		m.logger.Info("module stopped", "module", name)
		m.setStatusLocked(name, StatusStopped, nil)
	}
}

func safeStop(ctx context.Context, s Stopper, name string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("module %s: stop panicked: %v", name, r)
		}
	}()
	return s.Stop(ctx)
}

// Status returns a module's lifecycle state and its last error.
func (m *Manager) Status(name string) (Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	return e.status, e.err
}

// Module returns the named module.
func (m *Manager) Module(name string) (Module, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[name]
	if !ok {
		return nil, false
	}
	return e.mod, true
}

// Modules returns a snapshot of every module in the order they were added.
func (m *Manager) Modules() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Info, 0, len(m.added))
	for _, name := range m.added {
		e := m.entries[name]
		info := Info{
			Name:         name,
			Status:       e.status,
			Dependencies: slices.Clone(e.mod.Dependencies()),
		}
		if e.err != nil {
			info.Error = e.err.Error()
		}
		out = append(out, info)
	}
	return out
}

// Names returns the names of every added module.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.added)
}

func (m *Manager) statusOf(name string) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[name].status
}

func (m *Manager) setStatusLocked(name string, status Status, err error) {
	e := m.entries[name]
	e.status = status
	e.err = err
	m.metrics.ModuleStatus(name, string(status))
}

func (m *Manager) partition() (active, failed []string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active, failed = []string{}, []string{}
	for _, name := range m.added {
		switch m.entries[name].status {
		case StatusActive:
			active = append(active, name)
		case StatusError:
			failed = append(failed, name)
		}
	}
	return active, failed
}

// resolveLocked returns a topological order of loadable modules and the
// modules that cannot load because of their dependencies.
func (m *Manager) resolveLocked() ([]string, map[string]error) {
	names := slices.Sorted(maps.Keys(m.entries))
	failed := make(map[string]error)

	for _, name := range names {
		for _, dep := range m.entries[name].mod.Dependencies() {
			if _, ok := m.entries[dep]; !ok {
				failed[name] = &DependencyError{Module: name, Dependency: dep, Reason: ReasonUnknown}
				break
			}
		}
	}

	for _, name := range names {
		if failed[name] != nil {
			continue
		}
		for _, dep := range m.edgesLocked(name) {
			if dep == name || m.reachesLocked(dep, name) {
				failed[name] = &DependencyError{Module: name, Dependency: dep, Reason: ReasonCycle}
				break
			}
		}
	}

	for changed := true; changed; {
		changed = false
		for _, name := range names {
			if failed[name] != nil {
				continue
			}
			for _, dep := range m.entries[name].mod.Dependencies() {
				if failed[dep] != nil {
					failed[name] = &DependencyError{Module: name, Dependency: dep, Reason: ReasonFailed}
					changed = true
					break
				}
			}
		}
	}

	placed := make(map[string]bool, len(names))
	var order []string
	for len(order)+len(failed) < len(names) {
		progress := false
		for _, name := range names {
			if placed[name] || failed[name] != nil {
				continue
			}
			ready := true
			for _, dep := range m.edgesLocked(name) {
				if failed[dep] != nil {
					continue
				}
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				placed[name] = true
				order = append(order, name)
				progress = true
			}
		}
		if !progress {
			break
		}
	}
	return order, failed
}

// edgesLocked returns the known modules name must start after: its
// dependencies followed by the modules it follows.
func (m *Manager) edgesLocked(name string) []string {
	e, ok := m.entries[name]
	if !ok {
		return nil
	}
	var out []string
	for _, dep := range e.mod.Dependencies() {
		if _, ok := m.entries[dep]; ok {
			out = append(out, dep)
		}
	}
	if f, ok := e.mod.(Follower); ok {
		for _, dep := range f.After() {
			if _, ok := m.entries[dep]; ok && dep != name && !slices.Contains(out, dep) {
				out = append(out, dep)
			}
		}
	}
	return out
}

// reachesLocked reports whether target is reachable from start through
// dependency edges. Unknown dependencies are ignored.
func (m *Manager) reachesLocked(start, target string) bool {
	seen := map[string]bool{}
	stack := []string{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == target {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, m.edgesLocked(n)...)
	}
	return false
}

func sortedKeys(m map[string]error) []string {
	return slices.Sorted(maps.Keys(m))
}
