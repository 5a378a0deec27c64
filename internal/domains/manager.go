package domains

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/nerrad567/homecontrol-core/internal/infrastructure/config"
	"github.com/nerrad567/homecontrol-core/internal/schema"
)

// Verdict is a handler's answer to a proposed domain value.
type Verdict int

const (
	// Abstain accepts the value without an explicit opinion.
	Abstain Verdict = iota
	// Approve accepts the value.
	Approve
	// Reject refuses the value; the caller gets ErrNotApproved.
	Reject
)

// Approver is implemented by domain handlers that vet new values.
type Approver interface {
	ApproveConfiguration(ctx context.Context, domain string, value any) (Verdict, error)
}

// Applier is implemented by domain handlers that can switch to a new value
// at runtime.
type Applier interface {
	ApplyConfiguration(ctx context.Context, domain string, value any) error
}

// Options describes a domain registration. Every field is optional.
type Options struct {
	// Handler may implement Approver and/or Applier.
	Handler any

	// Schema validates and coerces the raw value.
	Schema schema.Schema

	// AllowReload lets Reload replace the value at runtime.
	AllowReload bool

	// Default is used when the document has no value for the domain.
	Default any
}

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

type registration struct {
	opts     Options
	approved any
	ok       bool
}

// ReloadResult lists what Reload did per changed domain.
type ReloadResult struct {
	Updated []string
	Skipped []string
	Failed  map[string]error
}

// Manager owns the domain table.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Handler hooks are called without internal locks held.
type Manager struct {
	source config.Source

	mu      sync.RWMutex
	raw     config.Document
	domains map[string]*registration

	reloadMu sync.Mutex
	logger   Logger
}

// NewManager creates a manager over an already loaded document. source is
// read again by Reload; it may be nil when reloading is not needed.
func NewManager(doc config.Document, source config.Source) *Manager {
	raw := make(config.Document, len(doc))
	for k, v := range doc {
		raw[k] = schema.Copy(v)
	}
	return &Manager{
		source:  source,
		raw:     raw,
		domains: make(map[string]*registration),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger.
func (m *Manager) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Register claims a domain and returns its approved value.
//
// The raw value comes from the document, or opts.Default when the domain
// is absent. A failed approval still claims the domain: a later Register
// fails with ErrAlreadyRegistered, and a reloadable domain can be fixed by
// a subsequent Reload.
//
// Returns:
//   - any: the approved value, which the caller treats as authoritative
//   - error: ErrAlreadyRegistered, a schema.ErrInvalid error, ErrNotApproved
//     or an error returned by the approval hook
func (m *Manager) Register(ctx context.Context, domain string, opts Options) (any, error) {
	m.mu.Lock()
	if _, exists := m.domains[domain]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, domain)
	}
	reg := &registration{opts: opts}
	m.domains[domain] = reg
	raw, ok := m.raw[domain]
	if !ok {
		raw = opts.Default
	}
	raw = schema.Copy(raw)
	m.mu.Unlock()

	approved, err := m.approve(ctx, domain, opts, raw)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	reg.approved = approved
	reg.ok = true
	m.mu.Unlock()

	m.logger.Debug("configuration domain registered", "domain", domain, "reloadable", opts.AllowReload)
	return schema.Copy(approved), nil
}

// approve runs schema validation then the handler's approval hook.
func (m *Manager) approve(ctx context.Context, domain string, opts Options, raw any) (any, error) {
	value := raw
	if opts.Schema != nil {
		v, err := opts.Schema.Validate(raw)
		if err != nil {
			m.logger.Error("configuration for domain is invalid", "domain", domain, "error", err)
			return nil, fmt.Errorf("domain %s: %w", domain, err)
		}
		value = v
	}

	approver, ok := opts.Handler.(Approver)
	if !ok {
		return value, nil
	}

	verdict, err := approver.ApproveConfiguration(ctx, domain, schema.Copy(value))
	if err != nil {
		return nil, fmt.Errorf("approving domain %s: %w", domain, err)
	}
	if verdict == Reject {
		m.logger.Warn("configuration for domain not approved", "domain", domain)
		return nil, fmt.Errorf("%w: %s", ErrNotApproved, domain)
	}
	return value, nil
}

// Get returns the current value of a domain: the approved value for a
// registered domain, otherwise the raw document value.
func (m *Manager) Get(domain string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if reg, ok := m.domains[domain]; ok {
		if !reg.ok {
			return nil, false
		}
		return schema.Copy(reg.approved), true
	}
	v, ok := m.raw[domain]
	return schema.Copy(v), ok
}

// Registered returns the claimed domain names, sorted.
func (m *Manager) Registered() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.domains))
	for name := range m.domains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reload re-reads the source and updates changed domains.
//
// Returns an error only when the source cannot be read; per-domain
// outcomes are in the result.
func (m *Manager) Reload(ctx context.Context) (ReloadResult, error) {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	result := ReloadResult{Failed: map[string]error{}}
	if m.source == nil {
		return result, fmt.Errorf("domains: no configuration source")
	}

	doc, err := m.source.Load()
	if err != nil {
		return result, fmt.Errorf("reloading configuration: %w", err)
	}

	m.logger.Info("updating the configuration")
	for _, domain := range changedDomains(m.snapshotRaw(), doc) {
		newRaw, present := doc[domain]
		m.reloadDomain(ctx, domain, newRaw, present, &result)
	}
	m.logger.Info("configuration update complete",
		"updated", len(result.Updated),
		"skipped", len(result.Skipped),
		"failed", len(result.Failed),
	)
	return result, nil
}

func (m *Manager) reloadDomain(ctx context.Context, domain string, newRaw any, present bool, result *ReloadResult) {
	m.mu.RLock()
	reg, registered := m.domains[domain]
	m.mu.RUnlock()

	if !registered {
		m.storeRaw(domain, newRaw, present)
		m.logger.Debug("unclaimed configuration domain changed", "domain", domain)
		return
	}

	m.logger.Info("new configuration detected for domain", "domain", domain)
	if !reg.opts.AllowReload {
		m.logger.Error("configuration domain is not reloadable", "domain", domain)
		result.Skipped = append(result.Skipped, domain)
		return
	}

	raw := newRaw
	if !present {
		raw = reg.opts.Default
	}
	approved, err := m.approve(ctx, domain, reg.opts, schema.Copy(raw))
	if err != nil {
		result.Failed[domain] = err
		return
	}

	if applier, ok := reg.opts.Handler.(Applier); ok {
		if err := applier.ApplyConfiguration(ctx, domain, schema.Copy(approved)); err != nil {
			m.logger.Error("applying configuration failed", "domain", domain, "error", err)
			result.Failed[domain] = fmt.Errorf("applying domain %s: %w", domain, err)
			return
		}
	}

	m.mu.Lock()
	reg.approved = approved
	reg.ok = true
	m.mu.Unlock()
	m.storeRaw(domain, newRaw, present)

	m.logger.Info("configuration for domain updated", "domain", domain)
	result.Updated = append(result.Updated, domain)
}

func (m *Manager) snapshotRaw() config.Document {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(config.Document, len(m.raw))
	for k, v := range m.raw {
		out[k] = v
	}
	return out
}

func (m *Manager) storeRaw(domain string, value any, present bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !present {
		delete(m.raw, domain)
		return
	}
	m.raw[domain] = schema.Copy(value)
}

// changedDomains returns the sorted names whose raw value differs between
// old and new, including domains present in only one of them.
func changedDomains(old, next config.Document) []string {
	var changed []string
	for name, v := range next {
		prev, ok := old[name]
		if !ok || !reflect.DeepEqual(prev, v) {
			changed = append(changed, name)
		}
	}
	for name := range old {
		if _, ok := next[name]; !ok {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)
	return changed
}
