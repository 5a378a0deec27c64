package module

import (
	"context"

	"github.com/nerrad567/homecontrol-core/internal/domains"
)

// Status is a module's lifecycle state.
type Status string

const (
	StatusDiscovered   Status = "discovered"
	StatusResolving    Status = "resolving"
	StatusInitializing Status = "initializing"
	StatusActive       Status = "active"
	StatusStopping     Status = "stopping"
	StatusStopped      Status = "stopped"
	StatusError        Status = "error"
)

// Module is a pluggable unit of the hub.
type Module interface {
	Name() string
	Dependencies() []string

	// Init registers the module's configuration domains and items. It
	// must return promptly once ctx is cancelled.
	Init(ctx context.Context) error
}

// Stopper is implemented by modules with a teardown step. Stop may be
// called after a failed or cancelled Init and must tolerate that.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Follower is implemented by modules that start after other modules
// whatever their outcome. Unknown names are ignored and a failed module
// does not fail its followers.
type Follower interface {
	After() []string
}

// Descriptor is a Module assembled from functions. Nil hooks do nothing.
// It also satisfies domains.Approver and domains.Applier, so it can be
// passed as the handler of the module's own configuration domain.
type Descriptor struct {
	ModuleName string
	Requires   []string
	Follows    []string

	OnInit    func(ctx context.Context) error
	OnStop    func(ctx context.Context) error
	OnApprove func(ctx context.Context, domain string, value any) (domains.Verdict, error)
	OnApply   func(ctx context.Context, domain string, value any) error
}

func (d *Descriptor) Name() string { return d.ModuleName }

func (d *Descriptor) Dependencies() []string { return d.Requires }

func (d *Descriptor) After() []string { return d.Follows }

func (d *Descriptor) Init(ctx context.Context) error {
	if d.OnInit == nil {
		return nil
	}
	return d.OnInit(ctx)
}

func (d *Descriptor) Stop(ctx context.Context) error {
	if d.OnStop == nil {
		return nil
	}
	return d.OnStop(ctx)
}

func (d *Descriptor) ApproveConfiguration(ctx context.Context, domain string, value any) (domains.Verdict, error) {
	if d.OnApprove == nil {
		return domains.Abstain, nil
	}
	return d.OnApprove(ctx, domain, value)
}

func (d *Descriptor) ApplyConfiguration(ctx context.Context, domain string, value any) error {
	if d.OnApply == nil {
		return nil
	}
	return d.OnApply(ctx, domain, value)
}

// Info is a snapshot of one module for external consumers.
type Info struct {
	Name         string   `json:"name"`
	Status       Status   `json:"status"`
	Dependencies []string `json:"dependencies"`
	Error        string   `json:"error,omitempty"`
}
