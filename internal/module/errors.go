package module

import (
	"errors"
	"fmt"
)

var (
	// ErrDependency matches every DependencyError.
	ErrDependency = errors.New("module: dependency error")

	// ErrDuplicateModule is returned when two modules share a name.
	ErrDuplicateModule = errors.New("module: duplicate module name")

	// ErrModuleNotFound is returned for an unknown module name.
	ErrModuleNotFound = errors.New("module: not found")

	// ErrAlreadyInitialized is returned by Add and Init after Init ran.
	ErrAlreadyInitialized = errors.New("module: manager already initialized")

	// ErrInitPanic wraps a panic recovered from a module's Init.
	ErrInitPanic = errors.New("module: init panicked")
)

// Reasons a dependency can fail a module.
const (
	ReasonUnknown = "is not available"
	ReasonCycle   = "forms a dependency cycle"
	ReasonFailed  = "failed to load"
)

// DependencyError reports why a module could not be loaded because of one
// of its dependencies.
type DependencyError struct {
	Module     string
	Dependency string
	Reason     string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("module %s: dependency %s %s", e.Module, e.Dependency, e.Reason)
}

// Is makes errors.Is(err, ErrDependency) true.
func (e *DependencyError) Is(target error) bool {
	return target == ErrDependency
}
