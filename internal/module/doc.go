// Package module loads, starts and stops the hub's modules.
//
// A module declares the modules it depends on. Init resolves the
// dependency graph, fails modules with an unknown dependency or a
// dependency cycle (and every module depending on them) with a
// DependencyError, then initialises the rest. Modules without a
// dependency relationship initialise concurrently; a module starts only
// after all of its dependencies are active, and fails if any of them
// failed.
//
// # Lifecycle
//
//	discovered → resolving → initializing → active → stopping → stopped
//	                   ↘            ↘
//	                    error        error
//
// Stop tears modules down in reverse dependency order. Teardown is
// best-effort: one module's failure is logged and the others still stop.
// Stop is idempotent.
//
// # Events
//
//   - module_loaded when a module becomes active
//   - module_failed when a module ends in the error state
//   - core_bootstrap_complete once every module is active or failed
package module
