package event

// AllEvents subscribes a handler to every event name.
const AllEvents = "*"

// Events published by the kernel.
const (
	// BootstrapComplete fires once every module is active or failed.
	// Payload: "active" and "failed" ([]string of module names).
	BootstrapComplete = "core_bootstrap_complete"

	// ConfigReloaded fires after a configuration reload.
	// Payload: "updated", "skipped" ([]string) and "failed" (map[string]string).
	ConfigReloaded = "core_config_reloaded"

	// ModuleLoaded fires when a module becomes active. Payload: "module".
	ModuleLoaded = "module_loaded"

	// ModuleFailed fires when a module ends in the error state.
	// Payload: "module", "error".
	ModuleFailed = "module_failed"

	// ItemCreated and ItemRemoved fire on registry changes. Payload: "item".
	ItemCreated = "item_created"
	ItemRemoved = "item_removed"

	// ItemStatusChanged fires on item status transitions.
	// Payload: "item", "previous", "status".
	ItemStatusChanged = "item_status_changed"

	// ItemNotWorking fires when a configured item fails to initialise.
	// Payload: "item", "error".
	ItemNotWorking = "item_not_working"

	// StateChange fires when an item's store accepts changed values.
	// Payload: "item", "changes" (map[string]any of state name to value).
	StateChange = "state_change"
)
