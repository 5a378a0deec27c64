// Package item implements the item registry and per-item state stores.
//
// An item is a device or logical unit exposed by a module. It has:
//   - an identifier, unique within the process
//   - a unique identifier, stable across restarts (derived from type and
//     identifier when the module does not supply one)
//   - a type tag of the form "<module>.<Type>"
//   - a status: offline, online or unavailable
//   - an explicit action table (name to Action)
//   - a Store holding one schema-validated value per declared state
//
// State definitions and actions are plain data supplied in a Spec when the
// item is built; nothing is discovered by reflection.
//
// # Events
//
// The registry and stores publish on the event bus:
//   - item_created / item_removed on RegisterItem / RemoveItem
//   - state_change with the item and only the changed values
//   - item_status_changed with the previous and new status
//   - item_not_working when a configured item fails to start
//
// # Concurrency
//
// Stores lock only to keep their maps consistent. Two concurrent Set calls
// on the same state are not ordered; the last write wins. Callers needing
// stronger ordering serialise themselves.
//
// # Usage
//
//	it, err := registry.NewItem(item.Spec{
//	    ID:   "lamp1",
//	    Type: "switches.Switch",
//	    States: item.States{
//	        "on": {Schema: schema.Bool(), Default: false},
//	    },
//	})
//	err = registry.RegisterItem(it)
//	changes, err := it.States().Set(ctx, "on", true) // {"on": true}
package item
