// Package event implements the hub's publish/subscribe bus.
//
// Handlers are registered per event name and receive an immutable Event.
// A handler registered for AllEvents ("*") receives every event.
//
// Delivery modes:
//   - Broadcast: fire-and-forget; every handler runs as its own tracked
//     scheduler task
//   - Gather: waits for every handler and returns one Result each
//   - BroadcastThreaded: for goroutines the hub does not own (client
//     library callbacks); hands the broadcast to the scheduler run-queue
//     without blocking
//
// A broadcast reaches exactly the handlers registered when it starts.
// Handler errors and panics are logged and never reach the broadcaster or
// sibling handlers.
//
// # Usage
//
//	tok, err := bus.Register(event.StateChange, func(ctx context.Context, ev event.Event) (any, error) {
//	    changes, _ := ev.Get("changes")
//	    ...
//	    return nil, nil
//	})
//	defer bus.RemoveHandler(tok)
//
//	bus.Broadcast(event.StateChange, map[string]any{"item": it, "changes": changes})
package event
