package event

import (
	"context"
	"encoding/json"
	"time"
)

// Event is a named notification with a payload. It is immutable: the
// payload map is copied on construction and on every Data call.
type Event struct {
	Name string
	Time time.Time
	data map[string]any
}

// New creates an Event stamped with the current time.
func New(name string, data map[string]any) Event {
	return Event{
		Name: name,
		Time: time.Now().UTC(),
		data: copyData(data),
	}
}

// Get returns one payload value.
func (e Event) Get(key string) (any, bool) {
	v, ok := e.data[key]
	return v, ok
}

// Data returns a copy of the payload.
func (e Event) Data() map[string]any {
	return copyData(e.data)
}

// MarshalJSON encodes the event for external consumers such as the
// websocket stream.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Event string         `json:"event"`
		Time  time.Time      `json:"time"`
		Data  map[string]any `json:"data"`
	}{
		Event: e.Name,
		Time:  e.Time,
		Data:  e.data,
	})
}

func copyData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

// Handler processes one event. The returned value is only observed by
// Gather; errors are logged by Broadcast and reported by Gather.
type Handler func(ctx context.Context, ev Event) (any, error)

// Token identifies one registration. Pass it to RemoveHandler.
type Token struct {
	name string
	id   uint64
}

// Name returns the event name the token was registered for.
func (t Token) Name() string {
	return t.name
}

// Result is one handler's outcome from Gather.
type Result struct {
	Token Token
	Value any
	Err   error
}
