package mqtt

import "strings"

// DefaultPrefix roots every topic when the mqtt domain sets none.
const DefaultPrefix = "homecontrol"

// Topics builds the hub's MQTT topic names under Prefix.
//
//	topics := mqtt.Topics{Prefix: "home"}
//	topics.ItemState("lamp1") // "home/lamp1/state"
type Topics struct {
	Prefix string
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// SystemStatus returns the retained hub status topic.
//
// Example: homecontrol/system/status
func (t Topics) SystemStatus() string {
	return t.root() + "/system/status"
}

// ItemState returns the retained state topic of an item.
//
// Example: homecontrol/lamp1/state
func (t Topics) ItemState(itemID string) string {
	return t.root() + "/" + itemID + "/state"
}

// ItemCommand returns the topic commands for an item are received on.
//
// Example: homecontrol/lamp1/set
func (t Topics) ItemCommand(itemID string) string {
	return t.root() + "/" + itemID + "/set"
}

// Event returns the topic a bus event is mirrored to.
//
// Example: homecontrol/event/module_loaded
func (t Topics) Event(name string) string {
	return t.root() + "/event/" + name
}

// AllItemCommands returns a pattern matching every item command topic.
//
// Pattern: homecontrol/+/set
func (t Topics) AllItemCommands() string {
	return t.root() + "/+/set"
}

// ItemFromTopic extracts the item identifier from an item state or command
// topic.
func (t Topics) ItemFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.root()+"/")
	if !ok {
		return "", false
	}
	id, kind, ok := strings.Cut(rest, "/")
	if !ok || id == "" || id == "system" || id == "event" || (kind != "state" && kind != "set") {
		return "", false
	}
	return id, true
}

// Match reports whether topic matches filter, which may contain the MQTT
// wildcards + (one level) and # (remaining levels).
func Match(filter, topic string) bool {
	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")
	for i, f := range fl {
		switch {
		case f == "#":
			return true
		case i >= len(tl):
			return false
		case f != "+" && f != tl[i]:
			return false
		}
	}
	return len(fl) == len(tl)
}
