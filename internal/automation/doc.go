// Package automation runs rules and scenes.
//
// A rule pairs a trigger with an action. Triggers fire on a bus event whose
// payload contains given data, on a change of one item state, or on a
// timer. An optional Starlark condition sees the event as a dict and can
// veto the action. Actions set item states, run an item action or
// activate a scene; var_data fills values from the trigger payload with
// gjson paths.
//
// Scenes are ordered item changes. Steps marked parallel run concurrently
// with the previous step, the rest run one group after another.
//
//	scenes:
//	  - alias: evening
//	    actions:
//	      - target: living_light
//	        states: {on: true}
//	      - target: kitchen_light
//	        states: {on: true}
//	        parallel: true
//	      - target: blinds
//	        action: close
//	        delay_ms: 500
//
//	automation:
//	  - alias: evening at dusk
//	    trigger:
//	      provider: event
//	      type: mqtt_message_received
//	      data: {topic: sensors/outdoor/lux}
//	    condition: float(event["data"]["payload"]) < 20
//	    action:
//	      provider: scene
//	      target: evening
//
// # Thread Safety
//
// Registry and Engine are safe for concurrent use from multiple goroutines.
// Both domains are reloadable; a reload swaps the whole rule or scene set.
package automation
