// Package mqttbridge connects the hub to an MQTT broker.
//
// The module owns the mqtt domain:
//
//	mqtt:
//	  broker:
//	    host: mosquitto
//	    port: 1883
//	  auth:
//	    username: hub
//	    password: ${MQTT_PASSWORD}
//	  qos: 1
//	  state_prefix: homecontrol
//	  subscribe: [zigbee2mqtt/#]
//	  publish_events: [module_loaded, automation_triggered]
//
// Item state is mirrored to <state_prefix>/<item>/state as a retained JSON
// object and commands are taken from <state_prefix>/<item>/set. The bridge
// also registers the mqttbridge.Switch item type for on/off devices that
// speak plain payloads on a command topic.
package mqttbridge
