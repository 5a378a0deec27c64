// Package mqtt connects the hub to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS validation and a payload size limit
//   - Subscriptions that are restored after a reconnect
//   - Last Will and Testament (LWT) on the system status topic
//
// Topic names are built with Topics, rooted at the configured prefix
// ("homecontrol" by default):
//
//	homecontrol/system/status        online/offline, retained, LWT
//	homecontrol/<item>/state         item state, retained JSON
//	homecontrol/<item>/set           commands towards an item
//	homecontrol/event/<name>         mirrored bus events
//
// # Usage
//
//	client, err := mqtt.Connect(cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().AllItemCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        id, _ := client.Topics().ItemFromTopic(topic)
//	        return handle(id, payload)
//	    })
//
// Handlers run on paho's goroutines. Code that touches kernel state from
// a handler must hand the work to the scheduler first.
package mqtt
