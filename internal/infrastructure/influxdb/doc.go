// Package influxdb records item state history in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health checks.
//
// Every accepted state change becomes one point:
//
//	item_state,item_identifier=lamp1,item_unique_identifier=<uuid> on=true
//
// Booleans, integers, floats and strings are written as native fields;
// any other value is written as its JSON encoding.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteItemState("lamp1", uniqueID, map[string]any{"on": true}, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
//
// # Error Handling
//
// Writes are batched and asynchronous; their errors are delivered to the
// callback set with SetOnError. Connection and health check errors are
// returned directly.
package influxdb
