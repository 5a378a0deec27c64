package influxdb

import "errors"

// Sentinel errors for InfluxDB operations.
var (
	// ErrNotConnected indicates the client is not connected to InfluxDB.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled indicates InfluxDB recording is disabled in the configuration.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrNoFields is returned when a state change has nothing to record.
	ErrNoFields = errors.New("influxdb: point has no fields")
)
