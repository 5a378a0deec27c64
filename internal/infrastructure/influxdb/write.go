package influxdb

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement and tag names of recorded item state.
const (
	MeasurementItemState = "item_state"
	TagItemID            = "item_identifier"
	TagItemUniqueID      = "item_unique_identifier"
)

// ItemStatePoint builds the point for one state change.
//
// Returns ErrNoFields when changes is empty.
func ItemStatePoint(itemID, uniqueID string, changes map[string]any, ts time.Time) (*write.Point, error) {
	if len(changes) == 0 {
		return nil, ErrNoFields
	}

	fields := make(map[string]interface{}, len(changes))
	for name, v := range changes {
		fv, err := fieldValue(v)
		if err != nil {
			return nil, fmt.Errorf("influxdb: state %s: %w", name, err)
		}
		fields[name] = fv
	}

	return write.NewPoint(
		MeasurementItemState,
		map[string]string{
			TagItemID:       itemID,
			TagItemUniqueID: uniqueID,
		},
		fields,
		ts,
	), nil
}

// fieldValue returns v as a type the line protocol supports natively, or
// its JSON encoding.
func fieldValue(v any) (interface{}, error) {
	switch x := v.(type) {
	case bool, string, float64, float32, int, int64, int32, uint, uint64:
		return x, nil
	case nil:
		return "null", nil
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
}

// WriteItemState records one state change. The write is non-blocking.
func (c *Client) WriteItemState(itemID, uniqueID string, changes map[string]any, ts time.Time) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	point, err := ItemStatePoint(itemID, uniqueID, changes, ts)
	if err != nil {
		return err
	}
	c.writer.WritePoint(point)
	return nil
}

// WritePoint writes a custom point stamped with the current time.
//
// Example:
//
//	client.WritePoint("hub_stats",
//	    map[string]string{"instance": id},
//	    map[string]interface{}{"items": 12})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
