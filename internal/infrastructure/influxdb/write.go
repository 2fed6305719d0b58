package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePoint queues a point for the batched writer.
//
// Tags should be low cardinality (device_id). Fields carry the values.
// The call never blocks on the network and is dropped when disconnected.
//
// Example:
//
//	client.WritePoint("telemetry",
//	    map[string]string{"device_id": "P42"},
//	    map[string]any{"generation_kw": 12.0},
//	    sample.ReceivedAt)
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
