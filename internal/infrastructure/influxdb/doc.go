// Package influxdb records the gateway's time series in InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library. Writes go through the
// non-blocking WriteAPI, so recording telemetry never waits on the network.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) {
//	    logger.Warn("influxdb write failed", "error", err)
//	})
//	client.WritePoint("telemetry", tags, fields, ts)
package influxdb
