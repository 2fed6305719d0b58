package telemetry

import (
	"context"
	"time"
)

// measurementTelemetry is the InfluxDB measurement for samples.
const measurementTelemetry = "telemetry"

// PointWriter queues time-series points. *influxdb.Client satisfies it.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time)
}

// InfluxRecorder writes samples as points of the "telemetry" measurement,
// tagged by device_id. Numeric payload fields are copied alongside
// generation_kw; other fields are skipped.
type InfluxRecorder struct {
	writer PointWriter
}

// NewInfluxRecorder creates an InfluxDB recorder.
func NewInfluxRecorder(writer PointWriter) *InfluxRecorder {
	return &InfluxRecorder{writer: writer}
}

// Name implements Recorder.
func (r *InfluxRecorder) Name() string { return "influxdb" }

// Record implements Recorder. Writes are batched by the client and
// failures surface through its error callback, so Record returns nil.
func (r *InfluxRecorder) Record(_ context.Context, sample Sample) error {
	fields := make(map[string]any, len(sample.Fields)+1)
	for k, v := range sample.Fields {
		if k == generationField {
			continue
		}
		if f, ok := v.(float64); ok {
			fields[k] = f
		}
	}
	fields["generation_kw"] = sample.GenerationKW

	r.writer.WritePoint(measurementTelemetry,
		map[string]string{"device_id": sample.DeviceID},
		fields,
		sample.ReceivedAt,
	)
	return nil
}
