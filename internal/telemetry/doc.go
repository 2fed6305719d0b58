// Package telemetry turns inbound device messages into samples and alerts.
//
// The Router splits topics of the form {product}/{domain}/{deviceId}/{kind}
// and decodes the payload. Telemetry goes to the Pipeline, which records the
// sample and then hands it to the control engine. Alerts go to an AlertSink.
//
// Malformed topics and payloads are logged and dropped. Telemetry is a
// continuous stream, so the next sample supersedes a lost one and nothing is
// retried here.
//
// Recording never blocks the control path: each Recorder runs with a bounded
// timeout and its failure is logged, then the sample handlers run regardless.
package telemetry
