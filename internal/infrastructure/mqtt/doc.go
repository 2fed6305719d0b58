// Package mqtt is the gateway's transport adapter over an MQTT broker.
//
// This package manages:
//   - Background connection with auto-reconnect and exponential backoff
//   - Fire-and-forget publishing with asynchronous failure reporting
//   - Wildcard subscriptions that survive reconnects
//   - Last Will and retained online/offline status for the gateway
//   - Topic builders for {product}/{domain}/{deviceId}/{kind}
//
// # Delivery model
//
// Message handlers run one at a time in arrival order. Publishing returns
// as soon as the message is handed to paho; acknowledgment is watched in a
// separate goroutine. A disconnected client rejects publishes with
// ErrNotConnected instead of queueing them.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.Pattern(mqtt.KindTelemetry), client.QoS(),
//	    func(topic string, payload []byte) error {
//	        return router.Route(ctx, topic, payload)
//	    })
//
//	client.Publish(topics.Command("P42"), envelope, client.QoS(), false)
package mqtt
