package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publish hands a message to the broker without waiting for acknowledgment.
//
// Validation and connection state are checked synchronously. Delivery is
// watched in the background and failures are reported through the
// WithOnPublishError callback, or logged when no callback is set.
//
// Parameters:
//   - topic: The topic to publish to (e.g., "prod/solar/P42/command")
//   - payload: The message payload (typically JSON, max 1MB)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrPublishFailed (oversized
//     payload) or ErrNotConnected; nil once the publish has been issued
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	go c.watchPublish(topic, token)

	return nil
}

// watchPublish waits for a publish token and reports failure.
func (c *Client) watchPublish(topic string, token pahomqtt.Token) {
	var err error
	if !token.WaitTimeout(c.publishTimeout) {
		err = fmt.Errorf("%w: no acknowledgment after %v", ErrPublishFailed, c.publishTimeout)
	} else if tokenErr := token.Error(); tokenErr != nil {
		err = fmt.Errorf("%w: %w", ErrPublishFailed, tokenErr)
	}
	if err == nil {
		return
	}

	c.callbackMu.RLock()
	callback := c.onPublishError
	c.callbackMu.RUnlock()

	if callback != nil {
		callback(topic, err)
		return
	}
	c.logger.Warn("mqtt publish failed", "topic", topic, "error", err)
}
