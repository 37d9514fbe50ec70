package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// TriggerFunc plays the named script of the given kind. The payload of the
// trigger message is ignored.
type TriggerFunc func(kind, name string)

// SubscribeTriggers subscribes to every trigger topic and calls fn for each
// valid trigger on its own goroutine, so a long run does not hold up
// delivery of later messages. Only one trigger func is kept; a second call
// replaces the first.
func (c *Client) SubscribeTriggers(fn TriggerFunc) error {
	if fn == nil {
		return fmt.Errorf("%w: trigger func cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.mu.Lock()
	c.trigger = fn
	c.mu.Unlock()

	token := c.pc.Subscribe(Topics{}.AllTriggers(), c.qos(), c.dispatch(fn))
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// dispatch adapts fn to a paho handler, logging malformed topics.
func (c *Client) dispatch(fn TriggerFunc) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		if err := deliverTrigger(fn, msg.Topic()); err != nil {
			c.log().Warn("ignoring MQTT trigger", "topic", msg.Topic(), "error", err)
		}
	}
}

// deliverTrigger starts fn for a trigger topic.
func deliverTrigger(fn TriggerFunc, topic string) error {
	kind, name, ok := Topics{}.ParseTrigger(topic)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidTrigger, topic)
	}
	go fn(kind, name)
	return nil
}
