package mqtt

import (
	"fmt"
)

// Subscribe registers a handler for messages matching a topic filter.
//
// Filters may use the + and # wildcards. Subscribing again to the same
// filter replaces its handler. Subscriptions are forgotten when the link
// drops and are not restored by the client; the connect callback is the
// place to subscribe again.
//
// Example:
//
//	err := client.Subscribe("proximity/#", 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("received: %s = %s", topic, payload)
//	        return nil
//	    })
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	if c.isClosed() {
		return ErrClosed
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{
		topic:   topic,
		qos:     qos,
		handler: handler,
	}
	c.subMu.Unlock()

	return nil
}

// SubscriptionCount returns the number of filters the broker has
// acknowledged on the current connection.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// clearSubscriptions forgets acknowledged filters when the link goes away.
func (c *Client) clearSubscriptions() {
	c.subMu.Lock()
	clear(c.subscriptions)
	c.subMu.Unlock()
}
