// Package reload carries configuration-change notifications raised on
// SIGHUP, separate from the message broadcast bus used by WebSocket
// subscribers.
package reload

import (
	evbus "github.com/asaskevich/EventBus"
)

// Topic names a config-reload event.
type Topic string

const (
	// TopicNewConfig fires whenever a new configuration was loaded.
	TopicNewConfig Topic = "config.new"
	// TopicLogFile fires when the configured log destination changed.
	TopicLogFile Topic = "config.log_file"
	// TopicLogReopen fires when the log file should be reopened in place.
	TopicLogReopen Topic = "config.log_reopen"
)

// Bus wraps an EventBus instance with typed Subscribe/Publish helpers.
type Bus struct {
	bus evbus.Bus
}

// New returns a ready-to-use Bus.
func New() *Bus {
	return &Bus{bus: evbus.New()}
}

// Subscribe registers fn to be called whenever topic is published.
func (b *Bus) Subscribe(topic Topic, fn func()) error {
	return b.bus.Subscribe(string(topic), fn)
}

// Unsubscribe removes a previously registered handler.
func (b *Bus) Unsubscribe(topic Topic, fn func()) error {
	return b.bus.Unsubscribe(string(topic), fn)
}

// Publish fires every handler registered for topic, synchronously.
func (b *Bus) Publish(topic Topic) {
	b.bus.Publish(string(topic))
}
