// Package eventbus provides a simple publish/subscribe event bus. Plugins and
// components can optionally use this to communicate with each other, for
// example to react to sign-in completions or account link changes without
// coupling packages together.
package eventbus

import (
	"context"

	"github.com/dpup/castauth"
)

// Constant name for identifying the eventbus plugin.
const PluginName = "eventbus"

// Handler processes a message delivered by the bus. Handlers should assume
// that they may be called multiple times concurrently.
type Handler func(context.Context, *Message) error

// Message is a single delivery to a handler.
type Message struct {
	// ID uniquely identifies this message.
	ID string

	// Topic the message was published on.
	Topic string

	// Data is the payload the publisher provided.
	Data any

	// Attempt is 1 for the first delivery and increments on redelivery, for
	// implementations that retry.
	Attempt int

	ack  func()
	nack func()
}

// NewMessage constructs a message for delivery. Intended for use by EventBus
// implementations.
func NewMessage(id, topic string, data any) *Message {
	return &Message{
		ID:      id,
		Topic:   topic,
		Data:    data,
		Attempt: 1,
		ack:     func() {},
		nack:    func() {},
	}
}

// Ack marks the message as successfully processed. For implementations
// without delivery guarantees this is a no-op.
func (m *Message) Ack() {
	m.ack()
}

// Nack signals that processing failed and the message may be redelivered.
func (m *Message) Nack() {
	m.nack()
}

// Plugin registers an eventbus with a castauth server for other plugins to
// use.
func Plugin(eb EventBus) *EventBusPlugin {
	return &EventBusPlugin{EventBus: eb}
}

// EventBusPlugin provides access to an event bus for plugins and components
// to communicate with each other.
type EventBusPlugin struct {
	EventBus
}

// From castauth.Plugin
func (p *EventBusPlugin) Name() string {
	return PluginName
}

var _ castauth.Plugin = &EventBusPlugin{}

// EventBus provides publish/subscribe for broadcast messages and competing
// consumers for queue messages.
type EventBus interface {
	// Subscribe registers a handler for broadcast messages. Every subscriber
	// on the topic receives each published message.
	Subscribe(topic string, handler Handler)

	// Publish sends a message to all subscribers on the topic. Delivery is
	// asynchronous; handler errors may be logged or retried depending on the
	// implementation.
	Publish(topic string, data any)

	// SubscribeQueue registers a handler for queue messages. Each enqueued
	// message is delivered to exactly one of the topic's queue subscribers.
	SubscribeQueue(topic string, handler Handler)

	// Enqueue sends a message to one queue subscriber on the topic.
	Enqueue(topic string, data any)

	// Wait blocks until all pending messages are processed or the context is
	// done. Ensure publishers are stopped first as the bus won't reject new
	// messages.
	Wait(ctx context.Context) error

	// Shutdown stops accepting work and waits for in-flight handlers.
	Shutdown(ctx context.Context) error
}
