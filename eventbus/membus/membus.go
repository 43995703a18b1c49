// Package membus is the in-process implementation of eventbus.EventBus. It
// backs auth notifications such as login and farcaster.linked events in
// single-binary deployments, where a broker would be overkill. Handlers run
// asynchronously on a shared worker pool.
package membus

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/dpup/castauth/errors"
	"github.com/dpup/castauth/eventbus"
	"github.com/dpup/castauth/logging"
	"github.com/google/uuid"
)

const (
	defaultWorkers = 100
	taskBuffer     = 500
)

// Option configures the bus.
type Option func(*Bus)

// WithWorkerPool sets the number of worker goroutines for processing events.
// Default is 100 workers. Set to 0 to run each handler on its own goroutine.
func WithWorkerPool(size int) Option {
	return func(b *Bus) {
		b.workers = size
	}
}

// New returns a new in-memory EventBus. ctx becomes the base context handlers
// execute under.
func New(ctx context.Context, opts ...Option) eventbus.EventBus {
	b := &Bus{
		baseCtx: logging.With(ctx, logging.FromContext(ctx).Named("eventbus")),
		workers: defaultWorkers,
		tasks:   make(chan task, taskBuffer),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// task pairs a handler with the message it should receive.
type task struct {
	ctx     context.Context
	handler eventbus.Handler
	msg     *eventbus.Message
}

// queue tracks the subscribers of one queue topic and the round-robin cursor
// used to pick the next one.
type queue struct {
	handlers []eventbus.Handler
	next     atomic.Uint64
}

// Bus is an in-memory implementation of EventBus.
type Bus struct {
	baseCtx context.Context

	mu          sync.Mutex // Protects the subscriber maps and started.
	subscribers map[string][]eventbus.Handler
	queues      map[string]*queue
	started     bool

	wg      sync.WaitGroup // Tracks in-flight handlers.
	tasks   chan task
	workers int
}

// Subscribe registers a handler for broadcast messages. Every subscriber of a
// topic receives every message published to it.
func (b *Bus) Subscribe(topic string, handler eventbus.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers == nil {
		b.subscribers = make(map[string][]eventbus.Handler)
	}
	b.subscribers[topic] = append(b.subscribers[topic], handler)
}

// Publish sends a message to all subscribers of the topic.
func (b *Bus) Publish(topic string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := b.subscribers[topic]
	if len(handlers) == 0 {
		return
	}

	ctx := b.topicCtx(topic)
	logging.Infow(ctx, "publishing message", "data", data)
	for _, handler := range handlers {
		b.dispatch(ctx, handler, eventbus.NewMessage(uuid.NewString(), topic, data))
	}
}

// SubscribeQueue registers a handler for queue messages. Unlike broadcast
// subscribers, each enqueued message goes to exactly one of a topic's queue
// subscribers.
func (b *Bus) SubscribeQueue(topic string, handler eventbus.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.queues == nil {
		b.queues = make(map[string]*queue)
	}
	q := b.queues[topic]
	if q == nil {
		q = &queue{}
		b.queues[topic] = q
	}
	q.handlers = append(q.handlers, handler)
}

// Enqueue sends a message to one queue subscriber, selected round-robin.
func (b *Bus) Enqueue(topic string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queues[topic]
	if q == nil || len(q.handlers) == 0 {
		return
	}

	ctx := b.topicCtx(topic)
	logging.Infow(ctx, "enqueueing message", "data", data)

	handler := q.handlers[(q.next.Add(1)-1)%uint64(len(q.handlers))]
	b.dispatch(ctx, handler, eventbus.NewMessage(uuid.NewString(), topic, data))
}

// dispatch hands a message to a handler, via the pool or a fresh goroutine.
// Callers hold b.mu; workers start lazily on the first message.
func (b *Bus) dispatch(ctx context.Context, handler eventbus.Handler, msg *eventbus.Message) {
	if !b.started {
		b.started = true
		for range b.workers {
			go b.worker()
		}
	}

	b.wg.Add(1)
	if b.workers == 0 {
		go b.run(ctx, handler, msg)
	} else {
		b.tasks <- task{ctx: ctx, handler: handler, msg: msg}
	}
}

func (b *Bus) topicCtx(topic string) context.Context {
	return logging.With(b.baseCtx, logging.FromContext(b.baseCtx).Named(topic))
}

func (b *Bus) worker() {
	for t := range b.tasks {
		b.run(t.ctx, t.handler, t.msg)
	}
}

// run executes a single handler. Handler errors and panics are logged, never
// propagated; a bad subscriber must not take down publishers.
func (b *Bus) run(ctx context.Context, handler eventbus.Handler, msg *eventbus.Message) {
	defer func() {
		if r := recover(); r != nil {
			logging.Errorw(ctx, "eventbus: recovered from panic",
				"error", r, "error.stack_trace", string(debug.Stack()))
		}
		b.wg.Done()
	}()
	if err := handler(ctx, msg); err != nil {
		logging.Errorw(ctx, "eventbus: handler error", "error", err, "message_id", msg.ID)
	}
}

// Shutdown stops the worker pool after draining in-flight handlers. The bus
// must not be published to afterwards.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.started && b.workers > 0 {
		close(b.tasks)
	}
	b.mu.Unlock()

	return b.Wait(ctx)
}

// Wait blocks until all pending messages are processed or ctx expires.
func (b *Bus) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.wg.Wait()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.New("eventbus: timeout waiting for handlers to finish")
	}
}
