package bus

import (
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/crossing/internal/logging"
)

// Message is one published payload.
type Message struct {
	Topic   string
	Payload []byte
}

// Handler handles a delivered message. Handlers must not modify the payload.
type Handler func(Message)

// Transport is the publish/subscribe surface participants depend on.
type Transport interface {
	Publish(topic string, payload []byte)
	Subscribe(pattern string, handler Handler) string
	Unsubscribe(id string) bool
}

// subscription represents a registered handler.
type subscription struct {
	id      string
	pattern []string
	handler Handler
}

// Bus is a synchronous in-process topic bus. Handlers run on the
// publisher's goroutine in registration order.
type Bus struct {
	mu            sync.RWMutex
	subscriptions []subscription
	nextID        atomic.Uint64
	published     atomic.Uint64
	logger        *logging.Logger
}

// New creates a Bus. Handler panics are reported to logger; a nil logger
// discards them.
func New(logger *logging.Logger) *Bus {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Bus{logger: logger}
}

// Subscribe registers handler for every topic matching pattern. Pattern
// segments are separated by "/"; "*" matches exactly one segment and a
// trailing "**" matches any number of remaining segments, including none.
// Returns a subscription ID that can be used to unsubscribe.
func (b *Bus) Subscribe(pattern string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := "sub-" + strconv.FormatUint(b.nextID.Add(1), 10)
	b.subscriptions = append(b.subscriptions, subscription{
		id:      id,
		pattern: strings.Split(pattern, "/"),
		handler: handler,
	})
	return id
}

// Unsubscribe removes a subscription by ID.
// Returns true if the subscription was found and removed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscriptions {
		if sub.id == id {
			b.subscriptions = append(b.subscriptions[:i:i], b.subscriptions[i+1:]...)
			return true
		}
	}
	return false
}

// Publish delivers payload to every handler whose pattern matches topic.
// If a handler panics, the panic is logged, recovered, and delivery
// continues to the remaining handlers.
func (b *Bus) Publish(topic string, payload []byte) {
	b.published.Add(1)
	segments := strings.Split(topic, "/")

	b.mu.RLock()
	var matched []subscription
	for _, sub := range b.subscriptions {
		if Match(sub.pattern, segments) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	msg := Message{Topic: topic, Payload: payload}
	for _, sub := range matched {
		b.safeCall(sub.handler, msg)
	}
}

// safeCall invokes a handler and recovers from any panics so one
// misbehaving handler cannot block delivery to the others.
func (b *Bus) safeCall(handler Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bus handler panicked",
				"topic", msg.Topic,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	handler(msg)
}

// Match reports whether topic segments match pattern segments.
func Match(pattern, topic []string) bool {
	for i, p := range pattern {
		if p == "**" {
			return i == len(pattern)-1
		}
		if i >= len(topic) {
			return false
		}
		if p != "*" && p != topic[i] {
			return false
		}
	}
	return len(pattern) == len(topic)
}

// MatchString is Match over "/"-separated strings.
func MatchString(pattern, topic string) bool {
	return Match(strings.Split(pattern, "/"), strings.Split(topic, "/"))
}

// Clear removes all subscriptions.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions = nil
}

// SubscriptionCount returns the number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

// Published returns the number of messages published so far.
func (b *Bus) Published() uint64 {
	return b.published.Load()
}

// Filter wraps a Transport and silently drops outbound messages for which
// drop returns true. It simulates an unreliable network in tests and demos.
type Filter struct {
	Transport
	drop func(topic string) bool
}

// NewFilter wraps t with the drop predicate.
func NewFilter(t Transport, drop func(topic string) bool) *Filter {
	return &Filter{Transport: t, drop: drop}
}

// Publish forwards the message unless it is dropped.
func (f *Filter) Publish(topic string, payload []byte) {
	if f.drop != nil && f.drop(topic) {
		return
	}
	f.Transport.Publish(topic, payload)
}
