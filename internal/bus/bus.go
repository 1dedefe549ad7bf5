package bus

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Handler receives a delivered message.
type Handler func(Message)

type subscription struct {
	id      int
	source  Source
	handler Handler
}

// Bus dispatches messages to subscribed handlers. Delivery is fire-and-forget
// and at-most-once per send; messages from one sender arrive in send order
// because Publish dispatches synchronously. There is no acknowledgment layer;
// confirmation must be a reply message type.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Type][]subscription
	nextID int
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[Type][]subscription)}
}

// Endpoint binds a logical role to the bus. All sends are stamped with the
// role, and all subscriptions made through it ignore the role's own messages.
type Endpoint struct {
	bus    *Bus
	source Source
}

// Endpoint returns a bus endpoint for the given role.
func (b *Bus) Endpoint(source Source) *Endpoint {
	return &Endpoint{bus: b, source: source}
}

// Send marshals payload and publishes a message of type t from this endpoint's
// role. Sending an unknown type is a programming error and is rejected.
func (e *Endpoint) Send(t Type, payload any) error {
	if !Known(t) {
		return fmt.Errorf("bus: refusing to send unknown type %q", t)
	}
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("bus: marshal %s payload: %w", t, err)
		}
		raw = data
	}
	e.bus.Publish(Message{Type: t, Source: e.source, Payload: raw})
	return nil
}

// On subscribes handler to messages of type t (or Wildcard for all types).
// Messages sent by this endpoint's own role and messages outside the
// vocabulary are filtered out before the handler runs. The returned function
// removes the subscription.
func (e *Endpoint) On(t Type, handler Handler) func() {
	return e.bus.subscribe(t, e.source, handler)
}

// Publish delivers an already-formed message to matching subscribers.
// Messages of unrecognized types are dropped.
func (b *Bus) Publish(msg Message) {
	if !Known(msg.Type) {
		return
	}

	b.mu.RLock()
	matched := make([]subscription, 0, len(b.subs[msg.Type])+len(b.subs[Wildcard]))
	matched = append(matched, b.subs[msg.Type]...)
	matched = append(matched, b.subs[Wildcard]...)
	b.mu.RUnlock()

	for _, sub := range matched {
		if sub.source == msg.Source {
			continue // no self-echo
		}
		sub.handler(msg)
	}
}

func (b *Bus) subscribe(t Type, source Source, handler Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[t] = append(b.subs[t], subscription{id: id, source: source, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[t]
		for i, sub := range subs {
			if sub.id == id {
				b.subs[t] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}
