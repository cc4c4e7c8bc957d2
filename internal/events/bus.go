/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	EventLicenseCreated    EventType = "license.created"
	EventLicenseActivated  EventType = "license.activated"
	EventGrantCreated      EventType = "grant.created"
	EventGrantRedeemed     EventType = "grant.redeemed"
	EventAccountRegistered EventType = "account.registered"
	EventAccountExpired    EventType = "account.expired"
)

// AllEventTypes lists every event the service publishes.
func AllEventTypes() []EventType {
	return []EventType{
		EventLicenseCreated,
		EventLicenseActivated,
		EventGrantCreated,
		EventGrantRedeemed,
		EventAccountRegistered,
		EventAccountExpired,
	}
}

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Publisher is the write side of a bus.
type Publisher interface {
	Publish(eventType EventType, payload Payload)
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(EventType, Payload) {}

// Bus implements a simple in-process pubsub. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[EventType][]Subscriber
	buffer int
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return NewBusWithBuffer(64)
}

// NewBusWithBuffer creates an event bus whose subscriber channels hold size events.
func NewBusWithBuffer(size int) *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber), buffer: size}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, b.buffer)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs[eventType]...)
	b.mu.RUnlock()
	for _, sub := range subs {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
	b.subs[eventType] = subs
}
