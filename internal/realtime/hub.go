package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/yutakm/textswap/internal/logger"
)

var log = logger.New("realtime")

// subscriptionBuffer is the per-subscription channel capacity. A
// subscriber that falls this far behind is dropped rather than allowed
// to block publishers.
const subscriptionBuffer = 16

// Feed is the publishing side of the change feed, implemented by Hub.
// Handlers depend on this interface so tests can capture events.
type Feed interface {
	Publish(ev ChangeEvent)
}

// Hub fans row-level change events out to filtered subscriptions. It is
// the single subscription manager for the process; every live view goes
// through it instead of wiring its own listeners.
type Hub struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*Subscription
}

// Subscription is one scoped listener on the change feed. Events arrive
// on C until Close is called or the hub drops the subscription for
// falling behind; either way C is closed.
type Subscription struct {
	id     uuid.UUID
	Table  string
	Filter Filter
	C      chan ChangeEvent

	hub       *Hub
	closeOnce sync.Once
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]*Subscription)}
}

// Subscribe registers a listener for changes on table within the
// filter's scope. The caller must Close the subscription when its view
// goes away.
func (h *Hub) Subscribe(table string, filter Filter) *Subscription {
	sub := &Subscription{
		id:     uuid.New(),
		Table:  table,
		Filter: filter,
		C:      make(chan ChangeEvent, subscriptionBuffer),
		hub:    h,
	}

	h.mu.Lock()
	h.subs[sub.id] = sub
	h.mu.Unlock()

	log.Debug("Subscribed %s to %s (%s=%s)", sub.id, table, filter.Column, filter.Value)
	return sub
}

// Publish delivers the event to every matching subscription. Delivery is
// non-blocking; subscriptions with a full buffer are dropped.
func (h *Hub) Publish(ev ChangeEvent) {
	var dropped []*Subscription

	h.mu.Lock()
	for _, sub := range h.subs {
		if sub.Table != ev.Table || !ev.matches(sub.Filter) {
			continue
		}
		select {
		case sub.C <- ev:
		default:
			dropped = append(dropped, sub)
		}
	}
	for _, sub := range dropped {
		delete(h.subs, sub.id)
	}
	h.mu.Unlock()

	for _, sub := range dropped {
		sub.closeOnce.Do(func() { close(sub.C) })
		log.Warn("Dropped slow subscription %s on %s", sub.id, sub.Table)
	}
}

// Close tears the subscription down and closes C. Safe to call more
// than once.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	delete(s.hub.subs, s.id)
	s.hub.mu.Unlock()

	s.closeOnce.Do(func() { close(s.C) })
}
