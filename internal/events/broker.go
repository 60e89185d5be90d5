package events

import (
	"context"
	"sync"
	"sync/atomic"
)

// subscriberBuffer events queued per subscriber before drops
const subscriberBuffer = 32

// Broker in-process fan-out. Subscribers either see every event or only the
// events of one aggregate (emergency id). Slow subscribers miss events rather
// than block publishers.
type Broker struct {
	mu          sync.RWMutex
	all         map[chan *Event]bool
	byAggregate map[string]map[chan *Event]bool
	dropped     atomic.Uint64
}

// NewBroker creates an empty broker
func NewBroker() *Broker {
	return &Broker{
		all:         make(map[chan *Event]bool),
		byAggregate: make(map[string]map[chan *Event]bool),
	}
}

// Subscribe aggregateID "" subscribes to everything. Call cancel to unsubscribe;
// the channel is closed afterwards.
func (b *Broker) Subscribe(aggregateID string) (<-chan *Event, func()) {
	ch := make(chan *Event, subscriberBuffer)

	b.mu.Lock()
	if aggregateID == "" {
		b.all[ch] = true
	} else {
		if _, ok := b.byAggregate[aggregateID]; !ok {
			b.byAggregate[aggregateID] = make(map[chan *Event]bool)
		}
		b.byAggregate[aggregateID][ch] = true
	}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			if aggregateID == "" {
				delete(b.all, ch)
			} else if clients, ok := b.byAggregate[aggregateID]; ok {
				delete(clients, ch)
				if len(clients) == 0 {
					delete(b.byAggregate, aggregateID)
				}
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Publish implements Publisher; never blocks
func (b *Broker) Publish(_ context.Context, event *Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.all {
		b.send(ch, event)
	}
	for ch := range b.byAggregate[event.AggregateID] {
		b.send(ch, event)
	}
	return nil
}

// Dropped events not delivered because a subscriber was full
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Broker) send(ch chan *Event, event *Event) {
	select {
	case ch <- event:
	default:
		b.dropped.Add(1)
	}
}
