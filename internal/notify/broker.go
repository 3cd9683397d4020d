package notify

import "sync"

// Broker delivers events to per-tenant stream subscribers.
type Broker interface {
	Subscribe(tenantID string) chan Event
	Unsubscribe(tenantID string, ch chan Event)
	Publish(tenantID string, evt Event)
}

// MemoryBroker is the single-process Broker. Slow subscribers drop events.
type MemoryBroker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{} // tenant -> set of channels
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *MemoryBroker) Subscribe(tenantID string) chan Event {
	ch := make(chan Event, 8)
	b.mu.Lock()
	if b.subs[tenantID] == nil {
		b.subs[tenantID] = map[chan Event]struct{}{}
	}
	b.subs[tenantID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *MemoryBroker) Unsubscribe(tenantID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[tenantID]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, tenantID)
	}
	close(ch)
}

func (b *MemoryBroker) Publish(tenantID string, evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[tenantID] {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Subscribers returns the number of live subscriptions for tenantID.
func (b *MemoryBroker) Subscribers(tenantID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[tenantID])
}
