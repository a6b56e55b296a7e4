package events

import (
	"sync"

	"launchpad/pkg/logging"
)

// DefaultBufferSize is used by Subscribe when a non-positive size is given.
const DefaultBufferSize = 8

// Publisher is the sending side of the bus.
type Publisher interface {
	Publish(SessionExpired)
}

// Bus fans SessionExpired events out to the current subscribers.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan SessionExpired
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan SessionExpired)}
}

// Subscribe registers a new subscriber. The returned cancel function removes
// it and closes the channel; calling cancel more than once is safe.
func (b *Bus) Subscribe(buffer int) (<-chan SessionExpired, func()) {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	ch := make(chan SessionExpired, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers ev to every current subscriber without blocking.
func (b *Bus) Publish(ev SessionExpired) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	logging.Info("SessionBus", "Session expired (%s, status %d) for %d subscriber(s)", ev.Reason, ev.StatusCode, len(b.subs))
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			logging.Warn("SessionBus", "Subscriber %d is not keeping up, dropping event", id)
		}
	}
}

// Subscribers returns the number of active subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
