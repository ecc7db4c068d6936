package engine

import (
	"log/slog"
	"sync"
)

// Broadcaster fans snapshots out to subscribers. Sends never block: a
// subscriber with a full buffer misses that snapshot.
type Broadcaster struct {
	mu      sync.Mutex
	subs    map[int]chan *Snapshot
	next    int
	dropped uint64
}

// NewBroadcaster creates a broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan *Snapshot)}
}

// Subscribe returns a channel of snapshots and a cancel function that
// unsubscribes and closes the channel. Cancel is idempotent.
func (b *Broadcaster) Subscribe(buffer int) (<-chan *Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan *Snapshot, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish offers snap to every subscriber.
func (b *Broadcaster) Publish(snap *Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- snap:
		default:
			b.dropped++
			slog.Debug("snapshot dropped for slow subscriber", "subscriber", id, "tick", snap.Tick)
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped returns how many sends were skipped because a buffer was full.
func (b *Broadcaster) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
