// Package notify fans events out to buffered subscriber channels.
package notify

import "sync"

// Broadcaster delivers each published event to every subscriber without
// blocking. A subscriber whose buffer is full misses the event.
type Broadcaster[E any] struct {
	size int

	mu   sync.Mutex
	subs map[int]chan E
	next int
}

// New creates a Broadcaster with the given per-subscriber buffer.
func New[E any](size int) *Broadcaster[E] {
	if size <= 0 {
		size = 1
	}
	return &Broadcaster[E]{size: size, subs: make(map[int]chan E)}
}

// Subscribe registers a new subscriber. The returned function unsubscribes
// and closes the channel; calling it more than once is safe.
func (b *Broadcaster[E]) Subscribe() (<-chan E, func()) {
	ch := make(chan E, b.size)

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

// Publish sends ev to all subscribers and returns how many missed it.
func (b *Broadcaster[E]) Publish(ev E) (dropped int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			dropped++
		}
	}
	return dropped
}

// Len returns the number of subscribers.
func (b *Broadcaster[E]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
