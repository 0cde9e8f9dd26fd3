// Package notify delivers "this listing changed" signals to subscribers of a
// request URI.
package notify

import (
	"sort"
	"sync"
)

// Broadcaster fans change notifications out per request URI
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]func(uri string)
	nextID uint64
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[string]map[uint64]func(uri string)),
	}
}

// Subscribe registers onChange for uri and returns a function that removes it.
// The unsubscribe function is safe to call more than once.
func (b *Broadcaster) Subscribe(uri string, onChange func(uri string)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[uri] == nil {
		b.subs[uri] = make(map[uint64]func(string))
	}
	b.subs[uri][id] = onChange
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[uri], id)
			if len(b.subs[uri]) == 0 {
				delete(b.subs, uri)
			}
		})
	}
}

// SubscribeChan delivers notifications for uri on a buffered channel.
// Signals are dropped while the channel is full; one pending signal is
// enough to make a reader re-poll.
func (b *Broadcaster) SubscribeChan(uri string) (<-chan string, func()) {
	ch := make(chan string, 1)
	unsubscribe := b.Subscribe(uri, func(u string) {
		select {
		case ch <- u:
		default:
		}
	})
	return ch, unsubscribe
}

// Publish calls every subscriber of uri in subscription order. Callbacks run
// on the publishing goroutine, outside the broadcaster lock.
func (b *Broadcaster) Publish(uri string) {
	b.mu.RLock()
	subs := b.subs[uri]
	ids := make([]uint64, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(string), len(ids))
	for i, id := range ids {
		fns[i] = subs[id]
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(uri)
	}
}

// Count returns the number of subscribers of uri
func (b *Broadcaster) Count(uri string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[uri])
}
