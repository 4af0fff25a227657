package session

import "sync"

// busCapacity is the bounded per-subscriber channel depth. A subscriber
// that cannot keep up with this many buffered events is considered lagged.
const busCapacity = 100

// bus is a non-blocking fan-out broadcaster: one producer (the session's
// log/screenshot operations), many consumers. A slow consumer never blocks
// the producer or other consumers — its channel is closed instead, forcing
// it to resync via GetState/GetLog rather than silently dropping events it
// would otherwise believe it received in full.
type bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

func newBus() *bus {
	return &bus{subs: make(map[int]chan Event)}
}

// subscribe registers a new subscriber and returns its id (for
// unsubscribe) and its channel. seed, if non-nil, is placed in the channel
// before any broadcast can reach it, so the subscriber's first receive is
// deterministic.
func (b *bus) subscribe(seed Event) (int, chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, busCapacity)
	if seed != nil {
		ch <- seed
	}
	b.subs[id] = ch
	return id, ch
}

// unsubscribe removes and closes a subscriber's channel. Safe to call more
// than once or on an id that lagged and was already closed.
func (b *bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// publish fans ev out to every live subscriber. A subscriber whose buffer
// is full is dropped (its channel closed) rather than blocked on.
func (b *bus) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			delete(b.subs, id)
			close(ch)
		}
	}
}

func (b *bus) subscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
