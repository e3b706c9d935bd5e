package dispatch

import "sync"

// broker fans engine snapshots out to subscribers. Sends never block: a
// slow consumer misses intermediate snapshots and catches up on the next.
type broker struct {
	mu   sync.Mutex
	subs map[chan Snapshot]struct{}
}

func newBroker() *broker {
	return &broker{subs: map[chan Snapshot]struct{}{}}
}

func (b *broker) subscribe() chan Snapshot {
	ch := make(chan Snapshot, 8)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *broker) unsubscribe(ch chan Snapshot) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *broker) publish(snap Snapshot) {
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- snap:
		default:
		}
	}
	b.mu.Unlock()
}
