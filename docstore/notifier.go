package docstore

import (
	"sync"

	"github.com/google/uuid"
)

// Subscription is a live change feed onto one document. Snapshots arrive on C.
// The channel holds at most one pending snapshot: if the consumer is slower than
// the writers, newer snapshots displace older unread ones rather than queueing.
type Subscription struct {
	C <-chan Document

	id       uuid.UUID
	path     string
	notifier *notifier
}

// Close tears the subscription down. Once Close returns no further snapshot is
// delivered on C, and C is closed.
func (s *Subscription) Close() {
	s.notifier.unsubscribe(s.path, s.id)
}

// notifier fans document snapshots out to subscribers. It is embedded by the store
// implementations, which are expected to call publish while holding their own
// write lock so subscribers observe writes in order.
type notifier struct {
	mu   sync.Mutex
	subs map[string]map[uuid.UUID]chan Document
}

func newNotifier() *notifier {
	return &notifier{
		subs: make(map[string]map[uuid.UUID]chan Document),
	}
}

func (n *notifier) subscribe(path string) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan Document, 1)
	id := uuid.New()
	if n.subs[path] == nil {
		n.subs[path] = make(map[uuid.UUID]chan Document)
	}
	n.subs[path][id] = ch

	return &Subscription{
		C:        ch,
		id:       id,
		path:     path,
		notifier: n,
	}
}

func (n *notifier) unsubscribe(path string, id uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch, ok := n.subs[path][id]
	if !ok {
		return
	}
	delete(n.subs[path], id)
	close(ch)
}

// publish pushes a snapshot to every subscriber of path. Sends are conflating:
// an unread older snapshot is dropped in favour of the new one, so a slow
// consumer only ever sees the latest state.
func (n *notifier) publish(path string, doc Document) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs[path] {
		select {
		case ch <- doc:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- doc
		}
	}
}
