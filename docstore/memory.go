package docstore

import (
	"context"
	"sync"
)

// Memory is an in-process, non-persistent Store. It backs the unit tests and is
// useful for running the server without a state file.
type Memory struct {
	mu   sync.Mutex
	docs map[string]Document

	*notifier
}

func NewMemory() *Memory {
	return &Memory{
		docs:     make(map[string]Document),
		notifier: newNotifier(),
	}
}

func (m *Memory) Get(ctx context.Context, path string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[path]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(doc)
}

func (m *Memory) Set(ctx context.Context, path string, doc Document) error {
	stored, err := clone(doc)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.docs[path] = stored
	return m.publishLocked(path, stored)
}

func (m *Memory) Merge(ctx context.Context, path string, fields Document) error {
	merged, err := clone(fields)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[path]
	if !ok {
		return ErrNotFound
	}
	for k, v := range merged {
		doc[k] = v
	}
	return m.publishLocked(path, doc)
}

func (m *Memory) Subscribe(path string) *Subscription {
	return m.subscribe(path)
}

// publishLocked snapshots the stored document and fans it out. Called with m.mu
// held so subscribers observe writes in order.
func (m *Memory) publishLocked(path string, doc Document) error {
	snapshot, err := clone(doc)
	if err != nil {
		return err
	}
	m.publish(path, snapshot)
	return nil
}
