package lock

import (
	"context"
	"sync"
)

// keyMutexEntry is a context-aware mutex shared by every holder of one key.
type keyMutexEntry struct {
	ch       chan struct{}
	refCount int
}

// KeyedMutex hands out one mutex per key, creating it on demand and dropping
// it once nobody holds or waits for it.
//
// Unlike sync.Mutex the per-key lock can be abandoned when the caller's
// context is cancelled.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyMutexEntry
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		locks: make(map[string]*keyMutexEntry),
	}
}

// Mutex returns an ObjectMutex bound to key.
func (km *KeyedMutex) Mutex(key string) ObjectMutex {
	return &keyMutex{parent: km, key: key}
}

// Len returns the number of currently tracked keys.
func (km *KeyedMutex) Len() int {
	km.mu.Lock()
	defer km.mu.Unlock()
	return len(km.locks)
}

func (km *KeyedMutex) acquire(ctx context.Context, key string) (*keyMutexEntry, error) {
	km.mu.Lock()
	entry, exists := km.locks[key]
	if !exists {
		entry = &keyMutexEntry{ch: make(chan struct{}, 1)}
		km.locks[key] = entry
	}
	entry.refCount++
	km.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
		return entry, nil
	case <-ctx.Done():
		km.release(key)
		return nil, ctx.Err()
	}
}

func (km *KeyedMutex) release(key string) {
	km.mu.Lock()
	defer km.mu.Unlock()

	entry, exists := km.locks[key]
	if !exists {
		return
	}
	entry.refCount--
	if entry.refCount == 0 {
		delete(km.locks, key)
	}
}

type keyMutex struct {
	parent *KeyedMutex
	key    string

	entry *keyMutexEntry
}

func (m *keyMutex) Lock(ctx context.Context) error {
	entry, err := m.parent.acquire(ctx, m.key)
	if err != nil {
		return err
	}
	m.entry = entry
	return nil
}

func (m *keyMutex) Unlock() error {
	if m.entry == nil {
		return nil
	}
	entry := m.entry
	m.entry = nil
	<-entry.ch
	m.parent.release(m.key)
	return nil
}
