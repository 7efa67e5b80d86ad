package lock

import (
	"context"
	"sort"
	"sync"
)

// MemoryBackend keeps the lock table in process memory.
//
// It is the default backend of a single server without persistence: all
// locks vanish on restart, which is what NFSv4 grace-period reclaim expects.
type MemoryBackend struct {
	mu      sync.RWMutex
	objects map[string]map[string]*Lock // key -> lock id -> lock
	mutexes *KeyedMutex
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		objects: make(map[string]map[string]*Lock),
		mutexes: NewKeyedMutex(),
	}
}

var _ Backend = (*MemoryBackend)(nil)

// GetLocks returns copies of the object's locks ordered by acquisition.
func (b *MemoryBackend) GetLocks(_ context.Context, key string) ([]*Lock, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entries := b.objects[key]
	out := make([]*Lock, 0, len(entries))
	for _, l := range entries {
		out = append(out, l.Clone())
	}
	SortLocks(out)
	return out, nil
}

// AddLock stores a copy of l.
func (b *MemoryBackend) AddLock(ctx context.Context, key string, l *Lock) error {
	return b.AddLocks(ctx, key, []*Lock{l})
}

// RemoveLock deletes the entry with l.ID.
func (b *MemoryBackend) RemoveLock(ctx context.Context, key string, l *Lock) error {
	return b.RemoveLocks(ctx, key, []*Lock{l})
}

// AddLocks stores copies of ls.
func (b *MemoryBackend) AddLocks(_ context.Context, key string, ls []*Lock) error {
	if len(ls) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	entries, ok := b.objects[key]
	if !ok {
		entries = make(map[string]*Lock)
		b.objects[key] = entries
	}
	for _, l := range ls {
		entries[l.ID] = l.Clone()
	}
	return nil
}

// RemoveLocks deletes the entries matching the ids of ls.
func (b *MemoryBackend) RemoveLocks(_ context.Context, key string, ls []*Lock) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries, ok := b.objects[key]
	if !ok {
		return nil
	}
	for _, l := range ls {
		delete(entries, l.ID)
	}
	if len(entries) == 0 {
		delete(b.objects, key)
	}
	return nil
}

// Objects returns the keys of every locked object, sorted.
func (b *MemoryBackend) Objects(_ context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Mutex returns the in-process mutex for key.
func (b *MemoryBackend) Mutex(key string) ObjectMutex {
	return b.mutexes.Mutex(key)
}

// Distributed is false: every change happens in this process.
func (b *MemoryBackend) Distributed() bool { return false }

// Close drops every lock.
func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects = make(map[string]map[string]*Lock)
	return nil
}

// SortLocks orders locks by acquisition time, then ID, so listings and
// conflict reports are deterministic.
func SortLocks(ls []*Lock) {
	sort.Slice(ls, func(i, j int) bool {
		if !ls[i].AcquiredAt.Equal(ls[j].AcquiredAt) {
			return ls[i].AcquiredAt.Before(ls[j].AcquiredAt)
		}
		return ls[i].ID < ls[j].ID
	})
}
