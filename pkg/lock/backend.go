package lock

import "context"

// Backend is the storage capability the Manager runs on.
//
// A backend only stores and returns lock entries; every conflict decision is
// made by the Manager while it holds the object mutex returned by Mutex. All
// keys are ObjectKey encodings of the opaque object id.
//
// Implementations:
//   - MemoryBackend: in-process map, lost on restart
//   - store/badger.Backend: persistent, single node
//   - store/postgres.Backend: shared by every server instance of a cluster
type Backend interface {
	// GetLocks returns every lock held on the object. The returned slice is
	// owned by the caller.
	GetLocks(ctx context.Context, key string) ([]*Lock, error)

	// AddLock stores l. An existing entry with the same ID is overwritten.
	AddLock(ctx context.Context, key string, l *Lock) error

	// RemoveLock deletes the entry with l.ID. Removing a missing entry is not
	// an error.
	RemoveLock(ctx context.Context, key string, l *Lock) error

	// AddLocks stores several locks in one step.
	AddLocks(ctx context.Context, key string, ls []*Lock) error

	// RemoveLocks deletes several locks in one step.
	RemoveLocks(ctx context.Context, key string, ls []*Lock) error

	// Objects returns the keys of every object that currently has locks.
	Objects(ctx context.Context) ([]string, error)

	// Mutex returns the mutual-exclusion primitive guarding key. For a
	// distributed backend it excludes every instance sharing the store.
	Mutex(key string) ObjectMutex

	// Distributed reports whether other processes may change the lock table
	// behind this one's back. Blocking waiters of a distributed backend poll
	// because releases done elsewhere are never broadcast locally.
	Distributed() bool

	// Close releases backend resources.
	Close() error
}

// ObjectMutex serializes read-decide-mutate sequences on one object.
type ObjectMutex interface {
	// Lock blocks until the mutex is held or ctx is done.
	Lock(ctx context.Context) error

	// Unlock releases the mutex.
	Unlock() error
}

// SessionMutex is an ObjectMutex tied to a backend session, such as a
// database connection holding an advisory lock. While it is held, the
// Manager passes the context returned by Bind to every backend call so that
// the backend can run them on the same session.
type SessionMutex interface {
	ObjectMutex

	// Bind returns ctx annotated with the session holding the mutex.
	Bind(ctx context.Context) context.Context
}
