// Package locktest provides a conformance suite every lock.Backend must pass.
package locktest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/nfs4state/pkg/lock"
)

// BackendFactory creates a fresh, empty backend for each test.
// The factory receives *testing.T so it can use t.TempDir() and t.Cleanup().
type BackendFactory func(t *testing.T) lock.Backend

// RunBackendSuite runs the backend contract against factory:
//   - Storage: add, overwrite, remove and listing of lock entries
//   - Mutex: mutual exclusion and context-aware acquisition
//   - Manager: the conflict algorithm running end to end on the backend
func RunBackendSuite(t *testing.T, factory BackendFactory) {
	t.Helper()

	t.Run("Storage", func(t *testing.T) {
		runStorageTests(t, factory)
	})

	t.Run("Mutex", func(t *testing.T) {
		runMutexTests(t, factory)
	})

	t.Run("Manager", func(t *testing.T) {
		runManagerTests(t, factory)
	})
}

func newLock(ownerID string, offset, length uint64, lt lock.LockType) *lock.Lock {
	l := lock.NewLock(lock.Owner{OwnerID: ownerID, ClientID: "c-" + ownerID}, offset, length, lt)
	l.AcquiredAt = time.Now().UTC().Truncate(time.Microsecond)
	return l
}

func runStorageTests(t *testing.T, factory BackendFactory) {
	t.Run("EmptyObject", func(t *testing.T) {
		b := factory(t)
		locks, err := b.GetLocks(t.Context(), "00ff")
		if err != nil {
			t.Fatalf("GetLocks() failed: %v", err)
		}
		if len(locks) != 0 {
			t.Fatalf("GetLocks() on empty object = %d locks, want 0", len(locks))
		}
	})

	t.Run("AddGetRemove", func(t *testing.T) {
		b := factory(t)
		ctx := t.Context()

		l := newLock("A", 10, 20, lock.LockTypeExclusive)
		l.Reclaim = true
		if err := b.AddLock(ctx, "aa", l); err != nil {
			t.Fatalf("AddLock() failed: %v", err)
		}

		locks, err := b.GetLocks(ctx, "aa")
		if err != nil {
			t.Fatalf("GetLocks() failed: %v", err)
		}
		if len(locks) != 1 {
			t.Fatalf("GetLocks() = %d locks, want 1", len(locks))
		}
		got := locks[0]
		if got.ID != l.ID || got.Owner != l.Owner || got.Offset != 10 || got.Length != 20 ||
			got.Type != lock.LockTypeExclusive || !got.Reclaim || !got.AcquiredAt.Equal(l.AcquiredAt) {
			t.Fatalf("stored lock = %+v, want %+v", got, l)
		}

		// Other objects are isolated.
		other, err := b.GetLocks(ctx, "bb")
		if err != nil {
			t.Fatalf("GetLocks(bb) failed: %v", err)
		}
		if len(other) != 0 {
			t.Fatalf("GetLocks(bb) = %d locks, want 0", len(other))
		}

		if err := b.RemoveLock(ctx, "aa", l); err != nil {
			t.Fatalf("RemoveLock() failed: %v", err)
		}
		locks, err = b.GetLocks(ctx, "aa")
		if err != nil {
			t.Fatalf("GetLocks() failed: %v", err)
		}
		if len(locks) != 0 {
			t.Fatalf("GetLocks() after remove = %d locks, want 0", len(locks))
		}

		// Removing again is not an error.
		if err := b.RemoveLock(ctx, "aa", l); err != nil {
			t.Fatalf("RemoveLock() of missing lock failed: %v", err)
		}
	})

	t.Run("AddOverwritesByID", func(t *testing.T) {
		b := factory(t)
		ctx := t.Context()

		l := newLock("A", 0, 0, lock.LockTypeShared)
		if err := b.AddLock(ctx, "aa", l); err != nil {
			t.Fatalf("AddLock() failed: %v", err)
		}
		l.Type = lock.LockTypeExclusive
		if err := b.AddLock(ctx, "aa", l); err != nil {
			t.Fatalf("AddLock() overwrite failed: %v", err)
		}

		locks, err := b.GetLocks(ctx, "aa")
		if err != nil {
			t.Fatalf("GetLocks() failed: %v", err)
		}
		if len(locks) != 1 || locks[0].Type != lock.LockTypeExclusive {
			t.Fatalf("GetLocks() = %+v, want one exclusive lock", locks)
		}
	})

	t.Run("BatchAndObjects", func(t *testing.T) {
		b := factory(t)
		ctx := t.Context()

		batch := []*lock.Lock{
			newLock("A", 0, 10, lock.LockTypeShared),
			newLock("B", 0, 10, lock.LockTypeShared),
			newLock("C", 50, 0, lock.LockTypeExclusive),
		}
		if err := b.AddLocks(ctx, "aa", batch); err != nil {
			t.Fatalf("AddLocks() failed: %v", err)
		}
		if err := b.AddLock(ctx, "bb", newLock("A", 0, 1, lock.LockTypeShared)); err != nil {
			t.Fatalf("AddLock() failed: %v", err)
		}

		keys, err := b.Objects(ctx)
		if err != nil {
			t.Fatalf("Objects() failed: %v", err)
		}
		if len(keys) != 2 || keys[0] != "aa" || keys[1] != "bb" {
			t.Fatalf("Objects() = %v, want [aa bb]", keys)
		}

		if err := b.RemoveLocks(ctx, "aa", batch[:2]); err != nil {
			t.Fatalf("RemoveLocks() failed: %v", err)
		}
		locks, err := b.GetLocks(ctx, "aa")
		if err != nil {
			t.Fatalf("GetLocks() failed: %v", err)
		}
		if len(locks) != 1 || locks[0].ID != batch[2].ID {
			t.Fatalf("GetLocks() after RemoveLocks = %+v, want only %s", locks, batch[2].ID)
		}

		if err := b.RemoveLocks(ctx, "aa", batch[2:]); err != nil {
			t.Fatalf("RemoveLocks() failed: %v", err)
		}
		keys, err = b.Objects(ctx)
		if err != nil {
			t.Fatalf("Objects() failed: %v", err)
		}
		if len(keys) != 1 || keys[0] != "bb" {
			t.Fatalf("Objects() = %v, want [bb]", keys)
		}
	})
}

func runMutexTests(t *testing.T, factory BackendFactory) {
	t.Run("MutualExclusion", func(t *testing.T) {
		b := factory(t)
		ctx := t.Context()

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			inside  int
			maxSeen int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m := b.Mutex("aa")
				if err := m.Lock(ctx); err != nil {
					t.Errorf("Lock() failed: %v", err)
					return
				}
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()

				time.Sleep(2 * time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				if err := m.Unlock(); err != nil {
					t.Errorf("Unlock() failed: %v", err)
				}
			}()
		}
		wg.Wait()

		if maxSeen != 1 {
			t.Fatalf("max holders inside the critical section = %d, want 1", maxSeen)
		}
	})

	t.Run("IndependentKeys", func(t *testing.T) {
		b := factory(t)
		ctx := t.Context()

		ma := b.Mutex("aa")
		if err := ma.Lock(ctx); err != nil {
			t.Fatalf("Lock(aa) failed: %v", err)
		}
		defer func() { _ = ma.Unlock() }()

		lockCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		mb := b.Mutex("bb")
		if err := mb.Lock(lockCtx); err != nil {
			t.Fatalf("Lock(bb) blocked by aa: %v", err)
		}
		_ = mb.Unlock()
	})

	t.Run("ContextCancelled", func(t *testing.T) {
		b := factory(t)
		ctx := t.Context()

		held := b.Mutex("aa")
		if err := held.Lock(ctx); err != nil {
			t.Fatalf("Lock() failed: %v", err)
		}

		waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		if err := b.Mutex("aa").Lock(waitCtx); err == nil {
			t.Fatal("Lock() on a held mutex succeeded, want context error")
		}

		if err := held.Unlock(); err != nil {
			t.Fatalf("Unlock() failed: %v", err)
		}

		// The abandoned attempt must not leave the key wedged.
		again := b.Mutex("aa")
		lockCtx, cancel2 := context.WithTimeout(ctx, 2*time.Second)
		defer cancel2()
		if err := again.Lock(lockCtx); err != nil {
			t.Fatalf("Lock() after cancelled attempt failed: %v", err)
		}
		_ = again.Unlock()
	})
}

func runManagerTests(t *testing.T, factory BackendFactory) {
	object := []byte{0xca, 0xfe}

	t.Run("ConflictAndRelease", func(t *testing.T) {
		m := lock.NewManager(factory(t), lock.Config{PollInterval: 10 * time.Millisecond}, nil)
		ctx := t.Context()

		if _, err := m.Lock(ctx, object, newLock("A", 0, 10, lock.LockTypeExclusive), false); err != nil {
			t.Fatalf("Lock(A) failed: %v", err)
		}
		_, err := m.Lock(ctx, object, newLock("B", 5, 1, lock.LockTypeShared), false)
		if lock.CodeOf(err) != lock.ErrLocked {
			t.Fatalf("Lock(B) error = %v, want Locked", err)
		}

		if err := m.Unlock(ctx, object, "A", 0, 10); err != nil {
			t.Fatalf("Unlock(A) failed: %v", err)
		}
		if _, err := m.Lock(ctx, object, newLock("B", 5, 1, lock.LockTypeShared), false); err != nil {
			t.Fatalf("Lock(B) after release failed: %v", err)
		}
	})

	t.Run("BlockingWait", func(t *testing.T) {
		m := lock.NewManager(factory(t), lock.Config{PollInterval: 10 * time.Millisecond}, nil)
		ctx := t.Context()

		if _, err := m.Lock(ctx, object, newLock("A", 0, 0, lock.LockTypeExclusive), false); err != nil {
			t.Fatalf("Lock(A) failed: %v", err)
		}

		done := make(chan error, 1)
		go func() {
			_, err := m.Lock(ctx, object, newLock("B", 0, 0, lock.LockTypeExclusive), true)
			done <- err
		}()

		deadline := time.Now().Add(2 * time.Second)
		for m.BlockedCount() != 1 {
			if time.Now().After(deadline) {
				t.Fatal("waiter never blocked")
			}
			time.Sleep(5 * time.Millisecond)
		}

		if _, err := m.RemoveAllForOwner(ctx, object, "A"); err != nil {
			t.Fatalf("RemoveAllForOwner(A) failed: %v", err)
		}

		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("blocked Lock(B) failed: %v", err)
			}
		case <-time.After(3 * time.Second):
			t.Fatal("blocked Lock(B) never granted")
		}
	})

	t.Run("ConcurrentExclusiveGrantsOne", func(t *testing.T) {
		m := lock.NewManager(factory(t), lock.Config{PollInterval: 10 * time.Millisecond}, nil)
		ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
		defer cancel()

		const contenders = 64
		start := make(chan struct{})
		results := make(chan error, contenders)

		var wg sync.WaitGroup
		for i := range contenders {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := m.Lock(ctx, object, newLock(fmt.Sprintf("owner-%02d", i), 0, 100, lock.LockTypeExclusive), false)
				results <- err
			}()
		}
		close(start)
		wg.Wait()
		close(results)

		granted, denied := 0, 0
		for err := range results {
			switch {
			case err == nil:
				granted++
			case lock.CodeOf(err) == lock.ErrLocked:
				denied++
			default:
				t.Fatalf("Lock() unexpected error: %v", err)
			}
		}
		if granted != 1 || denied != contenders-1 {
			t.Fatalf("granted = %d, denied = %d; want 1 and %d", granted, denied, contenders-1)
		}

		locks, err := m.ListLocks(ctx, object)
		if err != nil {
			t.Fatalf("ListLocks() failed: %v", err)
		}
		if len(locks) != 1 {
			t.Fatalf("ListLocks() = %d locks, want 1", len(locks))
		}
	})
}
