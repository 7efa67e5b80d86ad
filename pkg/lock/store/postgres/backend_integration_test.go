//go:build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marmos91/nfs4state/pkg/lock"
	"github.com/marmos91/nfs4state/pkg/lock/locktest"
)

// testConnString is set by TestMain, either from NFS4STATE_TEST_POSTGRES_DSN
// or from a throwaway container.
var testConnString string

func TestMain(m *testing.M) {
	if dsn := os.Getenv("NFS4STATE_TEST_POSTGRES_DSN"); dsn != "" {
		testConnString = dsn
		os.Exit(m.Run())
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("nfs4state_test"),
		tcpostgres.WithUsername("nfs4state_test"),
		tcpostgres.WithPassword("nfs4state_test"),
		testcontainers.WithWaitStrategyAndDeadline(2*time.Minute,
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	testConnString, err = container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to get connection string: %v\n", err)
		os.Exit(1)
	}

	exitCode := m.Run()

	if err := container.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to terminate container: %v\n", err)
	}
	os.Exit(exitCode)
}

func openTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := Open(t.Context(), Config{URL: testConnString, AutoMigrate: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBackend_Conformance(t *testing.T) {
	locktest.RunBackendSuite(t, func(t *testing.T) lock.Backend {
		b := openTestBackend(t)
		_, err := b.Truncate(t.Context())
		require.NoError(t, err)
		return b
	})
}

func TestBackend_MigrationVersion(t *testing.T) {
	openTestBackend(t)

	version, dirty, err := MigrationVersion(t.Context(), testConnString)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestBackend_LargeOffsetsRoundTrip(t *testing.T) {
	b := openTestBackend(t)
	ctx := t.Context()
	_, err := b.Truncate(ctx)
	require.NoError(t, err)

	l := lock.NewLock(lock.Owner{OwnerID: "A", ClientID: "1"}, ^uint64(0)-1, ^uint64(0), lock.LockTypeShared)
	l.AcquiredAt = time.Now()
	require.NoError(t, b.AddLock(ctx, "ff", l))

	locks, err := b.GetLocks(ctx, "ff")
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, ^uint64(0)-1, locks[0].Offset)
	assert.Equal(t, ^uint64(0), locks[0].Length)
}

func TestBackend_TwoInstancesShareLocks(t *testing.T) {
	ctx := t.Context()
	b1 := openTestBackend(t)
	b2 := openTestBackend(t)
	_, err := b1.Truncate(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, b1.InstanceID(), b2.InstanceID())

	cfg := lock.Config{PollInterval: 20 * time.Millisecond}
	m1 := lock.NewManager(b1, cfg, nil)
	m2 := lock.NewManager(b2, cfg, nil)
	object := []byte("shared-object")

	_, err = m1.Lock(ctx, object, lock.NewLock(lock.Owner{OwnerID: "A", ClientID: "1"}, 0, 10, lock.LockTypeExclusive), false)
	require.NoError(t, err)

	// Instance two sees instance one's lock.
	_, err = m2.Lock(ctx, object, lock.NewLock(lock.Owner{OwnerID: "B", ClientID: "2"}, 0, 10, lock.LockTypeShared), false)
	require.ErrorIs(t, err, lock.ErrLockedSentinel)

	done := make(chan error, 1)
	go func() {
		_, err := m2.Lock(ctx, object, lock.NewLock(lock.Owner{OwnerID: "B", ClientID: "2"}, 0, 10, lock.LockTypeShared), true)
		done <- err
	}()
	require.Eventually(t, func() bool { return m2.BlockedCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	// The release on instance one is never broadcast to instance two;
	// the waiter finds it by polling.
	require.NoError(t, m1.Unlock(ctx, object, "A", 0, 10))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("waiter on the second instance was never granted")
	}
}

func TestBackend_AdvisoryMutexExcludesInstances(t *testing.T) {
	ctx := t.Context()
	b1 := openTestBackend(t)
	b2 := openTestBackend(t)

	held := b1.Mutex("abcd")
	require.NoError(t, held.Lock(ctx))

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	assert.Error(t, b2.Mutex("abcd").Lock(waitCtx))

	require.NoError(t, held.Unlock())

	m := b2.Mutex("abcd")
	require.NoError(t, m.Lock(ctx))
	require.NoError(t, m.Unlock())
}

func TestBackend_MoreLockersThanConnections(t *testing.T) {
	const (
		maxConns = 2
		lockers  = 8
	)

	b, err := Open(t.Context(), Config{URL: testConnString, AutoMigrate: true, MaxConns: maxConns})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	_, err = b.Truncate(t.Context())
	require.NoError(t, err)

	m := lock.NewManager(b, lock.Config{PollInterval: 20 * time.Millisecond}, nil)
	object := []byte("contended-object")

	// Every locker takes the object mutex; holders must finish their
	// queries on the connection they already have.
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, lockers)
	for i := range lockers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			owner := lock.Owner{OwnerID: fmt.Sprintf("owner-%d", i), ClientID: "1"}
			_, err := m.Lock(ctx, object, lock.NewLock(owner, uint64(i)*10, 10, lock.LockTypeExclusive), false)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	locks, err := m.ListLocks(ctx, object)
	require.NoError(t, err)
	assert.Len(t, locks, lockers)
}
