package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/nfs4state/pkg/nfs4/types"
)

func TestNewStateHandler_Defaults(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t, Config{})

	cfg := h.Config()
	assert.Equal(t, DefaultLeaseTime, cfg.LeaseTime)
	assert.Equal(t, DefaultLeaseGrace, cfg.LeaseGrace)
	assert.Equal(t, DefaultGracePeriod, cfg.GracePeriod)
	assert.Equal(t, DefaultMaxSessionsPerClient, cfg.MaxSessionsPerClient)
	assert.Equal(t, uint32(DefaultMaxSlots), cfg.MaxSlots)
	assert.Equal(t, uint32(DefaultMaxBackSlots), cfg.MaxBackSlots)
}

func TestConfig_NegativeLeaseGraceDisablesSlack(t *testing.T) {
	t.Parallel()
	cfg := Config{LeaseGrace: -1}
	cfg.applyDefaults()
	assert.Zero(t, cfg.LeaseGrace)
}

func TestCreateClient(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t, Config{})

	a := mustClient(t, h, "client-a")
	b := mustClient(t, h, "client-b")

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, h.BootEpoch(), uint32(a.ID>>32), "client id embeds the boot epoch")
	assert.Equal(t, 2, h.ClientCount())

	got, err := h.LookupByID(a.ID)
	require.NoError(t, err)
	assert.Same(t, a, got)

	_, err = h.CreateClient(context.Background(), PeerInfo{}, nil, types.Verifier4{}, nil)
	assert.ErrorIs(t, err, ErrInval)
}

func TestLookupByID_Unknown(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t, Config{})

	_, err := h.LookupByID(12345)
	assert.ErrorIs(t, err, ErrStaleClientID)
}

func TestCreateClient_Negotiation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	owner := []byte("shared-owner")

	tests := []struct {
		name        string
		peer        PeerInfo
		verifier    types.Verifier4
		negotiate   NegotiationFunc
		wantErr     error
		wantReplace bool
	}{
		{
			name:        "rebooted client with new verifier replaces",
			peer:        PeerInfo{Addr: "10.0.0.1:700"},
			verifier:    types.Verifier4{2},
			wantReplace: true,
		},
		{
			name:        "same verifier from same address replaces",
			peer:        PeerInfo{Addr: "10.0.0.1:700"},
			verifier:    types.Verifier4{1},
			wantReplace: true,
		},
		{
			name:     "same verifier from another address is rejected",
			peer:     PeerInfo{Addr: "10.0.0.2:700"},
			verifier: types.Verifier4{1},
			wantErr:  ErrClientInUse,
		},
		{
			name:     "custom policy rejects",
			peer:     PeerInfo{Addr: "10.0.0.1:700"},
			verifier: types.Verifier4{2},
			negotiate: func(*Client, ClientRequest) NegotiationResult {
				return NegotiateReject
			},
			wantErr: ErrClientInUse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t, Config{})
			first, err := h.CreateClient(ctx, PeerInfo{Addr: "10.0.0.1:700"}, owner, types.Verifier4{1}, nil)
			require.NoError(t, err)

			second, err := h.CreateClient(ctx, tt.peer, owner, tt.verifier, tt.negotiate)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.False(t, first.IsDisposed())
				return
			}
			require.NoError(t, err)
			assert.NotEqual(t, first.ID, second.ID)
			assert.True(t, first.IsDisposed())

			_, err = h.LookupByID(first.ID)
			assert.ErrorIs(t, err, ErrStaleClientID)
			assert.Equal(t, 1, h.ClientCount())
		})
	}
}

func TestCreateClient_ReplacesExpiredWithoutNegotiation(t *testing.T) {
	t.Parallel()
	h, clock := newTestHandler(t, Config{})
	ctx := context.Background()
	owner := []byte("owner")

	first, err := h.CreateClient(ctx, PeerInfo{Addr: "10.0.0.1:700"}, owner, types.Verifier4{1}, nil)
	require.NoError(t, err)

	clock.Advance(DefaultLeaseTime + DefaultLeaseGrace + time.Second)

	reject := func(*Client, ClientRequest) NegotiationResult {
		t.Error("negotiation must not run for an expired client")
		return NegotiateReject
	}
	second, err := h.CreateClient(ctx, PeerInfo{Addr: "10.0.0.9:700"}, owner, types.Verifier4{1}, reject)
	require.NoError(t, err)
	assert.True(t, first.IsDisposed())
	assert.False(t, second.IsDisposed())
}

func TestLookupByVerifier(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t, Config{})
	ctx := context.Background()

	v := types.Verifier4{7, 7, 7}
	c, err := h.CreateClient(ctx, PeerInfo{Addr: "10.0.0.1:700"}, []byte("owner"), v, nil)
	require.NoError(t, err)

	assert.Same(t, c, h.LookupByVerifier(v))
	assert.Nil(t, h.LookupByVerifier(types.Verifier4{9}))

	require.NoError(t, h.DestroyClient(ctx, c.ID))
	assert.Nil(t, h.LookupByVerifier(v))
}

func TestDestroyClient_Idempotent(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t, Config{})
	ctx := context.Background()

	c := mustClient(t, h, "client-a")
	require.NoError(t, h.DestroyClient(ctx, c.ID))
	require.NoError(t, h.DestroyClient(ctx, c.ID))
	require.NoError(t, h.DestroyClient(ctx, 0xdead))

	assert.True(t, c.IsDisposed())
	assert.Zero(t, h.ClientCount())
}

func TestDestroyClient_CascadeReleasesLocks(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t, Config{})
	ctx := context.Background()
	file := []byte("fh-1")

	a := mustClient(t, h, "client-a")
	b := mustClient(t, h, "client-b")
	sess, err := h.CreateSession(a, 4, 1)
	require.NoError(t, err)
	open, err := h.CreateState(a, KindOpen)
	require.NoError(t, err)
	lockState := mustLockOwner(t, h, a, "owner-a")

	_, err = h.Lock(ctx, LockArgs{
		StateID:  lockState.Stateid(),
		ObjectID: file,
		LockType: types.WRITE_LT,
		Offset:   0,
		Length:   100,
	})
	require.NoError(t, err)

	denied, err := h.TestLock(ctx, b.ID, []byte("owner-b"), file, types.WRITE_LT, 10, 10)
	require.NoError(t, err)
	require.NotNil(t, denied)

	require.NoError(t, h.DestroyClient(ctx, a.ID))

	denied, err = h.TestLock(ctx, b.ID, []byte("owner-b"), file, types.WRITE_LT, 10, 10)
	require.NoError(t, err)
	assert.Nil(t, denied, "locks of the destroyed client must be released")

	_, err = h.LookupSession(sess.ID)
	assert.ErrorIs(t, err, ErrBadSession)
	_, err = h.ValidateSeq(open.Stateid())
	assert.ErrorIs(t, err, ErrBadStateid)
	_, err = h.ValidateSeq(lockState.Stateid())
	assert.ErrorIs(t, err, ErrBadStateid)

	locks, err := h.LockManager().ListLocks(ctx, file)
	require.NoError(t, err)
	assert.Empty(t, locks)
}

func TestDestroyClient_CancelsBlockedWaits(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t, Config{})
	ctx := context.Background()
	file := []byte("fh-1")

	holder := mustClient(t, h, "holder")
	waiter := mustClient(t, h, "waiter")
	held := mustLockOwner(t, h, holder, "h")
	waiting := mustLockOwner(t, h, waiter, "w")

	_, err := h.Lock(ctx, LockArgs{StateID: held.Stateid(), ObjectID: file, LockType: types.WRITE_LT, Length: 10})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := h.Lock(ctx, LockArgs{StateID: waiting.Stateid(), ObjectID: file, LockType: types.WRITEW_LT, Length: 10})
		done <- err
	}()
	waitBlocked(t, h, 1)

	require.NoError(t, h.DestroyClient(ctx, waiter.ID))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrLockWaitCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("blocked lock not cancelled by client destruction")
	}

	locks, err := h.LockManager().ListLocks(ctx, file)
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, held.OwnerKey(), locks[0].Owner.OwnerID)
}

func TestBlockedLockGrantedOnRelease(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t, Config{})
	ctx := context.Background()
	file := []byte("fh-1")

	holder := mustClient(t, h, "holder")
	waiter := mustClient(t, h, "waiter")
	held := mustLockOwner(t, h, holder, "h")
	waiting := mustLockOwner(t, h, waiter, "w")

	_, err := h.Lock(ctx, LockArgs{StateID: held.Stateid(), ObjectID: file, LockType: types.WRITE_LT, Length: 10})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := h.Lock(ctx, LockArgs{StateID: waiting.Stateid(), ObjectID: file, LockType: types.WRITEW_LT, Length: 10})
		done <- err
	}()
	waitBlocked(t, h, 1)

	require.NoError(t, h.DestroyClient(ctx, holder.ID))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("blocked lock not granted after release")
	}
}

func TestShutdown_DisposesEveryClient(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t, Config{})

	a := mustClient(t, h, "client-a")
	b := mustClient(t, h, "client-b")

	require.NoError(t, h.Shutdown(context.Background()))
	assert.True(t, a.IsDisposed())
	assert.True(t, b.IsDisposed())
	assert.Zero(t, h.ClientCount())
}

func TestClientSnapshot(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t, Config{})

	c := mustClient(t, h, "client-a")
	_, err := h.CreateSession(c, 1, 1)
	require.NoError(t, err)
	mustLockOwner(t, h, c, "owner")

	info := c.Snapshot()
	assert.Equal(t, c.ID, info.ID)
	assert.Equal(t, c.OwnerKey(), info.Owner)
	assert.Equal(t, "10.0.0.1:700", info.PeerAddr)
	assert.Len(t, info.Sessions, 1)
	assert.Equal(t, 1, info.States)
	assert.Equal(t, 1, info.LockOwners)
	assert.True(t, info.LeaseExpiresAt.Equal(info.LastRenewal.Add(DefaultLeaseTime)))
}

func TestDestroyClient_CancelsWaitNotYetRegistered(t *testing.T) {
	t.Parallel()
	backend := newGatedBackend()
	h, _ := newTestHandlerWithBackend(t, Config{}, backend)
	ctx := context.Background()
	file := []byte("fh-1")

	holder := mustClient(t, h, "holder")
	waiter := mustClient(t, h, "waiter")
	held := mustLockOwner(t, h, holder, "h")
	waiting := mustLockOwner(t, h, waiter, "w")

	_, err := h.Lock(ctx, LockArgs{StateID: held.Stateid(), ObjectID: file, LockType: types.WRITE_LT, Length: 10})
	require.NoError(t, err)

	// The blocking request is paused before it can register as a waiter, so
	// the cancellation below finds nothing to cancel in the lock manager.
	entered, open := backend.arm()
	done := make(chan error, 1)
	go func() {
		_, err := h.Lock(ctx, LockArgs{StateID: waiting.Stateid(), ObjectID: file, LockType: types.WRITEW_LT, Length: 10})
		done <- err
	}()
	<-entered

	require.NoError(t, h.DestroyClient(ctx, waiter.ID))
	open()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrLockWaitCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("wait of a destroyed client was not cancelled")
	}
	assert.Zero(t, h.LockManager().BlockedCount())

	locks, err := h.LockManager().ListLocks(ctx, file)
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, held.OwnerKey(), locks[0].Owner.OwnerID)
}

func TestDestroyState_CancelsWaitNotYetRegistered(t *testing.T) {
	t.Parallel()
	backend := newGatedBackend()
	h, _ := newTestHandlerWithBackend(t, Config{}, backend)
	ctx := context.Background()
	file := []byte("fh-1")

	holder := mustClient(t, h, "holder")
	waiter := mustClient(t, h, "waiter")
	held := mustLockOwner(t, h, holder, "h")
	waiting := mustLockOwner(t, h, waiter, "w")

	_, err := h.Lock(ctx, LockArgs{StateID: held.Stateid(), ObjectID: file, LockType: types.WRITE_LT, Length: 10})
	require.NoError(t, err)

	entered, open := backend.arm()
	done := make(chan error, 1)
	go func() {
		_, err := h.Lock(ctx, LockArgs{StateID: waiting.Stateid(), ObjectID: file, LockType: types.WRITEW_LT, Length: 10})
		done <- err
	}()
	<-entered

	require.NoError(t, h.DestroyState(ctx, waiting.Stateid()))
	open()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrLockWaitCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("wait of a destroyed lock-owner was not cancelled")
	}

	// Releasing the holder must not hand the range to the destroyed owner.
	require.NoError(t, h.DestroyClient(ctx, holder.ID))
	locks, err := h.LockManager().ListLocks(ctx, file)
	require.NoError(t, err)
	assert.Empty(t, locks)
}

func TestLookupByVerifier_SharedAcrossOwners(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t, Config{})
	ctx := context.Background()

	v := types.Verifier4{4, 2}
	first, err := h.CreateClient(ctx, PeerInfo{Addr: "10.0.0.1:700"}, []byte("owner-1"), v, nil)
	require.NoError(t, err)
	second, err := h.CreateClient(ctx, PeerInfo{Addr: "10.0.0.2:700"}, []byte("owner-2"), v, nil)
	require.NoError(t, err)

	assert.Same(t, second, h.LookupByVerifier(v), "the most recent client wins")

	// Disposing one client leaves the other reachable.
	require.NoError(t, h.DestroyClient(ctx, second.ID))
	assert.Same(t, first, h.LookupByVerifier(v))

	require.NoError(t, h.DestroyClient(ctx, first.ID))
	assert.Nil(t, h.LookupByVerifier(v))
}
