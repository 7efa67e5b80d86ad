package state

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/nfs4state/pkg/lock"
	"github.com/marmos91/nfs4state/pkg/nfs4/types"
)

func TestConvertLockType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in           uint32
		wantType     lock.LockType
		wantBlocking bool
		wantErr      bool
	}{
		{types.READ_LT, lock.LockTypeShared, false, false},
		{types.WRITE_LT, lock.LockTypeExclusive, false, false},
		{types.READW_LT, lock.LockTypeShared, true, false},
		{types.WRITEW_LT, lock.LockTypeExclusive, true, false},
		{0, 0, false, true},
		{99, 0, false, true},
	}
	for _, tt := range tests {
		lt, blocking, err := convertLockType(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInval, "type %d", tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.wantType, lt)
		assert.Equal(t, tt.wantBlocking, blocking)
	}
}

func TestConvertLength(t *testing.T) {
	t.Parallel()

	n, err := convertLength(types.NFS4_UINT64_MAX)
	require.NoError(t, err)
	assert.Zero(t, n, "all ones means to end of file")

	n, err = convertLength(4096)
	require.NoError(t, err)
	assert.Equal(t, uint64(4096), n)

	_, err = convertLength(0)
	assert.ErrorIs(t, err, ErrInval)
}

func TestLock_BumpsSeqid(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t, Config{})
	ctx := context.Background()

	c := mustClient(t, h, "client-a")
	owner := mustLockOwner(t, h, c, "owner")
	initial := owner.Stateid()

	id, err := h.Lock(ctx, LockArgs{StateID: initial, ObjectID: []byte("fh"), LockType: types.READ_LT, Length: 10})
	require.NoError(t, err)
	assert.Equal(t, initial.Other, id.Other)
	assert.Equal(t, initial.Seqid+1, id.Seqid)

	_, err = h.Lock(ctx, LockArgs{StateID: initial, ObjectID: []byte("fh"), LockType: types.READ_LT, Offset: 20, Length: 10})
	assert.ErrorIs(t, err, ErrOldStateid)

	_, err = h.Lock(ctx, LockArgs{StateID: types.Stateid4{Other: id.Other}, ObjectID: []byte("fh"), LockType: types.READ_LT, Offset: 20, Length: 10})
	assert.NoError(t, err, "seqid 0 names the current stateid")
}

func TestLock_RejectsInvalidArguments(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t, Config{})
	ctx := context.Background()

	c := mustClient(t, h, "client-a")
	owner := mustLockOwner(t, h, c, "owner")
	open, err := h.CreateState(c, KindOpen)
	require.NoError(t, err)

	tests := []struct {
		name    string
		args    LockArgs
		wantErr error
	}{
		{"invalid lock type", LockArgs{StateID: owner.Stateid(), ObjectID: []byte("fh"), LockType: 7, Length: 1}, ErrInval},
		{"zero length", LockArgs{StateID: owner.Stateid(), ObjectID: []byte("fh"), LockType: types.READ_LT}, ErrInval},
		{"open stateid", LockArgs{StateID: open.Stateid(), ObjectID: []byte("fh"), LockType: types.READ_LT, Length: 1}, ErrBadStateid},
		{"reclaim outside grace", LockArgs{StateID: owner.Stateid(), ObjectID: []byte("fh"), LockType: types.READ_LT, Length: 1, Reclaim: true}, ErrNoGrace},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Lock(ctx, tt.args)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLock_ConflictReportsHolder(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t, Config{})
	ctx := context.Background()
	file := []byte("fh-1")

	a := mustClient(t, h, "client-a")
	b := mustClient(t, h, "client-b")
	ownerA := mustLockOwner(t, h, a, "owner-a")
	ownerB := mustLockOwner(t, h, b, "owner-b")

	_, err := h.Lock(ctx, LockArgs{StateID: ownerA.Stateid(), ObjectID: file, LockType: types.WRITE_LT, Offset: 0, Length: 100})
	require.NoError(t, err)

	_, err = h.Lock(ctx, LockArgs{StateID: ownerB.Stateid(), ObjectID: file, LockType: types.READ_LT, Offset: 50, Length: 10})
	require.ErrorIs(t, err, ErrDenied)

	var se *NFS4StateError
	require.True(t, errors.As(err, &se))
	require.NotNil(t, se.Denied)
	assert.Equal(t, a.ID, se.Denied.ClientID)
	assert.Equal(t, []byte("owner-a"), se.Denied.Owner)
	assert.Equal(t, uint32(types.WRITE_LT), se.Denied.LockType)
	assert.Equal(t, uint64(0), se.Denied.Offset)
	assert.Equal(t, uint64(100), se.Denied.Length)

	// A failed request leaves the seqid alone.
	assert.Equal(t, uint32(1), ownerB.Stateid().Seqid)

	// Shared locks of different owners coexist.
	_, err = h.Lock(ctx, LockArgs{StateID: ownerB.Stateid(), ObjectID: file, LockType: types.READ_LT, Offset: 200, Length: 10})
	require.NoError(t, err)
}

func TestTestLock(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t, Config{})
	ctx := context.Background()
	file := []byte("fh-1")

	a := mustClient(t, h, "client-a")
	b := mustClient(t, h, "client-b")
	ownerA := mustLockOwner(t, h, a, "owner-a")

	_, err := h.Lock(ctx, LockArgs{StateID: ownerA.Stateid(), ObjectID: file, LockType: types.READ_LT, Offset: 1000, Length: types.NFS4_UINT64_MAX})
	require.NoError(t, err)

	tests := []struct {
		name       string
		client     uint64
		owner      string
		lockType   uint32
		offset     uint64
		length     uint64
		wantDenied bool
	}{
		{"read shares with read", b.ID, "owner-b", types.READ_LT, 5000, 10, false},
		{"write before the range", b.ID, "owner-b", types.WRITE_LT, 0, 1000, false},
		{"write far past offset hits to-EOF lock", b.ID, "owner-b", types.WRITE_LT, 1 << 40, 1, true},
		{"same owner never conflicts", a.ID, "owner-a", types.WRITE_LT, 1000, 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			denied, err := h.TestLock(ctx, tt.client, []byte(tt.owner), file, tt.lockType, tt.offset, tt.length)
			require.NoError(t, err)
			if !tt.wantDenied {
				assert.Nil(t, denied)
				return
			}
			require.NotNil(t, denied)
			assert.Equal(t, uint64(1000), denied.Offset)
			assert.Equal(t, uint64(types.NFS4_UINT64_MAX), denied.Length)
			assert.Equal(t, uint32(types.READ_LT), denied.LockType)
		})
	}

	_, err = h.TestLock(ctx, 0xbad, []byte("x"), file, types.READ_LT, 0, 1)
	assert.ErrorIs(t, err, ErrStaleClientID)
}

func TestUnlock(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t, Config{})
	ctx := context.Background()
	file := []byte("fh-1")

	a := mustClient(t, h, "client-a")
	b := mustClient(t, h, "client-b")
	owner := mustLockOwner(t, h, a, "owner")

	id, err := h.Lock(ctx, LockArgs{StateID: owner.Stateid(), ObjectID: file, LockType: types.WRITE_LT, Offset: 10, Length: 10})
	require.NoError(t, err)

	_, err = h.Unlock(ctx, id, file, 10, 5)
	assert.ErrorIs(t, err, ErrLockRange, "only exact ranges unlock")

	next, err := h.Unlock(ctx, id, file, 10, 10)
	require.NoError(t, err)
	assert.Equal(t, id.Seqid+1, next.Seqid)

	denied, err := h.TestLock(ctx, b.ID, []byte("x"), file, types.WRITE_LT, 10, 10)
	require.NoError(t, err)
	assert.Nil(t, denied)

	_, err = h.Unlock(ctx, next, file, 10, 10)
	assert.ErrorIs(t, err, ErrLockRange)
}

func TestRecoverLocks_StartsGrace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	backend := lock.NewMemoryBackend()
	file := []byte("fh-1")
	previousOwner := hex.EncodeToString([]byte("client-a"))

	// Locks left behind by a previous incarnation.
	require.NoError(t, backend.AddLock(ctx, lock.ObjectKey(file), &lock.Lock{
		ID:     "stale-1",
		Owner:  lock.Owner{OwnerID: "nfs4:1:6f", ClientID: previousOwner},
		Length: 10,
		Type:   lock.LockTypeExclusive,
	}))

	h, _ := newTestHandlerWithBackend(t, Config{}, backend)
	purged, err := h.RecoverLocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)
	require.True(t, h.Grace().InGrace())
	assert.Equal(t, []string{previousOwner}, h.Grace().ExpectedOwners())

	a := mustClient(t, h, "client-a")
	b := mustClient(t, h, "client-b")
	ownerA := mustLockOwner(t, h, a, "owner-a")
	ownerB := mustLockOwner(t, h, b, "owner-b")

	_, err = h.Lock(ctx, LockArgs{StateID: ownerB.Stateid(), ObjectID: file, LockType: types.WRITE_LT, Offset: 100, Length: 10})
	assert.ErrorIs(t, err, ErrGrace)
	_, err = h.TestLock(ctx, b.ID, []byte("owner-b"), file, types.WRITE_LT, 0, 10)
	assert.ErrorIs(t, err, ErrGrace)

	_, err = h.Lock(ctx, LockArgs{StateID: ownerA.Stateid(), ObjectID: file, LockType: types.WRITE_LT, Length: 10, Reclaim: true})
	require.NoError(t, err)
	assert.False(t, h.Grace().InGrace(), "grace ends once every expected client reclaimed")

	_, err = h.Lock(ctx, LockArgs{StateID: ownerB.Stateid(), ObjectID: file, LockType: types.WRITE_LT, Offset: 100, Length: 10})
	assert.NoError(t, err)
}

func TestRecoverLocks_EmptyBackendSkipsGrace(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t, Config{})

	purged, err := h.RecoverLocks(context.Background())
	require.NoError(t, err)
	assert.Zero(t, purged)
	assert.False(t, h.Grace().InGrace())
}

func TestRecoverLocks_DistributedBackendUntouched(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	backend := distributedBackend{lock.NewMemoryBackend()}
	file := []byte("fh-1")

	require.NoError(t, backend.AddLock(ctx, lock.ObjectKey(file), &lock.Lock{
		ID:     "peer-1",
		Owner:  lock.Owner{OwnerID: "nfs4:7:01", ClientID: "01"},
		Length: 10,
		Type:   lock.LockTypeShared,
	}))

	h, _ := newTestHandlerWithBackend(t, Config{}, backend)
	purged, err := h.RecoverLocks(ctx)
	require.NoError(t, err)
	assert.Zero(t, purged)
	assert.False(t, h.Grace().InGrace())

	locks, err := h.LockManager().ListLocks(ctx, file)
	require.NoError(t, err)
	assert.Len(t, locks, 1)
}

func TestReclaimComplete(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t, Config{})

	c := mustClient(t, h, "client-a")
	require.NoError(t, h.ReclaimComplete(c.ID))
	assert.ErrorIs(t, h.ReclaimComplete(c.ID), ErrCompleteAlready)
	assert.ErrorIs(t, h.ReclaimComplete(0xbad), ErrStaleClientID)
}

func TestLock_DestroyStateDuringGrantLeavesNoLock(t *testing.T) {
	t.Parallel()
	backend := newGatedBackend()
	h, _ := newTestHandlerWithBackend(t, Config{}, backend)
	ctx := context.Background()
	file := []byte("fh-1")

	c := mustClient(t, h, "client-a")
	owner := mustLockOwner(t, h, c, "owner")
	id := owner.Stateid()

	entered, open := backend.arm()
	done := make(chan error, 1)
	go func() {
		_, err := h.Lock(ctx, LockArgs{StateID: id, ObjectID: file, LockType: types.WRITE_LT, Length: 10})
		done <- err
	}()

	<-entered
	require.NoError(t, h.DestroyState(ctx, id))
	assert.True(t, owner.IsReleased())
	open()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrBadStateid)
	case <-time.After(2 * time.Second):
		t.Fatal("lock call did not return")
	}

	locks, err := h.LockManager().ListLocks(ctx, file)
	require.NoError(t, err)
	assert.Empty(t, locks, "a lock granted to a destroyed state must not survive")

	// The same lock-owner can be recreated and lock the range again.
	again := mustLockOwner(t, h, c, "owner")
	_, err = h.Lock(ctx, LockArgs{StateID: again.Stateid(), ObjectID: file, LockType: types.WRITE_LT, Length: 10})
	assert.NoError(t, err)
}

func TestLock_RejectsDestroyedState(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t, Config{})
	ctx := context.Background()

	c := mustClient(t, h, "client-a")
	owner := mustLockOwner(t, h, c, "owner")
	id := owner.Stateid()
	require.NoError(t, h.DestroyState(ctx, id))

	_, err := h.Lock(ctx, LockArgs{StateID: id, ObjectID: []byte("fh"), LockType: types.WRITE_LT, Length: 10})
	assert.ErrorIs(t, err, ErrBadStateid)
}
