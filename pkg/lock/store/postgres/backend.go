// Package postgres implements a distributed lock.Backend on PostgreSQL.
//
// Every server instance of a cluster points at the same database. Lock
// entries live in the nfs4_locks table and the per-object mutex is a
// session-level advisory lock, so the read-decide-mutate step of one
// instance excludes every other instance working on the same object.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marmos91/nfs4state/internal/logger"
	"github.com/marmos91/nfs4state/pkg/lock"
)

// advisorySeed namespaces the advisory-lock hash so object mutexes do not
// collide with advisory locks taken by other applications on the database.
const advisorySeed = 0x6e667334

const unlockTimeout = 5 * time.Second

// poolAcquireTimeout bounds the wait for a pooled connection. pgxpool has no
// acquire timeout of its own and lock requests often carry no deadline.
const poolAcquireTimeout = 10 * time.Second

// Backend is the postgres lock backend.
type Backend struct {
	pool       *pgxpool.Pool
	instanceID string
}

var (
	_ lock.Backend      = (*Backend)(nil)
	_ lock.SessionMutex = (*advisoryMutex)(nil)
)

// querier is the subset of pgx shared by the pool and a pooled connection.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// db returns the connection holding the advisory lock of key when ctx was
// bound by that mutex, the pool otherwise. A mutex holder must not wait on
// the pool for a second connection: with every connection pinned by a held
// or waiting mutex it would never get one.
func (b *Backend) db(ctx context.Context, key string) querier {
	if h, ok := ctx.Value(heldConnKey{}).(*heldConn); ok && h.key == key && h.pool == b.pool {
		return h.conn
	}
	return b.pool
}

// Open connects to the database described by cfg and, when requested,
// applies pending migrations.
func Open(ctx context.Context, cfg Config) (*Backend, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.AutoMigrate {
		if err := RunMigrations(ctx, cfg.ConnectionString()); err != nil {
			return nil, err
		}
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns

	logger.Info("Creating PostgreSQL connection pool",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Database,
		"max_conns", cfg.MaxConns,
	)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	return New(pool), nil
}

// New wraps an existing pool. The schema must already be migrated.
func New(pool *pgxpool.Pool) *Backend {
	return &Backend{
		pool:       pool,
		instanceID: uuid.New().String(),
	}
}

// InstanceID identifies this server instance in the holder column.
func (b *Backend) InstanceID() string {
	return b.instanceID
}

// GetLocks returns the locks stored for key.
func (b *Backend) GetLocks(ctx context.Context, key string) ([]*lock.Lock, error) {
	rows, err := b.db(ctx, key).Query(ctx, `
		SELECT id, owner_id, client_id, lock_type, byte_offset, byte_length, reclaim, acquired_at
		FROM nfs4_locks
		WHERE object_key = $1
		ORDER BY acquired_at, id
	`, key)
	if err != nil {
		return nil, fmt.Errorf("query locks: %w", err)
	}

	locks, err := pgx.CollectRows(rows, scanLock)
	if err != nil {
		return nil, fmt.Errorf("scan locks: %w", err)
	}
	return locks, nil
}

func scanLock(row pgx.CollectableRow) (*lock.Lock, error) {
	var (
		l              lock.Lock
		lockType       int16
		offset, length int64
	)
	if err := row.Scan(&l.ID, &l.Owner.OwnerID, &l.Owner.ClientID, &lockType, &offset, &length, &l.Reclaim, &l.AcquiredAt); err != nil {
		return nil, err
	}
	l.Type = lock.LockType(lockType)
	// BIGINT is signed; offsets are stored bit for bit.
	l.Offset = uint64(offset)
	l.Length = uint64(length)
	return &l, nil
}

// AddLock upserts l.
func (b *Backend) AddLock(ctx context.Context, key string, l *lock.Lock) error {
	return b.AddLocks(ctx, key, []*lock.Lock{l})
}

// RemoveLock deletes the entry with l.ID.
func (b *Backend) RemoveLock(ctx context.Context, key string, l *lock.Lock) error {
	return b.RemoveLocks(ctx, key, []*lock.Lock{l})
}

// AddLocks upserts ls in one transaction.
func (b *Backend) AddLocks(ctx context.Context, key string, ls []*lock.Lock) error {
	if len(ls) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, b.db(ctx, key), func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, l := range ls {
			batch.Queue(`
				INSERT INTO nfs4_locks (id, object_key, owner_id, client_id, lock_type,
				                        byte_offset, byte_length, reclaim, acquired_at, holder)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				ON CONFLICT (id) DO UPDATE SET
					lock_type = EXCLUDED.lock_type,
					byte_offset = EXCLUDED.byte_offset,
					byte_length = EXCLUDED.byte_length,
					reclaim = EXCLUDED.reclaim,
					holder = EXCLUDED.holder
			`,
				l.ID,
				key,
				l.Owner.OwnerID,
				l.Owner.ClientID,
				int16(l.Type),
				int64(l.Offset),
				int64(l.Length),
				l.Reclaim,
				l.AcquiredAt,
				b.instanceID,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert locks: %w", err)
		}
		return nil
	})
}

// RemoveLocks deletes ls.
func (b *Backend) RemoveLocks(ctx context.Context, key string, ls []*lock.Lock) error {
	if len(ls) == 0 {
		return nil
	}
	ids := make([]string, len(ls))
	for i, l := range ls {
		ids[i] = l.ID
	}
	if _, err := b.db(ctx, key).Exec(ctx, `DELETE FROM nfs4_locks WHERE object_key = $1 AND id = ANY($2)`, key, ids); err != nil {
		return fmt.Errorf("delete locks: %w", err)
	}
	return nil
}

// Objects returns every object key with locks, sorted.
func (b *Backend) Objects(ctx context.Context) ([]string, error) {
	rows, err := b.pool.Query(ctx, `SELECT DISTINCT object_key FROM nfs4_locks ORDER BY object_key`)
	if err != nil {
		return nil, fmt.Errorf("query objects: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan objects: %w", err)
	}
	return keys, nil
}

// Mutex returns the cluster-wide mutex for key.
func (b *Backend) Mutex(key string) lock.ObjectMutex {
	return &advisoryMutex{pool: b.pool, key: key}
}

// Distributed is true: other instances change the table concurrently.
func (b *Backend) Distributed() bool { return true }

// Close closes the connection pool.
func (b *Backend) Close() error {
	b.pool.Close()
	return nil
}

// Truncate deletes every lock row. Tests use it to reset the shared table.
func (b *Backend) Truncate(ctx context.Context) (int64, error) {
	tag, err := b.pool.Exec(ctx, `DELETE FROM nfs4_locks`)
	if err != nil {
		return 0, fmt.Errorf("truncate locks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// advisoryMutex holds pg_advisory_lock on a dedicated pooled connection.
// Session-level advisory locks belong to the connection, so the same
// connection must be used to unlock. While held, the backend runs the
// queries of the critical section on that connection too (see Bind).
type advisoryMutex struct {
	pool *pgxpool.Pool
	key  string

	conn *pgxpool.Conn
}

type heldConnKey struct{}

type heldConn struct {
	pool *pgxpool.Pool
	key  string
	conn *pgxpool.Conn
}

func (m *advisoryMutex) Lock(ctx context.Context) error {
	acquireCtx, cancel := context.WithTimeout(ctx, poolAcquireTimeout)
	conn, err := m.pool.Acquire(acquireCtx)
	cancel()
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("connection acquire timeout after %v: pool may be exhausted", poolAcquireTimeout)
		}
		return fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtextextended($1, $2))`, m.key, int64(advisorySeed)); err != nil {
		// The lock may have been granted just before the cancellation
		// landed; dropping the session releases it either way.
		_ = conn.Conn().Close(context.Background())
		conn.Release()
		return fmt.Errorf("advisory lock %s: %w", m.key, err)
	}
	m.conn = conn
	return nil
}

// Bind makes backend calls made with the returned context run on the
// connection holding the lock.
func (m *advisoryMutex) Bind(ctx context.Context) context.Context {
	if m.conn == nil {
		return ctx
	}
	return context.WithValue(ctx, heldConnKey{}, &heldConn{pool: m.pool, key: m.key, conn: m.conn})
}

func (m *advisoryMutex) Unlock() error {
	if m.conn == nil {
		return nil
	}
	conn := m.conn
	m.conn = nil
	defer conn.Release()

	ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
	defer cancel()

	var released bool
	err := conn.QueryRow(ctx, `SELECT pg_advisory_unlock(hashtextextended($1, $2))`, m.key, int64(advisorySeed)).Scan(&released)
	if err != nil {
		_ = conn.Conn().Close(context.Background())
		return fmt.Errorf("advisory unlock %s: %w", m.key, err)
	}
	if !released {
		return errors.New("advisory lock " + m.key + " was not held")
	}
	return nil
}
