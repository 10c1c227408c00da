package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-admin/internal/platform/keylock"
	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

// RefreshStore keeps exactly one live refresh token per user.
type RefreshStore interface {
	// Put installs token as the user's live record, replacing any previous one.
	Put(ctx context.Context, userID int64, token string, expiresAt time.Time) error
	// CompareAndSwap replaces old with next only if old is still the live,
	// unexpired record. It reports whether the swap happened.
	CompareAndSwap(ctx context.Context, userID int64, old, next string, expiresAt time.Time) (bool, error)
	// Delete removes the user's record if any.
	Delete(ctx context.Context, userID int64) error
	// Sweep drops expired records and returns how many were removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

type refreshRecord struct {
	token     string
	expiresAt time.Time
}

// MemoryRefreshStore is the single-instance store. Operations on one user are
// serialised through a per-user lock; different users never contend.
type MemoryRefreshStore struct {
	locks   *keylock.Table[int64]
	mu      sync.RWMutex
	records map[int64]refreshRecord
	now     func() time.Time
}

// NewMemoryRefreshStore constructs an empty in-process store.
func NewMemoryRefreshStore() *MemoryRefreshStore {
	return &MemoryRefreshStore{
		locks:   keylock.New[int64](),
		records: make(map[int64]refreshRecord),
		now:     time.Now,
	}
}

// WithClock overrides the time source used for expiry checks.
func (s *MemoryRefreshStore) WithClock(now func() time.Time) *MemoryRefreshStore {
	s.now = now
	return s
}

func (s *MemoryRefreshStore) load(userID int64) (refreshRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[userID]
	return rec, ok
}

func (s *MemoryRefreshStore) store(userID int64, rec refreshRecord) {
	s.mu.Lock()
	s.records[userID] = rec
	s.mu.Unlock()
}

func (s *MemoryRefreshStore) Put(_ context.Context, userID int64, token string, expiresAt time.Time) error {
	unlock := s.locks.Lock(userID)
	defer unlock()
	s.store(userID, refreshRecord{token: token, expiresAt: expiresAt})
	return nil
}

func (s *MemoryRefreshStore) CompareAndSwap(_ context.Context, userID int64, old, next string, expiresAt time.Time) (bool, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()
	current, ok := s.load(userID)
	if !ok || current.token != old || !s.now().Before(current.expiresAt) {
		return false, nil
	}
	s.store(userID, refreshRecord{token: next, expiresAt: expiresAt})
	return true, nil
}

func (s *MemoryRefreshStore) Delete(_ context.Context, userID int64) error {
	unlock := s.locks.Lock(userID)
	defer unlock()
	s.mu.Lock()
	delete(s.records, userID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryRefreshStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.RLock()
	var expired []int64
	for userID, rec := range s.records {
		if !now.Before(rec.expiresAt) {
			expired = append(expired, userID)
		}
	}
	s.mu.RUnlock()

	removed := 0
	for _, userID := range expired {
		unlock := s.locks.Lock(userID)
		// re-check under the user lock: a rotation may have replaced the record
		if rec, ok := s.load(userID); ok && !now.Before(rec.expiresAt) {
			s.mu.Lock()
			delete(s.records, userID)
			s.mu.Unlock()
			removed++
		}
		unlock()
	}
	return removed, nil
}

// casScript swaps the record only when it still holds the presented token.
var casScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current == ARGV[1] then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
	return 1
end
return 0
`)

// RedisRefreshStore shares refresh records across instances. Expiry is
// enforced by key TTL so Sweep has nothing to do.
type RedisRefreshStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisRefreshStore wires a go-redis client.
func NewRedisRefreshStore(client *redis.Client) *RedisRefreshStore {
	return &RedisRefreshStore{client: client, now: time.Now}
}

func (s *RedisRefreshStore) ttl(expiresAt time.Time) (time.Duration, error) {
	ttl := expiresAt.Sub(s.now())
	if ttl < time.Millisecond {
		return 0, fmt.Errorf("%w: refresh token already expired", shared.ErrUnauthenticated)
	}
	return ttl, nil
}

func (s *RedisRefreshStore) Put(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	ttl, err := s.ttl(expiresAt)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, shared.RefreshTokenKey(userID), token, ttl).Err()
}

func (s *RedisRefreshStore) CompareAndSwap(ctx context.Context, userID int64, old, next string, expiresAt time.Time) (bool, error) {
	ttl, err := s.ttl(expiresAt)
	if err != nil {
		return false, err
	}
	swapped, err := casScript.Run(ctx, s.client, []string{shared.RefreshTokenKey(userID)}, old, next, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return swapped == 1, nil
}

func (s *RedisRefreshStore) Delete(ctx context.Context, userID int64) error {
	return s.client.Del(ctx, shared.RefreshTokenKey(userID)).Err()
}

func (s *RedisRefreshStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

// PGExecutor is the subset of pgxpool.Pool used by PGRefreshStore.
type PGExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGRefreshStore persists refresh records in the refresh_tokens table.
type PGRefreshStore struct {
	db  PGExecutor
	now func() time.Time
}

// NewPGRefreshStore wires a pgx pool.
func NewPGRefreshStore(db PGExecutor) *PGRefreshStore {
	return &PGRefreshStore{db: db, now: time.Now}
}

const (
	upsertRefreshSQL = `
INSERT INTO refresh_tokens (user_id, token, expires_at, rotated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (user_id) DO UPDATE
SET token = EXCLUDED.token, expires_at = EXCLUDED.expires_at, rotated_at = now()`

	swapRefreshSQL = `
UPDATE refresh_tokens
SET token = $3, expires_at = $4, rotated_at = now()
WHERE user_id = $1 AND token = $2 AND expires_at > $5`
)

func (s *PGRefreshStore) Put(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	_, err := s.db.Exec(ctx, upsertRefreshSQL, userID, token, expiresAt.UTC())
	return err
}

// CompareAndSwap relies on the row lock taken by UPDATE: a second concurrent
// swap re-evaluates the WHERE clause after the first commits and matches nothing.
func (s *PGRefreshStore) CompareAndSwap(ctx context.Context, userID int64, old, next string, expiresAt time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, swapRefreshSQL, userID, old, next, expiresAt.UTC(), s.now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return false, fmt.Errorf("auth: refresh swap %s: %w", pgErr.Code, err)
		}
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGRefreshStore) Delete(ctx context.Context, userID int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	return err
}

func (s *PGRefreshStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

var (
	_ RefreshStore = (*MemoryRefreshStore)(nil)
	_ RefreshStore = (*RedisRefreshStore)(nil)
	_ RefreshStore = (*PGRefreshStore)(nil)
)
