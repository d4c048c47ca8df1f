package progress

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	KeyPending   = "ingestion:pending"
	KeyCompleted = "ingestion:completed"
	KeyScanLock  = "scan:lock"

	exportKeyPrefix = "export:"
)

const (
	DefaultScanLockTTL = 10 * time.Minute
	DefaultExportTTL   = 2 * time.Hour
	DefaultBatchTTL    = time.Hour
	CancelledExportTTL = 60 * time.Second
)

// Store is the Redis-backed coordination store shared by the sentinel, the
// scanner, the workers and the HTTP layer. Every counter change is a single
// INCR/INCRBY or a Lua script.
type Store struct {
	rdb         redis.UniversalClient
	scanLockTTL time.Duration
	exportTTL   time.Duration
	batchTTL    time.Duration
}

func NewStore(rdb redis.UniversalClient, scanLockTTL, exportTTL time.Duration) *Store {
	if scanLockTTL <= 0 {
		scanLockTTL = DefaultScanLockTTL
	}
	if exportTTL <= 0 {
		exportTTL = DefaultExportTTL
	}
	return &Store{rdb: rdb, scanLockTTL: scanLockTTL, exportTTL: exportTTL, batchTTL: DefaultBatchTTL}
}

// WithBatchTTL sets how long the ingestion counters outlive the last
// completion. A batch whose worker died mid-job expires after this much
// silence and the next tick starts fresh.
func (s *Store) WithBatchTTL(ttl time.Duration) *Store {
	if ttl > 0 {
		s.batchTTL = ttl
	}
	return s
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// BatchState is a snapshot of the ingestion counters.
type BatchState struct {
	Active    bool  `json:"active"`
	Pending   int64 `json:"pending"`
	Completed int64 `json:"completed"`
}

func (b BatchState) Drained() bool {
	return b.Active && b.Completed >= b.Pending
}

// StartBatch writes pending = n, completed = 0, both expiring after the
// batch TTL.
func (s *Store) StartBatch(ctx context.Context, n int64) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, KeyPending, n, s.batchTTL)
		pipe.Set(ctx, KeyCompleted, 0, s.batchTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to start ingestion batch of %d: %w", n, err)
	}
	return nil
}

// DiscardBatch removes both counters. The scanner calls it when no job of
// the batch reached the queue.
func (s *Store) DiscardBatch(ctx context.Context) error {
	if err := s.rdb.Del(ctx, KeyPending, KeyCompleted).Err(); err != nil {
		return fmt.Errorf("failed to discard ingestion batch: %w", err)
	}
	return nil
}

// DecrPending takes back one dispatch that never reached the queue.
func (s *Store) DecrPending(ctx context.Context) error {
	if err := s.rdb.IncrBy(ctx, KeyPending, -1).Err(); err != nil {
		return fmt.Errorf("failed to decrement %s: %w", KeyPending, err)
	}
	return nil
}

var incrCompletedScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[2])
redis.call('EXPIRE', KEYS[2], ARGV[1])
if redis.call('EXISTS', KEYS[1]) == 1 then
	redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// IncrCompleted records one consumed processing job and pushes the expiry of
// both counters out by the batch TTL.
func (s *Store) IncrCompleted(ctx context.Context) (int64, error) {
	ttl := int64(s.batchTTL / time.Second)
	n, err := incrCompletedScript.Run(ctx, s.rdb, []string{KeyPending, KeyCompleted}, ttl).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", KeyCompleted, err)
	}
	return n, nil
}

func (s *Store) Batch(ctx context.Context) (BatchState, error) {
	vals, err := s.rdb.MGet(ctx, KeyPending, KeyCompleted).Result()
	if err != nil {
		return BatchState{}, fmt.Errorf("failed to read ingestion counters: %w", err)
	}
	var st BatchState
	if vals[0] == nil {
		return st, nil
	}
	st.Active = true
	if st.Pending, err = parseCounter(vals[0]); err != nil {
		return BatchState{}, fmt.Errorf("bad %s value: %w", KeyPending, err)
	}
	if vals[1] != nil {
		if st.Completed, err = parseCounter(vals[1]); err != nil {
			return BatchState{}, fmt.Errorf("bad %s value: %w", KeyCompleted, err)
		}
	}
	return st, nil
}

func parseCounter(v interface{}) (int64, error) {
	str, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected type %T", v)
	}
	return strconv.ParseInt(str, 10, 64)
}

var clearIfDrainedScript = redis.NewScript(`
local p = redis.call('GET', KEYS[1])
if not p then
	return 0
end
local c = tonumber(redis.call('GET', KEYS[2]) or '0')
if c >= tonumber(p) then
	redis.call('DEL', KEYS[1], KEYS[2])
	return 1
end
return 0
`)

// ClearIfDrained deletes both counters when completed >= pending and reports
// whether it did.
func (s *Store) ClearIfDrained(ctx context.Context) (bool, error) {
	n, err := clearIfDrainedScript.Run(ctx, s.rdb, []string{KeyPending, KeyCompleted}).Int()
	if err != nil {
		return false, fmt.Errorf("failed to clear drained batch: %w", err)
	}
	return n == 1, nil
}

// AcquireScanLock sets the scan lock if absent. The returned token must be
// passed to ReleaseScanLock.
func (s *Store) AcquireScanLock(ctx context.Context) (string, bool, error) {
	token := uuid.NewString()
	ok, err := s.rdb.SetNX(ctx, KeyScanLock, token, s.scanLockTTL).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire %s: %w", KeyScanLock, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// ReleaseScanLock deletes the lock only while token still owns it, so a
// holder whose lock already expired cannot release a newer one.
func (s *Store) ReleaseScanLock(ctx context.Context, token string) error {
	if err := releaseLockScript.Run(ctx, s.rdb, []string{KeyScanLock}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release %s: %w", KeyScanLock, err)
	}
	return nil
}

func (s *Store) ScanLockHeld(ctx context.Context) (bool, error) {
	n, err := s.rdb.Exists(ctx, KeyScanLock).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", KeyScanLock, err)
	}
	return n == 1, nil
}
