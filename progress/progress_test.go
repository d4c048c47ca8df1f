package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewStore(rdb, time.Minute, time.Hour), mr
}

func TestBatchAbsentUntilStarted(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	st, err := s.Batch(ctx)
	require.NoError(t, err)
	assert.False(t, st.Active)
	assert.False(t, st.Drained())

	cleared, err := s.ClearIfDrained(ctx)
	require.NoError(t, err)
	assert.False(t, cleared)
}

func TestBatchDrainsAfterExactlyPendingIncrements(t *testing.T) {
	s, mr := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.StartBatch(ctx, 3))
	for i := 0; i < 2; i++ {
		_, err := s.IncrCompleted(ctx)
		require.NoError(t, err)
		cleared, err := s.ClearIfDrained(ctx)
		require.NoError(t, err)
		assert.False(t, cleared, "cleared after %d of 3", i+1)
	}

	n, err := s.IncrCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	st, err := s.Batch(ctx)
	require.NoError(t, err)
	assert.True(t, st.Drained())

	cleared, err := s.ClearIfDrained(ctx)
	require.NoError(t, err)
	assert.True(t, cleared)
	assert.False(t, mr.Exists(KeyPending))
	assert.False(t, mr.Exists(KeyCompleted))
}

func TestDecrPendingShrinksBatch(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.StartBatch(ctx, 2))
	require.NoError(t, s.DecrPending(ctx))
	_, err := s.IncrCompleted(ctx)
	require.NoError(t, err)

	st, err := s.Batch(ctx)
	require.NoError(t, err)
	assert.Equal(t, BatchState{Active: true, Pending: 1, Completed: 1}, st)
	assert.True(t, st.Drained())
}

func TestBatchExpiresWhenCompletionsStop(t *testing.T) {
	s, mr := setupTestStore(t)
	s.WithBatchTTL(10 * time.Minute)
	ctx := context.Background()

	require.NoError(t, s.StartBatch(ctx, 3))
	assert.Equal(t, 10*time.Minute, mr.TTL(KeyPending))
	assert.Equal(t, 10*time.Minute, mr.TTL(KeyCompleted))

	mr.FastForward(8 * time.Minute)
	_, err := s.IncrCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, mr.TTL(KeyPending), "a completion pushes the expiry out")

	mr.FastForward(8 * time.Minute)
	_, err = s.IncrCompleted(ctx)
	require.NoError(t, err)
	st, err := s.Batch(ctx)
	require.NoError(t, err)
	assert.Equal(t, BatchState{Active: true, Pending: 3, Completed: 2}, st)

	// the third job never reports back
	mr.FastForward(11 * time.Minute)
	st, err = s.Batch(ctx)
	require.NoError(t, err)
	assert.False(t, st.Active)
}

func TestDiscardBatchRemovesCounters(t *testing.T) {
	s, mr := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.StartBatch(ctx, 1))
	require.NoError(t, s.DecrPending(ctx))
	require.NoError(t, s.DiscardBatch(ctx))
	assert.False(t, mr.Exists(KeyPending))
	assert.False(t, mr.Exists(KeyCompleted))
}

func TestScanLockIsExclusiveAndOwnerChecked(t *testing.T) {
	s, mr := setupTestStore(t)
	ctx := context.Background()

	token, ok, err := s.AcquireScanLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Minute, mr.TTL(KeyScanLock))

	_, ok, err = s.AcquireScanLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.ReleaseScanLock(ctx, "someone-else"))
	held, err := s.ScanLockHeld(ctx)
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, s.ReleaseScanLock(ctx, token))
	held, err = s.ScanLockHeld(ctx)
	require.NoError(t, err)
	assert.False(t, held)
}

func TestScanLockExpires(t *testing.T) {
	s, mr := setupTestStore(t)
	ctx := context.Background()

	_, ok, err := s.AcquireScanLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	_, ok, err = s.AcquireScanLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExportLifecycle(t *testing.T) {
	s, mr := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InitExport(ctx, "t1", "album", 4))
	assert.Equal(t, time.Hour, mr.TTL(ExportKey("t1")))

	ok, err := s.UpdateExportProgress(ctx, "t1", 1, 4)
	require.NoError(t, err)
	assert.True(t, ok)

	st, err := s.GetExport(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, st.Status)
	assert.Equal(t, 25, st.Progress)
	assert.Equal(t, 1, st.Completed)

	ok, err = s.CompleteExport(ctx, "t1", "/hot/archives/t1.zip", "album.zip", 4)
	require.NoError(t, err)
	assert.True(t, ok)

	st, err = s.GetExport(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, st.Status)
	assert.Equal(t, 100, st.Progress)
	assert.Equal(t, "album.zip", st.ZipFilename)
}

func TestCancelledExportRejectsLateWrites(t *testing.T) {
	s, mr := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InitExport(ctx, "t2", "assets", 10))
	before, err := s.CancelExport(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, before.Status)
	assert.Equal(t, CancelledExportTTL, mr.TTL(ExportKey("t2")))

	status, err := s.ExportStatus(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, status)

	ok, err := s.UpdateExportProgress(ctx, "t2", 5, 10)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CompleteExport(ctx, "t2", "x", "y", 10)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.FailExport(ctx, "t2", errors.New("late")))
	status, err = s.ExportStatus(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, status)
}

func TestMissingExportIsNotFound(t *testing.T) {
	s, mr := setupTestStore(t)
	ctx := context.Background()

	status, err := s.ExportStatus(ctx, "nope")
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, status)

	st, err := s.CancelExport(ctx, "nope")
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, st.Status)
	assert.False(t, mr.Exists(ExportKey("nope")))

	ok, err := s.UpdateExportProgress(ctx, "nope", 1, 2)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(ExportKey("nope")))
}

func TestFailExportRecordsMessage(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InitExport(ctx, "t3", "catalog", 5))
	require.NoError(t, s.FailExport(ctx, "t3", errors.New("disk full")))

	st, err := s.GetExport(ctx, "t3")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, st.Status)
	assert.Equal(t, "disk full", st.Error)
}
