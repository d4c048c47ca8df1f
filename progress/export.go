package progress

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusFailed     = "failed"
	StatusNotFound   = "not_found"
)

// ExportState is the snapshot stored in the export:{task_id} hash.
type ExportState struct {
	TaskID      string `json:"task_id"`
	Status      string `json:"status"`
	Scope       string `json:"scope,omitempty"`
	Total       int    `json:"total"`
	Completed   int    `json:"completed"`
	Progress    int    `json:"progress"`
	ZipPath     string `json:"zip_path,omitempty"`
	ZipFilename string `json:"zip_filename,omitempty"`
	Error       string `json:"error,omitempty"`
}

func ExportKey(taskID string) string {
	return exportKeyPrefix + taskID
}

func percent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	p := completed * 100 / total
	if p > 100 {
		p = 100
	}
	return p
}

// updateExportScript sets field/value pairs (ARGV[2..]) when the hash exists
// and, if ARGV[1] is non-empty, its status equals ARGV[1]. A missing hash is
// never recreated, so a late write cannot resurrect an expired task without
// a TTL.
var updateExportScript = redis.NewScript(`
local s = redis.call('HGET', KEYS[1], 'status')
if not s then
	return 0
end
if ARGV[1] ~= '' and s ~= ARGV[1] then
	return 0
end
for i = 2, #ARGV, 2 do
	redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
return 1
`)

var cancelExportScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return {}
end
local before = redis.call('HGETALL', KEYS[1])
redis.call('HSET', KEYS[1], 'status', 'cancelled')
redis.call('EXPIRE', KEYS[1], ARGV[1])
return before
`)

func (s *Store) updateExport(ctx context.Context, taskID, requireStatus string, fields ...interface{}) (bool, error) {
	args := append([]interface{}{requireStatus}, fields...)
	n, err := updateExportScript.Run(ctx, s.rdb, []string{ExportKey(taskID)}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("failed to update export %s: %w", taskID, err)
	}
	return n == 1, nil
}

// InitExport writes the initial in_progress record and sets the TTL. Calling
// it again for the same task resets the counters.
func (s *Store) InitExport(ctx context.Context, taskID, scope string, total int) error {
	key := ExportKey(taskID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]interface{}{
			"status":    StatusInProgress,
			"scope":     scope,
			"total":     total,
			"completed": 0,
			"progress":  0,
		})
		pipe.Expire(ctx, key, s.exportTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create export %s: %w", taskID, err)
	}
	return nil
}

// UpdateExportProgress records completed units. It reports false when the task
// is no longer in progress.
func (s *Store) UpdateExportProgress(ctx context.Context, taskID string, completed, total int) (bool, error) {
	return s.updateExport(ctx, taskID, StatusInProgress,
		"completed", completed,
		"total", total,
		"progress", percent(completed, total),
	)
}

// CompleteExport marks the task completed. It reports false, writing nothing,
// when the task was cancelled or expired in the meantime.
func (s *Store) CompleteExport(ctx context.Context, taskID, zipPath, zipFilename string, total int) (bool, error) {
	return s.updateExport(ctx, taskID, StatusInProgress,
		"status", StatusCompleted,
		"completed", total,
		"total", total,
		"progress", 100,
		"zip_path", zipPath,
		"zip_filename", zipFilename,
	)
}

func (s *Store) FailExport(ctx context.Context, taskID string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	_, err := s.updateExport(ctx, taskID, StatusInProgress,
		"status", StatusFailed,
		"error", msg,
	)
	return err
}

// ExportStatus returns only the status field, or StatusNotFound.
func (s *Store) ExportStatus(ctx context.Context, taskID string) (string, error) {
	st, err := s.rdb.HGet(ctx, ExportKey(taskID), "status").Result()
	if err == redis.Nil {
		return StatusNotFound, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read export status %s: %w", taskID, err)
	}
	return st, nil
}

func (s *Store) GetExport(ctx context.Context, taskID string) (ExportState, error) {
	m, err := s.rdb.HGetAll(ctx, ExportKey(taskID)).Result()
	if err != nil {
		return ExportState{}, fmt.Errorf("failed to read export %s: %w", taskID, err)
	}
	return exportFromMap(taskID, m), nil
}

// CancelExport sets status cancelled and shrinks the TTL. It returns the
// state as it was before the cancel so the caller can remove an archive that
// already exists.
func (s *Store) CancelExport(ctx context.Context, taskID string) (ExportState, error) {
	res, err := cancelExportScript.Run(ctx, s.rdb, []string{ExportKey(taskID)}, int(CancelledExportTTL.Seconds())).StringSlice()
	if err != nil && err != redis.Nil {
		return ExportState{}, fmt.Errorf("failed to cancel export %s: %w", taskID, err)
	}
	m := make(map[string]string, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		m[res[i]] = res[i+1]
	}
	return exportFromMap(taskID, m), nil
}

func exportFromMap(taskID string, m map[string]string) ExportState {
	if len(m) == 0 {
		return ExportState{TaskID: taskID, Status: StatusNotFound}
	}
	atoi := func(k string) int {
		n, _ := strconv.Atoi(m[k])
		return n
	}
	return ExportState{
		TaskID:      taskID,
		Status:      m["status"],
		Scope:       m["scope"],
		Total:       atoi("total"),
		Completed:   atoi("completed"),
		Progress:    atoi("progress"),
		ZipPath:     m["zip_path"],
		ZipFilename: m["zip_filename"],
		Error:       m["error"],
	}
}
