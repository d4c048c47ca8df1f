package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/camden-git/photovault/models"
)

const (
	processTimeout = 30 * time.Minute
	exportTimeout  = 2 * time.Hour
	scanTimeout    = 15 * time.Minute
)

// Dispatcher enqueues per-file processing jobs.
type Dispatcher interface {
	EnqueueProcess(ctx context.Context, kind models.Kind, p ProcessPayload) error
}

// ExportDispatcher enqueues and cancels bulk export jobs.
type ExportDispatcher interface {
	EnqueueExport(ctx context.Context, scope ExportScope, p ExportPayload) error
	CancelExport(taskID string) error
}

// ScanDispatcher enqueues a manual scan.
type ScanDispatcher interface {
	EnqueueScan(ctx context.Context) (string, error)
}

// Client is the asynq-backed implementation of the dispatcher interfaces.
type Client struct {
	client      *asynq.Client
	inspector   *asynq.Inspector
	queue       string
	exportQueue string
}

func NewClient(opt asynq.RedisConnOpt, queue, exportQueue string) *Client {
	return &Client{
		client:      asynq.NewClient(opt),
		inspector:   asynq.NewInspector(opt),
		queue:       queue,
		exportQueue: exportQueue,
	}
}

func (c *Client) Close() error {
	errC := c.client.Close()
	errI := c.inspector.Close()
	return errors.Join(errC, errI)
}

// EnqueueProcess sends one file to the per-kind workers. Processing jobs are
// never retried; the next scan rediscovers files that failed.
func (c *Client) EnqueueProcess(ctx context.Context, kind models.Kind, p ProcessPayload) error {
	task, err := NewProcessTask(kind, p)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, processOptions(c.queue)...)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s for %s: %w", task.Type(), p.Filename, err)
	}
	return nil
}

// processOptions caps each job at processTimeout; the ingestion counters'
// TTL is derived from it.
func processOptions(queue string) []asynq.Option {
	return []asynq.Option{
		asynq.Queue(queue),
		asynq.MaxRetry(0),
		asynq.Timeout(processTimeout),
	}
}

// EnqueueExport uses the export task id as the asynq task id so the job can
// be found again by CancelExport.
func (c *Client) EnqueueExport(ctx context.Context, scope ExportScope, p ExportPayload) error {
	task, err := NewExportTask(scope, p)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.exportQueue),
		asynq.TaskID(p.TaskID),
		asynq.MaxRetry(0),
		asynq.Timeout(exportTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s %s: %w", task.Type(), p.TaskID, err)
	}
	return nil
}

// CancelExport removes a queued export or signals a running one. Both are
// best-effort; the worker also watches the status in the progress store.
func (c *Client) CancelExport(taskID string) error {
	err := c.inspector.DeleteTask(c.exportQueue, taskID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
		log.Printf("queue: WARNING could not delete export task %s: %v", taskID, err)
	}
	if err := c.inspector.CancelProcessing(taskID); err != nil {
		return fmt.Errorf("failed to signal cancel for export task %s: %w", taskID, err)
	}
	return nil
}

func (c *Client) EnqueueScan(ctx context.Context) (string, error) {
	id := uuid.NewString()
	task := asynq.NewTask(TypeScanTrigger, nil)
	_, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.TaskID(id),
		asynq.MaxRetry(0),
		asynq.Timeout(scanTimeout),
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue %s: %w", TypeScanTrigger, err)
	}
	return id, nil
}
