package workers

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/camden-git/photovault/ingest"
	"github.com/camden-git/photovault/metrics"
	"github.com/camden-git/photovault/models"
	"github.com/camden-git/photovault/queue"
	"github.com/camden-git/photovault/realtime"
)

// CompletionCounter records that one dispatched processing job finished.
type CompletionCounter interface {
	IncrCompleted(ctx context.Context) (int64, error)
}

// Ticker runs one sentinel evaluation on demand.
type Ticker interface {
	Tick(ctx context.Context) ingest.TickResult
}

// Handlers adapts the workers to asynq task handlers.
type Handlers struct {
	media    map[models.Kind]*MediaWorker
	export   *ExportWorker
	counter  CompletionCounter
	sentinel Ticker
	events   realtime.Publisher
}

func NewHandlers(mediaWorkers []*MediaWorker, export *ExportWorker, counter CompletionCounter, sentinel Ticker, events realtime.Publisher) *Handlers {
	if events == nil {
		events = realtime.Discard{}
	}
	h := &Handlers{
		media:    make(map[models.Kind]*MediaWorker, len(mediaWorkers)),
		export:   export,
		counter:  counter,
		sentinel: sentinel,
		events:   events,
	}
	for _, w := range mediaWorkers {
		h.media[w.Kind()] = w
	}
	return h
}

// Mux registers a handler for every task type that has a worker.
func (h *Handlers) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	for kind := range h.media {
		mux.HandleFunc(queue.ProcessTaskType(kind), h.HandleProcess)
	}
	if h.export != nil {
		for _, scope := range queue.AllScopes {
			mux.HandleFunc(queue.ExportTaskType(scope), h.HandleExport)
		}
	}
	if h.sentinel != nil {
		mux.HandleFunc(queue.TypeScanTrigger, h.HandleScanTrigger)
	}
	return mux
}

func kindFromTaskType(typ string) (models.Kind, error) {
	return models.ParseKind(strings.TrimPrefix(typ, "process:"))
}

func scopeFromTaskType(typ string) (queue.ExportScope, bool) {
	return queue.ParseScope(strings.TrimPrefix(typ, "export:"))
}

// HandleProcess runs one per-file job. The batch completion counter is
// incremented exactly once whatever the outcome, so the sentinel can tell
// when the batch has drained.
func (h *Handlers) HandleProcess(ctx context.Context, t *asynq.Task) (err error) {
	defer func() {
		if _, cerr := h.counter.IncrCompleted(context.WithoutCancel(ctx)); cerr != nil {
			log.Printf("worker: ERROR failed to increment completion counter: %v", cerr)
		}
	}()

	kind, err := kindFromTaskType(t.Type())
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	w, ok := h.media[kind]
	if !ok {
		return fmt.Errorf("no worker for %s: %w", kind, asynq.SkipRetry)
	}
	p, err := queue.ParseProcessPayload(t)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	start := time.Now()
	outcome, perr := w.Process(ctx, p)
	metrics.JobDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	metrics.JobsProcessedTotal.WithLabelValues(string(kind), string(outcome)).Inc()

	ev := realtime.Event{Type: realtime.EventJobDone, Kind: string(kind), Filename: p.Filename, Status: string(outcome)}
	if perr != nil {
		ev.Error = perr.Error()
	}
	h.events.Publish(ev)

	if perr != nil {
		log.Printf("worker: ERROR %v", perr)
		return fmt.Errorf("%v: %w", perr, asynq.SkipRetry)
	}
	return nil
}

// HandleExport runs one bulk export. Cancellation is not an error.
func (h *Handlers) HandleExport(ctx context.Context, t *asynq.Task) error {
	scope, ok := scopeFromTaskType(t.Type())
	if !ok {
		return fmt.Errorf("unknown export task %s: %w", t.Type(), asynq.SkipRetry)
	}
	p, err := queue.ParseExportPayload(t)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if _, err := h.export.Run(ctx, scope, p); err != nil {
		return fmt.Errorf("export %s: %v: %w", p.TaskID, err, asynq.SkipRetry)
	}
	return nil
}

// HandleScanTrigger runs a sentinel tick requested through the API.
func (h *Handlers) HandleScanTrigger(ctx context.Context, _ *asynq.Task) error {
	res := h.sentinel.Tick(ctx)
	log.Printf("worker: triggered scan finished in state %s", res.State)
	return nil
}
