package ingest

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/camden-git/photovault/config"
	"github.com/camden-git/photovault/metrics"
	"github.com/camden-git/photovault/progress"
)

// TickState is the outcome of one sentinel evaluation.
type TickState string

const (
	StateIdle         TickState = "idle"
	StateDisconnected TickState = "disconnected"
	StateInProgress   TickState = "in_progress"
	StateLocked       TickState = "locked"
	StateScanned      TickState = "scanned"
	StateError        TickState = "error"
)

// Coordinator is the progress store as seen by the sentinel.
type Coordinator interface {
	BatchCounter
	Batch(ctx context.Context) (progress.BatchState, error)
	ClearIfDrained(ctx context.Context) (bool, error)
	AcquireScanLock(ctx context.Context) (string, bool, error)
	ReleaseScanLock(ctx context.Context, token string) error
}

// SettingsResolver yields the settings in effect for one tick.
type SettingsResolver interface {
	Resolve(ctx context.Context) config.Settings
}

// StatusWriter persists the storage status flag.
type StatusWriter interface {
	Set(ctx context.Context, key, value string) error
}

// TickResult describes what a tick observed and did.
type TickResult struct {
	State       TickState
	Batch       progress.BatchState
	Cleared     bool
	Scan        ScanResult
	StoragePath string
}

// Sentinel decides on every tick whether a new scan may start.
type Sentinel struct {
	settings SettingsResolver
	status   StatusWriter
	coord    Coordinator
	scanner  *Scanner

	// OnTick, when set, receives every tick result
	OnTick func(TickResult)
}

func NewSentinel(settings SettingsResolver, status StatusWriter, coord Coordinator, scanner *Scanner) *Sentinel {
	return &Sentinel{settings: settings, status: status, coord: coord, scanner: scanner}
}

// Run ticks until ctx is cancelled. The first tick happens immediately.
func (s *Sentinel) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	log.Printf("sentinel: started, interval %s", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-ctx.Done():
			log.Printf("sentinel: stopped")
			return
		}
	}
}

// Tick runs one evaluation. It never panics and never returns an error;
// failures are logged and reported as StateError.
func (s *Sentinel) Tick(ctx context.Context) (res TickResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("sentinel: ERROR recovered from panic: %v", r)
			res.State = StateError
		}
		metrics.SentinelTicksTotal.WithLabelValues(string(res.State)).Inc()
		if s.OnTick != nil {
			s.OnTick(res)
		}
	}()

	res, err := s.tick(ctx)
	if err != nil {
		log.Printf("sentinel: ERROR %v", err)
		res.State = StateError
	}
	return res
}

func (s *Sentinel) tick(ctx context.Context) (TickResult, error) {
	var res TickResult

	settings := s.settings.Resolve(ctx)
	res.StoragePath = settings.StoragePath
	if settings.StoragePath == "" {
		res.State = StateIdle
		return res, nil
	}

	if info, err := os.Stat(settings.StoragePath); err != nil || !info.IsDir() {
		log.Printf("sentinel: storage path %s is not reachable", settings.StoragePath)
		s.setStatus(ctx, config.StorageDisconnected)
		res.State = StateDisconnected
		return res, nil
	}

	batch, err := s.coord.Batch(ctx)
	if err != nil {
		return res, err
	}
	res.Batch = batch
	metrics.IngestionPending.Set(float64(batch.Pending))
	metrics.IngestionCompleted.Set(float64(batch.Completed))

	if batch.Active && !batch.Drained() {
		log.Printf("sentinel: batch in progress (%d/%d)", batch.Completed, batch.Pending)
		res.State = StateInProgress
		return res, nil
	}
	if batch.Drained() {
		cleared, err := s.coord.ClearIfDrained(ctx)
		if err != nil {
			return res, err
		}
		res.Cleared = cleared
		if cleared {
			log.Printf("sentinel: batch of %d drained, counters cleared", batch.Pending)
			metrics.IngestionPending.Set(0)
			metrics.IngestionCompleted.Set(0)
		}
	}

	token, ok, err := s.coord.AcquireScanLock(ctx)
	if err != nil {
		return res, err
	}
	if !ok {
		log.Printf("sentinel: scan in progress, skipping")
		res.State = StateLocked
		return res, nil
	}
	defer func() {
		if err := s.coord.ReleaseScanLock(context.WithoutCancel(ctx), token); err != nil {
			log.Printf("sentinel: ERROR %v", err)
		}
	}()

	s.setStatus(ctx, config.StorageConnected)

	scan, err := s.scanner.Scan(ctx, settings.StoragePath)
	res.Scan = scan
	if err != nil {
		return res, fmt.Errorf("scan of %s failed: %w", settings.StoragePath, err)
	}
	res.State = StateScanned
	return res, nil
}

func (s *Sentinel) setStatus(ctx context.Context, value string) {
	if s.status == nil {
		return
	}
	if err := s.status.Set(ctx, config.KeyStorageStatus, value); err != nil {
		log.Printf("sentinel: WARNING failed to store %s=%s: %v", config.KeyStorageStatus, value, err)
	}
}
