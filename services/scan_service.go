package services

import (
	"context"
	"log"

	"github.com/camden-git/photovault/config"
	"github.com/camden-git/photovault/progress"
	"github.com/camden-git/photovault/queue"
)

// ScanState is the part of the progress store the scan status reads.
type ScanState interface {
	Batch(ctx context.Context) (progress.BatchState, error)
	ScanLockHeld(ctx context.Context) (bool, error)
}

// StatusReader reads the storage status flag the sentinel maintains.
type StatusReader interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

// ScanStatus is returned by GET /api/scan/status.
type ScanStatus struct {
	StorageStatus string `json:"storage_status"`
	Scanning      bool   `json:"scanning"`
	BatchActive   bool   `json:"batch_active"`
	Pending       int64  `json:"pending"`
	Completed     int64  `json:"completed"`
}

type ScanService struct {
	dispatcher queue.ScanDispatcher
	state      ScanState
	status     StatusReader
}

func NewScanService(dispatcher queue.ScanDispatcher, state ScanState, status StatusReader) *ScanService {
	return &ScanService{dispatcher: dispatcher, state: state, status: status}
}

// Trigger queues an immediate sentinel tick. The usual state checks still
// apply when it runs, so a trigger during an active batch is a no-op.
func (s *ScanService) Trigger(ctx context.Context) (string, error) {
	id, err := s.dispatcher.EnqueueScan(ctx)
	if err != nil {
		return "", err
	}
	log.Printf("scan: manual scan queued as %s", id)
	return id, nil
}

func (s *ScanService) Status(ctx context.Context) (ScanStatus, error) {
	batch, err := s.state.Batch(ctx)
	if err != nil {
		return ScanStatus{}, err
	}
	held, err := s.state.ScanLockHeld(ctx)
	if err != nil {
		return ScanStatus{}, err
	}
	st := ScanStatus{
		StorageStatus: config.StorageDisconnected,
		Scanning:      held,
		BatchActive:   batch.Active,
		Pending:       batch.Pending,
		Completed:     batch.Completed,
	}
	if v, ok, err := s.status.Get(ctx, config.KeyStorageStatus); err != nil {
		return ScanStatus{}, err
	} else if ok && v != "" {
		st.StorageStatus = v
	}
	return st, nil
}
