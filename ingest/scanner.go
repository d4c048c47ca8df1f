// Package ingest discovers new files in the asset store and dispatches them
// to the per-kind workers.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/facette/natsort"

	"github.com/camden-git/photovault/metrics"
	"github.com/camden-git/photovault/models"
	"github.com/camden-git/photovault/queue"
)

// FilenameLister returns the filenames already catalogued for a kind.
type FilenameLister interface {
	ListFilenames(ctx context.Context, kind models.Kind) (map[string]struct{}, error)
}

// BatchCounter is the part of the progress store the scanner writes.
type BatchCounter interface {
	StartBatch(ctx context.Context, n int64) error
	DecrPending(ctx context.Context) error
	DiscardBatch(ctx context.Context) error
}

// Candidate is one on-disk file not yet in the catalog.
type Candidate struct {
	Kind     models.Kind
	FullPath string
	Filename string
}

// ScanResult summarises one scan.
type ScanResult struct {
	Found      int
	Dispatched int
	Failed     int
	PerKind    map[models.Kind]int
}

// Scanner diffs the asset store against the catalog by filename.
type Scanner struct {
	catalog    FilenameLister
	dispatcher queue.Dispatcher
	counter    BatchCounter
}

func NewScanner(catalog FilenameLister, dispatcher queue.Dispatcher, counter BatchCounter) *Scanner {
	return &Scanner{catalog: catalog, dispatcher: dispatcher, counter: counter}
}

// Candidates lists every file under root whose filename is not catalogued
// for its kind. Missing kind folders are skipped.
func (s *Scanner) Candidates(ctx context.Context, root string) ([]Candidate, error) {
	var out []Candidate
	for _, kind := range models.AllKinds {
		dir := filepath.Join(root, kind.Folder())
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				log.Printf("scanner: folder %s does not exist, skipping %s", dir, kind)
				continue
			}
			return nil, fmt.Errorf("failed to list %s: %w", dir, err)
		}

		known, err := s.catalog.ListFilenames(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot catalogued %s filenames: %w", kind, err)
		}

		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			if entry.IsDir() || !kind.Accepts(entry.Name()) {
				continue
			}
			if _, ok := known[entry.Name()]; ok {
				continue
			}
			names = append(names, entry.Name())
		}
		sort.Slice(names, func(i, j int) bool { return natsort.Compare(names[i], names[j]) })

		for _, name := range names {
			out = append(out, Candidate{Kind: kind, FullPath: filepath.Join(dir, name), Filename: name})
		}
	}
	return out, nil
}

// Scan dispatches one processing job per candidate. The pending counter is
// written before the first enqueue so that early completions are counted;
// each failed enqueue takes one back off pending. When nothing reached the
// queue the counters are removed again.
func (s *Scanner) Scan(ctx context.Context, root string) (ScanResult, error) {
	res := ScanResult{PerKind: make(map[models.Kind]int)}

	candidates, err := s.Candidates(ctx, root)
	if err != nil {
		return res, err
	}
	res.Found = len(candidates)
	if len(candidates) == 0 {
		log.Printf("scanner: no new files under %s", root)
		return res, nil
	}

	if err := s.counter.StartBatch(ctx, int64(len(candidates))); err != nil {
		return res, fmt.Errorf("failed to start batch of %d: %w", len(candidates), err)
	}

	for _, c := range candidates {
		err := s.dispatcher.EnqueueProcess(ctx, c.Kind, queue.ProcessPayload{FullPath: c.FullPath, Filename: c.Filename})
		if err != nil {
			log.Printf("scanner: ERROR failed to enqueue %s %s: %v", c.Kind, c.FullPath, err)
			res.Failed++
			metrics.ScanEnqueueFailuresTotal.Inc()
			if derr := s.counter.DecrPending(context.WithoutCancel(ctx)); derr != nil {
				log.Printf("scanner: ERROR failed to decrement pending after enqueue failure: %v", derr)
			}
			continue
		}
		res.Dispatched++
		res.PerKind[c.Kind]++
		metrics.ScanDispatchedTotal.WithLabelValues(string(c.Kind)).Inc()
	}

	if res.Dispatched == 0 {
		if err := s.counter.DiscardBatch(context.WithoutCancel(ctx)); err != nil {
			log.Printf("scanner: ERROR failed to discard empty batch: %v", err)
		}
	}

	log.Printf("scanner: dispatched %d of %d new files (images=%d videos=%d raw=%d)",
		res.Dispatched, res.Found, res.PerKind[models.KindImage], res.PerKind[models.KindVideo], res.PerKind[models.KindRaw])
	return res, nil
}
