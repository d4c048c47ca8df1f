package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/camden-git/photovault/media"
	"github.com/camden-git/photovault/models"
	"github.com/camden-git/photovault/progress"
	"github.com/camden-git/photovault/queue"
	"github.com/camden-git/photovault/workers"
)

var (
	ErrInvalidScope = errors.New("invalid export scope")
	// ErrAlbumRequired is returned when an album export names no album.
	ErrAlbumRequired  = errors.New("album export requires an album id")
	ErrExportNotFound = errors.New("export not found")
	ErrExportNotReady = errors.New("export is not completed")
)

// ExportStateStore is the part of the progress store the API side writes.
type ExportStateStore interface {
	InitExport(ctx context.Context, taskID, scope string, total int) error
	GetExport(ctx context.Context, taskID string) (progress.ExportState, error)
	CancelExport(ctx context.Context, taskID string) (progress.ExportState, error)
	FailExport(ctx context.Context, taskID string, cause error) error
}

// AlbumLookup checks that an album exists before its export is queued.
type AlbumLookup interface {
	GetByID(ctx context.Context, id uint) (*models.Album, error)
}

// ExportService starts, inspects and cancels bulk exports.
type ExportService struct {
	store      ExportStateStore
	dispatcher queue.ExportDispatcher
	albums     AlbumLookup
	settings   SettingsResolver
	newID      func() string
}

func NewExportService(store ExportStateStore, dispatcher queue.ExportDispatcher, albums AlbumLookup, settings SettingsResolver) *ExportService {
	return &ExportService{
		store:      store,
		dispatcher: dispatcher,
		albums:     albums,
		settings:   settings,
		newID:      uuid.NewString,
	}
}

// Start records a new in_progress export and enqueues it.
func (s *ExportService) Start(ctx context.Context, scopeName string, albumID *uint) (progress.ExportState, error) {
	scope, ok := queue.ParseScope(scopeName)
	if !ok {
		return progress.ExportState{}, fmt.Errorf("%w: %q", ErrInvalidScope, scopeName)
	}
	if scope == queue.ScopeAlbum {
		if albumID == nil {
			return progress.ExportState{}, ErrAlbumRequired
		}
		if _, err := s.albums.GetByID(ctx, *albumID); err != nil {
			return progress.ExportState{}, err
		}
	} else {
		albumID = nil
	}

	taskID := s.newID()
	if err := s.store.InitExport(ctx, taskID, string(scope), 0); err != nil {
		return progress.ExportState{}, err
	}
	if err := s.dispatcher.EnqueueExport(ctx, scope, queue.ExportPayload{TaskID: taskID, AlbumID: albumID}); err != nil {
		if ferr := s.store.FailExport(context.WithoutCancel(ctx), taskID, err); ferr != nil {
			log.Printf("export: ERROR failed to mark %s failed: %v", taskID, ferr)
		}
		return progress.ExportState{}, err
	}
	log.Printf("export: queued %s export %s", scope, taskID)
	return s.store.GetExport(ctx, taskID)
}

// Status returns the stored snapshot, with status not_found when the task is
// unknown or expired.
func (s *ExportService) Status(ctx context.Context, taskID string) (progress.ExportState, error) {
	return s.store.GetExport(ctx, taskID)
}

// Cancel marks the export cancelled, asks the queue to drop or interrupt the
// job and removes any archive already written.
func (s *ExportService) Cancel(ctx context.Context, taskID string) (progress.ExportState, error) {
	before, err := s.store.CancelExport(ctx, taskID)
	if err != nil {
		return progress.ExportState{}, err
	}
	if before.Status == progress.StatusNotFound {
		return before, ErrExportNotFound
	}

	if err := s.dispatcher.CancelExport(taskID); err != nil {
		log.Printf("export: WARNING %v", err)
	}

	zipPath := before.ZipPath
	if zipPath == "" {
		zipPath = workers.ArchivePath(taskID)
	}
	if hotPath := s.settings.Resolve(ctx).HotStoragePath; hotPath != "" {
		hot, err := media.NewHotStorage(hotPath)
		if err != nil {
			log.Printf("export: WARNING could not open hot storage to remove %s: %v", zipPath, err)
		} else if err := hot.Delete(zipPath); err != nil {
			log.Printf("export: WARNING %v", err)
		}
	}

	log.Printf("export: cancelled %s (was %s)", taskID, before.Status)
	return s.store.GetExport(ctx, taskID)
}

// Archive resolves the finished archive of a completed export.
func (s *ExportService) Archive(ctx context.Context, taskID string) (fullPath, filename string, err error) {
	st, err := s.store.GetExport(ctx, taskID)
	if err != nil {
		return "", "", err
	}
	switch st.Status {
	case progress.StatusNotFound:
		return "", "", ErrExportNotFound
	case progress.StatusCompleted:
	default:
		return "", "", ErrExportNotReady
	}

	hot, err := media.NewHotStorage(s.settings.Resolve(ctx).HotStoragePath)
	if err != nil {
		return "", "", err
	}
	fullPath, err = hot.GetFullPath(st.ZipPath)
	if err != nil {
		return "", "", err
	}
	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return "", "", ErrExportNotFound
		}
		return "", "", fmt.Errorf("failed to stat archive %s: %w", fullPath, err)
	}
	return fullPath, st.ZipFilename, nil
}
