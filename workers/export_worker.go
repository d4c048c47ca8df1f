package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/facette/natsort"
	"gorm.io/gorm"

	"github.com/camden-git/photovault/config"
	"github.com/camden-git/photovault/media"
	"github.com/camden-git/photovault/metrics"
	"github.com/camden-git/photovault/models"
	"github.com/camden-git/photovault/progress"
	"github.com/camden-git/photovault/queue"
	"github.com/camden-git/photovault/realtime"
	"github.com/camden-git/photovault/utils"
)

var errNothingToExport = errors.New("nothing to export")

// ExportStore is the part of the progress store an export writes.
type ExportStore interface {
	ExportStatus(ctx context.Context, taskID string) (string, error)
	UpdateExportProgress(ctx context.Context, taskID string, completed, total int) (bool, error)
	CompleteExport(ctx context.Context, taskID, zipPath, zipFilename string, total int) (bool, error)
	FailExport(ctx context.Context, taskID string, cause error) error
}

// ExportMedia reads catalogued records.
type ExportMedia interface {
	GetByID(ctx context.Context, kind models.Kind, id uint) (models.MediaRecord, error)
	List(ctx context.Context, kind models.Kind, limit, offset int) ([]models.MediaItem, error)
}

// ExportAlbums reads albums.
type ExportAlbums interface {
	GetByID(ctx context.Context, id uint) (*models.Album, error)
	List(ctx context.Context) ([]models.Album, error)
}

// ExportConfig reads the settings table.
type ExportConfig interface {
	All(ctx context.Context) ([]models.ConfigEntry, error)
}

// ExportResult is the final state of one export run.
type ExportResult struct {
	Status      string
	Completed   int
	Total       int
	ZipPath     string
	ZipFilename string
}

// exportUnit is one entry of an archive: either a file on disk or a
// generated document.
type exportUnit struct {
	name     string
	srcPath  string
	generate func(w io.Writer) error
}

// ExportWorker archives one scope into a zip under the hot storage, checking
// for cancellation before every unit.
type ExportWorker struct {
	store    ExportStore
	media    ExportMedia
	albums   ExportAlbums
	configs  ExportConfig
	settings SettingsResolver
	events   realtime.Publisher

	// beforeUnit is called with the index of the next unit, before its
	// cancellation checkpoint
	beforeUnit func(index int)
	now        func() time.Time
}

func NewExportWorker(store ExportStore, mediaRepo ExportMedia, albums ExportAlbums, configs ExportConfig, settings SettingsResolver, events realtime.Publisher) *ExportWorker {
	if events == nil {
		events = realtime.Discard{}
	}
	return &ExportWorker{
		store:    store,
		media:    mediaRepo,
		albums:   albums,
		configs:  configs,
		settings: settings,
		events:   events,
		now:      time.Now,
	}
}

// ArchivePath is the hot-storage relative path of a task's archive.
func ArchivePath(taskID string) string {
	return config.DefaultArchivesSubDir + "/" + ArchiveName(taskID)
}

func ArchiveName(taskID string) string {
	return taskID + ".zip"
}

// Run performs the export. Cancellation is reported as a result with status
// cancelled and a nil error; the returned error is non-nil only for failures,
// which are also recorded in the progress store.
func (w *ExportWorker) Run(ctx context.Context, scope queue.ExportScope, p queue.ExportPayload) (ExportResult, error) {
	res, err := w.run(ctx, scope, p)
	if err != nil {
		res.Status = progress.StatusFailed
		log.Printf("export: ERROR task %s (%s) failed: %v", p.TaskID, scope, err)
		if ferr := w.store.FailExport(context.WithoutCancel(ctx), p.TaskID, err); ferr != nil {
			log.Printf("export: ERROR failed to record failure of %s: %v", p.TaskID, ferr)
		}
	}
	metrics.ExportsTotal.WithLabelValues(string(scope), res.Status).Inc()
	w.events.Publish(realtime.Event{
		Type:      realtime.EventExportFinished,
		TaskID:    p.TaskID,
		Status:    res.Status,
		Completed: int64(res.Completed),
		Total:     int64(res.Total),
		Error:     errString(err),
	})
	return res, err
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (w *ExportWorker) run(ctx context.Context, scope queue.ExportScope, p queue.ExportPayload) (ExportResult, error) {
	settings := w.settings.Resolve(ctx)
	hot, err := media.NewHotStorage(settings.HotStoragePath)
	if err != nil {
		return ExportResult{}, err
	}

	units, label, err := w.units(ctx, scope, p, settings, hot)
	if err != nil {
		return ExportResult{}, err
	}
	total := len(units)
	res := ExportResult{Total: total}
	if total == 0 {
		return res, errNothingToExport
	}

	ok, err := w.store.UpdateExportProgress(ctx, p.TaskID, 0, total)
	if err != nil {
		return res, err
	}
	if !ok {
		log.Printf("export: task %s is no longer in progress before start", p.TaskID)
		res.Status = progress.StatusCancelled
		return res, nil
	}

	dir, err := hot.EnsureDir(media.AssetTypeArchive)
	if err != nil {
		return res, err
	}
	archive, err := utils.CreateArchive(filepath.Join(dir, ArchiveName(p.TaskID)))
	if err != nil {
		return res, err
	}

	for i, unit := range units {
		if w.beforeUnit != nil {
			w.beforeUnit(i)
		}
		if w.cancelled(ctx, p.TaskID) {
			archive.Abort()
			log.Printf("export: task %s cancelled after %d of %d units", p.TaskID, i, total)
			res.Status = progress.StatusCancelled
			return res, nil
		}

		if unit.generate != nil {
			err = archive.AddStream(unit.name, unit.generate)
		} else {
			err = archive.AddFile(unit.name, unit.srcPath)
		}
		if err != nil {
			archive.Abort()
			return res, err
		}
		res.Completed = i + 1
		metrics.ExportUnitsTotal.WithLabelValues(string(scope)).Inc()

		ok, err := w.store.UpdateExportProgress(ctx, p.TaskID, res.Completed, total)
		if err != nil {
			archive.Abort()
			return res, err
		}
		if !ok {
			archive.Abort()
			res.Status = progress.StatusCancelled
			return res, nil
		}
		w.events.Publish(realtime.Event{
			Type:      realtime.EventExportProgress,
			TaskID:    p.TaskID,
			Status:    progress.StatusInProgress,
			Completed: int64(res.Completed),
			Total:     int64(total),
			Progress:  res.Completed * 100 / total,
		})
	}

	if _, err := archive.Close(); err != nil {
		archive.Abort()
		return res, err
	}

	zipFilename := utils.SuggestedFilename(label, w.now())
	ok, err = w.store.CompleteExport(ctx, p.TaskID, ArchivePath(p.TaskID), zipFilename, total)
	if err != nil || !ok {
		if rmErr := os.Remove(archive.Path()); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Printf("export: failed to remove archive %s: %v", archive.Path(), rmErr)
		}
		if err != nil {
			return res, err
		}
		res.Status = progress.StatusCancelled
		return res, nil
	}

	res.Status = progress.StatusCompleted
	res.ZipPath = ArchivePath(p.TaskID)
	res.ZipFilename = zipFilename
	log.Printf("export: task %s (%s) completed with %d units", p.TaskID, scope, total)
	return res, nil
}

// cancelled is the checkpoint between units. A cancelled context, an
// externally set cancelled status and an expired record all stop the run.
func (w *ExportWorker) cancelled(ctx context.Context, taskID string) bool {
	if ctx.Err() != nil {
		return true
	}
	status, err := w.store.ExportStatus(ctx, taskID)
	if err != nil {
		log.Printf("export: WARNING status check for %s failed: %v", taskID, err)
		return false
	}
	return status == progress.StatusCancelled || status == progress.StatusNotFound
}

func (w *ExportWorker) units(ctx context.Context, scope queue.ExportScope, p queue.ExportPayload, settings config.Settings, hot *media.LocalStorage) ([]exportUnit, string, error) {
	switch scope {
	case queue.ScopeAlbum:
		if p.AlbumID == nil {
			return nil, "", errors.New("album export needs an album id")
		}
		return w.albumUnits(ctx, *p.AlbumID, settings)
	case queue.ScopeAssets:
		units, err := w.assetUnits(settings)
		return units, "assets", err
	case queue.ScopeHotCache:
		units, err := hotCacheUnits(hot)
		return units, "hot_cache", err
	case queue.ScopeCatalog:
		return w.catalogUnits(ctx), "catalog", nil
	}
	return nil, "", fmt.Errorf("unknown export scope %q", scope)
}

func (w *ExportWorker) albumUnits(ctx context.Context, albumID uint, settings config.Settings) ([]exportUnit, string, error) {
	if settings.StoragePath == "" {
		return nil, "", errors.New("storage path is not configured")
	}
	album, err := w.albums.GetByID(ctx, albumID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load album ID %d: %w", albumID, err)
	}

	var units []exportUnit
	for _, kind := range models.AllKinds {
		for _, id := range *album.MemberIDs(kind) {
			rec, err := w.media.GetByID(ctx, kind, id)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("export: album %d lists missing %s ID %d, skipping", albumID, kind, id)
				continue
			}
			if err != nil {
				return nil, "", err
			}
			filename := rec.Base().Filename
			units = append(units, exportUnit{
				name:    filename,
				srcPath: filepath.Join(settings.StoragePath, kind.Folder(), filename),
			})
		}
	}
	return units, "album_" + album.AlbumName, nil
}

func (w *ExportWorker) assetUnits(settings config.Settings) ([]exportUnit, error) {
	if settings.StoragePath == "" {
		return nil, errors.New("storage path is not configured")
	}
	var units []exportUnit
	for _, kind := range models.AllKinds {
		dir := filepath.Join(settings.StoragePath, kind.Folder())
		names, err := listFiles(dir, kind.Accepts)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			units = append(units, exportUnit{name: kind.Folder() + "/" + name, srcPath: filepath.Join(dir, name)})
		}
	}
	return units, nil
}

func hotCacheUnits(hot *media.LocalStorage) ([]exportUnit, error) {
	var units []exportUnit
	for _, assetType := range []media.AssetType{media.AssetTypeThumbnail, media.AssetTypePreview} {
		dir, err := hot.EnsureDir(assetType)
		if err != nil {
			return nil, err
		}
		names, err := listFiles(dir, func(name string) bool { return name[0] != '.' })
		if err != nil {
			return nil, err
		}
		sub := filepath.Base(dir)
		for _, name := range names {
			units = append(units, exportUnit{name: sub + "/" + name, srcPath: filepath.Join(dir, name)})
		}
	}
	return units, nil
}

// listFiles returns the regular files in dir accepted by keep, in natural
// order. A missing directory has no files.
func listFiles(dir string, keep func(string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !keep(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Slice(names, func(i, j int) bool { return natsort.Compare(names[i], names[j]) })
	return names, nil
}

// catalogUnits produces one JSON document per table.
func (w *ExportWorker) catalogUnits(ctx context.Context) []exportUnit {
	var units []exportUnit
	for _, kind := range models.AllKinds {
		kind := kind
		units = append(units, exportUnit{
			name: kind.TableName() + ".json",
			generate: func(out io.Writer) error {
				items, err := w.media.List(ctx, kind, 0, 0)
				if err != nil {
					return err
				}
				records := make([]models.MediaRecord, 0, len(items))
				for _, item := range items {
					records = append(records, item.Record())
				}
				return writeJSON(out, records)
			},
		})
	}
	units = append(units,
		exportUnit{
			name: "albums.json",
			generate: func(out io.Writer) error {
				albums, err := w.albums.List(ctx)
				if err != nil {
					return err
				}
				return writeJSON(out, albums)
			},
		},
		exportUnit{
			name: "config_entries.json",
			generate: func(out io.Writer) error {
				entries, err := w.configs.All(ctx)
				if err != nil {
					return err
				}
				return writeJSON(out, entries)
			},
		},
	)
	return units
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
