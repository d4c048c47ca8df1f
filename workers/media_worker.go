package workers

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/camden-git/photovault/config"
	"github.com/camden-git/photovault/extract"
	"github.com/camden-git/photovault/media"
	"github.com/camden-git/photovault/models"
	"github.com/camden-git/photovault/queue"
	"github.com/camden-git/photovault/repository"
)

// Outcome of one processing job
type Outcome string

const (
	OutcomeInserted  Outcome = "inserted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// SettingsResolver yields the settings in effect for one job.
type SettingsResolver interface {
	Resolve(ctx context.Context) config.Settings
}

// AssetWriterFactory opens the asset writer for the resolved hot storage.
type AssetWriterFactory func(settings config.Settings) (extract.AssetWriter, error)

// HotStorageAssets is the production AssetWriterFactory.
func HotStorageAssets(thumbnailMaxSize, previewMaxSize int) AssetWriterFactory {
	return func(settings config.Settings) (extract.AssetWriter, error) {
		store, err := media.NewHotStorage(settings.HotStoragePath)
		if err != nil {
			return nil, err
		}
		return media.NewProcessor(store, thumbnailMaxSize, previewMaxSize), nil
	}
}

// MediaWorker processes files of one kind into catalog rows.
type MediaWorker struct {
	kind      models.Kind
	catalog   repository.MediaCatalog
	extractor extract.Extractor
	settings  SettingsResolver
	assets    AssetWriterFactory
}

func NewMediaWorker(catalog repository.MediaCatalog, extractor extract.Extractor, settings SettingsResolver, assets AssetWriterFactory) *MediaWorker {
	return &MediaWorker{
		kind:      extractor.Kind(),
		catalog:   catalog,
		extractor: extractor,
		settings:  settings,
		assets:    assets,
	}
}

func (w *MediaWorker) Kind() models.Kind { return w.kind }

// Process catalogues one file. A filename that is already catalogued, either
// before extraction or through a concurrent insert, is a successful no-op.
func (w *MediaWorker) Process(ctx context.Context, p queue.ProcessPayload) (Outcome, error) {
	if !w.kind.Accepts(p.Filename) {
		log.Printf("worker: %s job for %s has a foreign extension, ignoring", w.kind, p.Filename)
		return OutcomeSkipped, nil
	}

	_, err := w.catalog.FindByFilename(ctx, w.kind, p.Filename)
	switch {
	case err == nil:
		log.Printf("worker: %s %s already catalogued, skipping", w.kind, p.Filename)
		return OutcomeDuplicate, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return OutcomeFailed, fmt.Errorf("duplicate check for %s %s: %w", w.kind, p.Filename, err)
	}

	settings := w.settings.Resolve(ctx)
	assets, err := w.assets(settings)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to open hot storage %s: %w", settings.HotStoragePath, err)
	}

	rec, err := w.extractor.Extract(ctx, extract.Input{FullPath: p.FullPath, Filename: p.Filename, Assets: assets})
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedExtension) {
			log.Printf("worker: %v", err)
			return OutcomeSkipped, nil
		}
		return OutcomeFailed, fmt.Errorf("failed to extract %s %s: %w", w.kind, p.FullPath, err)
	}

	if err := w.catalog.Insert(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrDuplicateFilename) {
			log.Printf("worker: %s %s was inserted concurrently, discarding this copy", w.kind, p.Filename)
			return OutcomeDuplicate, nil
		}
		return OutcomeFailed, err
	}

	log.Printf("worker: catalogued %s %s as ID %d", w.kind, p.Filename, rec.Base().ID)
	return OutcomeInserted, nil
}
