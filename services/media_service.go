package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/camden-git/photovault/config"
	"github.com/camden-git/photovault/embedding"
	"github.com/camden-git/photovault/media"
	"github.com/camden-git/photovault/models"
	"github.com/camden-git/photovault/repository"
)

// ErrSearchUnavailable is returned by Search when no embedder is configured.
var ErrSearchUnavailable = errors.New("semantic search is not configured")

// SettingsResolver yields the settings in effect for one operation.
type SettingsResolver interface {
	Resolve(ctx context.Context) config.Settings
}

// MediaStore is the part of the media repository the service needs.
type MediaStore interface {
	GetByID(ctx context.Context, kind models.Kind, id uint) (models.MediaRecord, error)
	DeleteWithAlbums(ctx context.Context, kind models.Kind, id uint) error
	NearestByEmbedding(ctx context.Context, query []float32, limit int) ([]models.SearchHit, error)
}

// MediaService coordinates operations that span the catalog and the
// filesystem.
type MediaService struct {
	repo     MediaStore
	settings SettingsResolver
	embedder embedding.Embedder
}

// NewMediaService creates a new media service. embedder may be nil, which
// disables Search.
func NewMediaService(repo MediaStore, settings SettingsResolver, embedder embedding.Embedder) *MediaService {
	return &MediaService{repo: repo, settings: settings, embedder: embedder}
}

// Delete removes a record's derived assets, then its source file, then the
// row together with every album reference to it. Each step tolerates the
// work of a previous attempt already being done, so a failed delete can be
// retried.
func (s *MediaService) Delete(ctx context.Context, kind models.Kind, id uint) error {
	rec, err := s.repo.GetByID(ctx, kind, id)
	if err != nil {
		return err
	}
	b := rec.Base()
	settings := s.settings.Resolve(ctx)

	if settings.HotStoragePath != "" {
		hot, err := media.NewHotStorage(settings.HotStoragePath)
		if err != nil {
			return fmt.Errorf("failed to open hot storage for %s ID %d: %w", kind, id, err)
		}
		for _, p := range []*string{b.ThumbnailPath, b.PreviewPath} {
			if p == nil {
				continue
			}
			if err := hot.Delete(*p); err != nil {
				return fmt.Errorf("failed to delete derived asset of %s ID %d: %w", kind, id, err)
			}
		}
	} else {
		log.Printf("media: WARNING hot storage not configured, leaving derived assets of %s ID %d", kind, id)
	}

	if settings.StoragePath != "" {
		src := filepath.Join(settings.StoragePath, kind.Folder(), b.Filename)
		if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete source file %s: %w", src, err)
		}
	}

	if err := s.repo.DeleteWithAlbums(ctx, kind, id); err != nil {
		return err
	}
	log.Printf("media: deleted %s ID %d (%s)", kind, id, b.Filename)
	return nil
}

// Search embeds the query text and returns the nearest records.
func (s *MediaService) Search(ctx context.Context, q string, limit int) ([]models.SearchHit, error) {
	if s.embedder == nil {
		return nil, ErrSearchUnavailable
	}
	vec, err := s.embedder.EmbedText(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to embed search query: %w", err)
	}
	return s.repo.NearestByEmbedding(ctx, vec, limit)
}

var _ MediaStore = (*repository.MediaRepository)(nil)
