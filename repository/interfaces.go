package repository

import (
	"context"
	"errors"

	"github.com/camden-git/photovault/database"
	"github.com/camden-git/photovault/models"
)

var (
	// ErrDuplicateFilename is returned by Insert when a record with the same
	// filename already exists for that kind.
	ErrDuplicateFilename = errors.New("filename already catalogued")

	ErrDuplicateAlbumName = errors.New("album name already exists")

	// ErrNotMember is returned when an album operation names a record that is
	// not in the album.
	ErrNotMember = errors.New("record is not a member of the album")
)

// MediaCatalog is the part of the catalog the ingestion pipeline depends on.
type MediaCatalog interface {
	FindByFilename(ctx context.Context, kind models.Kind, filename string) (models.MediaRecord, error)
	Insert(ctx context.Context, rec models.MediaRecord) error
	ListFilenames(ctx context.Context, kind models.Kind) (map[string]struct{}, error)
	Count(ctx context.Context, kind models.Kind) (int64, error)
	List(ctx context.Context, kind models.Kind, limit, offset int) ([]models.MediaItem, error)
}

// MediaRepositoryInterface defines the methods for media data operations
type MediaRepositoryInterface interface {
	MediaCatalog
	GetByID(ctx context.Context, kind models.Kind, id uint) (models.MediaRecord, error)
	SetFavorite(ctx context.Context, kind models.Kind, id uint, favorite bool) error
	UpdateLocation(ctx context.Context, kind models.Kind, id uint, loc Location) error
	DeleteWithAlbums(ctx context.Context, kind models.Kind, id uint) error
	Timeline(ctx context.Context, filter database.TimelineFilter) ([]models.MediaItem, error)
	MapPins(ctx context.Context) ([]models.MapPin, error)
	NearestByEmbedding(ctx context.Context, query []float32, limit int) ([]models.SearchHit, error)
}

// AlbumRepositoryInterface defines the methods for album data operations
type AlbumRepositoryInterface interface {
	Create(ctx context.Context, album *models.Album) error
	List(ctx context.Context) ([]models.Album, error)
	GetByID(ctx context.Context, id uint) (*models.Album, error)
	Update(ctx context.Context, albumID uint, name string, description *string, location *string) error
	Delete(ctx context.Context, id uint) error
	AddMember(ctx context.Context, albumID uint, kind models.Kind, mediaID uint) error
	RemoveMember(ctx context.Context, albumID uint, kind models.Kind, mediaID uint) error
	SetCover(ctx context.Context, albumID uint, kind models.Kind, mediaID uint) error
}

// ConfigRepositoryInterface defines the methods for the flat settings table
type ConfigRepositoryInterface interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) ([]models.ConfigEntry, error)
}
