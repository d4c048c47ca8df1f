package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/camden-git/photovault/database"
	"github.com/camden-git/photovault/embedding"
	"github.com/camden-git/photovault/models"
)

// Location is an explicit location edit. Nil fields are cleared.
type Location struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	City      *string  `json:"city"`
	State     *string  `json:"state"`
	Country   *string  `json:"country"`
}

// MediaRepository handles database operations for images, videos and raw images
type MediaRepository struct {
	DB *gorm.DB
}

// NewMediaRepository creates a new instance of MediaRepository
func NewMediaRepository(db *gorm.DB) *MediaRepository {
	return &MediaRepository{DB: db}
}

func newRecord(kind models.Kind) (models.MediaRecord, error) {
	rec := models.NewRecord(kind)
	if rec == nil {
		return nil, fmt.Errorf("unknown media kind %q", kind)
	}
	return rec, nil
}

// FindByFilename retrieves the record of kind with the given filename
func (r *MediaRepository) FindByFilename(ctx context.Context, kind models.Kind, filename string) (models.MediaRecord, error) {
	rec, err := newRecord(kind)
	if err != nil {
		return nil, err
	}
	err = r.DB.WithContext(ctx).Where("filename = ?", filename).First(rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get %s by filename %s: %w", kind, filename, err)
	}
	return rec, nil
}

// GetByID retrieves the record of kind with the given id
func (r *MediaRepository) GetByID(ctx context.Context, kind models.Kind, id uint) (models.MediaRecord, error) {
	rec, err := newRecord(kind)
	if err != nil {
		return nil, err
	}
	err = r.DB.WithContext(ctx).First(rec, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get %s by ID %d: %w", kind, id, err)
	}
	return rec, nil
}

// Insert commits one new record. A unique-index conflict on filename is
// reported as ErrDuplicateFilename.
func (r *MediaRepository) Insert(ctx context.Context, rec models.MediaRecord) error {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(rec).Error
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateFilename
		}
		return fmt.Errorf("failed to insert %s %s: %w", rec.Kind(), rec.Base().Filename, err)
	}
	return nil
}

// ListFilenames returns a snapshot of every catalogued filename for kind
func (r *MediaRepository) ListFilenames(ctx context.Context, kind models.Kind) (map[string]struct{}, error) {
	return database.ListFilenames(ctx, r.DB, kind)
}

func (r *MediaRepository) Count(ctx context.Context, kind models.Kind) (int64, error) {
	rec, err := newRecord(kind)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := r.DB.WithContext(ctx).Model(rec).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count %s records: %w", kind, err)
	}
	return count, nil
}

// List retrieves records of kind ordered by id. A non-positive limit returns
// every row.
func (r *MediaRepository) List(ctx context.Context, kind models.Kind, limit, offset int) ([]models.MediaItem, error) {
	q := r.DB.WithContext(ctx).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	items, err := findItems(q, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", kind, err)
	}
	return items, nil
}

func (r *MediaRepository) SetFavorite(ctx context.Context, kind models.Kind, id uint, favorite bool) error {
	rec, err := newRecord(kind)
	if err != nil {
		return err
	}
	result := r.DB.WithContext(ctx).Model(rec).Where("id = ?", id).Update("is_favorite", favorite)
	if result.Error != nil {
		return fmt.Errorf("failed to set favorite for %s ID %d: %w", kind, id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateLocation replaces all location fields of a record
func (r *MediaRepository) UpdateLocation(ctx context.Context, kind models.Kind, id uint, loc Location) error {
	if (loc.Latitude == nil) != (loc.Longitude == nil) {
		return errors.New("latitude and longitude must be set together")
	}
	rec, err := newRecord(kind)
	if err != nil {
		return err
	}
	updates := map[string]interface{}{
		"latitude":  loc.Latitude,
		"longitude": loc.Longitude,
		"city":      loc.City,
		"state":     loc.State,
		"country":   loc.Country,
	}
	result := r.DB.WithContext(ctx).Model(rec).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update location for %s ID %d: %w", kind, id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteWithAlbums removes the record and, in the same transaction, detaches
// it from every album that lists it as a member or cover.
func (r *MediaRepository) DeleteWithAlbums(ctx context.Context, kind models.Kind, id uint) error {
	rec, err := newRecord(kind)
	if err != nil {
		return err
	}
	column := idsColumn(kind)

	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(rec, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			return fmt.Errorf("failed to load %s ID %d for delete: %w", kind, id, err)
		}

		var albums []models.Album
		q := tx.Where(
			fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(albums.%s) WHERE json_each.value = ?)", column), id,
		).Or("album_cover_type = ? AND album_cover_id = ?", string(kind), id)
		if ids := []uint(rec.Base().AlbumIDs); len(ids) > 0 {
			q = q.Or("id IN ?", ids)
		}
		if err := q.Find(&albums).Error; err != nil {
			return fmt.Errorf("failed to find albums referencing %s ID %d: %w", kind, id, err)
		}

		for i := range albums {
			if err := detachMember(tx, &albums[i], kind, id, rec.Base().FileSize); err != nil {
				return err
			}
		}

		if err := tx.Delete(rec).Error; err != nil {
			return fmt.Errorf("failed to delete %s ID %d: %w", kind, id, err)
		}
		return nil
	})
}

// Timeline returns one page of the merged timeline, hydrated per kind
func (r *MediaRepository) Timeline(ctx context.Context, filter database.TimelineFilter) ([]models.MediaItem, error) {
	keys, err := database.Timeline(ctx, r.DB, filter)
	if err != nil {
		return nil, err
	}
	ids := make(map[models.Kind][]uint)
	for _, k := range keys {
		ids[k.Kind] = append(ids[k.Kind], k.ID)
	}
	byKey, err := r.hydrate(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]models.MediaItem, 0, len(keys))
	for _, k := range keys {
		if item, ok := byKey[itemKey{k.Kind, k.ID}]; ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// MapPins returns every record that has coordinates
func (r *MediaRepository) MapPins(ctx context.Context) ([]models.MapPin, error) {
	var pins []models.MapPin
	for _, kind := range models.AllKinds {
		q := r.DB.WithContext(ctx).Where("latitude IS NOT NULL AND longitude IS NOT NULL")
		items, err := findItems(q, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to list located %s records: %w", kind, err)
		}
		for _, item := range items {
			if pin, ok := item.MapPin(); ok {
				pins = append(pins, pin)
			}
		}
	}
	return pins, nil
}

type scoredKey struct {
	key      itemKey
	distance float64
}

// NearestByEmbedding ranks every embedded record by cosine distance to query
// and returns the closest limit hits. Vectors of another dimension are
// skipped.
func (r *MediaRepository) NearestByEmbedding(ctx context.Context, query []float32, limit int) ([]models.SearchHit, error) {
	if len(query) == 0 {
		return nil, errors.New("empty query vector")
	}

	var scored []scoredKey
	for _, kind := range models.AllKinds {
		rows, err := r.DB.WithContext(ctx).Table(kind.TableName()).
			Select("id", "embedding").
			Where("embedding IS NOT NULL").
			Rows()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s embeddings: %w", kind, err)
		}
		for rows.Next() {
			var id uint
			var vec pgvector.Vector
			if err := rows.Scan(&id, &vec); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan %s embedding: %w", kind, err)
			}
			d, err := embedding.CosineDistance(query, vec.Slice())
			if err != nil {
				continue
			}
			scored = append(scored, scoredKey{key: itemKey{kind, id}, distance: d})
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("error iterating %s embeddings: %w", kind, err)
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].distance < scored[j].distance })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}

	ids := make(map[models.Kind][]uint)
	for _, s := range scored {
		ids[s.key.kind] = append(ids[s.key.kind], s.key.id)
	}
	byKey, err := r.hydrate(ctx, ids)
	if err != nil {
		return nil, err
	}

	hits := make([]models.SearchHit, 0, len(scored))
	for _, s := range scored {
		if item, ok := byKey[s.key]; ok {
			hits = append(hits, item.SearchHit(s.distance))
		}
	}
	return hits, nil
}

type itemKey struct {
	kind models.Kind
	id   uint
}

func (r *MediaRepository) hydrate(ctx context.Context, ids map[models.Kind][]uint) (map[itemKey]models.MediaItem, error) {
	out := make(map[itemKey]models.MediaItem)
	for kind, list := range ids {
		if len(list) == 0 {
			continue
		}
		items, err := findItems(r.DB.WithContext(ctx).Where("id IN ?", list), kind)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s records: %w", kind, err)
		}
		for _, item := range items {
			out[itemKey{kind, item.Record().Base().ID}] = item
		}
	}
	return out, nil
}

func findItems(q *gorm.DB, kind models.Kind) ([]models.MediaItem, error) {
	switch kind {
	case models.KindImage:
		return findAs[models.Image](q)
	case models.KindVideo:
		return findAs[models.Video](q)
	case models.KindRaw:
		return findAs[models.RawImage](q)
	}
	return nil, fmt.Errorf("unknown media kind %q", kind)
}

func findAs[T any, PT interface {
	*T
	models.MediaRecord
}](q *gorm.DB) ([]models.MediaItem, error) {
	var rows []T
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]models.MediaItem, 0, len(rows))
	for i := range rows {
		items = append(items, models.ItemFromRecord(PT(&rows[i])))
	}
	return items, nil
}
