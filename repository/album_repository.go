package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/camden-git/photovault/database"
	"github.com/camden-git/photovault/models"
)

// AlbumRepository handles database operations for Album entities
type AlbumRepository struct {
	DB *gorm.DB
}

// NewAlbumRepository creates a new instance of AlbumRepository
func NewAlbumRepository(db *gorm.DB) *AlbumRepository {
	return &AlbumRepository{DB: db}
}

func idsColumn(kind models.Kind) string {
	switch kind {
	case models.KindImage:
		return "image_ids"
	case models.KindVideo:
		return "video_ids"
	case models.KindRaw:
		return "raw_ids"
	}
	return ""
}

func removeID(ids datatypes.JSONSlice[uint], id uint) datatypes.JSONSlice[uint] {
	out := make(datatypes.JSONSlice[uint], 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// detachMember removes the record from the album's membership, counters,
// size and cover, then saves the album.
func detachMember(tx *gorm.DB, album *models.Album, kind models.Kind, id uint, fileSize int64) error {
	ids := album.MemberIDs(kind)
	if ids == nil {
		return fmt.Errorf("unknown media kind %q", kind)
	}
	if album.HasMember(kind, id) {
		*ids = removeID(*ids, id)
		album.AlbumSize -= fileSize
		if album.AlbumSize < 0 {
			album.AlbumSize = 0
		}
	}
	album.RecountMembers()
	if album.IsCover(kind, id) {
		album.ClearCover()
	}
	album.UpdatedAt = time.Now().Unix()
	if err := tx.Save(album).Error; err != nil {
		return fmt.Errorf("failed to detach %s ID %d from album ID %d: %w", kind, id, album.ID, err)
	}
	return nil
}

// Create creates a new album record in the database
func (r *AlbumRepository) Create(ctx context.Context, album *models.Album) error {
	now := time.Now().Unix()
	if album.CreatedAt == 0 {
		album.CreatedAt = now
	}
	if album.UpdatedAt == 0 {
		album.UpdatedAt = now
	}
	album.ImageIDs = datatypes.JSONSlice[uint]{}
	album.VideoIDs = datatypes.JSONSlice[uint]{}
	album.RawIDs = datatypes.JSONSlice[uint]{}
	album.RecountMembers()
	album.AlbumSize = 0
	album.ClearCover()

	err := r.DB.WithContext(ctx).Create(album).Error
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateAlbumName
		}
		return fmt.Errorf("failed to create album %s: %w", album.AlbumName, err)
	}
	return nil
}

// List retrieves all albums, ordered by name
func (r *AlbumRepository) List(ctx context.Context) ([]models.Album, error) {
	var albums []models.Album
	err := r.DB.WithContext(ctx).Order("album_name ASC").Find(&albums).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list albums: %w", err)
	}
	return albums, nil
}

// GetByID retrieves an album by its ID
func (r *AlbumRepository) GetByID(ctx context.Context, id uint) (*models.Album, error) {
	var album models.Album
	err := r.DB.WithContext(ctx).First(&album, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get album by ID %d: %w", id, err)
	}
	return &album, nil
}

// Update updates an existing album's name, description and location
// membership is changed through AddMember / RemoveMember
func (r *AlbumRepository) Update(ctx context.Context, albumID uint, name string, description *string, location *string) error {
	updates := map[string]interface{}{
		"updated_at": time.Now().Unix(),
	}
	if name != "" {
		updates["album_name"] = name
	}
	if description != nil {
		updates["description"] = *description
	}
	if location != nil {
		if *location == "" { // allow clearing the location
			updates["location"] = gorm.Expr("NULL")
		} else {
			updates["location"] = *location
		}
	}

	// if only updated_at is present, no actual fields were changed
	if len(updates) == 1 {
		return nil
	}

	result := r.DB.WithContext(ctx).Model(&models.Album{}).Where("id = ?", albumID).Updates(updates)
	if result.Error != nil {
		if database.IsUniqueViolation(result.Error) {
			return ErrDuplicateAlbumName
		}
		return fmt.Errorf("failed to update album ID %d: %w", albumID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes an album and drops its id from every member record
func (r *AlbumRepository) Delete(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var album models.Album
		if err := tx.First(&album, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			return fmt.Errorf("failed to load album ID %d: %w", id, err)
		}

		for _, kind := range models.AllKinds {
			for _, mediaID := range *album.MemberIDs(kind) {
				rec := models.NewRecord(kind)
				err := tx.First(rec, mediaID).Error
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				if err != nil {
					return fmt.Errorf("failed to load %s ID %d: %w", kind, mediaID, err)
				}
				b := rec.Base()
				b.AlbumIDs = removeID(b.AlbumIDs, id)
				if err := tx.Model(rec).Update("album_ids", b.AlbumIDs).Error; err != nil {
					return fmt.Errorf("failed to update album ids of %s ID %d: %w", kind, mediaID, err)
				}
			}
		}

		if err := tx.Delete(&album).Error; err != nil {
			return fmt.Errorf("failed to delete album ID %d: %w", id, err)
		}
		return nil
	})
}

// AddMember appends the record to the album, keeping counters, size and the
// record's own album_ids in step. The first member becomes the cover.
func (r *AlbumRepository) AddMember(ctx context.Context, albumID uint, kind models.Kind, mediaID uint) error {
	rec, err := newRecord(kind)
	if err != nil {
		return err
	}

	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var album models.Album
		if err := tx.First(&album, albumID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			return fmt.Errorf("failed to load album ID %d: %w", albumID, err)
		}
		if err := tx.First(rec, mediaID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			return fmt.Errorf("failed to load %s ID %d: %w", kind, mediaID, err)
		}

		if album.HasMember(kind, mediaID) {
			return nil
		}

		ids := album.MemberIDs(kind)
		*ids = append(*ids, mediaID)
		album.RecountMembers()
		album.AlbumSize += rec.Base().FileSize
		if album.AlbumCoverID == nil {
			album.SetCover(kind, mediaID)
		}
		album.UpdatedAt = time.Now().Unix()
		if err := tx.Save(&album).Error; err != nil {
			return fmt.Errorf("failed to add %s ID %d to album ID %d: %w", kind, mediaID, albumID, err)
		}

		b := rec.Base()
		if !b.HasAlbum(albumID) {
			b.AlbumIDs = append(b.AlbumIDs, albumID)
			if err := tx.Model(rec).Update("album_ids", b.AlbumIDs).Error; err != nil {
				return fmt.Errorf("failed to update album ids of %s ID %d: %w", kind, mediaID, err)
			}
		}
		return nil
	})
}

// RemoveMember is the inverse of AddMember. The cover is cleared when it
// pointed at the removed record.
func (r *AlbumRepository) RemoveMember(ctx context.Context, albumID uint, kind models.Kind, mediaID uint) error {
	rec, err := newRecord(kind)
	if err != nil {
		return err
	}

	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var album models.Album
		if err := tx.First(&album, albumID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			return fmt.Errorf("failed to load album ID %d: %w", albumID, err)
		}
		if !album.HasMember(kind, mediaID) {
			return ErrNotMember
		}

		var fileSize int64
		err := tx.First(rec, mediaID).Error
		switch {
		case err == nil:
			fileSize = rec.Base().FileSize
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec = nil
		default:
			return fmt.Errorf("failed to load %s ID %d: %w", kind, mediaID, err)
		}

		if err := detachMember(tx, &album, kind, mediaID, fileSize); err != nil {
			return err
		}

		if rec != nil {
			b := rec.Base()
			b.AlbumIDs = removeID(b.AlbumIDs, albumID)
			if err := tx.Model(rec).Update("album_ids", b.AlbumIDs).Error; err != nil {
				return fmt.Errorf("failed to update album ids of %s ID %d: %w", kind, mediaID, err)
			}
		}
		return nil
	})
}

// SetCover points the album cover at one of its members
func (r *AlbumRepository) SetCover(ctx context.Context, albumID uint, kind models.Kind, mediaID uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var album models.Album
		if err := tx.First(&album, albumID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			return fmt.Errorf("failed to load album ID %d: %w", albumID, err)
		}
		if !album.HasMember(kind, mediaID) {
			return ErrNotMember
		}
		result := tx.Model(&models.Album{}).Where("id = ?", albumID).Updates(map[string]interface{}{
			"album_cover_type": string(kind),
			"album_cover_id":   mediaID,
			"updated_at":       time.Now().Unix(),
		})
		if result.Error != nil {
			return fmt.Errorf("failed to set cover for album ID %d: %w", albumID, result.Error)
		}
		return nil
	})
}
