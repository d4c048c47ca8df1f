package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/camden-git/photovault/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := InitGormDB(filepath.Join(t.TempDir(), "catalog.db"), "silent")
	require.NoError(t, err)
	require.NoError(t, AutoMigrateModels(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func ptrInt64(v int64) *int64 { return &v }

func TestListFilenamesPerKind(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.Image{MediaBase: models.MediaBase{Filename: "a.jpg", Width: 1, Height: 1}}).Error)
	require.NoError(t, db.Create(&models.Image{MediaBase: models.MediaBase{Filename: "b.jpg", Width: 1, Height: 1}}).Error)
	require.NoError(t, db.Create(&models.Video{MediaBase: models.MediaBase{Filename: "c.mp4", Width: 1, Height: 1}}).Error)

	images, err := ListFilenames(ctx, db, models.KindImage)
	require.NoError(t, err)
	assert.Len(t, images, 2)
	assert.Contains(t, images, "a.jpg")

	videos, err := ListFilenames(ctx, db, models.KindVideo)
	require.NoError(t, err)
	assert.Len(t, videos, 1)

	raws, err := ListFilenames(ctx, db, models.KindRaw)
	require.NoError(t, err)
	assert.Empty(t, raws)
}

func TestDuplicateFilenameIsTranslated(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, db.Create(&models.Image{MediaBase: models.MediaBase{Filename: "a.jpg", Width: 1, Height: 1}}).Error)
	err := db.Create(&models.Image{MediaBase: models.MediaBase{Filename: "a.jpg", Width: 2, Height: 2}}).Error
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	assert.False(t, IsUniqueViolation(errors.New("disk I/O error")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestTimelineOrdersAcrossKinds(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.Image{MediaBase: models.MediaBase{Filename: "old.jpg", Width: 1, Height: 1, CaptureDate: ptrInt64(100)}}).Error)
	require.NoError(t, db.Create(&models.Video{MediaBase: models.MediaBase{Filename: "new.mp4", Width: 1, Height: 1, CaptureDate: ptrInt64(300), IsFavorite: true}}).Error)
	require.NoError(t, db.Create(&models.RawImage{MediaBase: models.MediaBase{Filename: "mid.cr2", Width: 1, Height: 1, CaptureDate: ptrInt64(200)}, Extension: "cr2"}).Error)

	keys, err := Timeline(ctx, db, TimelineFilter{})
	require.NoError(t, err)
	require.Len(t, keys, 3)
	assert.Equal(t, models.KindVideo, keys[0].Kind)
	assert.Equal(t, models.KindRaw, keys[1].Kind)
	assert.Equal(t, models.KindImage, keys[2].Kind)
	assert.Equal(t, int64(100), keys[2].SortDate)

	keys, err = Timeline(ctx, db, TimelineFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, models.KindRaw, keys[0].Kind)

	keys, err = Timeline(ctx, db, TimelineFilter{FavoritesOnly: true})
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "new.mp4", mustFilename(t, db, keys[0]))
}

func TestTimelineFallsBackToCreatedAt(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.Image{MediaBase: models.MediaBase{Filename: "undated.jpg", Width: 1, Height: 1}}).Error)

	keys, err := Timeline(ctx, db, TimelineFilter{Kinds: []models.Kind{models.KindImage}})
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NotZero(t, keys[0].SortDate)
}

func mustFilename(t *testing.T, db *gorm.DB, key TimelineKey) string {
	t.Helper()
	rec := models.NewRecord(key.Kind)
	require.NoError(t, db.First(rec, key.ID).Error)
	return rec.Base().Filename
}
