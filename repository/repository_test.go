package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/camden-git/photovault/database"
	"github.com/camden-git/photovault/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.InitGormDB(filepath.Join(t.TempDir(), "catalog.db"), "silent")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrateModels(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newImage(name string, size int64) *models.Image {
	return &models.Image{MediaBase: models.MediaBase{Filename: name, FileSize: size, CreatedAt: 1, Width: 1, Height: 1}}
}

func TestInsertReportsDuplicateFilename(t *testing.T) {
	repo := NewMediaRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, newImage("a.jpg", 1)))
	err := repo.Insert(ctx, newImage("a.jpg", 2))
	assert.True(t, errors.Is(err, ErrDuplicateFilename))

	// the same filename is allowed in another kind
	require.NoError(t, repo.Insert(ctx, &models.Video{MediaBase: models.MediaBase{Filename: "a.jpg", CreatedAt: 1, Width: 1, Height: 1}}))

	rec, err := repo.FindByFilename(ctx, models.KindImage, "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Base().FileSize)

	_, err = repo.FindByFilename(ctx, models.KindImage, "missing.jpg")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestAlbumMembershipInvariants(t *testing.T) {
	db := setupTestDB(t)
	media := NewMediaRepository(db)
	albums := NewAlbumRepository(db)
	ctx := context.Background()

	a, b := newImage("a.jpg", 10), newImage("b.jpg", 20)
	require.NoError(t, media.Insert(ctx, a))
	require.NoError(t, media.Insert(ctx, b))
	album := &models.Album{AlbumName: "Trip"}
	require.NoError(t, albums.Create(ctx, album))

	require.NoError(t, albums.AddMember(ctx, album.ID, models.KindImage, a.ID))
	require.NoError(t, albums.AddMember(ctx, album.ID, models.KindImage, b.ID))
	// adding twice is a no-op
	require.NoError(t, albums.AddMember(ctx, album.ID, models.KindImage, a.ID))

	got, err := albums.GetByID(ctx, album.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{a.ID, b.ID}, []uint(got.ImageIDs))
	assert.Equal(t, 2, got.ImageCount)
	assert.Equal(t, 2, got.TotalCount)
	assert.Equal(t, int64(30), got.AlbumSize)
	assert.True(t, got.IsCover(models.KindImage, a.ID), "first member becomes the cover")

	rec, err := media.GetByID(ctx, models.KindImage, a.ID)
	require.NoError(t, err)
	assert.True(t, rec.Base().HasAlbum(album.ID))

	err = albums.SetCover(ctx, album.ID, models.KindVideo, 1)
	assert.True(t, errors.Is(err, ErrNotMember))

	require.NoError(t, albums.RemoveMember(ctx, album.ID, models.KindImage, a.ID))
	got, err = albums.GetByID(ctx, album.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{b.ID}, []uint(got.ImageIDs))
	assert.Equal(t, int64(20), got.AlbumSize)
	assert.Nil(t, got.AlbumCoverID)

	rec, err = media.GetByID(ctx, models.KindImage, a.ID)
	require.NoError(t, err)
	assert.False(t, rec.Base().HasAlbum(album.ID))

	err = albums.RemoveMember(ctx, album.ID, models.KindImage, a.ID)
	assert.True(t, errors.Is(err, ErrNotMember))

	err = albums.AddMember(ctx, album.ID, models.KindImage, 999)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestAlbumDeleteDetachesRecords(t *testing.T) {
	db := setupTestDB(t)
	media := NewMediaRepository(db)
	albums := NewAlbumRepository(db)
	ctx := context.Background()

	img := newImage("a.jpg", 10)
	require.NoError(t, media.Insert(ctx, img))
	album := &models.Album{AlbumName: "Gone"}
	require.NoError(t, albums.Create(ctx, album))
	require.NoError(t, albums.AddMember(ctx, album.ID, models.KindImage, img.ID))

	require.NoError(t, albums.Delete(ctx, album.ID))
	rec, err := media.GetByID(ctx, models.KindImage, img.ID)
	require.NoError(t, err)
	assert.Empty(t, rec.Base().AlbumIDs)

	err = albums.Create(ctx, &models.Album{AlbumName: "Dup"})
	require.NoError(t, err)
	err = albums.Create(ctx, &models.Album{AlbumName: "Dup"})
	assert.True(t, errors.Is(err, ErrDuplicateAlbumName))
}

func TestConfigRepositoryUpsert(t *testing.T) {
	repo := NewConfigRepository(setupTestDB(t))
	ctx := context.Background()

	_, ok, err := repo.Get(ctx, "storage_path")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Set(ctx, "storage_path", "/mnt/a"))
	require.NoError(t, repo.Set(ctx, "storage_path", "/mnt/b"))
	v, ok, err := repo.Get(ctx, "storage_path")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/mnt/b", v)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestListAllRowsAndCount(t *testing.T) {
	repo := NewMediaRepository(setupTestDB(t))
	ctx := context.Background()
	for _, n := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		require.NoError(t, repo.Insert(ctx, newImage(n, 1)))
	}

	items, err := repo.List(ctx, models.KindImage, 0, 0)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	items, err = repo.List(ctx, models.KindImage, 2, 2)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	n, err := repo.Count(ctx, models.KindImage)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
