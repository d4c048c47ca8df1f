package services

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/camden-git/photovault/config"
	"github.com/camden-git/photovault/database"
	"github.com/camden-git/photovault/models"
	"github.com/camden-git/photovault/progress"
	"github.com/camden-git/photovault/queue"
	"github.com/camden-git/photovault/repository"
)

type fixedSettings config.Settings

func (s fixedSettings) Resolve(context.Context) config.Settings { return config.Settings(s) }

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

func setupTestStore(t *testing.T) *progress.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return progress.NewStore(rdb, time.Minute, time.Hour)
}

func strPtr(s string) *string { return &s }

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestDeleteCascadesToAlbums(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	mediaRepo := repository.NewMediaRepository(db)
	albumRepo := repository.NewAlbumRepository(db)

	root := t.TempDir()
	settings := config.Settings{StoragePath: filepath.Join(root, "storage"), HotStoragePath: filepath.Join(root, "hot")}
	src := filepath.Join(settings.StoragePath, "images", "a.jpg")
	thumb := filepath.Join(settings.HotStoragePath, "thumbnails", "abc_thumb.jpg")
	writeFile(t, src)
	writeFile(t, thumb)

	img := &models.Image{MediaBase: models.MediaBase{
		Filename:      "a.jpg",
		FileSize:      100,
		CreatedAt:     time.Now().Unix(),
		Width:         1,
		Height:        1,
		ThumbnailPath: strPtr("thumbnails/abc_thumb.jpg"),
		PreviewPath:   strPtr("previews/abc_preview.jpg"),
	}}
	require.NoError(t, mediaRepo.Insert(ctx, img))
	other := &models.Image{MediaBase: models.MediaBase{Filename: "b.jpg", FileSize: 50, CreatedAt: time.Now().Unix(), Width: 1, Height: 1}}
	require.NoError(t, mediaRepo.Insert(ctx, other))

	album := &models.Album{AlbumName: "Trip"}
	require.NoError(t, albumRepo.Create(ctx, album))
	require.NoError(t, albumRepo.AddMember(ctx, album.ID, models.KindImage, img.ID))
	require.NoError(t, albumRepo.AddMember(ctx, album.ID, models.KindImage, other.ID))

	got, err := albumRepo.GetByID(ctx, album.ID)
	require.NoError(t, err)
	require.True(t, got.IsCover(models.KindImage, img.ID))
	require.Equal(t, int64(150), got.AlbumSize)

	svc := NewMediaService(mediaRepo, fixedSettings(settings), nil)
	require.NoError(t, svc.Delete(ctx, models.KindImage, img.ID))

	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(thumb)
	assert.True(t, os.IsNotExist(err))

	_, err = mediaRepo.GetByID(ctx, models.KindImage, img.ID)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	got, err = albumRepo.GetByID(ctx, album.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{other.ID}, []uint(got.ImageIDs))
	assert.Equal(t, 1, got.ImageCount)
	assert.Equal(t, 1, got.TotalCount)
	assert.Equal(t, int64(50), got.AlbumSize)
	assert.Nil(t, got.AlbumCoverID)
	assert.Nil(t, got.AlbumCoverType)

	err = svc.Delete(ctx, models.KindImage, img.ID)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestDeleteToleratesMissingFiles(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	mediaRepo := repository.NewMediaRepository(db)

	root := t.TempDir()
	settings := config.Settings{StoragePath: filepath.Join(root, "storage"), HotStoragePath: filepath.Join(root, "hot")}
	vid := &models.Video{MediaBase: models.MediaBase{Filename: "gone.mp4", CreatedAt: 1, Width: 1, Height: 1, ThumbnailPath: strPtr("thumbnails/gone_thumb.jpg")}}
	require.NoError(t, mediaRepo.Insert(ctx, vid))

	svc := NewMediaService(mediaRepo, fixedSettings(settings), nil)
	require.NoError(t, svc.Delete(ctx, models.KindVideo, vid.ID))
	n, err := mediaRepo.Count(ctx, models.KindVideo)
	require.NoError(t, err)
	assert.Zero(t, n)
}

type stubEmbedder struct{ text []float32 }

func (e stubEmbedder) EmbedImage(context.Context, image.Image) ([]float32, error) { return nil, nil }
func (e stubEmbedder) EmbedText(context.Context, string) ([]float32, error)       { return e.text, nil }
func (e stubEmbedder) Dimension() int                                             { return len(e.text) }

func TestSearchRanksByDistance(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	mediaRepo := repository.NewMediaRepository(db)

	near := &models.Image{MediaBase: models.MediaBase{Filename: "beach.jpg", CreatedAt: 1, Width: 1, Height: 1}}
	near.SetEmbedding([]float32{1, 0})
	far := &models.Video{MediaBase: models.MediaBase{Filename: "forest.mp4", CreatedAt: 1, Width: 1, Height: 1}}
	far.SetEmbedding([]float32{0, 1})
	plain := &models.Image{MediaBase: models.MediaBase{Filename: "none.jpg", CreatedAt: 1, Width: 1, Height: 1}}
	for _, rec := range []models.MediaRecord{near, far, plain} {
		require.NoError(t, mediaRepo.Insert(ctx, rec))
	}

	svc := NewMediaService(mediaRepo, fixedSettings{}, stubEmbedder{text: []float32{0.9, 0.1}})
	hits, err := svc.Search(ctx, "sea", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "beach.jpg", hits[0].Filename)
	assert.Equal(t, models.KindVideo, hits[1].Kind)

	_, err = NewMediaService(mediaRepo, fixedSettings{}, nil).Search(ctx, "sea", 10)
	assert.True(t, errors.Is(err, ErrSearchUnavailable))
}

type fakeExportQueue struct {
	enqueued  []queue.ExportPayload
	scopes    []queue.ExportScope
	cancelled []string
	err       error
}

func (q *fakeExportQueue) EnqueueExport(_ context.Context, scope queue.ExportScope, p queue.ExportPayload) error {
	if q.err != nil {
		return q.err
	}
	q.scopes = append(q.scopes, scope)
	q.enqueued = append(q.enqueued, p)
	return nil
}

func (q *fakeExportQueue) CancelExport(taskID string) error {
	q.cancelled = append(q.cancelled, taskID)
	return errors.New("task not found")
}

type fakeAlbums map[uint]*models.Album

func (a fakeAlbums) GetByID(_ context.Context, id uint) (*models.Album, error) {
	if al, ok := a[id]; ok {
		return al, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func newTestExportService(t *testing.T, q *fakeExportQueue) (*ExportService, *progress.Store, string) {
	t.Helper()
	store := setupTestStore(t)
	hot := t.TempDir()
	svc := NewExportService(store, q, fakeAlbums{3: {ID: 3, AlbumName: "x"}}, fixedSettings{HotStoragePath: hot})
	svc.newID = func() string { return "task-1" }
	return svc, store, hot
}

func TestExportStart(t *testing.T) {
	ctx := context.Background()
	q := &fakeExportQueue{}
	svc, _, _ := newTestExportService(t, q)

	st, err := svc.Start(ctx, "hot_cache", nil)
	require.NoError(t, err)
	assert.Equal(t, "task-1", st.TaskID)
	assert.Equal(t, progress.StatusInProgress, st.Status)
	assert.Equal(t, "hot_cache", st.Scope)
	require.Len(t, q.enqueued, 1)
	assert.Equal(t, queue.ScopeHotCache, q.scopes[0])
	assert.Equal(t, "task-1", q.enqueued[0].TaskID)

	_, err = svc.Start(ctx, "everything", nil)
	assert.True(t, errors.Is(err, ErrInvalidScope))

	_, err = svc.Start(ctx, "album", nil)
	assert.True(t, errors.Is(err, ErrAlbumRequired))

	missing := uint(9)
	_, err = svc.Start(ctx, "album", &missing)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestExportStartEnqueueFailureMarksFailed(t *testing.T) {
	ctx := context.Background()
	q := &fakeExportQueue{err: errors.New("redis down")}
	svc, store, _ := newTestExportService(t, q)

	albumID := uint(3)
	_, err := svc.Start(ctx, "album", &albumID)
	require.Error(t, err)

	st, err := store.GetExport(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, progress.StatusFailed, st.Status)
	assert.Contains(t, st.Error, "redis down")
}

func TestExportCancelRemovesArchive(t *testing.T) {
	ctx := context.Background()
	q := &fakeExportQueue{}
	svc, store, hot := newTestExportService(t, q)

	_, err := svc.Start(ctx, "assets", nil)
	require.NoError(t, err)
	archive := filepath.Join(hot, "archives", "task-1.zip")
	writeFile(t, archive)
	ok, err := store.CompleteExport(ctx, "task-1", "archives/task-1.zip", "assets_2024-06-01.zip", 2)
	require.NoError(t, err)
	require.True(t, ok)

	path, name, err := svc.Archive(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, archive, path)
	assert.Equal(t, "assets_2024-06-01.zip", name)

	st, err := svc.Cancel(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, progress.StatusCancelled, st.Status)
	assert.Equal(t, []string{"task-1"}, q.cancelled)
	_, err = os.Stat(archive)
	assert.True(t, os.IsNotExist(err))

	_, _, err = svc.Archive(ctx, "task-1")
	assert.True(t, errors.Is(err, ErrExportNotReady))

	_, err = svc.Cancel(ctx, "nope")
	assert.True(t, errors.Is(err, ErrExportNotFound))
	st, err = svc.Status(ctx, "nope")
	require.NoError(t, err)
	assert.Equal(t, progress.StatusNotFound, st.Status)
}

type fakeScanQueue struct{ n int }

func (q *fakeScanQueue) EnqueueScan(context.Context) (string, error) {
	q.n++
	return "scan-1", nil
}

type fakeStatusReader map[string]string

func (s fakeStatusReader) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s[key]
	return v, ok, nil
}

func TestScanStatusAndTrigger(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	q := &fakeScanQueue{}

	svc := NewScanService(q, store, fakeStatusReader{})
	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, config.StorageDisconnected, st.StorageStatus)
	assert.False(t, st.BatchActive)

	require.NoError(t, store.StartBatch(ctx, 4))
	_, err = store.IncrCompleted(ctx)
	require.NoError(t, err)
	svc = NewScanService(q, store, fakeStatusReader{config.KeyStorageStatus: config.StorageConnected})
	st, err = svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, config.StorageConnected, st.StorageStatus)
	assert.True(t, st.BatchActive)
	assert.Equal(t, int64(4), st.Pending)
	assert.Equal(t, int64(1), st.Completed)

	id, err := svc.Trigger(ctx)
	require.NoError(t, err)
	assert.Equal(t, "scan-1", id)
	assert.Equal(t, 1, q.n)
}
