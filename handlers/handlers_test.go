package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/photovault/config"
	"github.com/camden-git/photovault/database"
	"github.com/camden-git/photovault/models"
	"github.com/camden-git/photovault/progress"
	"github.com/camden-git/photovault/queue"
	"github.com/camden-git/photovault/repository"
	"github.com/camden-git/photovault/services"
)

type fixedSettings config.Settings

func (s fixedSettings) Resolve(context.Context) config.Settings { return config.Settings(s) }

type nopExportQueue struct{ enqueued int }

func (q *nopExportQueue) EnqueueExport(context.Context, queue.ExportScope, queue.ExportPayload) error {
	q.enqueued++
	return nil
}

func (q *nopExportQueue) CancelExport(string) error { return nil }

type nopScanQueue struct{}

func (nopScanQueue) EnqueueScan(context.Context) (string, error) { return "scan-1", nil }

type testAPI struct {
	server    *httptest.Server
	mediaRepo *repository.MediaRepository
	settings  config.Settings
	exports   *nopExportQueue
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	db, err := database.InitGormDB(filepath.Join(t.TempDir(), "catalog.db"), "silent")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrateModels(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store := progress.NewStore(rdb, time.Minute, time.Hour)

	root := t.TempDir()
	settings := config.Settings{StoragePath: filepath.Join(root, "storage"), HotStoragePath: filepath.Join(root, "hot")}
	resolver := fixedSettings(settings)

	mediaRepo := repository.NewMediaRepository(db)
	albumRepo := repository.NewAlbumRepository(db)
	configRepo := repository.NewConfigRepository(db)
	exportQueue := &nopExportQueue{}

	router := NewRouter(RouterDeps{
		Albums:      &AlbumHandler{Repo: albumRepo},
		Media:       &MediaHandler{Repo: mediaRepo, Service: services.NewMediaService(mediaRepo, resolver, nil)},
		Exports:     &ExportHandler{Service: services.NewExportService(store, exportQueue, albumRepo, resolver)},
		Scan:        &ScanHandler{Service: services.NewScanService(nopScanQueue{}, store, configRepo)},
		Settings:    resolver,
		CORSOrigins: []string{"http://localhost:5173"},
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testAPI{server: srv, mediaRepo: mediaRepo, settings: settings, exports: exportQueue}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func (a *testAPI) insertImage(t *testing.T, name string, captured int64) *models.Image {
	t.Helper()
	img := &models.Image{MediaBase: models.MediaBase{Filename: name, FileSize: 10, CaptureDate: &captured, CreatedAt: captured, Width: 4, Height: 3}}
	require.NoError(t, a.mediaRepo.Insert(context.Background(), img))
	return img
}

func TestAlbumLifecycle(t *testing.T) {
	api := newTestAPI(t)
	first := api.insertImage(t, "a.jpg", 100)
	second := api.insertImage(t, "b.jpg", 200)

	resp := api.do(t, http.MethodPost, "/api/albums", map[string]string{"name": "Summer"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var album models.Album
	decode(t, resp, &album)
	require.NotZero(t, album.ID)

	resp = api.do(t, http.MethodPost, "/api/albums", map[string]string{"name": "Summer"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var apiErr APIErrorResponse
	decode(t, resp, &apiErr)
	require.Len(t, apiErr.Errors, 1)
	assert.Equal(t, "duplicate_album_name", apiErr.Errors[0].Code)

	base := "/api/albums/" + itoa(album.ID)
	for _, id := range []uint{first.ID, second.ID} {
		resp = api.do(t, http.MethodPost, base+"/members", map[string]interface{}{"kind": "image", "id": id})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp = api.do(t, http.MethodPut, base+"/cover", map[string]interface{}{"kind": "image", "id": second.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &album)
	assert.Equal(t, 2, album.TotalCount)
	assert.True(t, album.IsCover(models.KindImage, second.ID))

	resp = api.do(t, http.MethodDelete, base+"/members/image/"+itoa(second.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var afterRemove models.Album
	decode(t, resp, &afterRemove)
	assert.Equal(t, 1, afterRemove.ImageCount)
	assert.Nil(t, afterRemove.AlbumCoverID)
	assert.Nil(t, afterRemove.AlbumCoverType)

	resp = api.do(t, http.MethodPut, base+"/cover", map[string]interface{}{"kind": "image", "id": second.ID})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = api.do(t, http.MethodGet, "/api/albums/abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = api.do(t, http.MethodGet, "/api/albums/999", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func itoa(id uint) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestTimelineAndFavorites(t *testing.T) {
	api := newTestAPI(t)
	older := api.insertImage(t, "old.jpg", 100)
	api.insertImage(t, "new.jpg", 300)
	vid := &models.Video{MediaBase: models.MediaBase{Filename: "mid.mp4", CreatedAt: 200, Width: 1, Height: 1}}
	require.NoError(t, api.mediaRepo.Insert(context.Background(), vid))

	resp := api.do(t, http.MethodGet, "/api/timeline", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rows []models.TimelineRow
	decode(t, resp, &rows)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"new.jpg", "mid.mp4", "old.jpg"}, []string{rows[0].Filename, rows[1].Filename, rows[2].Filename})

	resp = api.do(t, http.MethodGet, "/api/timeline?kinds=video", nil)
	decode(t, resp, &rows)
	require.Len(t, rows, 1)
	assert.Equal(t, models.KindVideo, rows[0].Kind)

	resp = api.do(t, http.MethodGet, "/api/timeline?kinds=audio", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = api.do(t, http.MethodPut, "/api/media/image/"+itoa(older.ID)+"/favorite", map[string]bool{"favorite": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = api.do(t, http.MethodGet, "/api/timeline?favorites=true", nil)
	decode(t, resp, &rows)
	require.Len(t, rows, 1)
	assert.Equal(t, "old.jpg", rows[0].Filename)
	assert.True(t, rows[0].IsFavorite)

	resp = api.do(t, http.MethodPut, "/api/media/image/9999/favorite", map[string]bool{"favorite": true})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLocationAndMap(t *testing.T) {
	api := newTestAPI(t)
	img := api.insertImage(t, "a.jpg", 100)
	path := "/api/media/image/" + itoa(img.ID) + "/location"

	resp := api.do(t, http.MethodPut, path, map[string]interface{}{"latitude": 48.85})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = api.do(t, http.MethodPut, path, map[string]interface{}{"latitude": 48.85, "longitude": 2.35, "city": "Paris"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = api.do(t, http.MethodGet, "/api/map", nil)
	var pins []models.MapPin
	decode(t, resp, &pins)
	require.Len(t, pins, 1)
	assert.InDelta(t, 2.35, pins[0].Longitude, 1e-9)
	require.NotNil(t, pins[0].City)
	assert.Equal(t, "Paris", *pins[0].City)
}

func TestDeleteMediaEndpoint(t *testing.T) {
	api := newTestAPI(t)
	img := api.insertImage(t, "a.jpg", 100)

	resp := api.do(t, http.MethodDelete, "/api/media/image/"+itoa(img.ID), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = api.do(t, http.MethodGet, "/api/media/image/"+itoa(img.ID), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = api.do(t, http.MethodDelete, "/api/media/photo/1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchWithoutEmbedder(t *testing.T) {
	api := newTestAPI(t)
	resp := api.do(t, http.MethodGet, "/api/search", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = api.do(t, http.MethodGet, "/api/search?q=beach", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestExportEndpoints(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(t, http.MethodPost, "/api/exports/everything", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = api.do(t, http.MethodPost, "/api/exports/album", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = api.do(t, http.MethodPost, "/api/exports/catalog", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var st progress.ExportState
	decode(t, resp, &st)
	assert.Equal(t, progress.StatusInProgress, st.Status)
	require.NotEmpty(t, st.TaskID)
	assert.Equal(t, 1, api.exports.enqueued)

	resp = api.do(t, http.MethodGet, "/api/exports/"+st.TaskID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = api.do(t, http.MethodGet, "/api/exports/"+st.TaskID+"/download", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = api.do(t, http.MethodDelete, "/api/exports/"+st.TaskID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &st)
	assert.Equal(t, progress.StatusCancelled, st.Status)

	resp = api.do(t, http.MethodGet, "/api/exports/unknown", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &st)
	assert.Equal(t, progress.StatusNotFound, st.Status)

	resp = api.do(t, http.MethodDelete, "/api/exports/unknown", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestScanEndpoints(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(t, http.MethodPost, "/api/scan", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "scan-1", body["task_id"])

	resp = api.do(t, http.MethodGet, "/api/scan/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st services.ScanStatus
	decode(t, resp, &st)
	assert.Equal(t, config.StorageDisconnected, st.StorageStatus)
	assert.False(t, st.Scanning)
}

func TestAssetServer(t *testing.T) {
	api := newTestAPI(t)
	dir := filepath.Join(api.settings.HotStoragePath, config.DefaultThumbnailsSubDir)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc_thumb.jpg"), []byte("jpeg"), 0644))

	resp := api.do(t, http.MethodGet, "/api/thumbnails/abc_thumb.jpg", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Cache-Control"), "max-age")

	resp = api.do(t, http.MethodGet, "/api/thumbnails/missing.jpg", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = api.do(t, http.MethodGet, "/api/previews/..%2Fsecret", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodGet, "/api/map", nil)

	resp := api.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "photovault_http_requests_total")
}
