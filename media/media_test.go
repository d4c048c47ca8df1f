package media

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func TestAssetBaseNameIsStablePerPath(t *testing.T) {
	a := AssetBaseName("/mnt/photos/images/IMG_0001.JPG")
	b := AssetBaseName("/mnt/photos/images/IMG_0001.JPG")
	c := AssetBaseName("/mnt/other/images/IMG_0001.JPG")

	assert.Len(t, a, 32)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasSuffix(ThumbnailName("/x.jpg"), "_thumb.jpg"))
	assert.True(t, strings.HasSuffix(PreviewName("/x.jpg"), "_preview.jpg"))
}

func TestFitLongestSide(t *testing.T) {
	out, err := FitLongestSide(testImage(800, 400), 300)
	require.NoError(t, err)
	assert.Equal(t, 300, out.Bounds().Dx())
	assert.Equal(t, 150, out.Bounds().Dy())

	out, err = FitLongestSide(testImage(400, 800), 300)
	require.NoError(t, err)
	assert.Equal(t, 150, out.Bounds().Dx())
	assert.Equal(t, 300, out.Bounds().Dy())

	small := testImage(100, 50)
	out, err = FitLongestSide(small, 300)
	require.NoError(t, err)
	assert.Equal(t, small, out)
}

func TestProcessorWritesAndReusesAssets(t *testing.T) {
	store, err := NewHotStorage(t.TempDir())
	require.NoError(t, err)
	p := NewProcessor(store, 300, 1920)

	src := "/storage/images/beach.jpg"
	_, ok := p.HasDerivedAssets(src)
	assert.False(t, ok)

	assets, err := p.EnsureDerivedAssets(testImage(640, 480), src)
	require.NoError(t, err)
	assert.Equal(t, "thumbnails/"+ThumbnailName(src), assets.ThumbnailPath)
	assert.Equal(t, "previews/"+PreviewName(src), assets.PreviewPath)

	full, err := store.GetFullPath(assets.ThumbnailPath)
	require.NoError(t, err)
	w, h, err := ImageDimensions(full)
	require.NoError(t, err)
	assert.Equal(t, 300, w)
	assert.Equal(t, 225, h)

	cached, ok := p.HasDerivedAssets(src)
	require.True(t, ok)
	assert.Equal(t, assets, cached)

	// existing assets are reused without a source image
	again, err := p.EnsureDerivedAssets(nil, src)
	require.NoError(t, err)
	assert.Equal(t, assets, again)
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	store, err := NewHotStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.GetFullPath("../../etc/passwd")
	assert.Error(t, err)
	_, err = store.Save(AssetTypeThumbnail, "../escape.jpg", strings.NewReader("x"))
	assert.Error(t, err)

	assert.NoError(t, store.Delete("thumbnails/missing.jpg"))
}

func TestLocalStorageSaveAndDelete(t *testing.T) {
	base := t.TempDir()
	store, err := NewHotStorage(base)
	require.NoError(t, err)

	rel, err := store.Save(AssetTypeArchive, "a.zip", strings.NewReader("zipdata"))
	require.NoError(t, err)
	assert.Equal(t, "archives/a.zip", rel)

	data, err := os.ReadFile(filepath.Join(base, "archives", "a.zip"))
	require.NoError(t, err)
	assert.Equal(t, "zipdata", string(data))

	require.NoError(t, store.Delete(rel))
	_, ok := store.Exists(AssetTypeArchive, "a.zip")
	assert.False(t, ok)
}

func TestMetadataMergeKeepsExistingFields(t *testing.T) {
	iso := 100
	otherISO := 400
	lat, lon := 48.85, 2.35
	make1 := "Canon"

	m := &Metadata{ISO: &iso}
	m.Merge(&Metadata{ISO: &otherISO, CameraMake: &make1, Latitude: &lat, Longitude: &lon})

	assert.Equal(t, 100, *m.ISO)
	assert.Equal(t, "Canon", *m.CameraMake)
	assert.Equal(t, 48.85, *m.Latitude)
	assert.Equal(t, 2.35, *m.Longitude)

	m.Merge(nil)
	assert.Equal(t, 100, *m.ISO)
}

func TestParseFFProbe(t *testing.T) {
	out := []byte(`{
		"streams": [
			{"codec_type": "audio", "codec_name": "aac"},
			{"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080,
			 "r_frame_rate": "30000/1001", "duration": "12.5",
			 "tags": {"creation_time": "2023-06-01T10:00:00.000000Z"}}
		],
		"format": {"duration": "12.512",
			"tags": {"com.apple.quicktime.location.ISO6709": "+37.7749-122.4194+010.000/",
			         "com.apple.quicktime.make": "Apple", "com.apple.quicktime.model": "iPhone 14"}}
	}`)

	probe, err := ParseFFProbe(out)
	require.NoError(t, err)
	assert.Equal(t, 1920, probe.Width)
	assert.Equal(t, 1080, probe.Height)
	require.NotNil(t, probe.Codec)
	assert.Equal(t, "h264", *probe.Codec)
	require.NotNil(t, probe.FPS)
	assert.Equal(t, 29.97, *probe.FPS)
	require.NotNil(t, probe.Duration)
	assert.Equal(t, 12.512, *probe.Duration)
	require.NotNil(t, probe.CreatedAt)
	assert.Equal(t, int64(1685613600), *probe.CreatedAt)
	require.NotNil(t, probe.Latitude)
	assert.InDelta(t, 37.7749, *probe.Latitude, 1e-9)
	assert.InDelta(t, -122.4194, *probe.Longitude, 1e-9)
	assert.Equal(t, "Apple", *probe.CameraMake)
	assert.Equal(t, "iPhone 14", *probe.CameraModel)
}

func TestParseFFProbeRotatedAndWithoutVideo(t *testing.T) {
	probe, err := ParseFFProbe([]byte(`{"streams":[{"codec_type":"video","width":1920,"height":1080,
		"side_data_list":[{"rotation":-90}]}],"format":{}}`))
	require.NoError(t, err)
	assert.Equal(t, 1080, probe.Width)
	assert.Equal(t, 1920, probe.Height)
	assert.Nil(t, probe.Duration)
	assert.Nil(t, probe.Latitude)

	_, err = ParseFFProbe([]byte(`{"streams":[{"codec_type":"audio"}],"format":{}}`))
	assert.Error(t, err)
}

func TestParseISO6709(t *testing.T) {
	lat, lon, ok := ParseISO6709("-33.8688+151.2093/")
	require.True(t, ok)
	assert.InDelta(t, -33.8688, lat, 1e-9)
	assert.InDelta(t, 151.2093, lon, 1e-9)

	_, _, ok = ParseISO6709("garbage")
	assert.False(t, ok)
	_, _, ok = ParseISO6709("+95.0+10.0/")
	assert.False(t, ok)
}

func TestParseExifToolJSON(t *testing.T) {
	meta, err := ParseExifToolJSON([]byte(`[{"ImageWidth": 6000, "ImageHeight": 4000,
		"Make": "SONY ", "Model": "ILCE-7M3", "FNumber": 2.8, "ISO": 200,
		"ExposureTime": 0.004, "FocalLength": 35, "Flash": 16,
		"GPSLatitude": 0, "GPSLongitude": 0}]`))
	require.NoError(t, err)
	assert.Equal(t, 6000, *meta.Width)
	assert.Equal(t, "SONY", *meta.CameraMake)
	assert.Equal(t, "1/250s", *meta.ExposureTime)
	assert.False(t, *meta.Flash)
	assert.Nil(t, meta.Latitude)
	assert.Nil(t, meta.TakenAt)

	_, err = ParseExifToolJSON([]byte(`[]`))
	assert.Error(t, err)
}

func TestSamplePositions(t *testing.T) {
	assert.InDeltaSlice(t, []float64{2, 4, 6, 8}, SamplePositions(10), 1e-9)
	assert.Nil(t, SamplePositions(0))
}

func TestReadExifFileWithoutExif(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0644))

	meta, x, err := ReadExifFile(path)
	require.NoError(t, err)
	assert.Nil(t, x)
	assert.Equal(t, &Metadata{}, meta)
}
