package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log"
	"os/exec"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

// ExifTool wraps the exiftool binary, which understands every RAW dialect
// goexif does not.
type ExifTool struct {
	Path string
}

func NewExifTool(path string) *ExifTool {
	if path == "" {
		path = "exiftool"
	}
	return &ExifTool{Path: path}
}

type exiftoolRecord struct {
	ImageWidth       *int     `json:"ImageWidth"`
	ImageHeight      *int     `json:"ImageHeight"`
	Make             *string  `json:"Make"`
	Model            *string  `json:"Model"`
	LensMake         *string  `json:"LensMake"`
	LensModel        *string  `json:"LensModel"`
	FNumber          *float64 `json:"FNumber"`
	ISO              *int     `json:"ISO"`
	ExposureTime     *float64 `json:"ExposureTime"`
	FocalLength      *float64 `json:"FocalLength"`
	Flash            *int     `json:"Flash"`
	DateTimeOriginal *string  `json:"DateTimeOriginal"`
	GPSLatitude      *float64 `json:"GPSLatitude"`
	GPSLongitude     *float64 `json:"GPSLongitude"`
}

func (e *ExifTool) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, e.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("exiftool error: %w - %s", err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// Metadata reads numeric (-n) tag values for filePath.
func (e *ExifTool) Metadata(ctx context.Context, filePath string) (*Metadata, error) {
	out, err := e.run(ctx, "-json", "-n", filePath)
	if err != nil {
		return nil, err
	}
	return ParseExifToolJSON(out)
}

// ParseExifToolJSON converts `exiftool -json -n` output into Metadata.
func ParseExifToolJSON(data []byte) (*Metadata, error) {
	var records []exiftoolRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode exiftool output: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("exiftool returned no records")
	}
	r := records[0]

	meta := &Metadata{
		CameraMake:  trimmed(r.Make),
		CameraModel: trimmed(r.Model),
		LensMake:    trimmed(r.LensMake),
		LensModel:   trimmed(r.LensModel),
		FNumber:     r.FNumber,
		ISO:         r.ISO,
		FocalLength: r.FocalLength,
	}
	if r.ImageWidth != nil && r.ImageHeight != nil && *r.ImageWidth > 0 && *r.ImageHeight > 0 {
		meta.Width, meta.Height = r.ImageWidth, r.ImageHeight
	}
	if r.ExposureTime != nil {
		meta.ExposureTime = FormatExposure(*r.ExposureTime)
	}
	if r.Flash != nil {
		fired := *r.Flash&1 == 1
		meta.Flash = &fired
	}
	if r.DateTimeOriginal != nil {
		if t, err := time.ParseInLocation("2006:01:02 15:04:05", *r.DateTimeOriginal, time.Local); err == nil {
			ts := t.Unix()
			meta.TakenAt = &ts
		}
	}
	if r.GPSLatitude != nil && r.GPSLongitude != nil {
		lat, lon := *r.GPSLatitude, *r.GPSLongitude
		if lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180 && !(lat == 0 && lon == 0) {
			meta.Latitude, meta.Longitude = &lat, &lon
		}
	}
	return meta, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// EmbeddedPreview returns the largest JPEG the RAW file carries. It tries
// PreviewImage, then JpgFromRaw, then the EXIF thumbnail.
func (e *ExifTool) EmbeddedPreview(ctx context.Context, filePath string) (image.Image, error) {
	for _, tag := range []string{"-PreviewImage", "-JpgFromRaw"} {
		data, err := e.run(ctx, "-b", tag, filePath)
		if err != nil || len(data) == 0 {
			continue
		}
		img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err != nil {
			log.Printf("raw: %s of %s did not decode: %v", tag, filePath, err)
			continue
		}
		return img, nil
	}

	_, x, err := ReadExifFile(filePath)
	if err != nil || x == nil {
		return nil, fmt.Errorf("no embedded preview in %s", filePath)
	}
	thumb, err := x.JpegThumbnail()
	if err != nil || len(thumb) == 0 {
		return nil, fmt.Errorf("no embedded preview in %s", filePath)
	}
	img, err := imaging.Decode(bytes.NewReader(thumb))
	if err != nil {
		return nil, fmt.Errorf("failed to decode exif thumbnail of %s: %w", filePath, err)
	}
	return img, nil
}
