package media

import (
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/mknote"
)

func init() {
	exif.RegisterParsers(mknote.All...)
}

// helper to safely get and convert a rational tag (like FNumber, FocalLength)
func getRational(exifData *exif.Exif, tagName exif.FieldName) *float64 {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil // Tag not found
	}
	// rational numbers are often stored as num/den
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		// sometimes stored as Int instead
		valInt, errInt := tag.Int(0)
		if errInt == nil {
			fVal := float64(valInt)
			return &fVal
		}
		return nil
	}
	val := float64(num) / float64(den)
	return &val
}

// helper to safely get and convert an integer tag (like ISO)
func getInt(exifData *exif.Exif, tagName exif.FieldName) *int {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	// ISO might be a slice, get the first value
	val, err := tag.Int(0)
	if err != nil {
		return nil
	}
	return &val
}

// helper to safely get a string tag, trimming null terminators and quotes
func getString(exifData *exif.Exif, tagName exif.FieldName) *string {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	val, err := tag.StringVal()
	if err != nil {
		val = strings.Trim(tag.String(), `"`)
	}
	val = strings.TrimSpace(strings.TrimRight(val, "\x00"))
	if val == "" {
		return nil
	}
	return &val
}

// FormatExposure renders an exposure time in seconds the way cameras show it.
func FormatExposure(seconds float64) *string {
	if seconds <= 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return nil
	}
	var s string
	if seconds >= 1.0 {
		s = fmt.Sprintf("%.1fs", seconds) // e.g., 1.5s, 30.0s
	} else {
		s = fmt.Sprintf("1/%ds", int(math.Round(1/seconds)))
	}
	return &s
}

// helper to get the exposure time, formatting it nicely
func getExposureTime(exifData *exif.Exif) *string {
	tag, err := exifData.Get(exif.ExposureTime)
	if err != nil || tag == nil {
		return nil
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		return nil // Cannot represent as fraction
	}

	if num == 1 && den > 1 { // common case: 1/XXX
		s := fmt.Sprintf("1/%ds", den)
		return &s
	}
	return FormatExposure(float64(num) / float64(den))
}

// flash fired is bit 0 of the Flash tag
func getFlash(exifData *exif.Exif) *bool {
	v := getInt(exifData, exif.Flash)
	if v == nil {
		return nil
	}
	fired := *v&1 == 1
	return &fired
}

// readGPS isolates coordinate parsing: goexif can fail or panic on malformed
// GPS IFDs, and that must only cost the coordinates.
func readGPS(exifData *exif.Exif) (lat, lon *float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			lat, lon = nil, nil
			err = fmt.Errorf("gps parse panic: %v", r)
		}
	}()
	la, lo, err := exifData.LatLong()
	if err != nil {
		return nil, nil, err
	}
	if math.IsNaN(la) || math.IsNaN(lo) || la < -90 || la > 90 || lo < -180 || lo > 180 {
		return nil, nil, fmt.Errorf("coordinates out of range: %f,%f", la, lo)
	}
	if la == 0 && lo == 0 {
		return nil, nil, fmt.Errorf("null island coordinates")
	}
	return &la, &lo, nil
}

// DecodeExif extracts technical metadata from an EXIF-bearing stream
// (JPEG, TIFF and TIFF-based RAW). Each field is read independently.
func DecodeExif(r io.Reader) (*Metadata, *exif.Exif, error) {
	exifData, err := exif.Decode(r)
	if err != nil {
		return nil, nil, err
	}

	meta := &Metadata{
		FNumber:      getRational(exifData, exif.FNumber),
		ExposureTime: getExposureTime(exifData),
		ISO:          getInt(exifData, exif.ISOSpeedRatings),
		FocalLength:  getRational(exifData, exif.FocalLength),
		Flash:        getFlash(exifData),
		LensMake:     getString(exifData, exif.LensMake),
		LensModel:    getString(exifData, exif.LensModel),
		CameraMake:   getString(exifData, exif.Make),
		CameraModel:  getString(exifData, exif.Model),
	}

	if w := getInt(exifData, exif.PixelXDimension); w != nil {
		if h := getInt(exifData, exif.PixelYDimension); h != nil && *w > 0 && *h > 0 {
			meta.Width, meta.Height = w, h
		}
	}

	if dt, err := exifData.DateTime(); err == nil {
		ts := dt.Unix()
		meta.TakenAt = &ts
	}

	lat, lon, err := readGPS(exifData)
	if err == nil {
		meta.Latitude, meta.Longitude = lat, lon
	}

	return meta, exifData, nil
}

// ReadExifFile is DecodeExif over a file path. Files without EXIF return an
// empty Metadata and no error.
func ReadExifFile(path string) (*Metadata, *exif.Exif, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("metadata: failed to open file %s: %w", path, err)
	}
	defer file.Close()

	meta, x, err := DecodeExif(file)
	if err != nil {
		log.Printf("metadata: No EXIF data found or error decoding EXIF for %s: %v", path, err)
		return &Metadata{}, nil, nil
	}
	return meta, x, nil
}
