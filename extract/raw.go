package extract

import (
	"context"
	"image"
	"log"
	"path/filepath"
	"strings"

	"github.com/camden-git/photovault/media"
	"github.com/camden-git/photovault/models"
)

// RawTools reads RAW metadata and the JPEG preview embedded in the file;
// *media.ExifTool implements it.
type RawTools interface {
	Metadata(ctx context.Context, filePath string) (*media.Metadata, error)
	EmbeddedPreview(ctx context.Context, filePath string) (image.Image, error)
}

// RawExtractor handles camera RAW files. Pixels come from the embedded
// preview rather than a full demosaic.
type RawExtractor struct {
	deps  Deps
	tools RawTools
}

func NewRawExtractor(deps Deps, tools RawTools) *RawExtractor {
	return &RawExtractor{deps: deps, tools: tools}
}

func (e *RawExtractor) Kind() models.Kind { return models.KindRaw }

func (e *RawExtractor) Extract(ctx context.Context, in Input) (models.MediaRecord, error) {
	info, err := checkInput(ctx, models.KindRaw, in)
	if err != nil {
		return nil, err
	}

	meta, err := e.tools.Metadata(ctx, in.FullPath)
	if err != nil {
		log.Printf("extract: WARNING exiftool metadata failed for %s: %v", in.FullPath, err)
		meta = &media.Metadata{}
	}
	// TIFF-based formats (DNG, NEF, ARW) also parse with goexif
	if fallback, _, err := media.ReadExifFile(in.FullPath); err == nil {
		meta.Merge(fallback)
	}

	preview, err := e.tools.EmbeddedPreview(ctx, in.FullPath)
	if err != nil {
		return nil, failed("no usable asset for %s: %v", in.FullPath, err)
	}

	var width, height int
	if meta.Width != nil && meta.Height != nil {
		width, height = *meta.Width, *meta.Height
	} else {
		width, height = preview.Bounds().Dx(), preview.Bounds().Dy()
	}
	if width <= 0 || height <= 0 {
		return nil, failed("%s has no dimensions", in.FullPath)
	}

	assets, err := in.Assets.EnsureDerivedAssets(preview, in.FullPath)
	if err != nil {
		return nil, failed("no usable asset for %s: %v", in.FullPath, err)
	}

	rec := &models.RawImage{
		Extension:    strings.TrimPrefix(strings.ToLower(filepath.Ext(in.Filename)), "."),
		LensMake:     meta.LensMake,
		LensModel:    meta.LensModel,
		Flash:        meta.Flash,
		FNumber:      meta.FNumber,
		ISO:          meta.ISO,
		ExposureTime: meta.ExposureTime,
		FocalLength:  meta.FocalLength,
	}
	b := rec.Base()
	fillBase(b, in, info)
	b.SetDimensions(width, height)
	b.CaptureDate = meta.TakenAt
	b.CameraMake, b.CameraModel = meta.CameraMake, meta.CameraModel
	setAssets(b, assets)

	e.deps.locate(ctx, b, meta.Latitude, meta.Longitude)
	e.deps.embed(ctx, b, preview)

	log.Printf("extract: raw %s %dx%d processed=%t", in.Filename, b.Width, b.Height, b.IsProcessed)
	return rec, nil
}
