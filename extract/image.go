package extract

import (
	"context"
	"log"

	"github.com/camden-git/photovault/media"
	"github.com/camden-git/photovault/models"
)

// ImageExtractor handles still photos decodable by the image package.
type ImageExtractor struct {
	deps Deps
}

func NewImageExtractor(deps Deps) *ImageExtractor {
	return &ImageExtractor{deps: deps}
}

func (e *ImageExtractor) Kind() models.Kind { return models.KindImage }

func (e *ImageExtractor) Extract(ctx context.Context, in Input) (models.MediaRecord, error) {
	info, err := checkInput(ctx, models.KindImage, in)
	if err != nil {
		return nil, err
	}

	meta, _, err := media.ReadExifFile(in.FullPath)
	if err != nil {
		return nil, failed("%v", err)
	}

	img, err := media.OpenImage(in.FullPath)
	if err != nil {
		return nil, failed("%v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, failed("%s has no dimensions", in.FullPath)
	}

	assets, err := in.Assets.EnsureDerivedAssets(img, in.FullPath)
	if err != nil {
		return nil, failed("no usable asset for %s: %v", in.FullPath, err)
	}

	rec := &models.Image{
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
	b.SetDimensions(bounds.Dx(), bounds.Dy())
	b.CaptureDate = meta.TakenAt
	b.CameraMake, b.CameraModel = meta.CameraMake, meta.CameraModel
	setAssets(b, assets)

	e.deps.locate(ctx, b, meta.Latitude, meta.Longitude)
	e.deps.embed(ctx, b, img)

	log.Printf("extract: image %s %dx%d processed=%t", in.Filename, b.Width, b.Height, b.IsProcessed)
	return rec, nil
}
