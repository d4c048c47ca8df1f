// Package extract turns a source file into a catalog record: technical
// metadata, location, derived assets and an embedding.
package extract

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"time"

	"github.com/camden-git/photovault/embedding"
	"github.com/camden-git/photovault/geocode"
	"github.com/camden-git/photovault/media"
	"github.com/camden-git/photovault/models"
)

var (
	ErrUnsupportedExtension = errors.New("unsupported file extension")
	// ErrExtractionFailed marks a file that yielded no usable record
	ErrExtractionFailed = errors.New("extraction failed")
)

// AssetWriter produces thumbnails and previews; *media.Processor implements it.
type AssetWriter interface {
	HasDerivedAssets(fullPath string) (media.DerivedAssets, bool)
	EnsureDerivedAssets(img image.Image, fullPath string) (media.DerivedAssets, error)
}

// Input identifies one source file and where its assets go.
type Input struct {
	FullPath string
	Filename string
	Assets   AssetWriter
}

// Extractor builds an unsaved record for one media kind.
type Extractor interface {
	Kind() models.Kind
	Extract(ctx context.Context, in Input) (models.MediaRecord, error)
}

// Deps are the collaborators shared by all extractors. Embedder and
// Geocoder may be nil, which leaves the corresponding fields empty.
type Deps struct {
	Embedder embedding.Embedder
	Geocoder geocode.Geocoder
}

func failed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrExtractionFailed, fmt.Sprintf(format, args...))
}

func checkInput(ctx context.Context, kind models.Kind, in Input) (os.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !kind.Accepts(in.Filename) {
		return nil, fmt.Errorf("%w: %s is not a %s file", ErrUnsupportedExtension, in.Filename, kind)
	}
	if in.Assets == nil {
		return nil, fmt.Errorf("no asset writer for %s", in.Filename)
	}
	info, err := os.Stat(in.FullPath)
	if err != nil {
		return nil, failed("cannot stat %s: %v", in.FullPath, err)
	}
	if info.IsDir() {
		return nil, failed("%s is a directory", in.FullPath)
	}
	return info, nil
}

// fillBase sets the provenance fields every kind shares.
func fillBase(b *models.MediaBase, in Input, info os.FileInfo) {
	b.Filename = in.Filename
	b.FileSize = info.Size()
	b.CreatedAt = time.Now().Unix()
	b.MimeType = media.SniffMIME(in.FullPath)
}

func setAssets(b *models.MediaBase, assets media.DerivedAssets) {
	thumb, preview := assets.ThumbnailPath, assets.PreviewPath
	b.ThumbnailPath = &thumb
	b.PreviewPath = &preview
}

// locate stores coordinates and resolves them to a place. A failed lookup
// only leaves city, state and country empty.
func (d Deps) locate(ctx context.Context, b *models.MediaBase, lat, lon *float64) {
	if lat == nil || lon == nil {
		return
	}
	b.Latitude, b.Longitude = lat, lon
	if d.Geocoder == nil {
		return
	}
	place := d.Geocoder.Reverse(ctx, *lat, *lon)
	if place == nil {
		log.Printf("extract: reverse geocoding unavailable for %.5f,%.5f of %s", *lat, *lon, b.Filename)
		return
	}
	b.City, b.State, b.Country = place.City, place.State, place.Country
}

// embed computes one vector per frame and stores their mean. Frames that
// fail to embed are skipped; with none left the record stays unprocessed.
func (d Deps) embed(ctx context.Context, b *models.MediaBase, frames ...image.Image) {
	if d.Embedder == nil || len(frames) == 0 {
		return
	}
	vectors := make([][]float32, 0, len(frames))
	for _, frame := range frames {
		vec, err := d.Embedder.EmbedImage(ctx, frame)
		if err != nil {
			log.Printf("extract: WARNING embedding failed for %s: %v", b.Filename, err)
			continue
		}
		if err := embedding.CheckDimension(vec, d.Embedder.Dimension()); err != nil {
			log.Printf("extract: WARNING discarding embedding for %s: %v", b.Filename, err)
			continue
		}
		vectors = append(vectors, vec)
	}
	if len(vectors) == 0 {
		return
	}
	mean, err := embedding.Mean(vectors)
	if err != nil {
		log.Printf("extract: WARNING failed to average embeddings for %s: %v", b.Filename, err)
		return
	}
	b.SetEmbedding(mean)
}

// NewSet returns one extractor per kind.
func NewSet(deps Deps, video VideoTools, raw RawTools) map[models.Kind]Extractor {
	return map[models.Kind]Extractor{
		models.KindImage: NewImageExtractor(deps),
		models.KindVideo: NewVideoExtractor(deps, video),
		models.KindRaw:   NewRawExtractor(deps, raw),
	}
}
