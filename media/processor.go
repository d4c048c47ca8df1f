package media

import (
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"log"

	"github.com/disintegration/imaging"
	"golang.org/x/crypto/blake2b"
)

const (
	DefaultThumbnailMaxSize = 300
	DefaultPreviewMaxSize   = 1920

	ThumbnailJpegQuality = 85
	PreviewJpegQuality   = 90

	assetHashLength = 32
)

// Processor generates derived assets for a source file. It relies on a Store
// implementation for saving the results.
type Processor struct {
	store            Store
	thumbnailMaxSize int
	previewMaxSize   int
}

func NewProcessor(store Store, thumbnailMaxSize, previewMaxSize int) *Processor {
	if thumbnailMaxSize <= 0 {
		thumbnailMaxSize = DefaultThumbnailMaxSize
	}
	if previewMaxSize <= 0 {
		previewMaxSize = DefaultPreviewMaxSize
	}
	return &Processor{store: store, thumbnailMaxSize: thumbnailMaxSize, previewMaxSize: previewMaxSize}
}

// AssetBaseName derives the content-addressed asset name from the full
// source path: the first 32 hex characters of blake2b-256(fullPath).
// The same path always maps to the same name.
func AssetBaseName(fullPath string) string {
	sum := blake2b.Sum256([]byte(fullPath))
	return hex.EncodeToString(sum[:])[:assetHashLength]
}

func ThumbnailName(fullPath string) string {
	return AssetBaseName(fullPath) + ThumbnailSuffix
}

func PreviewName(fullPath string) string {
	return AssetBaseName(fullPath) + PreviewSuffix
}

// HasDerivedAssets reports whether both assets for fullPath already exist.
func (p *Processor) HasDerivedAssets(fullPath string) (DerivedAssets, bool) {
	thumb, okT := p.store.Exists(AssetTypeThumbnail, ThumbnailName(fullPath))
	preview, okP := p.store.Exists(AssetTypePreview, PreviewName(fullPath))
	if okT && okP {
		return DerivedAssets{ThumbnailPath: thumb, PreviewPath: preview}, true
	}
	return DerivedAssets{}, false
}

// EnsureDerivedAssets writes the thumbnail and preview of img under names
// derived from fullPath. An asset that already exists is not regenerated.
func (p *Processor) EnsureDerivedAssets(img image.Image, fullPath string) (DerivedAssets, error) {
	var out DerivedAssets

	thumb, err := p.ensure(img, AssetTypeThumbnail, ThumbnailName(fullPath), p.thumbnailMaxSize, ThumbnailJpegQuality)
	if err != nil {
		return DerivedAssets{}, fmt.Errorf("thumbnail for %s: %w", fullPath, err)
	}
	out.ThumbnailPath = thumb

	preview, err := p.ensure(img, AssetTypePreview, PreviewName(fullPath), p.previewMaxSize, PreviewJpegQuality)
	if err != nil {
		return DerivedAssets{}, fmt.Errorf("preview for %s: %w", fullPath, err)
	}
	out.PreviewPath = preview

	return out, nil
}

func (p *Processor) ensure(img image.Image, assetType AssetType, name string, maxSize, quality int) (string, error) {
	if rel, ok := p.store.Exists(assetType, name); ok {
		return rel, nil
	}
	if img == nil {
		return "", fmt.Errorf("no source image")
	}
	resized, err := FitLongestSide(img, maxSize)
	if err != nil {
		return "", err
	}

	reader, writer := io.Pipe()
	go func() {
		err := imaging.Encode(writer, resized, imaging.JPEG, imaging.JPEGQuality(quality))
		if err != nil {
			log.Printf("processor: Failed to encode %s: %v", assetType, err)
			writer.CloseWithError(fmt.Errorf("%s encoding failed: %w", assetType, err))
			return
		}
		writer.Close()
	}()

	rel, err := p.store.Save(assetType, name, reader)
	reader.Close()
	if err != nil {
		return "", fmt.Errorf("failed to save %s via store: %w", assetType, err)
	}
	return rel, nil
}

// FitLongestSide scales img down so that its longest side is maxSize. Images
// already within the bound are returned unchanged.
func FitLongestSide(img image.Image, maxSize int) (image.Image, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid image dimensions: %dx%d", w, h)
	}
	if w <= maxSize && h <= maxSize {
		return img, nil
	}
	if w >= h {
		return imaging.Resize(img, maxSize, 0, imaging.Lanczos), nil
	}
	return imaging.Resize(img, 0, maxSize, imaging.Lanczos), nil
}
