package media

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// OpenImage decodes an image file, applying the EXIF orientation.
func OpenImage(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return img, nil
}

// ImageDimensions reads width and height from the file header without
// decoding pixels.
func ImageDimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode config of %s: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}

// SniffMIME identifies the file type from its magic bytes. It returns nil
// when the type is unknown.
func SniffMIME(path string) *string {
	kind, err := filetype.MatchFile(path)
	if err != nil || kind == filetype.Unknown {
		return nil
	}
	mime := kind.MIME.Value
	return &mime
}
