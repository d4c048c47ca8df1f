// Package framegrab decodes individual video frames with OpenCV.
package framegrab

import (
	"context"
	"fmt"
	"image"
	"log"

	"gocv.io/x/gocv"
)

// Grabber reads frames at given offsets from a video file.
type Grabber struct{}

func New() *Grabber {
	return &Grabber{}
}

// Frames seeks to each offset (seconds) and decodes one frame there.
// Offsets that cannot be read are skipped; an error is returned only when
// the file cannot be opened or no frame at all was decoded.
func (g *Grabber) Frames(ctx context.Context, filePath string, offsets []float64) ([]image.Image, error) {
	vc, err := gocv.VideoCaptureFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("framegrab: failed to open %s: %w", filePath, err)
	}
	defer vc.Close()

	mat := gocv.NewMat()
	defer mat.Close()

	frames := make([]image.Image, 0, len(offsets))
	for _, off := range offsets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vc.Set(gocv.VideoCapturePosMsec, off*1000)
		if ok := vc.Read(&mat); !ok || mat.Empty() {
			log.Printf("framegrab: WARNING no frame at %.2fs in %s", off, filePath)
			continue
		}
		img, err := mat.ToImage()
		if err != nil {
			log.Printf("framegrab: WARNING failed to convert frame at %.2fs in %s: %v", off, filePath, err)
			continue
		}
		frames = append(frames, img)
	}

	if len(frames) == 0 {
		return nil, fmt.Errorf("framegrab: no frames decoded from %s", filePath)
	}
	return frames, nil
}

// Duration estimates the clip length from frame count and rate, for files
// whose container carries no duration.
func (g *Grabber) Duration(filePath string) (float64, error) {
	vc, err := gocv.VideoCaptureFile(filePath)
	if err != nil {
		return 0, fmt.Errorf("framegrab: failed to open %s: %w", filePath, err)
	}
	defer vc.Close()

	fps := vc.Get(gocv.VideoCaptureFPS)
	count := vc.Get(gocv.VideoCaptureFrameCount)
	if fps <= 0 || count <= 0 {
		return 0, fmt.Errorf("framegrab: unknown duration for %s", filePath)
	}
	return count / fps, nil
}
