package extract

import (
	"context"
	"image"
	"log"
	"os"

	"github.com/camden-git/photovault/media"
	"github.com/camden-git/photovault/media/framegrab"
	"github.com/camden-git/photovault/models"
)

// VideoTools probes containers and decodes frames.
type VideoTools interface {
	Probe(ctx context.Context, filePath string) (*media.VideoProbe, error)
	Frames(ctx context.Context, filePath string, offsets []float64) ([]image.Image, error)
}

// ffTools pairs ffprobe for metadata with OpenCV for frames.
type ffTools struct {
	probe *media.FFProbe
	grab  *framegrab.Grabber
}

func NewVideoTools(ffprobePath string) VideoTools {
	return &ffTools{probe: media.NewFFProbe(ffprobePath), grab: framegrab.New()}
}

func (t *ffTools) Probe(ctx context.Context, filePath string) (*media.VideoProbe, error) {
	probe, err := t.probe.Probe(ctx, filePath)
	if err != nil {
		return nil, err
	}
	if probe.Duration == nil {
		if d, err := t.grab.Duration(filePath); err == nil {
			probe.Duration = &d
		}
	}
	return probe, nil
}

func (t *ffTools) Frames(ctx context.Context, filePath string, offsets []float64) ([]image.Image, error) {
	return t.grab.Frames(ctx, filePath, offsets)
}

// VideoExtractor handles video clips. The embedding is the mean over frames
// sampled at 20/40/60/80% of the duration.
type VideoExtractor struct {
	deps  Deps
	tools VideoTools
}

func NewVideoExtractor(deps Deps, tools VideoTools) *VideoExtractor {
	return &VideoExtractor{deps: deps, tools: tools}
}

func (e *VideoExtractor) Kind() models.Kind { return models.KindVideo }

func (e *VideoExtractor) Extract(ctx context.Context, in Input) (models.MediaRecord, error) {
	info, err := checkInput(ctx, models.KindVideo, in)
	if err != nil {
		return nil, err
	}

	probe, err := e.tools.Probe(ctx, in.FullPath)
	if err != nil {
		return nil, failed("probe %s: %v", in.FullPath, err)
	}
	if probe.Width <= 0 || probe.Height <= 0 {
		return nil, failed("%s has no dimensions", in.FullPath)
	}

	offsets := []float64{0}
	if probe.Duration != nil {
		offsets = media.SamplePositions(*probe.Duration)
	}
	frames, err := e.tools.Frames(ctx, in.FullPath, offsets)
	if err != nil || len(frames) == 0 {
		if assets, ok := in.Assets.HasDerivedAssets(in.FullPath); ok {
			log.Printf("extract: WARNING no frames from %s, keeping existing assets: %v", in.FullPath, err)
			return e.record(ctx, in, info, probe, assets, nil), nil
		}
		return nil, failed("no frames from %s: %v", in.FullPath, err)
	}

	assets, err := in.Assets.EnsureDerivedAssets(frames[0], in.FullPath)
	if err != nil {
		return nil, failed("no usable asset for %s: %v", in.FullPath, err)
	}

	return e.record(ctx, in, info, probe, assets, frames), nil
}

func (e *VideoExtractor) record(ctx context.Context, in Input, info os.FileInfo, probe *media.VideoProbe, assets media.DerivedAssets, frames []image.Image) *models.Video {
	rec := &models.Video{
		Duration: probe.Duration,
		FPS:      probe.FPS,
		Codec:    probe.Codec,
	}
	b := rec.Base()
	fillBase(b, in, info)
	b.SetDimensions(probe.Width, probe.Height)
	b.CaptureDate = probe.CreatedAt
	b.CameraMake, b.CameraModel = probe.CameraMake, probe.CameraModel
	setAssets(b, assets)

	e.deps.locate(ctx, b, probe.Latitude, probe.Longitude)
	e.deps.embed(ctx, b, frames...)

	log.Printf("extract: video %s %dx%d frames=%d processed=%t", in.Filename, b.Width, b.Height, len(frames), b.IsProcessed)
	return rec
}
