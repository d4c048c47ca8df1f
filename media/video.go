package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// VideoProbe is what ffprobe reports about a clip. Zero or nil fields were
// not present in the container.
type VideoProbe struct {
	Width       int
	Height      int
	Duration    *float64
	FPS         *float64
	Codec       *string
	CreatedAt   *int64
	Latitude    *float64
	Longitude   *float64
	CameraMake  *string
	CameraModel *string
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType    string            `json:"codec_type"`
		CodecName    string            `json:"codec_name"`
		Width        int               `json:"width"`
		Height       int               `json:"height"`
		RFrameRate   string            `json:"r_frame_rate"`
		AvgFrameRate string            `json:"avg_frame_rate"`
		Duration     string            `json:"duration"`
		Tags         map[string]string `json:"tags"`
		SideDataList []struct {
			Rotation int `json:"rotation"`
		} `json:"side_data_list"`
	} `json:"streams"`
	Format struct {
		Duration string            `json:"duration"`
		Tags     map[string]string `json:"tags"`
	} `json:"format"`
}

// FFProbe runs the ffprobe binary against video files.
type FFProbe struct {
	Path string
}

func NewFFProbe(path string) *FFProbe {
	if path == "" {
		path = "ffprobe"
	}
	return &FFProbe{Path: path}
}

// Probe reads container and stream metadata from filePath.
func (f *FFProbe) Probe(ctx context.Context, filePath string) (*VideoProbe, error) {
	cmd := exec.CommandContext(ctx, f.Path,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe error: %w - %s", err, stderr.String())
	}
	return ParseFFProbe(stdout.Bytes())
}

// ParseFFProbe decodes `ffprobe -print_format json` output. Only the first
// video stream is considered.
func ParseFFProbe(data []byte) (*VideoProbe, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode ffprobe output: %w", err)
	}

	probe := &VideoProbe{}
	tags := lowerKeys(out.Format.Tags)

	found := false
	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		found = true
		probe.Width, probe.Height = s.Width, s.Height
		for _, sd := range s.SideDataList {
			if sd.Rotation == 90 || sd.Rotation == -90 || sd.Rotation == 270 || sd.Rotation == -270 {
				probe.Width, probe.Height = probe.Height, probe.Width
			}
		}
		if s.CodecName != "" {
			codec := s.CodecName
			probe.Codec = &codec
		}
		probe.FPS = parseFrameRate(s.RFrameRate)
		if probe.FPS == nil {
			probe.FPS = parseFrameRate(s.AvgFrameRate)
		}
		probe.Duration = parsePositive(s.Duration)
		for k, v := range lowerKeys(s.Tags) {
			if _, ok := tags[k]; !ok {
				tags[k] = v
			}
		}
		break
	}
	if !found {
		return nil, fmt.Errorf("no video stream found")
	}

	if d := parsePositive(out.Format.Duration); d != nil {
		probe.Duration = d
	}

	if ct, ok := tags["creation_time"]; ok {
		if t, err := time.Parse(time.RFC3339Nano, ct); err == nil {
			ts := t.Unix()
			probe.CreatedAt = &ts
		}
	}

	for _, key := range []string{"location", "com.apple.quicktime.location.iso6709", "location-eng"} {
		if v, ok := tags[key]; ok {
			if lat, lon, ok := ParseISO6709(v); ok {
				probe.Latitude, probe.Longitude = &lat, &lon
				break
			}
		}
	}

	probe.CameraMake = firstTag(tags, "com.apple.quicktime.make", "make", "manufacturer")
	probe.CameraModel = firstTag(tags, "com.apple.quicktime.model", "model")

	return probe, nil
}

func lowerKeys(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ToLower(k)] = v
	}
	return out
}

func firstTag(tags map[string]string, keys ...string) *string {
	for _, k := range keys {
		if v := strings.TrimSpace(tags[k]); v != "" {
			return &v
		}
	}
	return nil
}

func parsePositive(s string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// parseFrameRate handles the "30000/1001" rational form ffprobe prints.
func parseFrameRate(s string) *float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parsePositive(s)
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 || n <= 0 {
		return nil
	}
	fps := math.Round(n/d*100) / 100
	return &fps
}

var iso6709Re = regexp.MustCompile(`^([+-]\d+(?:\.\d+)?)([+-]\d+(?:\.\d+)?)`)

// ParseISO6709 parses the decimal-degree form "+37.7749-122.4194+010.000/".
func ParseISO6709(s string) (float64, float64, bool) {
	m := iso6709Re.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(m[1], 64)
	lon, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, false
	}
	return lat, lon, true
}

// SamplePositions returns the offsets in seconds used for embedding frames:
// 20, 40, 60 and 80 percent of the duration.
func SamplePositions(duration float64) []float64 {
	if duration <= 0 {
		return nil
	}
	fractions := []float64{0.2, 0.4, 0.6, 0.8}
	out := make([]float64, len(fractions))
	for i, f := range fractions {
		out[i] = duration * f
	}
	return out
}
