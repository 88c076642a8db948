package transcoder

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"squeeze-worker/pkg/models"
)

// MetadataProber reads the properties of an input video.
type MetadataProber interface {
	Probe(ctx context.Context, path string) (models.VideoMetadata, error)
}

// FFprobe is the MetadataProber backed by the ffprobe binary.
type FFprobe struct {
	Path string
}

func (p FFprobe) Probe(ctx context.Context, path string) (models.VideoMetadata, error) {
	bin := p.Path
	if bin == "" {
		bin = "ffprobe"
	}
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name,width,height,r_frame_rate,avg_frame_rate,bit_rate:format=duration,bit_rate",
		"-of", "json",
		path,
	}
	output, err := exec.CommandContext(ctx, bin, args...).Output()
	if err != nil {
		return models.VideoMetadata{}, fmt.Errorf("%w: ffprobe: %v", ErrMetadataProbe, err)
	}
	return ParseProbeOutput(output)
}

type probeResult struct {
	Streams []struct {
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		BitRate      string `json:"bit_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}

// ParseProbeOutput converts ffprobe JSON into validated VideoMetadata.
func ParseProbeOutput(output []byte) (models.VideoMetadata, error) {
	var res probeResult
	if err := json.Unmarshal(output, &res); err != nil {
		return models.VideoMetadata{}, fmt.Errorf("%w: decode ffprobe output: %v", ErrMetadataProbe, err)
	}
	if len(res.Streams) == 0 {
		return models.VideoMetadata{}, fmt.Errorf("%w: no video stream", ErrMetadataProbe)
	}
	stream := res.Streams[0]

	duration, err := strconv.ParseFloat(res.Format.Duration, 64)
	if err != nil {
		return models.VideoMetadata{}, fmt.Errorf("%w: duration %q: %v", ErrMetadataProbe, res.Format.Duration, err)
	}

	fps := ParseFrameRate(stream.AvgFrameRate)
	if fps <= 0 {
		fps = ParseFrameRate(stream.RFrameRate)
	}

	bitrate := parseKbps(stream.BitRate)
	if bitrate == 0 {
		bitrate = parseKbps(res.Format.BitRate)
	}

	meta := models.NewVideoMetadata(stream.Width, stream.Height, fps, duration, bitrate, stream.CodecName)
	if err := meta.Validate(); err != nil {
		return models.VideoMetadata{}, fmt.Errorf("%w: %v", ErrMetadataProbe, err)
	}
	return meta, nil
}

// ParseFrameRate parses "30000/1001" or "25". Unparseable input yields 0.
func ParseFrameRate(s string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func parseKbps(bps string) int {
	v, err := strconv.ParseFloat(bps, 64)
	if err != nil || v <= 0 {
		return 0
	}
	return int(v / 1000)
}
