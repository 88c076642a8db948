// Package estimator turns a target output size into encoder parameters and
// predicts quality and encoding time. Everything here is pure arithmetic.
package estimator

import (
	"errors"
	"fmt"
	"math"
	"time"

	"squeeze-worker/pkg/models"
)

const (
	bitsPerMB       = 8 * 1024 * 1024
	overheadRatio   = 0.01 // container overhead share of the bits budget
	safetyMargin    = 0.98
	sizeConfidence  = 0.90
	realtimeFactor  = 0.2 // software encodes at roughly 5x real time
	defaultEncoding = 0.85
)

var (
	ErrInvalidTarget   = errors.New("target size must be positive")
	ErrInvalidDuration = errors.New("duration must be positive")
)

// Estimation is the prediction for one input/settings pair.
type Estimation struct {
	EstimatedSizeMB    float64
	Confidence         float64
	EncodingTime       time.Duration
	QualityScore       float64
	RecommendedBitrate int // kbps
}

// Recommendation is a bitrate adjusted for a specific encoder's efficiency.
type Recommendation struct {
	BitrateKbps      int
	EstimatedQuality float64
	SizeAchievableMB float64
	Confidence       float64
}

// encoder efficiency relative to libx264 at the same bitrate
var encoderEfficiency = map[models.EncoderKind]float64{
	models.NvencH264:    0.85,
	models.NvencH265:    0.90,
	models.NvencAV1:     0.95,
	models.AmfH264:      0.80,
	models.AmfH265:      0.85,
	models.QsvH264:      0.82,
	models.QsvH265:      0.87,
	models.QsvAV1:       0.92,
	models.Vaapi:        0.80,
	models.VideoToolbox: 0.83,
	models.Software:     1.00,
}

// AudioBitrateKbps is the audio allowance for a clip: 128 kbps up to five
// minutes, 112 up to ten, 96 beyond.
func AudioBitrateKbps(durationSeconds float64) int {
	switch {
	case durationSeconds <= 300:
		return 128
	case durationSeconds <= 600:
		return 112
	default:
		return 96
	}
}

// MinimumBitrateKbps is the resolution dependent floor below which output
// quality collapses.
func MinimumBitrateKbps(width int) int {
	switch {
	case width >= 1920:
		return 300
	case width >= 1280:
		return 200
	default:
		return 150
	}
}

// BitrateForTarget returns the video bitrate in kbps that keeps the output at
// or under targetMB once audio and container overhead are accounted for.
func BitrateForTarget(meta models.VideoMetadata, targetMB float64) (int, error) {
	if !(meta.DurationSeconds > 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidDuration, meta.DurationSeconds)
	}
	if !(targetMB > 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidTarget, targetMB)
	}

	totalBits := targetMB * bitsPerMB
	audioBits := float64(AudioBitrateKbps(meta.DurationSeconds)) * 1024 * meta.DurationSeconds
	overheadBits := totalBits * overheadRatio

	videoKbps := (totalBits - audioBits - overheadBits) / meta.DurationSeconds / 1024
	bitrate := 0
	if videoKbps > 0 {
		bitrate = int(math.Min(videoKbps*safetyMargin, math.MaxInt32))
	}
	if floor := MinimumBitrateKbps(meta.Width); bitrate < floor {
		bitrate = floor
	}
	return bitrate, nil
}

// QualityScore maps bits per pixel per frame onto a 0..1 score, nudged by
// content complexity.
func QualityScore(meta models.VideoMetadata, bitrateKbps int) float64 {
	pixelsPerSecond := float64(meta.Width*meta.Height) * meta.FPS
	if pixelsPerSecond <= 0 {
		return 0
	}
	bpp := float64(bitrateKbps) * 1024 / pixelsPerSecond

	var base float64
	switch {
	case bpp >= 0.20:
		base = 0.95
	case bpp >= 0.15:
		base = 0.85
	case bpp >= 0.10:
		base = 0.75
	case bpp >= 0.07:
		base = 0.60
	case bpp >= 0.04:
		base = 0.45
	default:
		base = 0.25
	}

	factor := 1.0
	switch meta.Complexity {
	case models.ComplexityLow:
		factor = 1.1
	case models.ComplexityHigh:
		factor = 0.9
	}
	score := base * factor
	if score > 1 {
		score = 1
	}
	return score
}

// hardwareSpeedup is the throughput gain applied to the software baseline.
func hardwareSpeedup(kind models.EncoderKind) float64 {
	switch kind {
	case models.NvencH264, models.NvencH265:
		return 8
	case models.NvencAV1:
		return 6
	case models.AmfH264, models.AmfH265:
		return 5
	case models.QsvH264, models.QsvH265:
		return 6
	case models.VideoToolbox:
		return 4
	case models.Vaapi:
		return 3
	default:
		return 1
	}
}

func presetFactor(p models.Preset) float64 {
	switch p {
	case models.PresetUltraFast:
		return 0.5
	case models.PresetFaster:
		return 0.7
	case models.PresetFast:
		return 0.85
	case models.PresetSlow:
		return 1.3
	case models.PresetSlower:
		return 1.8
	case models.PresetHighest:
		return 2.5
	default:
		return 1.0
	}
}

// EncodingTime predicts wall-clock encoding time. The hardware speedup only
// applies when acceleration is enabled in settings.
func EncodingTime(meta models.VideoMetadata, settings models.CompressionSettings) time.Duration {
	seconds := meta.DurationSeconds * realtimeFactor
	if settings.HardwareAccel {
		seconds /= hardwareSpeedup(settings.Encoder)
	}
	seconds *= presetFactor(settings.Preset)
	if seconds < 0 {
		seconds = 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// Estimate predicts size, time and quality for compressing meta with settings.
func Estimate(meta models.VideoMetadata, settings models.CompressionSettings) (Estimation, error) {
	bitrate, err := BitrateForTarget(meta, settings.TargetMB)
	if err != nil {
		return Estimation{}, err
	}
	return Estimation{
		EstimatedSizeMB:    settings.TargetMB,
		Confidence:         sizeConfidence,
		EncodingTime:       EncodingTime(meta, settings),
		QualityScore:       QualityScore(meta, bitrate),
		RecommendedBitrate: bitrate,
	}, nil
}

// EncoderEfficiency is how much of the software bitrate an encoder needs
// for comparable quality.
func EncoderEfficiency(kind models.EncoderKind) float64 {
	if e, ok := encoderEfficiency[kind]; ok {
		return e
	}
	return defaultEncoding
}

// RecommendBitrate scales the target bitrate by the encoder's efficiency.
func RecommendBitrate(meta models.VideoMetadata, targetMB float64, kind models.EncoderKind) (Recommendation, error) {
	bitrate, err := BitrateForTarget(meta, targetMB)
	if err != nil {
		return Recommendation{}, err
	}
	adjusted := int(float64(bitrate) * EncoderEfficiency(kind))
	return Recommendation{
		BitrateKbps:      adjusted,
		EstimatedQuality: QualityScore(meta, adjusted),
		SizeAchievableMB: targetMB,
		Confidence:       sizeConfidence,
	}, nil
}
