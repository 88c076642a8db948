package models

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
)

// CompressionSettings is the per-request encoding configuration. The encoder
// may be swapped between attempts of a single request; nothing else changes.
type CompressionSettings struct {
	TargetMB           float64     `json:"target_mb"`
	Encoder            EncoderKind `json:"encoder"`
	HardwareAccel      bool        `json:"hardware_accel"`
	DeviceID           *int        `json:"device_id,omitempty"`
	Preset             Preset      `json:"preset"`
	Quality            QualityMode `json:"quality"`
	MemoryOptimization bool        `json:"memory_optimization"`
	// CompatibilityMode forces the H.264 variant of the chosen backend.
	CompatibilityMode bool `json:"compatibility_mode"`
}

// DefaultCompressionSettings mirrors the CLI defaults: 10 MB, software,
// medium preset, compatibility mode on.
func DefaultCompressionSettings() CompressionSettings {
	return CompressionSettings{
		TargetMB:          Size10MB.MB(),
		Encoder:           Software,
		Preset:            PresetMedium,
		Quality:           QualityAuto,
		CompatibilityMode: true,
	}
}

// WithEncoder returns a copy running on kind. Hardware acceleration follows the kind.
func (s CompressionSettings) WithEncoder(kind EncoderKind) CompressionSettings {
	s.Encoder = kind
	s.HardwareAccel = kind.IsHardware()
	return s
}

// EffectiveEncoder is the encoder actually invoked once compatibility mode is applied.
func (s CompressionSettings) EffectiveEncoder() EncoderKind {
	if s.CompatibilityMode {
		return s.Encoder.H264Variant()
	}
	return s.Encoder
}

// CompressionResult describes one successful compression. Sizes are in bytes.
type CompressionResult struct {
	InputPath           string        `json:"input_path"`
	OutputPath          string        `json:"output_path"`
	InputSize           int64         `json:"input_size"`
	OutputSize          int64         `json:"output_size"`
	CompressionRatio    float64       `json:"compression_ratio"`
	EncodingTime        time.Duration `json:"encoding_time"`
	EncoderUsed         EncoderKind   `json:"encoder_used"`
	HardwareAccelerated bool          `json:"hardware_accelerated"`
	Attempts            int           `json:"attempts"`
	TwoPass             bool          `json:"two_pass"`
}

func (r CompressionResult) Summary() string {
	accel := "software"
	if r.HardwareAccelerated {
		accel = "hardware"
	}
	return fmt.Sprintf("Compressed %s (%s) -> %s (%s) in %.1fs using %s (%s compression, %s encoder)",
		filepath.Base(r.InputPath), humanize.IBytes(uint64(r.InputSize)),
		filepath.Base(r.OutputPath), humanize.IBytes(uint64(r.OutputSize)),
		r.EncodingTime.Seconds(), r.EncoderUsed.DisplayName(),
		FormatRatio(r.CompressionRatio), accel)
}

// Progress is one update from a running compression. Fraction is in [0,1]
// across the whole request (both passes for two-pass encodes).
type Progress struct {
	Fraction float64       `json:"fraction"`
	ETA      time.Duration `json:"eta"`
	HasETA   bool          `json:"has_eta"`
	Pass     int           `json:"pass"`
	Attempt  int           `json:"attempt"`
	Encoder  EncoderKind   `json:"encoder"`
}

// FormatRatio renders a compression ratio as "2.0:1" or "1:2.0".
func FormatRatio(ratio float64) string {
	if ratio <= 0 {
		return "n/a"
	}
	if ratio >= 1 {
		return fmt.Sprintf("%.1f:1", ratio)
	}
	return fmt.Sprintf("1:%.1f", 1/ratio)
}

// FormatDuration renders seconds as "30.0s", "1m 30.0s" or "1h 1m 0.0s".
func FormatDuration(seconds float64) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%.1fs", seconds)
	case seconds < 3600:
		minutes := int(seconds / 60)
		return fmt.Sprintf("%dm %.1fs", minutes, seconds-float64(minutes*60))
	default:
		hours := int(seconds / 3600)
		rest := seconds - float64(hours*3600)
		minutes := int(rest / 60)
		return fmt.Sprintf("%dh %dm %.1fs", hours, minutes, rest-float64(minutes*60))
	}
}

// ReductionPercent is how much smaller the output is, 0 when input is empty.
func ReductionPercent(inputSize, outputSize int64) float64 {
	if inputSize <= 0 {
		return 0
	}
	reduction := inputSize - outputSize
	if reduction < 0 {
		reduction = 0
	}
	return float64(reduction) / float64(inputSize) * 100
}
