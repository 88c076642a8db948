package models

import (
	"errors"
	"fmt"
)

// ContentComplexity is a coarse motion/detail classification of the source.
type ContentComplexity int

const (
	ComplexityMedium ContentComplexity = iota
	ComplexityLow
	ComplexityHigh
)

func (c ContentComplexity) String() string {
	switch c {
	case ComplexityLow:
		return "low"
	case ComplexityHigh:
		return "high"
	default:
		return "medium"
	}
}

func (c ContentComplexity) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

var (
	ErrInvalidDuration   = errors.New("duration must be positive")
	ErrInvalidDimensions = errors.New("width and height must be positive")
)

// VideoMetadata describes one input file. It is produced once by the metadata
// probe and not modified afterwards.
type VideoMetadata struct {
	Width           int               `json:"width"`
	Height          int               `json:"height"`
	FPS             float64           `json:"fps"`
	DurationSeconds float64           `json:"duration_seconds"`
	BitrateKbps     int               `json:"bitrate_kbps,omitempty"` // 0 when the container does not report one
	Codec           string            `json:"codec"`
	Complexity      ContentComplexity `json:"complexity"`
}

// NewVideoMetadata builds metadata and derives its complexity.
func NewVideoMetadata(width, height int, fps, duration float64, bitrateKbps int, codec string) VideoMetadata {
	m := VideoMetadata{
		Width:           width,
		Height:          height,
		FPS:             fps,
		DurationSeconds: duration,
		BitrateKbps:     bitrateKbps,
		Codec:           codec,
	}
	m.Complexity = EstimateComplexity(m)
	return m
}

// EstimateComplexity classifies content by source bits per pixel per frame.
// Without a known bitrate the content is assumed to be of medium complexity.
func EstimateComplexity(m VideoMetadata) ContentComplexity {
	pixels := float64(m.Width * m.Height)
	if m.BitrateKbps <= 0 || pixels <= 0 || m.FPS <= 0 {
		return ComplexityMedium
	}
	bpp := float64(m.BitrateKbps) * 1000 / (pixels * m.FPS)
	switch {
	case bpp > 0.2:
		return ComplexityHigh
	case bpp > 0.1:
		return ComplexityMedium
	default:
		return ComplexityLow
	}
}

// Validate rejects metadata the estimator cannot work with.
func (m VideoMetadata) Validate() error {
	if !(m.DurationSeconds > 0) {
		return fmt.Errorf("%w: %v", ErrInvalidDuration, m.DurationSeconds)
	}
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, m.Width, m.Height)
	}
	return nil
}

func (m VideoMetadata) Megapixels() float64 {
	return float64(m.Width*m.Height) / 1_000_000
}

func (m VideoMetadata) IsHighResolution() bool {
	return m.Width >= 1920 && m.Height >= 1080
}

// TargetSize is one of the named output size presets, in megabytes.
type TargetSize int

const (
	Size1MB    TargetSize = 1
	Size5MB    TargetSize = 5
	Size10MB   TargetSize = 10
	Size30MB   TargetSize = 30
	Size50MB   TargetSize = 50
	Size100MB  TargetSize = 100
	Size250MB  TargetSize = 250
	Size500MB  TargetSize = 500
	Size1000MB TargetSize = 1000
)

// TargetSizes lists the presets from smallest to largest.
var TargetSizes = []TargetSize{Size1MB, Size5MB, Size10MB, Size30MB, Size50MB, Size100MB, Size250MB, Size500MB, Size1000MB}

func (t TargetSize) MB() float64 { return float64(t) }

func (t TargetSize) Label() string {
	switch t {
	case Size1MB:
		return "1 MB - Ultra Small"
	case Size5MB:
		return "5 MB - Small"
	case Size10MB:
		return "10 MB - Compact"
	case Size30MB:
		return "30 MB - Medium"
	case Size50MB:
		return "50 MB - Standard"
	case Size100MB:
		return "100 MB - Large"
	case Size250MB:
		return "250 MB - Extra Large"
	case Size500MB:
		return "500 MB - HD Quality"
	case Size1000MB:
		return "1 GB - Full Quality"
	}
	return fmt.Sprintf("%d MB", int(t))
}

func (t TargetSize) UseCase() string {
	switch t {
	case Size1MB:
		return "Social media, messaging"
	case Size5MB:
		return "Email attachments"
	case Size10MB:
		return "Quick sharing"
	case Size30MB:
		return "Presentations, demos"
	case Size50MB:
		return "General purpose"
	case Size100MB:
		return "HD streaming"
	case Size250MB:
		return "High quality sharing"
	case Size500MB:
		return "Professional use"
	case Size1000MB:
		return "Archive quality"
	}
	return "Custom"
}

// NearestTargetSize maps an arbitrary size onto the closest preset bucket.
func NearestTargetSize(mb float64) TargetSize {
	n := int(mb)
	switch {
	case n <= 3:
		return Size1MB
	case n <= 7:
		return Size5MB
	case n <= 20:
		return Size10MB
	case n <= 40:
		return Size30MB
	case n <= 75:
		return Size50MB
	case n <= 175:
		return Size100MB
	case n <= 375:
		return Size250MB
	case n <= 750:
		return Size500MB
	default:
		return Size1000MB
	}
}
