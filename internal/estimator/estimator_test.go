package estimator

import (
	"errors"
	"math"
	"testing"
	"time"

	"squeeze-worker/pkg/models"
)

func hd() models.VideoMetadata {
	return models.VideoMetadata{Width: 1920, Height: 1080, FPS: 30, DurationSeconds: 60, Codec: "h264"}
}

func TestBitrateForTargetHD10MB(t *testing.T) {
	got, err := BitrateForTarget(hd(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	unconstrained := 10.0 * 8 * 1024 * 1024 / 60 / 1024
	if got != 1199 {
		t.Fatalf("bitrate = %d, want 1199", got)
	}
	if got < 300 || float64(got) > unconstrained {
		t.Fatalf("bitrate %d outside [300, %.1f]", got, unconstrained)
	}
}

func TestBitrateForTargetFloor(t *testing.T) {
	cases := []struct {
		width int
		floor int
	}{
		{3840, 300},
		{1920, 300},
		{1280, 200},
		{640, 150},
	}
	for _, tc := range cases {
		meta := models.VideoMetadata{Width: tc.width, Height: tc.width * 9 / 16, FPS: 30, DurationSeconds: 3600}
		for _, target := range []float64{0.1, 1, 5} {
			got, err := BitrateForTarget(meta, target)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got < tc.floor {
				t.Fatalf("width %d target %.1f: bitrate %d below floor %d", tc.width, target, got, tc.floor)
			}
		}
	}
}

func TestBitrateForTargetMonotonic(t *testing.T) {
	for _, duration := range []float64{5, 60, 301, 900, 7200} {
		meta := hd()
		meta.DurationSeconds = duration
		prev := 0
		for target := 0.5; target <= 2000; target *= 1.3 {
			got, err := BitrateForTarget(meta, target)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got < prev {
				t.Fatalf("duration %.0f: bitrate decreased from %d to %d at target %.2f", duration, prev, got, target)
			}
			prev = got
		}
	}
}

func TestBitrateForTargetSaturatesHugeTargets(t *testing.T) {
	prev := 0
	for _, target := range []float64{1e6, 1e12, 1e18, 1e24, 1e300, math.Inf(1)} {
		got, err := BitrateForTarget(hd(), target)
		if err != nil {
			t.Fatalf("target %g: %v", target, err)
		}
		if got < prev || got > math.MaxInt32 {
			t.Fatalf("target %g: bitrate %d (previous %d)", target, got, prev)
		}
		prev = got
	}
	if prev != math.MaxInt32 {
		t.Fatalf("bitrate = %d, want saturation at %d", prev, math.MaxInt32)
	}
}

func TestBitrateForTargetRejectsInvalidInput(t *testing.T) {
	meta := hd()
	if _, err := BitrateForTarget(meta, 0); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
	meta.DurationSeconds = 0
	if _, err := BitrateForTarget(meta, 10); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
}

func TestAudioBitrateKbps(t *testing.T) {
	cases := map[float64]int{60: 128, 300: 128, 301: 112, 600: 112, 601: 96}
	for duration, want := range cases {
		if got := AudioBitrateKbps(duration); got != want {
			t.Errorf("AudioBitrateKbps(%v) = %d, want %d", duration, got, want)
		}
	}
}

func TestQualityScore(t *testing.T) {
	meta := hd()
	low := QualityScore(meta, 300)
	high := QualityScore(meta, 20000)
	if low >= high {
		t.Fatalf("quality should grow with bitrate: %.2f >= %.2f", low, high)
	}
	if high > 1 {
		t.Fatalf("quality score above 1: %.2f", high)
	}
	meta.Complexity = models.ComplexityLow
	if got := QualityScore(meta, 20000); got != 1 {
		t.Fatalf("low complexity at high bitrate should cap at 1, got %.3f", got)
	}
	meta.Complexity = models.ComplexityHigh
	if got := QualityScore(meta, 300); got >= low {
		t.Fatalf("high complexity should score below medium: %.3f >= %.3f", got, low)
	}
}

func TestEncodingTime(t *testing.T) {
	meta := hd()
	settings := models.DefaultCompressionSettings()
	software := EncodingTime(meta, settings)
	if software != 12*time.Second {
		t.Fatalf("software medium = %v, want 12s", software)
	}

	nvenc := EncodingTime(meta, settings.WithEncoder(models.NvencH264))
	if nvenc != 1500*time.Millisecond {
		t.Fatalf("nvenc medium = %v, want 1.5s", nvenc)
	}

	// speedup is ignored when acceleration is off
	settings.Encoder = models.NvencH264
	settings.HardwareAccel = false
	if got := EncodingTime(meta, settings); got != software {
		t.Fatalf("disabled acceleration = %v, want %v", got, software)
	}

	settings = models.DefaultCompressionSettings()
	settings.Preset = models.PresetUltraFast
	if got := EncodingTime(meta, settings); got != 6*time.Second {
		t.Fatalf("ultrafast = %v, want 6s", got)
	}
}

func TestEstimateAndRecommend(t *testing.T) {
	meta := hd()
	est, err := Estimate(meta, models.DefaultCompressionSettings())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if est.RecommendedBitrate != 1199 || est.EstimatedSizeMB != 10 {
		t.Fatalf("estimate = %+v", est)
	}

	rec, err := RecommendBitrate(meta, 10, models.NvencH265)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.BitrateKbps != 1079 {
		t.Fatalf("recommended = %d", rec.BitrateKbps)
	}
	if _, err := RecommendBitrate(meta, -1, models.Software); err == nil {
		t.Fatal("expected error for negative target")
	}
}
