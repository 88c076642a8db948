package main

import (
	"bytes"
	"strings"
	"testing"

	"squeeze-worker/pkg/models"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPresetsCommand(t *testing.T) {
	out, err := execute(t, "presets")
	if err != nil {
		t.Fatalf("presets: %v", err)
	}
	for _, want := range []string{"10 MB - Compact", "veryslow", "p7"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestEstimateCommandWithManualMetadata(t *testing.T) {
	out, err := execute(t, "estimate", "--duration", "60", "-s", "10", "-e", "nvenc-h264")
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	for _, want := range []string{"1920x1080", "NVIDIA NVENC H.264", "Video bitrate", "kbps"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestEstimateCommandRequiresDuration(t *testing.T) {
	if _, err := execute(t, "estimate"); err == nil {
		t.Fatal("expected an error without input or duration")
	}
}

func TestEstimateCommandRejectsUnknownEncoder(t *testing.T) {
	if _, err := execute(t, "estimate", "--duration", "30", "-e", "turbo"); err == nil {
		t.Fatal("expected an error for an unknown encoder")
	}
}

func TestBuildSettings(t *testing.T) {
	caps := models.HardwareCapabilities{
		AvailableEncoders: []models.EncoderKind{models.QsvH264, models.Software},
		PreferredEncoder:  models.QsvH264,
	}
	base := models.DefaultCompressionSettings()

	s, err := buildSettings(base, caps, compressOptions{sizeMB: 25, encoder: "nvenc-h264", deviceID: -1})
	if err != nil {
		t.Fatal(err)
	}
	if s.Encoder != models.QsvH264 || !s.HardwareAccel {
		t.Errorf("unavailable encoder should resolve to the preferred one, got %v", s.Encoder)
	}
	if s.TargetMB != 25 || s.DeviceID != nil {
		t.Errorf("settings = %+v", s)
	}

	s, err = buildSettings(base, caps, compressOptions{
		sizeMB: 5, encoder: "auto", preset: "slow", quality: "constant",
		deviceID: 1, noHW: true, noCompat: true, memoryOpt: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.Encoder != models.Software || s.HardwareAccel {
		t.Errorf("--no-hw should force software, got %v", s.Encoder)
	}
	if s.Preset != models.PresetSlow || s.Quality != models.QualityConstant {
		t.Errorf("preset/quality = %v/%v", s.Preset, s.Quality)
	}
	if s.DeviceID == nil || *s.DeviceID != 1 || s.CompatibilityMode || !s.MemoryOptimization {
		t.Errorf("settings = %+v", s)
	}

	if _, err := buildSettings(base, caps, compressOptions{sizeMB: 0, deviceID: -1}); err == nil {
		t.Error("expected an error for a zero target")
	}
	if _, err := buildSettings(base, caps, compressOptions{sizeMB: 5, preset: "warp", deviceID: -1}); err == nil {
		t.Error("expected an error for an unknown preset")
	}
}

func TestWriteCapabilities(t *testing.T) {
	caps := models.SoftwareOnlyCapabilities()
	caps.Devices = []models.Device{{
		ID: 0, Name: "RTX 3060", Vendor: models.VendorNVIDIA,
		Capability: models.CapabilityVersion{Major: 8, Minor: 6}, MemoryMB: 12288, EncodeSupported: true,
	}}
	var out bytes.Buffer
	writeCapabilities(&out, caps)
	for _, want := range []string{"libx264", "yes", "RTX 3060", "8.6", "12 GiB"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestProgressLine(t *testing.T) {
	line := progressLine(models.Progress{Fraction: 0.5, Encoder: models.Software, Pass: 2, Attempt: 2})
	if !strings.Contains(line, "50.0%") || !strings.Contains(line, "pass 2/2") || !strings.Contains(line, "attempt 2") {
		t.Errorf("line = %q", line)
	}
}
