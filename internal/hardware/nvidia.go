package hardware

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"squeeze-worker/pkg/models"
)

var nvidiaSMIArgs = []string{
	"--query-gpu=index,name,compute_cap,memory.total,encoder.max_sessions",
	"--format=csv,noheader,nounits",
}

// NvidiaProbe finds NVENC capable GPUs through nvidia-smi.
type NvidiaProbe struct{}

func (NvidiaProbe) Name() string { return "nvidia" }

func (NvidiaProbe) Probe(ctx context.Context, env Environment) (Contribution, error) {
	if !env.HasHWAccel("cuda") {
		return Contribution{}, ErrNotPresent
	}

	var devices []models.Device
	out, err := env.Run(ctx, "nvidia-smi", nvidiaSMIArgs...)
	if err == nil {
		devices, err = ParseNvidiaSMI(string(out))
	}
	if err != nil {
		// ffmpeg sees CUDA but nvidia-smi is unusable: assume a Pascal class card
		if !env.Listed {
			return Contribution{}, fmt.Errorf("nvidia-smi: %w", err)
		}
		devices = []models.Device{{
			ID:              0,
			Name:            "Unknown NVIDIA GPU",
			Vendor:          models.VendorNVIDIA,
			Capability:      models.CapabilityVersion{Major: 6, Minor: 0},
			MemoryMB:        4096,
			MaxSessions:     2,
			EncodeSupported: true,
		}}
	}
	if len(devices) == 0 {
		return Contribution{}, ErrNotPresent
	}

	return Contribution{Encoders: NvencEncoders(devices), Devices: devices}, nil
}

// ParseNvidiaSMI parses the CSV produced by nvidia-smi with nvidiaSMIArgs.
// Lines with fewer than four fields are skipped.
func ParseNvidiaSMI(output string) ([]models.Device, error) {
	var devices []models.Device
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) < 4 {
			continue
		}

		id, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("failed to parse GPU index %q: %w", parts[0], err)
		}
		capability := parseComputeCapability(parts[2])
		memoryMB, _ := strconv.ParseUint(parts[3], 10, 64)

		sessions := estimateSessions(capability)
		if len(parts) > 4 && parts[4] != "" && parts[4] != "[Not Supported]" && parts[4] != "[N/A]" {
			if n, err := strconv.Atoi(parts[4]); err == nil {
				sessions = n
			} else {
				sessions = 2
			}
		}

		devices = append(devices, models.Device{
			ID:              id,
			Name:            parts[1],
			Vendor:          models.VendorNVIDIA,
			Capability:      capability,
			MemoryMB:        memoryMB,
			MaxSessions:     sessions,
			EncodeSupported: capability.Major >= 6,
		})
	}
	return devices, nil
}

func parseComputeCapability(s string) models.CapabilityVersion {
	major, minor, ok := strings.Cut(s, ".")
	if !ok {
		return models.CapabilityVersion{}
	}
	maj, err1 := strconv.Atoi(major)
	mnr, err2 := strconv.Atoi(minor)
	if err1 != nil || err2 != nil {
		return models.CapabilityVersion{}
	}
	return models.CapabilityVersion{Major: maj, Minor: mnr}
}

func estimateSessions(c models.CapabilityVersion) int {
	switch {
	case c.Major == 8 || c.Major == 9:
		return 5
	case c.Major == 7:
		return 3
	case c.Major == 6:
		return 2
	default:
		return 1
	}
}

// NvencEncoders lists the NVENC codecs supported by the best capable device.
func NvencEncoders(devices []models.Device) []models.EncoderKind {
	var best models.CapabilityVersion
	found := false
	for _, d := range devices {
		if d.EncodeSupported && (!found || best.Less(d.Capability)) {
			best = d.Capability
			found = true
		}
	}
	if !found {
		return nil
	}
	encoders := []models.EncoderKind{models.NvencH264}
	if best.AtLeast(5, 2) {
		encoders = append(encoders, models.NvencH265)
	}
	if best.AtLeast(8, 9) {
		encoders = append(encoders, models.NvencAV1)
	}
	return encoders
}
