package hardware

import "squeeze-worker/pkg/models"

const (
	baseMemoryMB    = 100
	hostMemoryShare = 4
)

// PerformanceTable estimates the speedup over software for each available
// encoder. NVENC scales with the best device's compute capability.
func PerformanceTable(caps models.HardwareCapabilities) map[models.EncoderKind]float64 {
	table := make(map[models.EncoderKind]float64, len(caps.AvailableEncoders))
	for _, k := range caps.AvailableEncoders {
		table[k] = encoderPerformance(k, caps)
	}
	return table
}

func encoderPerformance(k models.EncoderKind, caps models.HardwareCapabilities) float64 {
	switch k {
	case models.NvencH264, models.NvencH265:
		best, ok := bestNvidia(caps.DevicesFor(models.VendorNVIDIA))
		if !ok {
			return 8
		}
		switch best.Capability.Major {
		case 8, 9:
			return 12
		case 7:
			return 10
		case 6:
			return 8
		default:
			return 6
		}
	case models.NvencAV1:
		return 8
	case models.AmfH264, models.AmfH265:
		return 6
	case models.QsvH264, models.QsvH265:
		return 7.5
	case models.QsvAV1:
		return 6
	case models.Vaapi:
		return 4.5
	case models.VideoToolbox:
		return 7
	default:
		return 1
	}
}

// EstimateMemoryMB is the rough footprint of one encode: a fixed ffmpeg base
// plus a hardware dependent share, never more than a quarter of host RAM
// when that is known.
func EstimateMemoryMB(caps models.HardwareCapabilities) uint64 {
	nvidia := caps.DevicesFor(models.VendorNVIDIA)
	var hw uint64
	switch {
	case len(nvidia) > 0:
		hw = 256
		if best, ok := bestNvidia(nvidia); ok {
			hw = best.MemoryMB / 8
			if hw > 512 {
				hw = 512
			}
		}
	case caps.HasHardware():
		hw = 128
	default:
		hw = 256
	}
	total := baseMemoryMB + hw
	if limit := caps.Host.TotalMemoryMB / hostMemoryShare; limit > 0 && total > limit {
		total = limit
	}
	return total
}

func bestNvidia(devices []models.Device) (models.Device, bool) {
	return models.HardwareCapabilities{Devices: devices}.BestDevice()
}
