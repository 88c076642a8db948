package fallback

import (
	"errors"
	"strings"

	"squeeze-worker/pkg/models"
)

// RecoveryStrategy is the coarse remedy suggested by an encoder error.
type RecoveryStrategy int

const (
	TryAlternative RecoveryStrategy = iota
	ReduceMemoryUsage
	ChangeDevice
	ChangeEncoder
	AvoidNvidia
	AvoidAmd
	AvoidIntel
	FallbackToSoftware
)

func (s RecoveryStrategy) String() string {
	switch s {
	case ReduceMemoryUsage:
		return "reduce-memory"
	case ChangeDevice:
		return "change-device"
	case ChangeEncoder:
		return "change-encoder"
	case AvoidNvidia:
		return "avoid-nvidia"
	case AvoidAmd:
		return "avoid-amd"
	case AvoidIntel:
		return "avoid-intel"
	case FallbackToSoftware:
		return "software"
	default:
		return "try-alternative"
	}
}

func (s RecoveryStrategy) Description() string {
	switch s {
	case ReduceMemoryUsage:
		return "Reduce memory usage and try again"
	case ChangeDevice:
		return "Try a different hardware device"
	case ChangeEncoder:
		return "Switch to different encoder"
	case AvoidNvidia:
		return "Avoid NVIDIA encoders temporarily"
	case AvoidAmd:
		return "Avoid AMD encoders temporarily"
	case AvoidIntel:
		return "Avoid Intel encoders temporarily"
	case FallbackToSoftware:
		return "Use software encoding"
	default:
		return "Try alternative approach"
	}
}

var (
	ErrNoAlternativeDevice  = errors.New("no alternative devices available")
	ErrNoAlternativeEncoder = errors.New("no alternative encoder for same vendor")
)

// Classify maps encoder error text onto a strategy. Categories are checked
// in order: memory, device, driver, codec, vendor, generic.
func Classify(errText string) RecoveryStrategy {
	text := strings.ToLower(errText)
	switch {
	case containsAny(text, "out of memory", "memory"):
		return ReduceMemoryUsage
	case containsAny(text, "device", "unavailable"):
		return ChangeDevice
	case containsAny(text, "driver", "initialization"):
		return FallbackToSoftware
	case containsAny(text, "codec", "unsupported"):
		return ChangeEncoder
	case containsAny(text, "nvenc", "cuda"):
		return AvoidNvidia
	case containsAny(text, "amf", "amd"):
		return AvoidAmd
	case containsAny(text, "qsv", "intel"):
		return AvoidIntel
	default:
		return TryAlternative
	}
}

// ClassifyFor refines Classify with knowledge of the failing encoder. A device
// error on a vendor with no second device becomes a vendor-avoidance strategy
// when the text names that vendor's stack.
func ClassifyFor(kind models.EncoderKind, errText string, caps models.HardwareCapabilities) RecoveryStrategy {
	strategy := Classify(errText)
	if strategy != ChangeDevice || len(caps.DevicesFor(kind.Vendor())) > 1 {
		return strategy
	}
	text := strings.ToLower(errText)
	if avoid, ok := vendorAvoidance(kind.Vendor()); ok && containsAny(text, vendorKeywords[kind.Vendor()]...) {
		return avoid
	}
	return strategy
}

var vendorKeywords = map[models.Vendor][]string{
	models.VendorNVIDIA: {"nvenc", "cuda"},
	models.VendorAMD:    {"amf", "amd"},
	models.VendorIntel:  {"qsv", "intel"},
}

func vendorAvoidance(v models.Vendor) (RecoveryStrategy, bool) {
	switch v {
	case models.VendorNVIDIA:
		return AvoidNvidia, true
	case models.VendorAMD:
		return AvoidAmd, true
	case models.VendorIntel:
		return AvoidIntel, true
	}
	return TryAlternative, false
}

var avoidLists = map[RecoveryStrategy][]models.EncoderKind{
	AvoidNvidia: {models.AmfH264, models.QsvH264, models.Vaapi, models.VideoToolbox, models.Software},
	AvoidAmd:    {models.NvencH264, models.QsvH264, models.Vaapi, models.VideoToolbox, models.Software},
	AvoidIntel:  {models.NvencH264, models.AmfH264, models.Vaapi, models.VideoToolbox, models.Software},
}

// Apply turns a strategy into a concrete encoder for the next attempt.
func Apply(strategy RecoveryStrategy, current models.EncoderKind, caps models.HardwareCapabilities) (models.EncoderKind, error) {
	switch strategy {
	case ReduceMemoryUsage:
		// the caller lowers memory pressure; the encoder stays
		return current, nil

	case ChangeDevice:
		if current.Vendor() == models.VendorNVIDIA && len(caps.DevicesFor(models.VendorNVIDIA)) > 1 {
			return current, nil
		}
		return current, ErrNoAlternativeDevice

	case ChangeEncoder:
		switch current {
		case models.NvencH265, models.NvencAV1, models.AmfH265, models.QsvH265, models.QsvAV1:
			return current.H264Variant(), nil
		}
		return current, ErrNoAlternativeEncoder

	case AvoidNvidia, AvoidAmd, AvoidIntel:
		for _, alt := range avoidLists[strategy] {
			if caps.Has(alt) {
				return alt, nil
			}
		}
		return models.Software, nil

	case FallbackToSoftware:
		return models.Software, nil

	default:
		if caps.PreferredEncoder != current {
			return caps.PreferredEncoder, nil
		}
		return models.Software, nil
	}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
