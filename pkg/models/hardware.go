package models

import "fmt"

// CapabilityVersion is a device feature level such as a CUDA compute capability (8.6).
type CapabilityVersion struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

// AtLeast reports whether v >= (major, minor).
func (v CapabilityVersion) AtLeast(major, minor int) bool {
	if v.Major != major {
		return v.Major > major
	}
	return v.Minor >= minor
}

func (v CapabilityVersion) Less(o CapabilityVersion) bool {
	return !v.AtLeast(o.Major, o.Minor)
}

func (v CapabilityVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Device is one accelerator discovered by a vendor probe.
type Device struct {
	ID              int               `json:"id"`
	Name            string            `json:"name"`
	Vendor          Vendor            `json:"vendor"`
	Capability      CapabilityVersion `json:"capability"`
	MemoryMB        uint64            `json:"memory_mb"`
	MaxSessions     int               `json:"max_sessions"`
	EncodeSupported bool              `json:"encode_supported"`
}

// HostInfo is static information about the machine gathered at startup.
type HostInfo struct {
	CPUModel      string `json:"cpu_model"`
	Threads       int    `json:"threads"`
	TotalMemoryMB uint64 `json:"total_memory_mb"`
}

// HardwareCapabilities aggregates which encoders are usable on this host.
// It is built once by the hardware registry and treated as read-only afterwards.
//
// Software is always a member of AvailableEncoders and PreferredEncoder is
// always a member of AvailableEncoders.
type HardwareCapabilities struct {
	AvailableEncoders  []EncoderKind           `json:"available_encoders"`
	Devices            []Device                `json:"devices,omitempty"`
	PreferredEncoder   EncoderKind             `json:"preferred_encoder"`
	MemoryUsageMB      uint64                  `json:"memory_usage_mb"`
	SpeedMultiplier    float64                 `json:"speed_multiplier"`
	EncoderPerformance map[EncoderKind]float64 `json:"encoder_performance,omitempty"`
	Host               HostInfo                `json:"host"`
}

// SoftwareOnlyCapabilities is the capability set used when hardware
// acceleration is disabled or detection was skipped.
func SoftwareOnlyCapabilities() HardwareCapabilities {
	return HardwareCapabilities{
		AvailableEncoders:  []EncoderKind{Software},
		PreferredEncoder:   Software,
		SpeedMultiplier:    1.0,
		EncoderPerformance: map[EncoderKind]float64{Software: 1.0},
	}
}

// Has reports whether kind is usable on this host.
func (c HardwareCapabilities) Has(kind EncoderKind) bool {
	for _, k := range c.AvailableEncoders {
		if k == kind {
			return true
		}
	}
	return false
}

// HasHardware reports whether at least one accelerated encoder is available.
func (c HardwareCapabilities) HasHardware() bool {
	for _, k := range c.AvailableEncoders {
		if k.IsHardware() {
			return true
		}
	}
	return false
}

// SpeedImprovement returns the measured or default speedup for kind.
func (c HardwareCapabilities) SpeedImprovement(kind EncoderKind) float64 {
	if perf, ok := c.EncoderPerformance[kind]; ok {
		return perf
	}
	return kind.DefaultSpeedMultiplier()
}

// BestDevice picks the encode-capable device with the highest capability,
// breaking ties on memory.
func (c HardwareCapabilities) BestDevice() (Device, bool) {
	var best Device
	found := false
	for _, d := range c.Devices {
		if !d.EncodeSupported {
			continue
		}
		if !found || best.Capability.Less(d.Capability) ||
			(best.Capability == d.Capability && d.MemoryMB > best.MemoryMB) {
			best = d
			found = true
		}
	}
	return best, found
}

// DevicesFor returns the devices belonging to vendor.
func (c HardwareCapabilities) DevicesFor(vendor Vendor) []Device {
	var out []Device
	for _, d := range c.Devices {
		if d.Vendor == vendor {
			out = append(out, d)
		}
	}
	return out
}

// ResolveEncoder picks the encoder for a new compression request.
// An explicit request is honoured only when available (or when software is
// forced); otherwise the preferred encoder is used.
func (c HardwareCapabilities) ResolveEncoder(requested *EncoderKind, forceSoftware bool) EncoderKind {
	if forceSoftware {
		return Software
	}
	if requested != nil && c.Has(*requested) {
		return *requested
	}
	if c.Has(c.PreferredEncoder) {
		return c.PreferredEncoder
	}
	return Software
}
