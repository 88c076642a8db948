package hardware

import (
	"context"

	"squeeze-worker/pkg/models"
)

const (
	pciVendorAMD   = "0x1002"
	pciVendorIntel = "0x8086"
)

// AMDProbe detects AMD VCE/VCN through lspci, the amdgpu driver or sysfs.
type AMDProbe struct{}

func (AMDProbe) Name() string { return "amd" }

func (AMDProbe) Probe(ctx context.Context, env Environment) (Contribution, error) {
	if !env.HasHWAccel("amf", "amd", "vaapi") {
		return Contribution{}, ErrNotPresent
	}
	if !env.lspciMentions(ctx, "amd") && !env.exists("proc/driver/amdgpu") && !env.pciVendorPresent(pciVendorAMD) {
		return Contribution{}, ErrNotPresent
	}
	return Contribution{
		Encoders: []models.EncoderKind{models.AmfH264, models.AmfH265},
		Devices:  []models.Device{{ID: 0, Name: "AMD GPU", Vendor: models.VendorAMD, EncodeSupported: true}},
	}, nil
}

// IntelProbe detects Intel QuickSync through lspci, sysfs or the i915 module.
type IntelProbe struct{}

func (IntelProbe) Name() string { return "intel" }

func (IntelProbe) Probe(ctx context.Context, env Environment) (Contribution, error) {
	if !env.HasHWAccel("qsv", "intel", "vaapi", "dxva2") {
		return Contribution{}, ErrNotPresent
	}
	if !env.lspciMentions(ctx, "intel") && !env.pciVendorPresent(pciVendorIntel) && !env.exists("sys/module/i915") {
		return Contribution{}, ErrNotPresent
	}
	return Contribution{
		Encoders: []models.EncoderKind{models.QsvH264, models.QsvH265},
		Devices:  []models.Device{{ID: 0, Name: "Intel GPU", Vendor: models.VendorIntel, EncodeSupported: true}},
	}, nil
}

var libvaPaths = []string{
	"usr/lib/x86_64-linux-gnu/libva.so.2",
	"usr/lib64/libva.so.2",
	"usr/lib/libva.so.2",
	"usr/lib/aarch64-linux-gnu/libva.so.2",
}

// PlatformProbe covers the OS native APIs: VAAPI on Linux and VideoToolbox
// on macOS.
type PlatformProbe struct{}

func (PlatformProbe) Name() string { return "platform" }

func (PlatformProbe) Probe(_ context.Context, env Environment) (Contribution, error) {
	switch env.GOOS {
	case "linux":
		if !env.HasHWAccel("vaapi") {
			return Contribution{}, ErrNotPresent
		}
		hasLib := false
		for _, p := range libvaPaths {
			if env.exists(p) {
				hasLib = true
				break
			}
		}
		if !hasLib || len(env.glob("dev/dri/renderD*")) == 0 {
			return Contribution{}, ErrNotPresent
		}
		return Contribution{Encoders: []models.EncoderKind{models.Vaapi}}, nil

	case "darwin":
		if !env.HasHWAccel("videotoolbox") || !env.exists("System/Library/Frameworks/VideoToolbox.framework") {
			return Contribution{}, ErrNotPresent
		}
		return Contribution{Encoders: []models.EncoderKind{models.VideoToolbox}}, nil
	}
	return Contribution{}, ErrNotPresent
}
