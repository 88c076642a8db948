package models

import (
	"fmt"
	"strings"
)

// EncoderKind identifies one hardware or software encoding backend.
// The zero value is Software so an unset kind is always safe to run.
type EncoderKind int

const (
	Software EncoderKind = iota
	NvencH264
	NvencH265
	NvencAV1
	AmfH264
	AmfH265
	QsvH264
	QsvH265
	QsvAV1
	Vaapi
	VideoToolbox
)

// Vendor groups encoders by the hardware family that backs them.
type Vendor string

const (
	VendorNVIDIA   Vendor = "NVIDIA"
	VendorAMD      Vendor = "AMD"
	VendorIntel    Vendor = "Intel"
	VendorLinux    Vendor = "Linux"
	VendorApple    Vendor = "Apple"
	VendorSoftware Vendor = "Software"
)

// CodecFamily is the bitstream format an encoder produces.
type CodecFamily string

const (
	CodecH264 CodecFamily = "h264"
	CodecH265 CodecFamily = "h265"
	CodecAV1  CodecFamily = "av1"
)

type encoderInfo struct {
	name    string // CLI / config / JSON name
	display string
	ffmpeg  string // ffmpeg -c:v value
	vendor  Vendor
	family  CodecFamily
	speed   float64 // default speedup over libx264
}

// encoderTable is the fixed metadata for every EncoderKind. It is never mutated.
var encoderTable = [...]encoderInfo{
	Software:     {"software", "Software (CPU)", "libx264", VendorSoftware, CodecH264, 1.0},
	NvencH264:    {"nvenc-h264", "NVIDIA NVENC H.264", "h264_nvenc", VendorNVIDIA, CodecH264, 8.0},
	NvencH265:    {"nvenc-h265", "NVIDIA NVENC H.265/HEVC", "hevc_nvenc", VendorNVIDIA, CodecH265, 8.0},
	NvencAV1:     {"nvenc-av1", "NVIDIA NVENC AV1", "av1_nvenc", VendorNVIDIA, CodecAV1, 6.0},
	AmfH264:      {"amf-h264", "AMD VCE H.264", "h264_amf", VendorAMD, CodecH264, 5.5},
	AmfH265:      {"amf-h265", "AMD VCE H.265/HEVC", "hevc_amf", VendorAMD, CodecH265, 5.5},
	QsvH264:      {"qsv-h264", "Intel QuickSync H.264", "h264_qsv", VendorIntel, CodecH264, 7.0},
	QsvH265:      {"qsv-h265", "Intel QuickSync H.265/HEVC", "hevc_qsv", VendorIntel, CodecH265, 7.0},
	QsvAV1:       {"qsv-av1", "Intel QuickSync AV1", "av1_qsv", VendorIntel, CodecAV1, 5.0},
	Vaapi:        {"vaapi", "VAAPI (Linux)", "h264_vaapi", VendorLinux, CodecH264, 4.0},
	VideoToolbox: {"videotoolbox", "VideoToolbox (macOS)", "h264_videotoolbox", VendorApple, CodecH264, 6.0},
}

// AllEncoders lists every kind in declaration order.
func AllEncoders() []EncoderKind {
	kinds := make([]EncoderKind, len(encoderTable))
	for i := range encoderTable {
		kinds[i] = EncoderKind(i)
	}
	return kinds
}

func (k EncoderKind) info() encoderInfo {
	if k < 0 || int(k) >= len(encoderTable) {
		return encoderTable[Software]
	}
	return encoderTable[k]
}

// Valid reports whether k is one of the declared kinds.
func (k EncoderKind) Valid() bool {
	return k >= 0 && int(k) < len(encoderTable)
}

func (k EncoderKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("EncoderKind(%d)", int(k))
	}
	return k.info().name
}

// DisplayName is the human readable label shown in listings.
func (k EncoderKind) DisplayName() string { return k.info().display }

// FFmpegCodec is the value passed to ffmpeg's -c:v.
func (k EncoderKind) FFmpegCodec() string { return k.info().ffmpeg }

func (k EncoderKind) Vendor() Vendor { return k.info().vendor }

func (k EncoderKind) Codec() CodecFamily { return k.info().family }

// IsHardware reports whether the kind runs on dedicated acceleration hardware.
func (k EncoderKind) IsHardware() bool { return k != Software }

// DefaultSpeedMultiplier is the nominal speedup relative to software encoding
// when no device-specific measurement is available.
func (k EncoderKind) DefaultSpeedMultiplier() float64 { return k.info().speed }

// H264Variant returns the widely decodable H.264 encoder from the same vendor.
// Compatibility mode uses this regardless of the selected codec.
func (k EncoderKind) H264Variant() EncoderKind {
	switch k.Vendor() {
	case VendorNVIDIA:
		return NvencH264
	case VendorAMD:
		return AmfH264
	case VendorIntel:
		return QsvH264
	default:
		return k
	}
}

// ParseEncoderKind accepts the CLI names ("nvenc-h264", "qsv-av1", "software", ...)
// as well as ffmpeg codec names ("h264_nvenc", "libx264", ...).
func ParseEncoderKind(name string) (EncoderKind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, info := range encoderTable {
		if n == info.name || n == info.ffmpeg {
			return EncoderKind(i), nil
		}
	}
	switch n {
	case "cpu", "x264":
		return Software, nil
	}
	return Software, fmt.Errorf("unknown encoder %q", name)
}

func (k EncoderKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid encoder kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *EncoderKind) UnmarshalText(text []byte) error {
	parsed, err := ParseEncoderKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Preset is the speed/quality trade-off requested from the encoder.
type Preset int

const (
	PresetUltraFast Preset = iota
	PresetFaster
	PresetFast
	PresetMedium
	PresetSlow
	PresetSlower
	PresetHighest
)

var presetNames = [...]string{"ultrafast", "faster", "fast", "medium", "slow", "slower", "highest"}

func (p Preset) String() string {
	if p < 0 || int(p) >= len(presetNames) {
		return presetNames[PresetMedium]
	}
	return presetNames[p]
}

// SoftwarePreset is the libx264 -preset value.
func (p Preset) SoftwarePreset() string {
	if p == PresetHighest {
		return "veryslow"
	}
	return p.String()
}

// NvencPreset maps onto NVENC's p1..p7 scale.
func (p Preset) NvencPreset() string {
	if p < 0 || int(p) >= len(presetNames) {
		p = PresetMedium
	}
	return fmt.Sprintf("p%d", int(p)+1)
}

func ParsePreset(name string) (Preset, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, candidate := range presetNames {
		if n == candidate {
			return Preset(i), nil
		}
	}
	if n == "veryslow" {
		return PresetHighest, nil
	}
	return PresetMedium, fmt.Errorf("unknown preset %q", name)
}

func (p Preset) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Preset) UnmarshalText(text []byte) error {
	parsed, err := ParsePreset(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// QualityMode selects the rate-control family for hardware encoders.
type QualityMode int

const (
	QualityAuto QualityMode = iota
	QualityConstant
	QualityVariable
	QualityConstrained
)

var qualityNames = [...]string{"auto", "constant", "variable", "constrained"}

func (q QualityMode) String() string {
	if q < 0 || int(q) >= len(qualityNames) {
		return qualityNames[QualityAuto]
	}
	return qualityNames[q]
}

// NvencRateControl is the NVENC -rc value for the mode.
func (q QualityMode) NvencRateControl() string {
	switch q {
	case QualityConstant:
		return "constqp"
	case QualityConstrained:
		return "cbr"
	default:
		return "vbr"
	}
}

func ParseQualityMode(name string) (QualityMode, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, candidate := range qualityNames {
		if n == candidate {
			return QualityMode(i), nil
		}
	}
	return QualityAuto, fmt.Errorf("unknown quality mode %q", name)
}

func (q QualityMode) MarshalText() ([]byte, error) { return []byte(q.String()), nil }

func (q *QualityMode) UnmarshalText(text []byte) error {
	parsed, err := ParseQualityMode(string(text))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}
