package transcoder

import (
	"runtime"
	"strconv"

	"squeeze-worker/pkg/models"
)

const vaapiDevice = "/dev/dri/renderD128"

// Pass selects the ffmpeg invocation shape. The zero value is a single
// pass encode.
type Pass struct {
	Number    int // 0, 1 or 2
	LogPrefix string
}

// EncodeParams is everything needed to build one ffmpeg command line.
type EncodeParams struct {
	Input      string
	Output     string
	Settings   models.CompressionSettings
	VideoKbps  int
	AudioKbps  int
	Pass       Pass
	NullDevice string // defaults to the platform null sink
}

// BuildArgs constructs the ffmpeg arguments for p.
func BuildArgs(p EncodeParams) []string {
	s := p.Settings
	enc := s.EffectiveEncoder()

	args := []string{"-hide_banner"}
	if s.HardwareAccel {
		args = append(args, hwaccelArgs(enc, s.DeviceID)...)
	}

	kbps := strconv.Itoa(p.VideoKbps) + "k"
	args = append(args,
		"-i", p.Input,
		"-y",
		"-c:v", enc.FFmpegCodec(),
		"-b:v", kbps,
		"-maxrate", kbps,
		"-bufsize", strconv.Itoa(2*p.VideoKbps)+"k",
	)
	args = append(args, encoderArgs(enc, s)...)
	args = append(args, "-pix_fmt", "yuv420p")
	if s.MemoryOptimization {
		args = append(args, "-threads", "1")
	}

	switch p.Pass.Number {
	case 1:
		null := p.NullDevice
		if null == "" {
			null = nullDevice()
		}
		return append(args,
			"-pass", "1",
			"-passlogfile", p.Pass.LogPrefix,
			"-an",
			"-f", "null", null,
		)
	case 2:
		args = append(args, "-pass", "2", "-passlogfile", p.Pass.LogPrefix)
	}

	return append(args,
		"-c:a", "aac",
		"-b:a", strconv.Itoa(p.AudioKbps)+"k",
		"-ac", "2",
		"-movflags", "+faststart",
		p.Output,
	)
}

func hwaccelArgs(enc models.EncoderKind, deviceID *int) []string {
	switch enc.Vendor() {
	case models.VendorNVIDIA:
		args := []string{"-hwaccel", "cuda"}
		if deviceID != nil {
			args = append(args, "-hwaccel_device", strconv.Itoa(*deviceID))
		}
		return args
	case models.VendorLinux:
		return []string{"-hwaccel", "vaapi", "-hwaccel_device", vaapiDevice}
	case models.VendorApple:
		return []string{"-hwaccel", "videotoolbox"}
	}
	return nil
}

// encoderArgs are the preset and rate-control flags of each backend.
func encoderArgs(enc models.EncoderKind, s models.CompressionSettings) []string {
	switch enc.Vendor() {
	case models.VendorSoftware:
		return []string{"-preset", s.Preset.SoftwarePreset()}
	case models.VendorNVIDIA:
		return []string{
			"-preset", s.Preset.NvencPreset(),
			"-rc", s.Quality.NvencRateControl(),
			"-multipass", "fullres",
			"-cq", "0",
		}
	case models.VendorAMD:
		return []string{"-quality", "speed", "-rc", "vbr_latency"}
	case models.VendorIntel:
		return []string{"-preset", "medium", "-look_ahead", "1"}
	case models.VendorLinux:
		return []string{"-profile", "main", "-level", "4.0"}
	case models.VendorApple:
		return []string{"-profile", "main"}
	}
	return nil
}

// UsesTwoPass reports whether s is encoded in two passes. Only the software
// encoder supports it.
func UsesTwoPass(s models.CompressionSettings) bool {
	return s.EffectiveEncoder() == models.Software
}

func nullDevice() string {
	if runtime.GOOS == "windows" {
		return "NUL"
	}
	return "/dev/null"
}
