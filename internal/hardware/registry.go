package hardware

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"

	"squeeze-worker/internal/logging"
	"squeeze-worker/internal/metrics"
	"squeeze-worker/pkg/models"
)

// preferredOrder ranks encoders by quality/speed balance.
var preferredOrder = []models.EncoderKind{
	models.NvencH265,
	models.NvencH264,
	models.QsvH265,
	models.QsvH264,
	models.VideoToolbox,
	models.AmfH265,
	models.AmfH264,
	models.Vaapi,
	models.NvencAV1,
	models.QsvAV1,
	models.Software,
}

// Options configures a Registry. Zero values pick the production defaults.
type Options struct {
	FFmpegPath    string
	EnableHWAccel bool
	ProbeTimeout  time.Duration
	Probes        []Probe
	Run           CommandRunner
	Root          string
	GOOS          string
	// HostInfo overrides the gopsutil lookup.
	HostInfo func(ctx context.Context) models.HostInfo
}

// Registry builds HardwareCapabilities once and caches the result.
type Registry struct {
	opts Options
	log  *logrus.Entry

	once sync.Once
	caps models.HardwareCapabilities
}

func NewRegistry(opts Options, logger *logrus.Logger) *Registry {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 10 * time.Second
	}
	if opts.Probes == nil {
		opts.Probes = []Probe{NvidiaProbe{}, AMDProbe{}, IntelProbe{}, PlatformProbe{}}
	}
	if opts.Run == nil {
		opts.Run = ExecRunner
	}
	if opts.Root == "" {
		opts.Root = "/"
	}
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}
	if opts.HostInfo == nil {
		opts.HostInfo = HostInfo
	}
	return &Registry{opts: opts, log: logging.Component(logger, "hardware")}
}

// Capabilities runs detection on first use. Hardware doesn't change at
// runtime so later calls return the cached value.
func (r *Registry) Capabilities(ctx context.Context) models.HardwareCapabilities {
	r.once.Do(func() {
		r.caps = r.Detect(ctx)
	})
	return r.caps
}

// Detect queries every probe and aggregates the results. It never fails:
// the worst case is a software-only capability set.
func (r *Registry) Detect(ctx context.Context) models.HardwareCapabilities {
	host := r.opts.HostInfo(ctx)
	if !r.opts.EnableHWAccel {
		r.log.Info("Hardware acceleration disabled, using software encoding only")
		caps := models.SoftwareOnlyCapabilities()
		caps.Host = host
		caps.MemoryUsageMB = EstimateMemoryMB(caps)
		return caps
	}

	env := r.environment(ctx)
	var encoders []models.EncoderKind
	var devices []models.Device

	for _, probe := range r.opts.Probes {
		pctx, cancel := context.WithTimeout(ctx, r.opts.ProbeTimeout)
		contrib, err := probe.Probe(pctx, env)
		cancel()

		entry := r.log.WithField("probe", probe.Name())
		switch {
		case errors.Is(err, ErrNotPresent):
			entry.Debug("No hardware found")
			continue
		case err != nil:
			metrics.HardwareProbeErrorsTotal.WithLabelValues(probe.Name()).Inc()
			entry.WithError(err).Warn("Hardware probe failed")
			continue
		}
		entry.WithFields(logrus.Fields{
			"encoders": len(contrib.Encoders),
			"devices":  len(contrib.Devices),
		}).Info("Hardware probe succeeded")
		encoders = append(encoders, contrib.Encoders...)
		devices = append(devices, contrib.Devices...)
	}

	if env.Listed {
		encoders = filterByFFmpeg(encoders, env.Encoders, r.log)
	}

	caps := Aggregate(encoders, devices)
	caps.Host = host
	caps.MemoryUsageMB = EstimateMemoryMB(caps)

	for _, k := range caps.AvailableEncoders {
		metrics.EncodersAvailable.WithLabelValues(k.String(), string(k.Vendor())).Set(1)
	}
	r.log.WithFields(logrus.Fields{
		"encoders":  encoderNames(caps.AvailableEncoders),
		"preferred": caps.PreferredEncoder.String(),
		"memory_mb": caps.MemoryUsageMB,
		"speed":     caps.SpeedMultiplier,
	}).Info("Hardware detection complete")
	return caps
}

// Aggregate deduplicates encoders, appends Software last and derives the
// preferred encoder and system metrics.
func Aggregate(encoders []models.EncoderKind, devices []models.Device) models.HardwareCapabilities {
	caps := models.HardwareCapabilities{
		AvailableEncoders: Dedupe(encoders),
		Devices:           devices,
	}
	caps.EncoderPerformance = PerformanceTable(caps)
	caps.PreferredEncoder = SelectPreferred(caps.AvailableEncoders)
	caps.MemoryUsageMB = EstimateMemoryMB(caps)
	caps.SpeedMultiplier = caps.SpeedImprovement(caps.PreferredEncoder)
	return caps
}

// Dedupe returns the distinct encoders in declaration order with Software last.
func Dedupe(encoders []models.EncoderKind) []models.EncoderKind {
	seen := make(map[models.EncoderKind]bool, len(encoders))
	for _, k := range encoders {
		if k.Valid() {
			seen[k] = true
		}
	}
	out := make([]models.EncoderKind, 0, len(seen)+1)
	for _, k := range models.AllEncoders() {
		if k != models.Software && seen[k] {
			out = append(out, k)
		}
	}
	return append(out, models.Software)
}

// SelectPreferred picks the first available encoder in preferredOrder.
func SelectPreferred(available []models.EncoderKind) models.EncoderKind {
	set := make(map[models.EncoderKind]bool, len(available))
	for _, k := range available {
		set[k] = true
	}
	for _, k := range preferredOrder {
		if set[k] {
			return k
		}
	}
	return models.Software
}

// environment asks ffmpeg what it was built with.
func (r *Registry) environment(ctx context.Context) Environment {
	env := Environment{Run: r.opts.Run, Root: r.opts.Root, GOOS: r.opts.GOOS}

	lctx, cancel := context.WithTimeout(ctx, r.opts.ProbeTimeout)
	defer cancel()

	hwaccels, err := r.opts.Run(lctx, r.opts.FFmpegPath, "-hide_banner", "-hwaccels")
	if err != nil {
		r.log.WithError(err).Warn("ffmpeg hwaccel listing failed, probing without it")
		return env
	}
	encoders, err := r.opts.Run(lctx, r.opts.FFmpegPath, "-hide_banner", "-encoders")
	if err != nil {
		r.log.WithError(err).Warn("ffmpeg encoder listing failed, probing without it")
		return env
	}

	env.Listed = true
	env.HWAccels = ParseHWAccels(string(hwaccels))
	env.Encoders = ParseEncoderList(string(encoders))
	return env
}

// ParseHWAccels parses `ffmpeg -hwaccels` output.
func ParseHWAccels(output string) map[string]bool {
	accels := make(map[string]bool)
	header := false
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if strings.Contains(line, "Hardware acceleration methods:") {
			header = true
			continue
		}
		if header && line != "" {
			accels[line] = true
		}
	}
	return accels
}

// ParseEncoderList parses `ffmpeg -encoders` output into the set of encoder names.
func ParseEncoderList(output string) map[string]bool {
	names := make(map[string]bool)
	body := false
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if strings.HasPrefix(fields[0], "---") {
			body = true
			continue
		}
		if body && len(fields) >= 2 {
			names[fields[1]] = true
		}
	}
	return names
}

// filterByFFmpeg drops hardware encoders that the local ffmpeg build cannot
// drive, even if the device is present.
func filterByFFmpeg(encoders []models.EncoderKind, available map[string]bool, log *logrus.Entry) []models.EncoderKind {
	out := encoders[:0:0]
	for _, k := range encoders {
		if !k.IsHardware() || available[k.FFmpegCodec()] {
			out = append(out, k)
			continue
		}
		log.WithField("encoder", k.String()).Debug("Encoder not compiled into ffmpeg, skipping")
	}
	return out
}

// HostInfo gathers static host facts with gopsutil.
func HostInfo(ctx context.Context) models.HostInfo {
	info := models.HostInfo{CPUModel: "Unknown CPU", Threads: runtime.NumCPU()}
	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		info.CPUModel = cpus[0].ModelName
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.TotalMemoryMB = vm.Total / (1024 * 1024)
	}
	return info
}

func encoderNames(kinds []models.EncoderKind) []string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return names
}
