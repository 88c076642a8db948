package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"squeeze-worker/internal/logging"
	"squeeze-worker/internal/transcoder"
	"squeeze-worker/pkg/models"
)

type compressOptions struct {
	output      string
	sizeMB      float64
	encoder     string
	preset      string
	quality     string
	deviceID    int
	noHW        bool
	noCompat    bool
	memoryOpt   bool
	maxAttempts int
}

func newCompressCommand(ctx *commandContext) *cobra.Command {
	var opts compressOptions

	cmd := &cobra.Command{
		Use:   "compress <input>",
		Short: "Compress a video to a target size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runCompress(runCtx, cmd, ctx, args[0], opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.output, "output", "o", "", "Output path (default: <input>_compressed.mp4)")
	flags.Float64VarP(&opts.sizeMB, "size", "s", models.Size10MB.MB(), "Target size in MB")
	flags.StringVarP(&opts.encoder, "encoder", "e", "auto", "Encoder (auto, software, nvenc-h264, qsv-h264, ...)")
	flags.StringVarP(&opts.preset, "preset", "p", "", "Speed preset (ultrafast..highest)")
	flags.StringVar(&opts.quality, "quality", "", "Rate control mode (auto, constant, variable, constrained)")
	flags.IntVar(&opts.deviceID, "device", -1, "GPU index for NVENC")
	flags.BoolVar(&opts.noHW, "no-hw", false, "Disable hardware acceleration")
	flags.BoolVar(&opts.noCompat, "no-compat", false, "Allow H.265/AV1 output instead of H.264")
	flags.BoolVar(&opts.memoryOpt, "memory-opt", false, "Limit ffmpeg to one thread")
	flags.IntVar(&opts.maxAttempts, "max-attempts", 0, "Attempts before giving up (1-3)")

	return cmd
}

func runCompress(ctx context.Context, cmd *cobra.Command, cc *commandContext, input string, opts compressOptions) error {
	cfg, err := cc.loadConfig()
	if err != nil {
		return err
	}
	logger, err := cc.loadLogger()
	if err != nil {
		return err
	}
	caps, err := cc.detect(ctx, opts.noHW)
	if err != nil {
		return err
	}

	settings, err := buildSettings(cfg.DefaultSettings(), caps, opts)
	if err != nil {
		return err
	}

	attempts := cfg.MaxAttempts
	if opts.maxAttempts > 0 {
		attempts = opts.maxAttempts
	}
	engine, err := transcoder.NewEngine(caps, transcoder.Options{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		TempDir:     cfg.TempDir,
		MaxAttempts: attempts,
	}, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Encoder: %s, target %s\n", settings.Encoder.DisplayName(), humanize.IBytes(uint64(settings.TargetMB*1024*1024)))

	progress := make(chan models.Progress, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		showProgress(out, progress)
	}()

	res, err := engine.Compress(ctx, transcoder.Request{
		Input:    input,
		Output:   opts.output,
		Settings: settings,
		Progress: progress,
	})
	close(progress)
	<-done
	if err != nil {
		return err
	}

	fmt.Fprintln(out, res.Summary())
	fmt.Fprintf(out, "Size reduced by %.1f%%\n", models.ReductionPercent(res.InputSize, res.OutputSize))
	return nil
}

// buildSettings applies command line overrides to the configured defaults.
func buildSettings(base models.CompressionSettings, caps models.HardwareCapabilities, opts compressOptions) (models.CompressionSettings, error) {
	settings := base
	if !(opts.sizeMB > 0) {
		return settings, fmt.Errorf("target size must be positive, got %v", opts.sizeMB)
	}
	settings.TargetMB = opts.sizeMB

	var requested *models.EncoderKind
	if name := strings.TrimSpace(opts.encoder); name != "" && !strings.EqualFold(name, "auto") {
		kind, err := models.ParseEncoderKind(name)
		if err != nil {
			return settings, err
		}
		requested = &kind
	}
	settings = settings.WithEncoder(caps.ResolveEncoder(requested, opts.noHW))

	if opts.preset != "" {
		p, err := models.ParsePreset(opts.preset)
		if err != nil {
			return settings, err
		}
		settings.Preset = p
	}
	if opts.quality != "" {
		q, err := models.ParseQualityMode(opts.quality)
		if err != nil {
			return settings, err
		}
		settings.Quality = q
	}
	if opts.deviceID >= 0 {
		id := opts.deviceID
		settings.DeviceID = &id
	}
	if opts.noCompat {
		settings.CompatibilityMode = false
	}
	if opts.memoryOpt {
		settings.MemoryOptimization = true
	}
	return settings, nil
}

// showProgress draws a bar on terminals and prints sampled lines otherwise.
func showProgress(out io.Writer, progress <-chan models.Progress) {
	if !isTerminal(out) {
		sampler := logging.NewProgressSampler(10)
		for p := range progress {
			if sampler.ShouldEmit(p.Fraction*100, fmt.Sprintf("attempt %d", p.Attempt)) {
				fmt.Fprintln(out, progressLine(p))
			}
		}
		return
	}

	bar := progressbar.NewOptions(1000,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
	)
	for p := range progress {
		bar.Describe(progressLine(p))
		_ = bar.Set(int(p.Fraction * 1000))
	}
	_ = bar.Finish()
}

func progressLine(p models.Progress) string {
	line := fmt.Sprintf("%5.1f%% %s", p.Fraction*100, p.Encoder.DisplayName())
	if p.Pass > 0 {
		line += fmt.Sprintf(" pass %d/2", p.Pass)
	}
	if p.Attempt > 1 {
		line += fmt.Sprintf(" (attempt %d)", p.Attempt)
	}
	if p.HasETA {
		line += " ETA " + models.FormatDuration(p.ETA.Seconds())
	}
	return line
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
