package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"squeeze-worker/internal/estimator"
	"squeeze-worker/internal/transcoder"
	"squeeze-worker/pkg/models"
)

type estimateOptions struct {
	sizeMB   float64
	encoder  string
	preset   string
	duration float64
	width    int
	height   int
	fps      float64
	noHW     bool
}

func newEstimateCommand(ctx *commandContext) *cobra.Command {
	var opts estimateOptions

	cmd := &cobra.Command{
		Use:   "estimate [input]",
		Short: "Predict bitrate, quality and encoding time without encoding",
		Long: "Estimate reads the input with ffprobe. Without an input, describe the clip " +
			"with --duration, --width, --height and --fps.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := estimateMetadata(cmd.Context(), ctx, args, opts)
			if err != nil {
				return err
			}
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			settings, err := estimateSettings(cmd.Context(), ctx, cfg.DefaultSettings(), opts)
			if err != nil {
				return err
			}
			report, err := renderEstimate(meta, settings)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), report)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Float64VarP(&opts.sizeMB, "size", "s", models.Size10MB.MB(), "Target size in MB")
	flags.StringVarP(&opts.encoder, "encoder", "e", "software", "Encoder to estimate for (auto detects hardware)")
	flags.StringVarP(&opts.preset, "preset", "p", "", "Speed preset")
	flags.Float64Var(&opts.duration, "duration", 0, "Clip duration in seconds")
	flags.IntVar(&opts.width, "width", 1920, "Frame width")
	flags.IntVar(&opts.height, "height", 1080, "Frame height")
	flags.Float64Var(&opts.fps, "fps", 30, "Frame rate")
	flags.BoolVar(&opts.noHW, "no-hw", false, "Disable hardware acceleration")

	return cmd
}

func estimateMetadata(ctx context.Context, cc *commandContext, args []string, opts estimateOptions) (models.VideoMetadata, error) {
	if len(args) == 0 {
		meta := models.NewVideoMetadata(opts.width, opts.height, opts.fps, opts.duration, 0, "")
		if err := meta.Validate(); err != nil {
			return meta, fmt.Errorf("describe the clip or pass an input file: %w", err)
		}
		return meta, nil
	}
	cfg, err := cc.loadConfig()
	if err != nil {
		return models.VideoMetadata{}, err
	}
	pctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.ProbeTimeoutSec)*time.Second)
	defer cancel()
	return transcoder.FFprobe{Path: cfg.FFprobePath}.Probe(pctx, args[0])
}

// estimateSettings accepts any known encoder without detection; only "auto"
// probes the host.
func estimateSettings(ctx context.Context, cc *commandContext, base models.CompressionSettings, opts estimateOptions) (models.CompressionSettings, error) {
	caps := models.SoftwareOnlyCapabilities()
	if strings.EqualFold(opts.encoder, "auto") && !opts.noHW {
		detected, err := cc.detect(ctx, false)
		if err != nil {
			return base, err
		}
		caps = detected
	}
	settings, err := buildSettings(base, caps, compressOptions{
		sizeMB:   opts.sizeMB,
		preset:   opts.preset,
		deviceID: -1,
	})
	if err != nil {
		return settings, err
	}
	if name := strings.TrimSpace(opts.encoder); name != "" && !strings.EqualFold(name, "auto") {
		kind, err := models.ParseEncoderKind(name)
		if err != nil {
			return settings, err
		}
		if opts.noHW {
			kind = models.Software
		}
		settings = settings.WithEncoder(kind)
	}
	return settings, nil
}

func renderEstimate(meta models.VideoMetadata, settings models.CompressionSettings) (string, error) {
	est, err := estimator.Estimate(meta, settings)
	if err != nil {
		return "", err
	}
	rec, err := estimator.RecommendBitrate(meta, settings.TargetMB, settings.Encoder)
	if err != nil {
		return "", err
	}

	rows := [][]string{
		{"Source", fmt.Sprintf("%dx%d @ %.2f fps, %s", meta.Width, meta.Height, meta.FPS, models.FormatDuration(meta.DurationSeconds))},
		{"Complexity", meta.Complexity.String()},
		{"Encoder", settings.Encoder.DisplayName()},
		{"Target size", fmt.Sprintf("%.1f MB", est.EstimatedSizeMB)},
		{"Video bitrate", fmt.Sprintf("%d kbps", est.RecommendedBitrate)},
		{"Encoder-adjusted bitrate", fmt.Sprintf("%d kbps", rec.BitrateKbps)},
		{"Audio bitrate", fmt.Sprintf("%d kbps", estimator.AudioBitrateKbps(meta.DurationSeconds))},
		{"Quality score", fmt.Sprintf("%.0f/100", est.QualityScore*100)},
		{"Encoding time", models.FormatDuration(est.EncodingTime.Seconds())},
		{"Confidence", fmt.Sprintf("%.0f%%", est.Confidence*100)},
	}
	return renderTable([]string{"Estimate", "Value"}, rows, nil), nil
}
