package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"squeeze-worker/pkg/models"
)

func newPresetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List target size and encoder speed presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			rows := make([][]string, 0, len(models.TargetSizes))
			for _, size := range models.TargetSizes {
				rows = append(rows, []string{size.Label(), fmt.Sprintf("%.0f", size.MB()), size.UseCase()})
			}
			fmt.Fprintln(out, renderTable([]string{"Target", "MB", "Use case"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft}))

			presets := []models.Preset{
				models.PresetUltraFast, models.PresetFaster, models.PresetFast, models.PresetMedium,
				models.PresetSlow, models.PresetSlower, models.PresetHighest,
			}
			rows = rows[:0]
			for _, p := range presets {
				rows = append(rows, []string{p.String(), p.SoftwarePreset(), p.NvencPreset()})
			}
			fmt.Fprintln(out, renderTable([]string{"Preset", "libx264", "NVENC"}, rows, nil))
			return nil
		},
	}
}
