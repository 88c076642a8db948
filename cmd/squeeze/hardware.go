package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"squeeze-worker/pkg/models"
)

func newListHardwareCommand(ctx *commandContext) *cobra.Command {
	var noHW bool

	cmd := &cobra.Command{
		Use:     "list-hw",
		Aliases: []string{"hardware"},
		Short:   "Show detected encoders and accelerator devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			caps, err := ctx.detect(cmd.Context(), noHW)
			if err != nil {
				return err
			}
			writeCapabilities(cmd.OutOrStdout(), caps)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noHW, "no-hw", false, "Skip hardware detection")
	return cmd
}

func writeCapabilities(out io.Writer, caps models.HardwareCapabilities) {
	host := caps.Host
	if host.CPUModel != "" {
		fmt.Fprintf(out, "Host: %s, %d threads, %s RAM\n", host.CPUModel, host.Threads,
			humanize.IBytes(host.TotalMemoryMB*1024*1024))
	}

	rows := make([][]string, 0, len(caps.AvailableEncoders))
	for _, kind := range caps.AvailableEncoders {
		preferred := ""
		if kind == caps.PreferredEncoder {
			preferred = "yes"
		}
		rows = append(rows, []string{
			kind.String(),
			kind.DisplayName(),
			string(kind.Vendor()),
			kind.FFmpegCodec(),
			fmt.Sprintf("%.1fx", caps.SpeedImprovement(kind)),
			preferred,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Encoder", "Name", "Vendor", "FFmpeg", "Speed", "Preferred"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))

	if len(caps.Devices) == 0 {
		fmt.Fprintln(out, "No accelerator devices detected.")
		return
	}
	rows = rows[:0]
	for _, d := range caps.Devices {
		memory := "-"
		if d.MemoryMB > 0 {
			memory = humanize.IBytes(d.MemoryMB * 1024 * 1024)
		}
		encode := "no"
		if d.EncodeSupported {
			encode = "yes"
		}
		rows = append(rows, []string{
			strconv.Itoa(d.ID), d.Name, string(d.Vendor), d.Capability.String(), memory, encode,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Device", "Vendor", "Capability", "Memory", "Encode"},
		rows,
		[]columnAlignment{alignRight},
	))
}
