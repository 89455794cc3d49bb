package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/omnicapture/agent/internal/audio"
	"github.com/omnicapture/agent/internal/capture"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List monitors and audio input devices",
	Run: func(cmd *cobra.Command, args []string) {
		listDevices()
	},
}

func listDevices() {
	var (
		screen capture.Backend
		ab     audio.Backend
		err    error
	)
	if synthetic {
		screen = capture.NewSyntheticBackend(syntheticWidth, syntheticHeight)
		ab = audio.NewSyntheticBackend()
	} else {
		screen, err = capture.NewBackend()
		if pulse := audio.NewPulseBackend(); pulse.Available() {
			ab = pulse
		}
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MONITORS")
	if err != nil {
		fmt.Fprintf(tw, "  unavailable: %v\n", err)
	} else {
		defer screen.Close()
		monitors, err := screen.ListMonitors()
		if err != nil {
			fmt.Fprintf(tw, "  unavailable: %v\n", err)
		}
		for _, m := range monitors {
			primary := ""
			if m.IsPrimary {
				primary = "(primary)"
			}
			fmt.Fprintf(tw, "  %d\t%s\t%dx%d+%d+%d\t%s\n", m.Index, m.Name, m.Width, m.Height, m.X, m.Y, primary)
		}
	}

	fmt.Fprintln(tw, "\nMICROPHONES")
	if ab == nil {
		fmt.Fprintln(tw, "  unavailable: pactl/parec not found")
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		devices, err := audio.InputDevices(ctx, ab)
		if err != nil {
			fmt.Fprintf(tw, "  unavailable: %v\n", err)
		}
		for _, d := range devices {
			def := ""
			if d.IsDefault {
				def = "(default)"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", d.ID, d.Description, def)
		}
	}
	tw.Flush()
}
