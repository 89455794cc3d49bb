package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/omnicapture/agent/internal/capture"
	"github.com/omnicapture/agent/internal/config"
	"github.com/omnicapture/agent/internal/recorder"
)

const countdownSeconds = 3

var (
	recordDuration time.Duration
	recordFormat   string
	recordFPS      int
	recordMonitor  int
	recordRegion   string
	recordOutput   string
	recordMic      string
	noCountdown    bool
	noAudio        bool
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the screen until interrupted or --duration elapses",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runRecord(cmd); err != nil {
			fatalf("Recording failed: %v", err)
		}
	},
}

func init() {
	f := recordCmd.Flags()
	f.DurationVar(&recordDuration, "duration", 0, "stop automatically after this long (0 records until Ctrl+C)")
	f.StringVar(&recordFormat, "format", "", "output format: mp4 or gif")
	f.IntVar(&recordFPS, "fps", 0, "frames per second")
	f.IntVar(&recordMonitor, "monitor", 0, "monitor index to record")
	f.StringVar(&recordRegion, "region", "", "region to record as WIDTHxHEIGHT+X+Y")
	f.StringVarP(&recordOutput, "output-dir", "o", "", "directory for the finished recording")
	f.StringVar(&recordMic, "mic", "", "record this microphone in addition to system audio")
	f.BoolVar(&noCountdown, "no-countdown", false, "start immediately")
	f.BoolVar(&noAudio, "no-audio", false, "record video only")
}

func recordOverrides(cmd *cobra.Command) func(*config.Config) {
	return func(cfg *config.Config) {
		flags := cmd.Flags()
		if flags.Changed("format") {
			cfg.OutputFormat = recordFormat
		}
		if flags.Changed("fps") {
			cfg.FPS = recordFPS
		}
		if flags.Changed("monitor") {
			cfg.MonitorIndex = recordMonitor
		}
		if flags.Changed("output-dir") {
			cfg.OutputDir = recordOutput
		}
		if flags.Changed("mic") {
			cfg.UseMicAudio = true
			cfg.MicDeviceID = recordMic
		}
		if noCountdown {
			cfg.CountdownEnabled = false
		}
		if noAudio {
			cfg.UseSystemAudio = false
			cfg.UseMicAudio = false
		}
	}
}

func runRecord(cmd *cobra.Command) error {
	cfg := mustLoadConfig(recordOverrides(cmd))
	opts := recorder.OptionsFromConfig(cfg)
	if recordRegion != "" {
		r, err := parseRegion(recordRegion)
		if err != nil {
			return err
		}
		opts.Region = &r
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := newRuntimeEnv(ctx, cfg)
	if err != nil {
		return err
	}
	defer env.close()

	if cfg.CountdownEnabled {
		if !countdown(ctx, countdownSeconds) {
			fmt.Println("\nCancelled.")
			return nil
		}
	}

	p := env.pipeline(env.observers(consoleObserver()))
	if _, err := p.Start(ctx, opts); err != nil {
		return err
	}
	done := p.Done()

	var timeout <-chan time.Time
	if recordDuration > 0 {
		timer := time.NewTimer(recordDuration)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-ctx.Done():
	case <-timeout:
	case <-done:
	}

	res, err := p.Stop(context.Background())
	fmt.Println()
	if res.Path != "" {
		printResult(res)
	}
	return err
}

// countdown prints a seconds countdown and reports false if ctx ended first.
func countdown(ctx context.Context, seconds int) bool {
	for i := seconds; i > 0; i-- {
		fmt.Printf("\rStarting in %d...", i)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Second):
		}
	}
	fmt.Print("\r                \r")
	return true
}

func consoleObserver() recorder.Observer {
	return recorder.ObserverFuncs{
		Time: func(elapsed string) {
			fmt.Printf("\r● REC %s", elapsed)
		},
		Status: func(s recorder.Status) {
			switch s {
			case recorder.StatusPaused:
				fmt.Print("\r❚❚ paused      ")
			case recorder.StatusEncoding:
				fmt.Print("\rEncoding...          ")
			case recorder.StatusConverting:
				fmt.Print("\rConverting to GIF... ")
			}
		},
		Error: func(err error) {
			fmt.Fprintf(os.Stderr, "\nerror: %v\n", err)
		},
	}
}

func printResult(res recorder.Result) {
	fmt.Printf("Saved %s\n", res.Path)
	fmt.Printf("  duration %s, %d frames, %s", res.Duration.Round(time.Second), res.Frames, humanize.IBytes(res.Size))
	if res.HasAudio {
		fmt.Print(", with audio")
	}
	fmt.Println()
	if res.GIFFallback {
		fmt.Println("  GIF conversion failed, kept the MP4")
	}
}

var errBadRegion = errors.New("region must look like 1280x720+0+0")

// parseRegion reads WIDTHxHEIGHT+X+Y; the offset part is optional.
func parseRegion(s string) (capture.Region, error) {
	var r capture.Region
	s = strings.TrimSpace(s)
	var err error
	if strings.Contains(s, "+") {
		_, err = fmt.Sscanf(s, "%dx%d+%d+%d", &r.Width, &r.Height, &r.X, &r.Y)
	} else {
		_, err = fmt.Sscanf(s, "%dx%d", &r.Width, &r.Height)
	}
	if err != nil || r.Width <= 0 || r.Height <= 0 || r.X < 0 || r.Y < 0 {
		return capture.Region{}, fmt.Errorf("%w: got %q", errBadRegion, s)
	}
	return r, nil
}
