package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/omnicapture/agent/internal/control"
	"github.com/omnicapture/agent/internal/health"
	"github.com/omnicapture/agent/internal/logging"
	"github.com/omnicapture/agent/internal/observe"
	"github.com/omnicapture/agent/internal/recorder"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control server for remote start/pause/resume/stop",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(); err != nil {
			fatalf("Server failed: %v", err)
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "control listen address (overrides control_listen)")
}

func runServe() error {
	cfg := mustLoadConfig()
	if serveListen != "" {
		cfg.ControlListen = serveListen
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := newRuntimeEnv(ctx, cfg)
	if err != nil {
		return err
	}
	defer env.close()

	hub := control.NewHub()
	p := env.pipeline(env.observers(hub))

	// /metrics rides on the control listener unless a separate one is set.
	var controlMetrics http.Handler
	if cfg.MetricsListen == "" {
		controlMetrics = observe.Handler()
	}
	opts := recorder.OptionsFromConfig(cfg)
	srv := control.NewServer(p, hub, opts, controlMetrics)

	mon := health.NewMonitor()
	mon.Register("ffmpeg", health.FFmpegProbe(opts.FFmpegPath))
	mon.Register("screen", health.ScreenProbe(env.screen))
	mon.Register("audio", health.AudioProbe(env.audio))
	mon.Register("output_dir", health.DiskProbe(opts.OutputDir, opts.MinFreeBytes))
	srv.Handle("/healthz", mon.Handler())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.ControlListen)
	})
	if cfg.MetricsListen != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.MetricsListen)
		})
	}

	fmt.Printf("omnicapture v%s control server on ws://%s/ws\n", version, cfg.ControlListen)
	err = g.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	stopOnShutdown(stopCtx, p)
	return err
}

// shutdownStopper is the part of the pipeline the shutdown path needs.
type shutdownStopper interface {
	Status() recorder.Status
	Stop(ctx context.Context) (recorder.Result, error)
}

// stopOnShutdown finishes a recording a client left running so its output
// is kept. A pipeline that already ended, cleanly or not, is left alone.
func stopOnShutdown(ctx context.Context, rec shutdownStopper) {
	switch rec.Status() {
	case recorder.StatusRecording, recorder.StatusPaused:
	default:
		return
	}
	res, err := rec.Stop(ctx)
	switch {
	case err == nil:
		log.Info("recording stopped on shutdown", logging.KeyPath, res.Path)
	case errors.Is(err, recorder.ErrNotRecording):
	case res.Path != "":
		log.Warn("recording stopped on shutdown with errors", logging.KeyPath, res.Path, logging.KeyError, err)
	default:
		log.Error("recording stop on shutdown failed", logging.KeyError, err)
	}
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observe.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
