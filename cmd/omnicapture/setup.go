package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/omnicapture/agent/internal/archive"
	"github.com/omnicapture/agent/internal/audio"
	"github.com/omnicapture/agent/internal/capture"
	"github.com/omnicapture/agent/internal/config"
	"github.com/omnicapture/agent/internal/logging"
	"github.com/omnicapture/agent/internal/observe"
	"github.com/omnicapture/agent/internal/recorder"
)

var log = logging.L("main")

const (
	syntheticWidth  = 1280
	syntheticHeight = 720
)

// runtimeEnv holds what the record and serve commands share: logging,
// metrics, backends and the optional archive uploader.
type runtimeEnv struct {
	cfg      *config.Config
	screen   capture.Backend
	audio    audio.Backend
	uploader *archive.Uploader

	logCloser       io.Closer
	shutdownMetrics func(context.Context) error
}

func newRuntimeEnv(ctx context.Context, cfg *config.Config) (*runtimeEnv, error) {
	env := &runtimeEnv{cfg: cfg}

	closer, err := logging.Setup(cfg.LogFormat, cfg.LogLevel, cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
	if err != nil {
		log.Warn("log file unavailable, logging to stderr only", logging.KeyError, err)
	}
	env.logCloser = closer

	shutdown, err := observe.InitProvider(version)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	env.shutdownMetrics = shutdown

	if synthetic {
		env.screen = capture.NewSyntheticBackend(syntheticWidth, syntheticHeight)
		env.audio = audio.NewSyntheticBackend()
	} else {
		env.screen, err = capture.NewBackend()
		if err != nil {
			env.close()
			return nil, fmt.Errorf("open screen capture: %w", err)
		}
		if pulse := audio.NewPulseBackend(); pulse.Available() {
			env.audio = pulse
		} else {
			log.Warn("pactl/parec not found, recording without audio")
		}
	}

	provider, err := archive.New(ctx, cfg.Archive)
	if err != nil {
		log.Error("archive disabled", logging.KeyError, err)
	} else if provider != nil {
		env.uploader = archive.NewUploader(provider, cfg.Archive, observe.DefaultMetrics())
		log.Info("archiving recordings", "provider", provider.Name())
	}
	return env, nil
}

// observers adds the archive uploader, when configured, to extra.
func (e *runtimeEnv) observers(extra ...recorder.Observer) recorder.Observer {
	obs := recorder.Observers(extra)
	if e.uploader != nil {
		obs = append(obs, recorder.ObserverFuncs{Finished: e.uploader.Enqueue})
	}
	return obs
}

func (e *runtimeEnv) pipeline(obs recorder.Observer) *recorder.Pipeline {
	return recorder.New(recorder.Deps{
		Screen:   e.screen,
		Audio:    e.audio,
		Observer: obs,
		Metrics:  observe.DefaultMetrics(),
	})
}

// close waits briefly for pending uploads, then flushes metrics and logs.
func (e *runtimeEnv) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if e.uploader != nil {
		if err := e.uploader.Close(ctx); err != nil {
			log.Warn("archive close", logging.KeyError, err)
		}
	}
	if e.screen != nil {
		e.screen.Close()
	}
	if e.shutdownMetrics != nil {
		e.shutdownMetrics(ctx)
	}
	if e.logCloser != nil {
		e.logCloser.Close()
	}
}
