package audio

import (
	"context"
	"fmt"

	"github.com/omnicapture/agent/internal/logging"
)

var log = logging.L("audio")

// ResolutionStatus tells how a device lookup ended.
type ResolutionStatus int

const (
	// NotFound means no usable device exists; the source is disabled.
	NotFound ResolutionStatus = iota
	// Found means the preferred device was located.
	Found
	// Fallback means a substitute device was chosen.
	Fallback
)

func (s ResolutionStatus) String() string {
	switch s {
	case Found:
		return "found"
	case Fallback:
		return "fallback"
	default:
		return "not_found"
	}
}

// Resolution is the outcome of a device lookup.
type Resolution struct {
	Status ResolutionStatus
	Device Device
}

// Usable reports whether a device was selected.
func (r Resolution) Usable() bool {
	return r.Status != NotFound
}

// ResolveSystem picks the loopback source for the active output device, then
// any loopback source.
func ResolveSystem(ctx context.Context, b Backend) (Resolution, error) {
	devices, err := b.ListDevices(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("list audio devices: %w", err)
	}

	output, err := b.DefaultOutput(ctx)
	if err != nil {
		log.Warn("default output lookup failed", "error", err)
	}

	if output != "" {
		for _, d := range devices {
			if d.IsLoopback && d.Output == output {
				return Resolution{Status: Found, Device: d}, nil
			}
		}
	}
	for _, d := range devices {
		if d.IsLoopback {
			log.Warn("no loopback for default output, using another loopback source",
				"output", output, "device", d.ID)
			return Resolution{Status: Fallback, Device: d}, nil
		}
	}

	log.Warn("no loopback source available, system audio disabled")
	return Resolution{Status: NotFound}, nil
}

// ResolveMic picks the microphone with the given ID, or the default input
// when id is empty. An unknown ID resolves to NotFound.
func ResolveMic(ctx context.Context, b Backend, id string) (Resolution, error) {
	devices, err := b.ListDevices(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("list audio devices: %w", err)
	}

	if id == "" {
		id, err = b.DefaultInput(ctx)
		if err != nil {
			return Resolution{}, fmt.Errorf("default input: %w", err)
		}
	}

	for _, d := range devices {
		if d.ID == id && !d.IsLoopback {
			return Resolution{Status: Found, Device: d}, nil
		}
	}

	log.Warn("microphone not found, microphone audio disabled", "device", id)
	return Resolution{Status: NotFound}, nil
}
