package control

import (
	"time"

	"github.com/omnicapture/agent/internal/capture"
	"github.com/omnicapture/agent/internal/recorder"
)

// Command types accepted on the control socket.
const (
	CmdStart  = "start"
	CmdPause  = "pause"
	CmdResume = "resume"
	CmdStop   = "stop"
	CmdStatus = "status"
)

// Event types sent to clients.
const (
	EventResult   = "command_result"
	EventTime     = "time"
	EventStatus   = "status"
	EventFinished = "finished"
	EventError    = "error"
)

// Command is a client request. Region, Monitor and Format only apply to start.
type Command struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Region  *capture.Region `json:"region,omitempty"`
	Monitor *int            `json:"monitor,omitempty"`
	Format  string          `json:"format,omitempty"`
}

// Event is either a reply to a Command (Type "command_result") or a
// broadcast pipeline event.
type Event struct {
	Type      string `json:"type"`
	CommandID string `json:"commandId,omitempty"`
	OK        bool   `json:"ok,omitempty"`
	Status    string `json:"status,omitempty"`
	Elapsed   string `json:"elapsed,omitempty"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`

	SessionID string     `json:"sessionId,omitempty"`
	Recording *Recording `json:"recording,omitempty"`
}

// Recording summarises a finished recording in a stop reply.
type Recording struct {
	Path        string  `json:"path"`
	Format      string  `json:"format"`
	DurationSec float64 `json:"durationSec"`
	Frames      uint64  `json:"frames"`
	SizeBytes   uint64  `json:"sizeBytes"`
	HasAudio    bool    `json:"hasAudio"`
	GIFFallback bool    `json:"gifFallback,omitempty"`
}

func recordingFromResult(res recorder.Result) *Recording {
	return &Recording{
		Path:        res.Path,
		Format:      res.Format,
		DurationSec: res.Duration.Round(time.Millisecond).Seconds(),
		Frames:      res.Frames,
		SizeBytes:   res.Size,
		HasAudio:    res.HasAudio,
		GIFFallback: res.GIFFallback,
	}
}
