// Package control exposes a running pipeline over a local WebSocket so other
// processes can start, pause, resume and stop recordings and follow progress.
package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/netutil"

	"github.com/omnicapture/agent/internal/logging"
	"github.com/omnicapture/agent/internal/recorder"
)

var log = logging.L("control")

const (
	// MaxClients bounds concurrent connections to the control listener.
	MaxClients = 16

	stopTimeout = 2 * time.Minute
)

// Recorder is the pipeline surface driven by control commands.
type Recorder interface {
	Start(ctx context.Context, opts recorder.Options) (*recorder.Session, error)
	Pause() error
	Resume() error
	Stop(ctx context.Context) (recorder.Result, error)
	Status() recorder.Status
	Session() *recorder.Session
}

// Server serves /ws for control clients and, when a metrics handler is set,
// /metrics.
type Server struct {
	rec      Recorder
	hub      *Hub
	base     recorder.Options
	upgrader websocket.Upgrader
	mux      *http.ServeMux
	srv      *http.Server
}

// NewServer drives rec with commands from clients. hub must be the observer
// rec reports to. base supplies defaults for start commands.
func NewServer(rec Recorder, hub *Hub, base recorder.Options, metrics http.Handler) *Server {
	s := &Server{
		rec:  rec,
		hub:  hub,
		base: base,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     localOrigin,
		},
	}
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/ws", s.serveWS)
	if metrics != nil {
		s.mux.Handle("/metrics", metrics)
	}
	s.srv = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handle registers an extra route. Call it before Serve.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve accepts connections on ln until ctx ends or Shutdown is called.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ln = netutil.LimitListener(ln, MaxClients)
	log.Info("control server listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Warn("control server shutdown", logging.KeyError, err)
		}
	}()

	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("control server: %w", err)
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("control listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Shutdown disconnects clients and stops the HTTP server. A recording in
// progress keeps running.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.closeAll()
	return s.srv.Shutdown(ctx)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("control upgrade failed", "remote", r.RemoteAddr, logging.KeyError, err)
		return
	}
	c := newClient(conn)
	s.hub.add(c)
	c.reply(s.statusEvent())

	go c.writePump()
	c.readPump(s.handle)
	s.hub.remove(c)
}

func (s *Server) handle(c *client, cmd Command) {
	log.Info("control command", "commandId", cmd.ID, "commandType", cmd.Type, "remote", c.remote)
	ev := s.execute(cmd)
	ev.Type = EventResult
	ev.CommandID = cmd.ID
	c.reply(ev)
}

func (s *Server) execute(cmd Command) Event {
	switch cmd.Type {
	case CmdStart:
		opts := s.base
		if cmd.Region != nil {
			r := *cmd.Region
			opts.Region = &r
		}
		if cmd.Monitor != nil {
			opts.MonitorIndex = *cmd.Monitor
		}
		if cmd.Format != "" {
			opts.Format = cmd.Format
		}
		sess, err := s.rec.Start(context.Background(), opts)
		if err != nil {
			return failure(err)
		}
		return Event{OK: true, SessionID: sess.ID, Path: sess.OutputPath, Status: string(s.rec.Status())}

	case CmdPause:
		if err := s.rec.Pause(); err != nil {
			return failure(err)
		}
		return s.statusEvent()

	case CmdResume:
		if err := s.rec.Resume(); err != nil {
			return failure(err)
		}
		return s.statusEvent()

	case CmdStop:
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		res, err := s.rec.Stop(ctx)
		if err != nil && res.Path == "" {
			return failure(err)
		}
		ev := Event{OK: err == nil, SessionID: res.SessionID, Path: res.Path, Recording: recordingFromResult(res)}
		if err != nil {
			ev.Error = err.Error()
		}
		return ev

	case CmdStatus:
		return s.statusEvent()

	default:
		return Event{Error: fmt.Sprintf("unknown command %q", cmd.Type)}
	}
}

func (s *Server) statusEvent() Event {
	status := s.rec.Status()
	ev := Event{Type: EventStatus, OK: true, Status: string(status)}
	if sess := s.rec.Session(); sess != nil {
		ev.SessionID = sess.ID
		if status == recorder.StatusRecording || status == recorder.StatusPaused {
			ev.Elapsed = recorder.FormatElapsed(sess.Elapsed(time.Now()))
		}
	}
	return ev
}

func failure(err error) Event {
	return Event{Error: err.Error()}
}

// localOrigin accepts non-browser clients and pages served from localhost.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
