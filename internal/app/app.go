// Package app wires the tracker to the optional HTTP server and WebSocket
// hub. It owns the process lifecycle from the install trigger to the final
// event and is the single source of truth for the current operating state.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/large-farva/playtrack/internal/config"
	"github.com/large-farva/playtrack/internal/device"
	"github.com/large-farva/playtrack/internal/eventlog"
	"github.com/large-farva/playtrack/internal/metrics"
	"github.com/large-farva/playtrack/internal/telemetry"
	"github.com/large-farva/playtrack/internal/tracker"
	"github.com/large-farva/playtrack/internal/ws"
)

// Operating states outside the tracker's own lifecycle.
const (
	StateBooting    = "BOOTING"
	StateTriggering = "TRIGGERING"
	StateComplete   = "COMPLETE"
	StateInstalled  = "ALREADY_INSTALLED"
	StateFailed     = "FAILED"
	StateCancelled  = "CANCELLED"
)

// recentLimit bounds the in-memory event list served by /api/events.
const recentLimit = 500

// Options holds everything the App needs from the caller.
type Options struct {
	Logger     *slog.Logger
	Cfg        config.Config
	ConfigPath string
	Tracker    *tracker.Tracker
	Metrics    *metrics.Metrics

	// Prepare runs before tracking starts, typically the Play Store launch
	// and install trigger. Returning device.ErrAlreadyInstalled ends the run
	// without tracking.
	Prepare func(ctx context.Context) error
}

// App is the top-level process.
type App struct {
	log        *slog.Logger
	cfg        config.Config
	configPath string
	tracker    *tracker.Tracker
	metrics    *metrics.Metrics
	prepare    func(ctx context.Context) error
	server     *http.Server

	startedAt time.Time
	state     atomic.Value // current state string (BOOTING, TRACKING, etc.)
	running   atomic.Bool

	mu      sync.Mutex
	session tracker.Session
	recent  []eventlog.Event
	// ended is closed when the current tracker run returns.
	ended chan struct{}

	wsHub *ws.Hub
}

// New creates an App in the BOOTING state and installs the tracker hooks.
// Call Run to start.
func New(opts Options) *App {
	a := &App{
		log:        opts.Logger,
		cfg:        opts.Cfg,
		configPath: opts.ConfigPath,
		tracker:    opts.Tracker,
		metrics:    opts.Metrics,
		prepare:    opts.Prepare,
		startedAt:  time.Now(),
		wsHub:      ws.NewHub(),
	}
	if a.metrics == nil {
		a.metrics = metrics.New()
	}
	a.state.Store(StateBooting)
	a.session = tracker.Session{Target: opts.Tracker.Target, LastPercent: -1}

	a.tracker.Metrics = a.metrics
	a.tracker.OnEvent = a.recordEvent
	a.tracker.OnState = func(_, to tracker.State) { a.transition(to.String()) }
	a.tracker.OnTick = a.recordTick
	return a
}

// Handler exposes the HTTP routes, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.routes()
}

// Run optionally starts the HTTP server, then prepares the device and
// tracks until the session ends. The session is nil when tracking never
// started.
func (a *App) Run(ctx context.Context) (*tracker.Session, error) {
	serveErr := make(chan error, 1)
	if a.cfg.Server.Enabled {
		ln, err := net.Listen("tcp", a.cfg.Server.Bind)
		if err != nil {
			return nil, err
		}
		a.server = &http.Server{
			Handler:           a.routes(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		a.log.Info("listening", "url", "http://"+ln.Addr().String())

		hubCtx, stopHub := context.WithCancel(context.Background())
		defer stopHub()
		go a.wsHub.Run(hubCtx)
		go a.heartbeatLoop(hubCtx)
		go func() { serveErr <- a.server.Serve(ln) }()
	}

	sess, err := a.track(ctx)
	a.finish(err)

	if a.server != nil {
		if linger := a.cfg.Linger(); linger > 0 && ctx.Err() == nil {
			a.log.Info("session ended, server lingering", "for", linger)
			select {
			case <-ctx.Done():
			case <-time.After(linger):
			case e := <-serveErr:
				a.log.Warn("server stopped", "error", e)
			}
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.server.Shutdown(shutdownCtx)
	}
	return sess, err
}

func (a *App) track(ctx context.Context) (*tracker.Session, error) {
	if a.prepare != nil {
		a.transition(StateTriggering)
		if err := a.prepare(ctx); err != nil {
			return nil, err
		}
	}
	a.transition(tracker.AwaitingFirstSignal.String())

	ended := make(chan struct{})
	a.mu.Lock()
	a.ended = ended
	a.mu.Unlock()

	a.running.Store(true)
	defer func() {
		a.running.Store(false)
		close(ended)
	}()
	return a.tracker.Run(ctx)
}

// finish maps the run result to a final state.
func (a *App) finish(err error) {
	switch {
	case err == nil:
		a.transition(StateComplete)
	case errors.Is(err, context.Canceled), errors.Is(err, tracker.ErrCancelled):
		a.transition(StateCancelled)
	case errors.Is(err, device.ErrAlreadyInstalled):
		a.transition(StateInstalled)
	default:
		a.transition(StateFailed)
		a.wsHub.PublishJSON(telemetry.NewLogLine("error", err.Error()))
	}
}

// transition atomically updates the state and broadcasts the change to all
// connected WebSocket clients.
func (a *App) transition(newState string) {
	old := a.state.Load().(string)
	if old == newState {
		return
	}
	a.state.Store(newState)
	a.wsHub.PublishJSON(telemetry.NewStateTransition(old, newState))
}

func (a *App) recordEvent(e eventlog.Event) {
	a.mu.Lock()
	a.recent = append(a.recent, e)
	if len(a.recent) > recentLimit {
		a.recent = a.recent[len(a.recent)-recentLimit:]
	}
	a.mu.Unlock()
	a.wsHub.PublishJSON(telemetry.NewProgress(e))
}

func (a *App) recordTick(s tracker.Session) {
	a.mu.Lock()
	a.session = s
	a.mu.Unlock()
}

// sessionEnded returns the channel closed when the running session ends, or
// nil before tracking started.
func (a *App) sessionEnded() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ended
}

func (a *App) snapshot() (tracker.Session, []eventlog.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session, append([]eventlog.Event(nil), a.recent...)
}

// heartbeatLoop sends a periodic heartbeat event so clients can detect
// connectivity and track uptime without polling.
func (a *App) heartbeatLoop(ctx context.Context) {
	t := time.NewTicker(10 * time.Second)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s, _ := a.snapshot()
			a.wsHub.BroadcastJSON(telemetry.NewHeartbeat(a.state.Load().(string), s.LastPercent, time.Since(a.startedAt)))
		}
	}
}
