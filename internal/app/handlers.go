package app

import (
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/large-farva/playtrack/internal/eventlog"
	"github.com/large-farva/playtrack/internal/tracker"
)

// commandTimeout bounds how long a handler waits for the tracker to pick up
// a command. The tracker only reads commands between ticks.
const commandTimeout = 10 * time.Second

func (a *App) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.handleHealthz)
	r.Get("/metrics", a.metrics.Handler().ServeHTTP)
	r.Handle("/ws", a.wsHub.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", a.handleStatus)
		r.Get("/events", a.handleEvents)
		r.Get("/version", a.handleVersion)
		r.Post("/cancel", a.handleCommand(tracker.CommandCancel))
		r.Post("/poll", a.handleCommand(tracker.CommandPoll))
	})
	return r
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	// If the client asks for JSON, return component-level health checks.
	if r.Header.Get("Accept") == "application/json" {
		a.handleHealthDetailed(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (a *App) handleHealthDetailed(w http.ResponseWriter, _ *http.Request) {
	checks := map[string]any{}
	allOK := true

	dir := logDir(a.cfg.Output.CSV)
	if err := writable(dir); err != nil {
		checks["log_dir"] = map[string]any{"ok": false, "error": err.Error()}
		allOK = false
	} else {
		checks["log_dir"] = map[string]any{"ok": true, "path": dir}
	}

	if a.configPath != "" {
		if _, err := os.Stat(a.configPath); err != nil {
			checks["config_file"] = map[string]any{"ok": false, "error": err.Error()}
			allOK = false
		} else {
			checks["config_file"] = map[string]any{"ok": true, "path": a.configPath}
		}
	}

	state := a.state.Load().(string)
	trackerOK := state != StateFailed
	checks["tracker"] = map[string]any{"ok": trackerOK, "state": state}
	if !trackerOK {
		allOK = false
	}

	status := http.StatusOK
	if !allOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"healthy": allOK,
		"checks":  checks,
	})
}

func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	s, events := a.snapshot()

	resp := map[string]any{
		"name":           "playtrack",
		"state":          a.state.Load().(string),
		"tracking":       a.running.Load(),
		"uptime_seconds": int64(time.Since(a.startedAt).Seconds()),
		"target":         a.tracker.Target,
		"csv":            a.cfg.Output.CSV,
		"poll_ms":        a.cfg.Tracker.PollIntervalMS,
		"ws_clients":     a.wsHub.Clients(),
		"session":        s,
	}
	if a.cfg.Demo.Enabled {
		resp["mode"] = "demo"
	} else {
		resp["mode"] = "live"
		resp["serial"] = a.cfg.Device.Serial
	}
	if len(events) > 0 {
		resp["last_event"] = events[len(events)-1]
	}
	if du := diskUsage(r.Context(), logDir(a.cfg.Output.CSV)); du != nil {
		resp["disk"] = du
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *App) handleEvents(w http.ResponseWriter, r *http.Request) {
	_, events := a.snapshot()

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 0 {
			jsonError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		if n > 0 && n < len(events) {
			events = events[len(events)-n:]
		}
	}
	if events == nil {
		events = []eventlog.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (a *App) handleVersion(w http.ResponseWriter, r *http.Request) {
	goVersion := GoVersion
	if goVersion == "unknown" {
		goVersion = runtime.Version()
	}
	resp := map[string]any{
		"version":    Version,
		"go_version": goVersion,
		"built_at":   BuiltAt,
	}
	if h := hostInfo(r.Context()); h != nil {
		resp["host"] = h
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCommand forwards an operator command to the tracker and relays its
// reply.
func (a *App) handleCommand(cmdType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ended := a.sessionEnded()
		if ended == nil || !a.running.Load() {
			jsonError(w, "no tracking session is running", http.StatusConflict)
			return
		}

		reply := make(chan tracker.CommandResult, 1)
		select {
		case a.tracker.Commands <- tracker.Command{Type: cmdType, Reply: reply}:
		case <-r.Context().Done():
			return
		default:
			jsonError(w, "tracker command queue is full", http.StatusServiceUnavailable)
			return
		}

		select {
		case result := <-reply:
			writeCommandResult(w, result)
		case <-ended:
			// The run may have answered on its way out.
			msg := "tracking session has ended"
			select {
			case result := <-reply:
				if result.OK {
					writeCommandResult(w, result)
					return
				}
				msg = result.Error
			default:
			}
			jsonError(w, msg, http.StatusConflict)
		case <-time.After(commandTimeout):
			jsonError(w, "tracker did not answer", http.StatusGatewayTimeout)
		case <-r.Context().Done():
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]any{
		"ok":    false,
		"error": msg,
	})
}

// writeCommandResult writes a tracker.CommandResult as JSON.
func writeCommandResult(w http.ResponseWriter, result tracker.CommandResult) {
	status := http.StatusOK
	if !result.OK {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, result)
}
