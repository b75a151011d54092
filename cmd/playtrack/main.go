// Playtrack triggers an install or update on the Play Store details page of
// an Android device and records the download progress to a CSV log until the
// install completes.
//
// It loads configuration, optionally starts the HTTP/WebSocket server, and
// tracks either a real device over adb or a simulated one in demo mode.
// Shutdown is handled gracefully on SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/large-farva/playtrack/internal/app"
	"github.com/large-farva/playtrack/internal/config"
	"github.com/large-farva/playtrack/internal/demo"
	"github.com/large-farva/playtrack/internal/device"
	"github.com/large-farva/playtrack/internal/eventlog"
	"github.com/large-farva/playtrack/internal/logging"
	"github.com/large-farva/playtrack/internal/metrics"
	"github.com/large-farva/playtrack/internal/tracker"
)

// Exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

// foregroundWait bounds how long the Play Store may take to come up, and
// how long the trigger looks for an install control.
const foregroundWait = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  = pflag.StringP("config", "c", "", "Path to config TOML")
		serial      = pflag.StringP("serial", "s", "", "Device serial (adb -s)")
		user        = pflag.String("user", "", "Android user id")
		pkg         = pflag.StringP("package", "p", "", "Package to install or update")
		csvPath     = pflag.StringP("csv", "o", "", "CSV progress log")
		pollMS      = pflag.Int("poll", 0, "Poll interval in milliseconds")
		bind        = pflag.String("bind", "", "HTTP bind address (implies --serve)")
		serve       = pflag.Bool("serve", false, "Start the HTTP/WebSocket server")
		skipTrigger = pflag.Bool("skip-trigger", false, "Do not press Install/Update, only track")
		demoMode    = pflag.Bool("demo", false, "Track a simulated device")
		logLevel    = pflag.String("log-level", "", "Log level (debug, info, warn, error)")
	)
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config load failed:", err)
		return exitFailure
	}

	// Flags override the file.
	if *serial != "" {
		cfg.Device.Serial = *serial
	}
	if *user != "" {
		cfg.Device.User = *user
	}
	if *pkg != "" {
		cfg.Target.Package = *pkg
	}
	if *csvPath != "" {
		cfg.Output.CSV = *csvPath
	}
	if *pollMS != 0 {
		cfg.Tracker.PollIntervalMS = *pollMS
	}
	if *bind != "" {
		cfg.Server.Bind = *bind
		cfg.Server.Enabled = true
	}
	if *serve {
		cfg.Server.Enabled = true
	}
	if *skipTrigger {
		cfg.Tracker.SkipTrigger = true
	}
	if *demoMode {
		cfg.Demo.Enabled = true
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		return exitFailure
	}

	logger := logging.New(cfg.Logging.Level)
	m := metrics.New()

	sink, err := openSinks(cfg, logger, m)
	if err != nil {
		logger.Error("open event log failed", "error", err)
		return exitFailure
	}
	defer sink.Close()

	src, prepare := buildSource(cfg, logger)

	tr := tracker.New(src, sink, cfg.Target.Package, logger)
	tr.Interval = cfg.PollInterval()
	tr.Settle = cfg.Settle()
	tr.CompletionTexts = cfg.Tracker.CompletionTexts
	tr.FailureTexts = cfg.Tracker.FailureTexts

	if cfg.Tracker.SkipTrigger {
		prepare = nil
	}

	a := app.New(app.Options{
		Logger:     logger,
		Cfg:        cfg,
		ConfigPath: *configPath,
		Tracker:    tr,
		Metrics:    m,
		Prepare:    prepare,
	})

	// Echo every appended event on stdout, next to the CSV row.
	broadcast := tr.OnEvent
	tr.OnEvent = func(e eventlog.Event) {
		broadcast(e)
		fmt.Printf("%s  %3d%%  %-10s %s\n", e.Timestamp.Format("15:04:05"), e.Percent, e.Size, e.Status)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := a.Run(ctx)
	return report(logger, cfg, s, err)
}

// openSinks opens the CSV log and attaches the configured mirrors.
func openSinks(cfg config.Config, logger *slog.Logger, m *metrics.Metrics) (eventlog.Sink, error) {
	primary, err := eventlog.OpenCSV(cfg.Output.CSV)
	if err != nil {
		return nil, err
	}

	mirrors := map[string]eventlog.Sink{}
	if cfg.Store.SQLitePath != "" {
		store, err := eventlog.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			logger.Warn("sqlite mirror disabled", "path", cfg.Store.SQLitePath, "error", err)
		} else {
			mirrors["sqlite"] = store
		}
	}
	if len(cfg.Elasticsearch.Addresses) > 0 {
		es, err := eventlog.NewElasticSink(cfg.Elasticsearch.Addresses, cfg.Elasticsearch.Index)
		if err != nil {
			logger.Warn("elasticsearch mirror disabled", "error", err)
		} else {
			mirrors["elasticsearch"] = es
		}
	}
	if cfg.Redis.Addr != "" {
		mirrors["redis"] = eventlog.NewRedisSink(cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.Channel)
	}

	if len(mirrors) == 0 {
		return primary, nil
	}
	names := make([]string, 0, len(mirrors))
	for name := range mirrors {
		names = append(names, name)
	}
	logger.Info("event mirrors enabled", "mirrors", names)

	return &eventlog.Fanout{
		Primary: primary,
		Mirrors: mirrors,
		Log:     logger,
		OnMirrorError: func(name string, _ error) {
			m.MirrorErrors.WithLabelValues(name).Inc()
		},
	}, nil
}

// buildSource returns the snapshot source and the step that triggers the
// install before tracking.
func buildSource(cfg config.Config, logger *slog.Logger) (tracker.Source, func(context.Context) error) {
	if cfg.Demo.Enabled {
		d := demo.New(cfg.Target.Package, cfg.Demo.StepPercent, cfg.Demo.TotalMB)
		logger.Info("demo mode", "package", cfg.Target.Package)
		return d, func(ctx context.Context) error {
			label, err := d.Press(ctx)
			if err == nil {
				logger.Info("pressed install control", "label", label)
			}
			return err
		}
	}

	client := device.NewClient(cfg.Device.ADB, cfg.Device.Serial, cfg.Device.User, cfg.CommandTimeout())
	ui := device.NewUI(client)
	trigger := &device.Trigger{
		Client:          client,
		UI:              ui,
		ActionTexts:     cfg.Tracker.ActionTexts,
		CompletionTexts: cfg.Tracker.CompletionTexts,
		Wait:            foregroundWait,
		Log:             logger,
	}
	return ui, func(ctx context.Context) error {
		if err := client.LaunchDetails(ctx, cfg.Target.Package); err != nil {
			return err
		}
		if err := client.WaitForeground(ctx, device.PlayStorePackage, foregroundWait); err != nil {
			return err
		}
		label, err := trigger.Press(ctx)
		if err != nil {
			return err
		}
		logger.Info("pressed install control", "label", label)
		return nil
	}
}

// report logs the outcome and maps it to an exit code.
func report(logger *slog.Logger, cfg config.Config, s *tracker.Session, err error) int {
	switch {
	case err == nil:
		logger.Info("install complete",
			"package", cfg.Target.Package,
			"session", s.ID,
			"events", s.Emitted,
			"elapsed", time.Since(s.Started).Round(time.Second),
			"csv", cfg.Output.CSV,
		)
		return exitOK
	case errors.Is(err, device.ErrAlreadyInstalled):
		logger.Info("already installed, nothing to track", "package", cfg.Target.Package)
		return exitOK
	case errors.Is(err, context.Canceled), errors.Is(err, tracker.ErrCancelled):
		logger.Warn("tracking interrupted", "reason", err, "csv", cfg.Output.CSV)
		return exitInterrupted
	default:
		logger.Error("playtrack failed", "error", err)
		return exitFailure
	}
}
