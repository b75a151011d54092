// Package config handles loading, defaulting, and validation of the playtrack
// TOML configuration file. Every section maps to a typed struct so the rest
// of the codebase gets strong typing without manual key lookups.
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level configuration, mirroring the TOML sections.
type Config struct {
	Device        DeviceConfig        `toml:"device"        json:"device"`
	Target        TargetConfig        `toml:"target"        json:"target"`
	Tracker       TrackerConfig       `toml:"tracker"       json:"tracker"`
	Output        OutputConfig        `toml:"output"        json:"output"`
	Logging       LoggingConfig       `toml:"logging"       json:"logging"`
	Server        ServerConfig        `toml:"server"        json:"server"`
	Store         StoreConfig         `toml:"store"         json:"store"`
	Elasticsearch ElasticsearchConfig `toml:"elasticsearch" json:"elasticsearch"`
	Redis         RedisConfig         `toml:"redis"         json:"redis"`
	Demo          DemoConfig          `toml:"demo"          json:"demo"`
}

type DeviceConfig struct {
	ADB                   string `toml:"adb"                     json:"adb"`
	Serial                string `toml:"serial"                  json:"serial"`
	User                  string `toml:"user"                    json:"user"`
	CommandTimeoutSeconds int    `toml:"command_timeout_seconds" json:"command_timeout_seconds"`
}

type TargetConfig struct {
	Package string `toml:"package" json:"package"`
}

type TrackerConfig struct {
	PollIntervalMS  int      `toml:"poll_interval_ms" json:"poll_interval_ms"`
	SettleMS        int      `toml:"settle_ms"        json:"settle_ms"`
	ActionTexts     []string `toml:"action_texts"     json:"action_texts"`
	CompletionTexts []string `toml:"completion_texts" json:"completion_texts"`
	FailureTexts    []string `toml:"failure_texts"    json:"failure_texts"`
	SkipTrigger     bool     `toml:"skip_trigger"     json:"skip_trigger"`
}

type OutputConfig struct {
	CSV string `toml:"csv" json:"csv"`
}

type LoggingConfig struct {
	Level string `toml:"level" json:"level"`
}

type ServerConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Bind    string `toml:"bind"    json:"bind"`
	// LingerSeconds keeps the server up after the session ended so clients
	// can read the final state.
	LingerSeconds int `toml:"linger_seconds" json:"linger_seconds"`
}

type StoreConfig struct {
	SQLitePath string `toml:"sqlite_path" json:"sqlite_path"`
}

type ElasticsearchConfig struct {
	Addresses []string `toml:"addresses" json:"addresses"`
	Index     string   `toml:"index"     json:"index"`
}

type RedisConfig struct {
	Addr    string `toml:"addr"    json:"addr"`
	DB      int    `toml:"db"      json:"db"`
	Channel string `toml:"channel" json:"channel"`
}

type DemoConfig struct {
	Enabled     bool    `toml:"enabled"      json:"enabled"`
	StepPercent int     `toml:"step_percent" json:"step_percent"`
	TotalMB     float64 `toml:"total_mb"     json:"total_mb"`
}

// Default returns a Config populated with sane defaults. Values here are
// used whenever the TOML file omits a field.
func Default() Config {
	return Config{
		Device: DeviceConfig{
			ADB:                   "adb",
			User:                  "0",
			CommandTimeoutSeconds: 10,
		},
		Target: TargetConfig{
			Package: "com.instagram.android",
		},
		Tracker: TrackerConfig{
			PollIntervalMS:  700,
			SettleMS:        2000,
			ActionTexts:     []string{"Update", "Install"},
			CompletionTexts: []string{"Open"},
		},
		Output: OutputConfig{
			CSV: "playstore_progress.csv",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Enabled: false,
			Bind:    "127.0.0.1:8077",
		},
		Elasticsearch: ElasticsearchConfig{
			Index: "playtrack-events",
		},
		Redis: RedisConfig{
			Channel: "playtrack:events",
		},
		Demo: DemoConfig{
			Enabled:     false,
			StepPercent: 7,
			TotalMB:     84.9,
		},
	}
}

// Load reads the TOML file at path, layers it on top of the defaults, and
// validates the result. An empty path yields the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, validate(cfg)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}

	if err := validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate re-checks a config after CLI flag overrides were applied.
func Validate(cfg Config) error {
	return validate(cfg)
}

// PollInterval is the delay between two tracker ticks.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Tracker.PollIntervalMS) * time.Millisecond
}

// Settle is the delay before the first tick so the UI can draw.
func (c Config) Settle() time.Duration {
	return time.Duration(c.Tracker.SettleMS) * time.Millisecond
}

// Linger is how long the server outlives the session.
func (c Config) Linger() time.Duration {
	return time.Duration(c.Server.LingerSeconds) * time.Second
}

// CommandTimeout bounds every adb invocation.
func (c Config) CommandTimeout() time.Duration {
	return time.Duration(c.Device.CommandTimeoutSeconds) * time.Second
}

func validate(cfg Config) error {
	if cfg.Target.Package == "" {
		return errors.New("target.package must not be empty")
	}
	if cfg.Output.CSV == "" {
		return errors.New("output.csv must not be empty")
	}
	if cfg.Tracker.PollIntervalMS < 50 || cfg.Tracker.PollIntervalMS > 10000 {
		return errors.New("tracker.poll_interval_ms must be between 50 and 10000")
	}
	if cfg.Tracker.SettleMS < 0 {
		return errors.New("tracker.settle_ms must be >= 0")
	}
	if len(cfg.Tracker.CompletionTexts) == 0 {
		return errors.New("tracker.completion_texts must not be empty")
	}
	if cfg.Device.CommandTimeoutSeconds < 1 {
		return errors.New("device.command_timeout_seconds must be >= 1")
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("logging.level must be one of debug, info, warn, error")
	}
	if cfg.Server.Enabled && cfg.Server.Bind == "" {
		return errors.New("server.bind must not be empty when the server is enabled")
	}
	if cfg.Server.LingerSeconds < 0 {
		return errors.New("server.linger_seconds must be >= 0")
	}
	if len(cfg.Elasticsearch.Addresses) > 0 && cfg.Elasticsearch.Index == "" {
		return errors.New("elasticsearch.index must not be empty")
	}
	if cfg.Redis.Addr != "" && cfg.Redis.Channel == "" {
		return errors.New("redis.channel must not be empty")
	}
	if cfg.Demo.Enabled && (cfg.Demo.StepPercent < 1 || cfg.Demo.StepPercent > 100) {
		return errors.New("demo.step_percent must be between 1 and 100")
	}
	if cfg.Demo.TotalMB < 0 {
		return errors.New("demo.total_mb must be >= 0")
	}
	return nil
}
