package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "playtrack.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 700*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, 2*time.Second, cfg.Settle())
	assert.Equal(t, 10*time.Second, cfg.CommandTimeout())
	assert.Equal(t, []string{"Open"}, cfg.Tracker.CompletionTexts)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
[device]
serial = "emulator-5554"

[target]
package = "org.example.app"

[tracker]
poll_interval_ms = 250

[redis]
addr = "127.0.0.1:6379"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "emulator-5554", cfg.Device.Serial)
	assert.Equal(t, "adb", cfg.Device.ADB, "untouched fields keep defaults")
	assert.Equal(t, "org.example.app", cfg.Target.Package)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, "playtrack:events", cfg.Redis.Channel)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"poll too fast":  "[tracker]\npoll_interval_ms = 1\n",
		"no completion":  "[tracker]\ncompletion_texts = []\n",
		"bad level":      "[logging]\nlevel = \"loud\"\n",
		"empty csv":      "[output]\ncsv = \"\"\n",
		"server no bind": "[server]\nenabled = true\nbind = \"\"\n",
		"demo step":      "[demo]\nenabled = true\nstep_percent = 0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadMalformedTOML(t *testing.T) {
	_, err := Load(writeConfig(t, "[tracker\n"))
	assert.Error(t, err)
}
