package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bitmark-inc/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	dir := t.TempDir()
	fileName := filepath.Join(dir, "relay.conf")
	require.NoError(t, os.WriteFile(fileName, []byte(body), 0600))
	return fileName
}

func TestDefaultConfiguration(t *testing.T) {
	c := DefaultConfiguration()

	assert.Equal(t, "tcp://0.0.0.0:3001", c.Listen)
	assert.Equal(t, "127.0.0.1:9302", c.GRPC)
	assert.Equal(t, Timing{
		RequestTimeout: 30 * time.Second,
		PruneInterval:  10 * time.Second,
		StaleTimeout:   60 * time.Second,
		SweepInterval:  time.Second,
	}, c.Timing())
	assert.Equal(t, "info", c.Logging.Levels[logger.DefaultTag])

	// each default owns its level map
	c.Logging.Levels["hub"] = "debug"
	assert.NotContains(t, DefaultConfiguration().Logging.Levels, "hub")
}

func TestLoad(t *testing.T) {
	fileName := writeConfig(t, `
local port = 4001
return {
    listen = "tcp://127.0.0.1:" .. port,
    metrics = "",
    grpc = "127.0.0.1:5001",
    request_timeout = "5s",
    sweep_interval = "250ms",
    mailbox_size = 64,
    rate_limit = 0,
    journal_size = 16,
    logging = {
        directory = "logs",
        file = "hub.log",
        size = 2048,
        count = 3,
        console = true,
        levels = {
            ["*"] = "warn",
            tracker = "debug",
        },
    },
}
`)

	c, err := Load(fileName)
	require.NoError(t, err)

	assert.Equal(t, "tcp://127.0.0.1:4001", c.Listen)
	assert.Equal(t, "", c.Metrics)
	assert.Equal(t, "127.0.0.1:5001", c.GRPC)
	assert.Equal(t, 5*time.Second, c.Timing().RequestTimeout)
	assert.Equal(t, 250*time.Millisecond, c.Timing().SweepInterval)
	assert.Equal(t, 10*time.Second, c.Timing().PruneInterval, "missing key keeps default")
	assert.Equal(t, 64, c.MailboxSize)
	assert.Equal(t, float64(0), c.RateLimit)
	assert.Equal(t, 400, c.RateBurst)
	assert.Equal(t, 16, c.JournalSize)

	assert.Equal(t, filepath.Join(filepath.Dir(fileName), "logs"), c.Logging.Directory)
	assert.DirExists(t, c.Logging.Directory)
	assert.Equal(t, "hub.log", c.Logging.File)
	assert.Equal(t, 2048, c.Logging.Size)
	assert.Equal(t, 3, c.Logging.Count)
	assert.True(t, c.Logging.Console)
	assert.Equal(t, "warn", c.Logging.Levels["*"])
	assert.Equal(t, "debug", c.Logging.Levels["tracker"])
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
	}{
		{"empty listen", `return { listen = "" }`, ErrMissingListen},
		{"bad duration", `return { request_timeout = "soon" }`, ErrInvalidDuration},
		{"zero interval", `return { sweep_interval = "0s" }`, ErrInvalidDuration},
		{"negative interval", `return { prune_interval = "-1s" }`, ErrInvalidDuration},
		{"zero mailbox", `return { mailbox_size = 0 }`, ErrInvalidSize},
		{"negative rate", `return { rate_limit = -1 }`, ErrInvalidSize},
		{"no table", `return 42`, ErrNotTable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestLoadLuaError(t *testing.T) {
	_, err := Load(writeConfig(t, `return {`))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.conf"))
	assert.Error(t, err)
}

func TestLoadRejectsLogPath(t *testing.T) {
	_, err := Load(writeConfig(t, `return { logging = { file = "sub/relay.log" } }`))
	assert.Error(t, err)
}

func TestParseConfigurationFileNeedsStructPointer(t *testing.T) {
	fileName := writeConfig(t, `return { listen = "x" }`)

	var c Configuration
	assert.ErrorIs(t, ParseConfigurationFile(fileName, c), ErrInvalidStructPointer)
	assert.ErrorIs(t, ParseConfigurationFile(fileName, nil), ErrInvalidStructPointer)

	s := "x"
	assert.ErrorIs(t, ParseConfigurationFile(fileName, &s), ErrInvalidStructPointer)

	assert.NoError(t, ParseConfigurationFile(fileName, &c))
	assert.Equal(t, "x", c.Listen)
}

func TestArgGlobal(t *testing.T) {
	fileName := writeConfig(t, `return { listen = "tcp://" .. (arg[0] ~= nil and "127.0.0.1" or "none") .. ":1" }`)

	var c Configuration
	require.NoError(t, ParseConfigurationFile(fileName, &c))
	assert.Equal(t, "tcp://127.0.0.1:1", c.Listen)
}
