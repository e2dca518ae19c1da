// Package configuration reads the relay hub's Lua configuration file.
package configuration

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bitmark-inc/logger"
)

// basic defaults (the log directory is relative to the configuration file)
const (
	defaultListen         = "tcp://0.0.0.0:3001"
	defaultMetrics        = "127.0.0.1:9301"
	defaultGRPC           = "127.0.0.1:9302"
	defaultRequestTimeout = "30s"
	defaultPruneInterval  = "10s"
	defaultStaleTimeout   = "60s"
	defaultSweepInterval  = "1s"
	defaultMailboxSize    = 1000
	defaultRateLimit      = 200
	defaultRateBurst      = 400
	defaultJournalSize    = 1024

	defaultLogDirectory = "log"
	defaultLogFile      = "relay.log"
	defaultLogCount     = 10          //  number of log files retained
	defaultLogSize      = 1024 * 1024 // rotate when <logfile> exceeds this size
)

// validation errors
var (
	ErrMissingListen   = errors.New("listen address is empty")
	ErrInvalidDuration = errors.New("invalid duration")
	ErrInvalidSize     = errors.New("invalid size")
)

// LoglevelMap holds log levels by tag
type LoglevelMap map[string]string

var defaultLogLevels = LoglevelMap{
	logger.DefaultTag: "info",
}

// Timing holds the parsed duration settings.
type Timing struct {
	RequestTimeout time.Duration
	PruneInterval  time.Duration
	StaleTimeout   time.Duration
	SweepInterval  time.Duration
}

// Configuration is the contents of the configuration file.
type Configuration struct {
	Listen         string               `gluamapper:"listen" json:"listen"`
	Metrics        string               `gluamapper:"metrics" json:"metrics"`
	GRPC           string               `gluamapper:"grpc" json:"grpc"`
	RequestTimeout string               `gluamapper:"request_timeout" json:"request_timeout"`
	PruneInterval  string               `gluamapper:"prune_interval" json:"prune_interval"`
	StaleTimeout   string               `gluamapper:"stale_timeout" json:"stale_timeout"`
	SweepInterval  string               `gluamapper:"sweep_interval" json:"sweep_interval"`
	MailboxSize    int                  `gluamapper:"mailbox_size" json:"mailbox_size"`
	RateLimit      float64              `gluamapper:"rate_limit" json:"rate_limit"`
	RateBurst      int                  `gluamapper:"rate_burst" json:"rate_burst"`
	JournalSize    int                  `gluamapper:"journal_size" json:"journal_size"`
	Logging        logger.Configuration `gluamapper:"logging" json:"logging"`

	timing Timing
}

// DefaultConfiguration returns the settings used for keys the file omits.
func DefaultConfiguration() *Configuration {
	levels := make(map[string]string, len(defaultLogLevels))
	for tag, level := range defaultLogLevels {
		levels[tag] = level
	}

	c := &Configuration{
		Listen:         defaultListen,
		Metrics:        defaultMetrics,
		GRPC:           defaultGRPC,
		RequestTimeout: defaultRequestTimeout,
		PruneInterval:  defaultPruneInterval,
		StaleTimeout:   defaultStaleTimeout,
		SweepInterval:  defaultSweepInterval,
		MailboxSize:    defaultMailboxSize,
		RateLimit:      defaultRateLimit,
		RateBurst:      defaultRateBurst,
		JournalSize:    defaultJournalSize,

		Logging: logger.Configuration{
			Directory: defaultLogDirectory,
			File:      defaultLogFile,
			Size:      defaultLogSize,
			Count:     defaultLogCount,
			Levels:    levels,
		},
	}
	if err := c.Validate(); nil != err {
		panic(err)
	}
	return c
}

// Load reads, decodes and verifies the configuration file. The log
// directory is made absolute relative to the file and created.
func Load(fileName string) (*Configuration, error) {
	fileName, err := filepath.Abs(filepath.Clean(fileName))
	if nil != err {
		return nil, err
	}

	options := DefaultConfiguration()
	if err := ParseConfigurationFile(fileName, options); nil != err {
		return nil, err
	}

	if err := options.Validate(); nil != err {
		return nil, err
	}

	if !filepath.IsAbs(options.Logging.Directory) {
		options.Logging.Directory = filepath.Join(filepath.Dir(fileName), options.Logging.Directory)
	}
	options.Logging.Directory = filepath.Clean(options.Logging.Directory)

	if filepath.Base(options.Logging.File) != options.Logging.File {
		return nil, fmt.Errorf("log file: %q is not plain name", options.Logging.File)
	}

	if err := os.MkdirAll(options.Logging.Directory, 0700); nil != err {
		return nil, err
	}

	return options, nil
}

// Validate checks the settings and parses the durations.
func (c *Configuration) Validate() error {
	if c.Listen == "" {
		return ErrMissingListen
	}

	fields := []struct {
		name  string
		value string
		to    *time.Duration
	}{
		{"request_timeout", c.RequestTimeout, &c.timing.RequestTimeout},
		{"prune_interval", c.PruneInterval, &c.timing.PruneInterval},
		{"stale_timeout", c.StaleTimeout, &c.timing.StaleTimeout},
		{"sweep_interval", c.SweepInterval, &c.timing.SweepInterval},
	}
	for _, f := range fields {
		d, err := time.ParseDuration(f.value)
		if nil != err {
			return fmt.Errorf("%w: %s: %v", ErrInvalidDuration, f.name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%w: %s: %q must be positive", ErrInvalidDuration, f.name, f.value)
		}
		*f.to = d
	}

	if c.MailboxSize <= 0 {
		return fmt.Errorf("%w: mailbox_size: %d", ErrInvalidSize, c.MailboxSize)
	}
	if c.JournalSize <= 0 {
		return fmt.Errorf("%w: journal_size: %d", ErrInvalidSize, c.JournalSize)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: rate_limit: %v", ErrInvalidSize, c.RateLimit)
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		return fmt.Errorf("%w: rate_burst: %d", ErrInvalidSize, c.RateBurst)
	}

	return nil
}

// Timing returns the durations parsed by Validate.
func (c *Configuration) Timing() Timing {
	return c.timing
}
