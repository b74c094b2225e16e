package rosbridge

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Config carries the tunables of a Session: the rosbridge URL, reconnect
// backoff envelope, default subscription buffer depth, and logging. It is
// built from Options passed to Dial rather than constructed directly, the
// way the rest of the corpus favors functional options over exported
// struct literals for anything with more than a couple of fields.
type Config struct {
	URL string

	BackoffInitial time.Duration
	BackoffMax     time.Duration
	BackoffJitter  float64

	DefaultQueueLength int

	// CallTimeout bounds a service call when the caller's context carries no
	// deadline of its own. Zero, the default, means wait indefinitely for a
	// response or disconnect.
	CallTimeout time.Duration

	AutoReconnect bool

	Logger *logrus.Logger
}

func defaultConfig(url string) Config {
	return Config{
		URL:                url,
		BackoffInitial:     250 * time.Millisecond,
		BackoffMax:         30 * time.Second,
		BackoffJitter:      0.25,
		DefaultQueueLength: 10,
		CallTimeout:        0,
		AutoReconnect:      true,
		Logger:             DefaultLogger(),
	}
}

// Option configures a Session at Dial time.
type Option func(*Config)

// WithLogger overrides the default package-wide logger.
func WithLogger(l *logrus.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithBackoff overrides the reconnect backoff envelope (spec.md §4.6):
// initial is the first retry delay, max caps the exponential growth, and
// jitter is the fractional +/- randomization applied to each delay.
func WithBackoff(initial, max time.Duration, jitter float64) Option {
	return func(c *Config) {
		c.BackoffInitial = initial
		c.BackoffMax = max
		c.BackoffJitter = jitter
	}
}

// WithDefaultQueueLength overrides the default bounded buffer depth used by
// Subscribe when no per-call override is given.
func WithDefaultQueueLength(n int) Option {
	return func(c *Config) { c.DefaultQueueLength = n }
}

// WithCallTimeout overrides the default deadline applied to CallService when
// the caller's context carries none.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Config) { c.CallTimeout = d }
}

// WithAutoReconnect toggles automatic reconnection on involuntary socket
// loss. Disabling it means a dropped connection moves the session to
// Disconnected rather than Connecting and no redial is attempted. Pending
// service calls fail with ErrDisconnected either way; live Subscriber and
// Publisher handles are not closed and do not fail with ErrDisconnected.
func WithAutoReconnect(enabled bool) Option {
	return func(c *Config) { c.AutoReconnect = enabled }
}

// fileConfig mirrors the subset of Config that's reasonable to express in
// a TOML file; durations are given in milliseconds since encoding/toml (and
// BurntSushi/toml) don't natively decode time.Duration.
type fileConfig struct {
	URL                string  `toml:"url"`
	BackoffInitialMs   int64   `toml:"backoff_initial_ms"`
	BackoffMaxMs       int64   `toml:"backoff_max_ms"`
	BackoffJitter      float64 `toml:"backoff_jitter"`
	DefaultQueueLength int     `toml:"default_queue_length"`
	CallTimeoutMs      int64   `toml:"call_timeout_ms"`
}

// LoadConfigFile reads a TOML file of connection defaults and returns
// Options for the fields it set. The backoff keys are applied together: if
// any of them is set, an unset backoff_initial_ms or backoff_max_ms falls
// back to 250ms or 30s and an unset backoff_jitter becomes 0. The url key is
// decoded but produces no Option; the session always dials the URL passed
// to Dial. This is a convenience for callers that keep deployment-specific
// bridge settings (backoff envelope, queue depth, call timeout) out of
// source, and is entirely optional — Dial works fine with Options alone.
func LoadConfigFile(path string) ([]Option, error) {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return nil, errors.Wrapf(err, "loading rosbridge config %q", path)
	}

	var opts []Option
	if fc.BackoffInitialMs > 0 || fc.BackoffMaxMs > 0 || fc.BackoffJitter > 0 {
		initial := time.Duration(fc.BackoffInitialMs) * time.Millisecond
		max := time.Duration(fc.BackoffMaxMs) * time.Millisecond
		if initial <= 0 {
			initial = 250 * time.Millisecond
		}
		if max <= 0 {
			max = 30 * time.Second
		}
		opts = append(opts, WithBackoff(initial, max, fc.BackoffJitter))
	}
	if fc.DefaultQueueLength > 0 {
		opts = append(opts, WithDefaultQueueLength(fc.DefaultQueueLength))
	}
	if fc.CallTimeoutMs > 0 {
		opts = append(opts, WithCallTimeout(time.Duration(fc.CallTimeoutMs)*time.Millisecond))
	}
	return opts, nil
}
