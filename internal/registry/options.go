package registry

import (
	"log/slog"
	"time"
)

// DefaultDependencyTimeout bounds how long a registration waits for its
// dependencies: 100 checks 50ms apart.
const DefaultDependencyTimeout = 100 * 50 * time.Millisecond

// Option configures a Registry at construction time.
type Option func(*config)

type config struct {
	logger            *slog.Logger
	recorder          Recorder
	dependencyTimeout time.Duration
	strict            bool
	autoPlay          bool
}

func defaultConfig() config {
	return config{
		logger:            slog.New(slog.DiscardHandler),
		recorder:          nopRecorder{},
		dependencyTimeout: DefaultDependencyTimeout,
	}
}

// WithLogger sets the logger used for advisory diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder attaches a Recorder.
func WithRecorder(r Recorder) Option {
	return func(c *config) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithDependencyTimeout sets how long each registration waits for its
// dependencies. Values <= 0 keep DefaultDependencyTimeout.
func WithDependencyTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.dependencyTimeout = d
		}
	}
}

// WithStrict turns unresolved dependencies into session errors. Fallbacks
// are not consulted, failures are reported by Err and Wait, and auto-play is
// suppressed once any failure was recorded.
func WithStrict() Option {
	return func(c *config) {
		c.strict = true
	}
}

// WithAutoPlay calls Play on the timeline when the registry becomes ready.
func WithAutoPlay() Option {
	return func(c *config) {
		c.autoPlay = true
	}
}
