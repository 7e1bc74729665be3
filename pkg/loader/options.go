package loader

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Loader.
type Option func(*Loader)

// WithJoinPolicy sets the behavior for requests that arrive while a load is
// in flight. The default is JoinDrop.
func WithJoinPolicy(p JoinPolicy) Option {
	return func(l *Loader) {
		l.join = p
	}
}

// WithRetryPolicy sets the behavior for requests of Failed keys. The default
// is RetryOnRequest.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(l *Loader) {
		l.retry = p
	}
}

// WithLogger sets the diagnostics sink. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithRegisterer registers the loader metrics on reg. Without it the
// metrics are collected but never exported.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(l *Loader) {
		l.reg = reg
	}
}
