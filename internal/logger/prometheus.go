package logger

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// LevelCounter is a zerolog hook counting log statements per level as
// rolesync_log_statements_total.
type LevelCounter struct {
	vec *prometheus.CounterVec
}

// NewLevelCounter registers the counter of service with reg. Registering the
// same service twice returns a counter sharing the existing series, so the
// logger can be initialized more than once.
func NewLevelCounter(reg prometheus.Registerer, service string) (*LevelCounter, error) {
	vec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "rolesync",
			Subsystem:   "log",
			Name:        "statements_total",
			Help:        "Number of log statements by level.",
			ConstLabels: prometheus.Labels{"service": service},
		},
		[]string{"level"},
	)

	if reg == nil {
		return &LevelCounter{vec: vec}, nil
	}

	if err := reg.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err //nolint:wrapcheck
		}

		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err //nolint:wrapcheck
		}

		vec = existing
	}

	return &LevelCounter{vec: vec}, nil
}

// Run implements zerolog.Hook.
func (c *LevelCounter) Run(_ *zerolog.Event, level zerolog.Level, _ string) {
	if level != zerolog.NoLevel {
		c.vec.WithLabelValues(level.String()).Inc()
	}
}
