// Package gorm bridges gorm's statement logging into zerolog.
package gorm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	gormlogger "gorm.io/gorm/logger"

	"gorm.io/gorm"
)

// Logger implements gorm's logger.Interface on top of the global zerolog logger.
type Logger struct {
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

// New creates a gorm logger from a zerolog level name. An empty or unknown
// name silences statement logging; errors are still reported.
func New(level string) *Logger {
	l := &Logger{level: gormlogger.Error, slowThreshold: 200 * time.Millisecond} //nolint:mnd

	switch strings.ToLower(level) {
	case "trace", "debug", "info":
		l.level = gormlogger.Info
	case "warn":
		l.level = gormlogger.Warn
	}

	return l
}

// LogMode implements logger.Interface.
func (l *Logger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	n := *l
	n.level = level

	return &n
}

// Info implements logger.Interface.
func (l *Logger) Info(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		log.Info().Str("component", "gorm").Msg(fmt.Sprintf(msg, args...))
	}
}

// Warn implements logger.Interface.
func (l *Logger) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		log.Warn().Str("component", "gorm").Msg(fmt.Sprintf(msg, args...))
	}
}

// Error implements logger.Interface.
func (l *Logger) Error(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		log.Error().Str("component", "gorm").Msg(fmt.Sprintf(msg, args...))
	}
}

// Trace implements logger.Interface.
func (l *Logger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)

	var event *zerolog.Event

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		event = log.Error().Err(err)
	case elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		event = log.Warn().Bool("slow", true)
	case l.level >= gormlogger.Info:
		event = log.Debug()
	default:
		return
	}

	sql, rows := fc()
	event.Str("component", "gorm").
		Dur("elapsed", elapsed).
		Int64("rows", rows).
		Str("sql", sql).
		Msg("sql statement")
}
