// Package logger initializes the global zerolog logger used by every package.
package logger

import (
	"fmt"
	"io"
	"os"
	"path"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ComponentField is the field Component tags events with.
const ComponentField = "component"

// LevelWriter routes an event to one writer per level group.
type LevelWriter struct {
	io.Writer
	ErrorWriter io.Writer
	InfoWriter  io.Writer
	TraceWriter io.Writer
	WarnWriter  io.Writer
}

// WriteLevel writes trace, warn and error events to their own writer. Debug
// and info share InfoWriter, fatal and panic go to ErrorWriter.
func (lw *LevelWriter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	var w io.Writer

	switch {
	case l == zerolog.Disabled:
		return 0, nil
	case l == zerolog.TraceLevel:
		w = lw.TraceWriter
	case l == zerolog.WarnLevel:
		w = lw.WarnWriter
	case l > zerolog.WarnLevel:
		w = lw.ErrorWriter
	default:
		w = lw.InfoWriter
	}

	return w.Write(p) //nolint:wrapcheck
}

// Init replaces the global logger according to cfg. Log statements are
// counted per level on prometheus.DefaultRegisterer.
func Init(cfg Log) error {
	return InitWith(cfg, prometheus.DefaultRegisterer)
}

// InitWith is Init counting log statements on reg.
func InitWith(cfg Log, reg prometheus.Registerer) error {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("loglevel %s is not supported", cfg.LogLevel))
	}

	if cfg.ServiceName == "" {
		return ErrServiceNameIsEmpty
	}

	if cfg.AppName == "" {
		return ErrAppNameIsEmpty
	}

	w, err := Writer(cfg)
	if err != nil {
		return err
	}

	counter, err := NewLevelCounter(reg, cfg.ServiceName)
	if err != nil {
		return err
	}

	zerolog.SetGlobalLevel(level)
	zerolog.ErrorHandler = ErrorHandler

	ctx := zerolog.New(w).Hook(counter).With().Timestamp().Str("app", cfg.AppName)

	switch {
	case cfg.ReportCaller && level == zerolog.TraceLevel:
		zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack //nolint:reassign
		ctx = ctx.Stack()
	case cfg.ReportCaller:
		ctx = ctx.Caller()
	}

	log.Logger = ctx.Logger()

	return nil
}

// Writer returns the writer for the enabled outputs of cfg, io.Discard when
// none is enabled.
func Writer(cfg Log) (io.Writer, error) {
	var writers []io.Writer

	if cfg.Console.Enabled {
		writers = append(writers, consoleWriter(cfg.Console))
	}

	if cfg.File.Enabled {
		fw, err := fileWriter(cfg.File)
		if err != nil {
			return nil, err
		}

		writers = append(writers, fw)
	}

	switch len(writers) {
	case 0:
		return io.Discard, nil
	case 1:
		return writers[0], nil
	default:
		return zerolog.MultiLevelWriter(writers...), nil
	}
}

// Component returns a child of the global logger tagged with name.
func Component(name string) *zerolog.Logger {
	l := log.With().Str(ComponentField, name).Logger()

	return &l
}

// RollingFile creates dir and returns a size rotated file in it.
func RollingFile(dir, name string, maxSize, maxBackups, maxAge int) (io.Writer, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil { //nolint:mnd
			return nil, errors.Wrapf(err, "create log directory %s", dir)
		}
	}

	return &lumberjack.Logger{
		Filename:   path.Join(dir, name),
		MaxSize:    maxSize,
		MaxAge:     maxAge,
		MaxBackups: maxBackups,
	}, nil
}

func fileWriter(f LogFile) (io.Writer, error) {
	if f.Path == "" {
		return nil, ErrFilePathIsEmpty
	}

	var (
		lw  LevelWriter
		err error
	)

	if lw.ErrorWriter, err = RollingFile(f.Path, f.ErrorLog, f.ErrorMaxSize, f.ErrorMaxBackups, f.ErrorMaxAge); err != nil {
		return nil, err
	}

	// the directory exists from here on
	lw.InfoWriter, _ = RollingFile(f.Path, f.InfoLog, f.InfoMaxSize, f.InfoMaxBackups, f.InfoMaxAge)
	lw.TraceWriter, _ = RollingFile(f.Path, f.TraceLog, f.TraceMaxSize, f.TraceMaxBackups, f.TraceMaxAge)
	lw.WarnWriter, _ = RollingFile(f.Path, f.WarnLog, f.WarnMaxSize, f.WarnMaxBackups, f.WarnMaxAge)

	return &lw, nil
}

func consoleWriter(c Console) io.Writer {
	wrap := func(out io.Writer) io.Writer {
		if !c.UseConsoleWriter {
			return out
		}

		return zerolog.ConsoleWriter{Out: out, TimeFormat: zerolog.TimeFieldFormat}
	}

	return &LevelWriter{
		ErrorWriter: wrap(os.Stderr),
		InfoWriter:  wrap(os.Stdout),
		TraceWriter: wrap(os.Stderr),
		WarnWriter:  wrap(os.Stderr),
	}
}
