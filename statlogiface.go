package catafolk

import (
	"fmt"
	"log"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Statter is the interface that stats collectors must implement to get stats
// out of an Index build.
type Statter interface {
	Count(name string, value int64, rate float64, tags ...string)
	Gauge(name string, value float64, rate float64, tags ...string)
	Timing(name string, value time.Duration, rate float64, tags ...string)
}

// NopStatter does nothing.
type NopStatter struct{}

// Count does nothing.
func (NopStatter) Count(name string, value int64, rate float64, tags ...string) {}

// Gauge does nothing.
func (NopStatter) Gauge(name string, value float64, rate float64, tags ...string) {}

// Timing does nothing.
func (NopStatter) Timing(name string, value time.Duration, rate float64, tags ...string) {}

// Logger is the interface that loggers must implement to get catafolk logs.
// Warnf is used for per-row problems which don't stop a build.
type Logger interface {
	Printf(format string, v ...interface{})
	Debugf(format string, v ...interface{})
	Warnf(format string, v ...interface{})
}

// NopLogger logs nothing.
type NopLogger struct{}

// Printf does nothing.
func (NopLogger) Printf(format string, v ...interface{}) {}

// Debugf does nothing.
func (NopLogger) Debugf(format string, v ...interface{}) {}

// Warnf does nothing.
func (NopLogger) Warnf(format string, v ...interface{}) {}

// StdLogger prints on Printf and Warnf.
type StdLogger struct {
	*log.Logger
}

// Printf implements Logger interface.
func (s StdLogger) Printf(format string, v ...interface{}) {
	s.Logger.Printf(format, v...)
}

// Debugf implements Logger interface, but prints nothing.
func (StdLogger) Debugf(format string, v ...interface{}) {}

// Warnf implements Logger interface.
func (s StdLogger) Warnf(format string, v ...interface{}) {
	s.Logger.Printf("WARNING: "+format, v...)
}

// VerboseLogger prints on Printf, Warnf and Debugf.
type VerboseLogger struct {
	*log.Logger
}

// Printf implements Logger interface.
func (s VerboseLogger) Printf(format string, v ...interface{}) {
	s.Logger.Printf(format, v...)
}

// Debugf implements Logger interface.
func (s VerboseLogger) Debugf(format string, v ...interface{}) {
	s.Logger.Printf(format, v...)
}

// Warnf implements Logger interface.
func (s VerboseLogger) Warnf(format string, v ...interface{}) {
	s.Logger.Printf("WARNING: "+format, v...)
}

// HCLogger adapts an hclog.Logger, mapping Printf to Info.
type HCLogger struct {
	hclog.Logger
}

// NewHCLogger returns a named HCLogger at info level, or debug level if
// verbose is set.
func NewHCLogger(name string, verbose bool, opts *hclog.LoggerOptions) HCLogger {
	if opts == nil {
		opts = &hclog.LoggerOptions{}
	}
	opts.Name = name
	opts.Level = hclog.Info
	if verbose {
		opts.Level = hclog.Debug
	}
	return HCLogger{Logger: hclog.New(opts)}
}

// Printf implements Logger interface.
func (h HCLogger) Printf(format string, v ...interface{}) {
	h.Logger.Info(fmt.Sprintf(format, v...))
}

// Debugf implements Logger interface.
func (h HCLogger) Debugf(format string, v ...interface{}) {
	if h.Logger.IsDebug() {
		h.Logger.Debug(fmt.Sprintf(format, v...))
	}
}

// Warnf implements Logger interface.
func (h HCLogger) Warnf(format string, v ...interface{}) {
	h.Logger.Warn(fmt.Sprintf(format, v...))
}
