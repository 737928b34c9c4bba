// Package rlog is a small leveled logger wrapping the standard library
// "log" package, in the style the teacher repo uses throughout
// (log.Printf("[component] ...")) rather than a third-party logging
// framework.
package rlog

import (
	"log"
	"os"
)

// Level is the dispatcher-wide verbosity, per spec.md §4.6/§7: AbortEarly
// and AbortLength are silent below level 2; FailSanity/FailMic log at
// level 1.
type Level int

const (
	LevelSilent Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// Logger prefixes every message with a component tag and gates output by
// the configured Level.
type Logger struct {
	component string
	level     Level
	out       *log.Logger
}

// New creates a Logger tagged with component, writing to stderr at level.
func New(component string, level Level) *Logger {
	return &Logger{
		component: component,
		level:     level,
		out:       log.New(os.Stderr, "", log.LstdFlags),
	}
}

// WithComponent returns a copy of the logger tagged with a different
// component, sharing the same level and output.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{component: component, level: l.level, out: l.out}
}

// SetLevel adjusts the verbosity threshold.
func (l *Logger) SetLevel(level Level) {
	l.level = level
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	if l == nil || l.level < level {
		return
	}
	l.out.Printf("[%s] "+format, append([]interface{}{l.component}, args...)...)
}

// Debugf logs at LevelDebug (verbosity >= 3): per-bit / per-sample detail.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

// Infof logs at LevelInfo (verbosity >= 2): AbortEarly/AbortLength and
// general pipeline progress (spec.md §7).
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

// Warnf logs at LevelWarn (verbosity >= 1): FailSanity/FailMic and other
// conditions worth surfacing by default.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}
