// Package logging wraps the standard log.Logger with bracketed,
// tagged, leveled lines (e.g. "[APP_DEBUG]") so call sites can gate on
// a level instead of an env var or a scattered bool field.
package logging

import (
	"log"
	"os"
)

// Level orders verbosity from quietest to loudest.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// Logger tags every line with a component name and filters by level.
type Logger struct {
	tag   string
	level Level
	out   *log.Logger
}

// New constructs a Logger that prefixes every line with "[tag]" and
// only emits records at or below level.
func New(tag string, level Level) *Logger {
	return &Logger{tag: tag, level: level, out: log.New(os.Stderr, "", log.LstdFlags)}
}

// SetLevel adjusts the verbosity threshold at runtime (wired to the
// config/debug-flag toggle).
func (l *Logger) SetLevel(level Level) { l.level = level }

func (l *Logger) logf(level Level, tagSuffix, format string, args ...any) {
	if level > l.level {
		return
	}
	l.out.Printf("["+l.tag+tagSuffix+"] "+format, args...)
}

func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, "_ERROR", format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.logf(LevelWarn, "_WARNING", format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.logf(LevelInfo, "", format, args...) }
func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, "_DEBUG", format, args...) }
