// Package log is a minimal leveled logger wrapping an io.Writer, adapted
// from the severity levels bender prints during resolution and checkout:
// debug traces, stage progress ("Cloning", "Fetching", "Checkout"),
// informational notes, and errors.
package log

import (
	"fmt"
	"io"
	"sync/atomic"
)

// debugEnabled gates Debugf process-wide: off by default, toggled by the
// CLI's -v flag.
var debugEnabled int32

// SetDebug enables or disables debug-level logging process-wide.
func SetDebug(enabled bool) {
	if enabled {
		atomic.StoreInt32(&debugEnabled, 1)
	} else {
		atomic.StoreInt32(&debugEnabled, 0)
	}
}

// Logger is a minimal wrapper around an io.Writer with leveled helpers.
type Logger struct {
	io.Writer
}

// New returns a new logger which writes to w.
func New(w io.Writer) *Logger {
	return &Logger{Writer: w}
}

// Logln logs a line with no severity prefix.
func (l *Logger) Logln(args ...interface{}) {
	fmt.Fprintln(l, args...)
}

// Logf logs a formatted string with no severity prefix.
func (l *Logger) Logf(f string, args ...interface{}) {
	fmt.Fprintf(l, f, args...)
}

// Stage logs a stage-progress line, e.g. Stage("Cloning", "%s (%s)", name, url).
func (l *Logger) Stage(stage, format string, args ...interface{}) {
	fmt.Fprintf(l, "%12s %s\n", stage, fmt.Sprintf(format, args...))
}

// Info logs an informational note.
func (l *Logger) Info(format string, args ...interface{}) {
	fmt.Fprintf(l, "%12s %s\n", "Info:", fmt.Sprintf(format, args...))
}

// Errorf logs an error line.
func (l *Logger) Errorf(format string, args ...interface{}) {
	fmt.Fprintf(l, "%12s %s\n", "Error:", fmt.Sprintf(format, args...))
}

// Debugf logs a debug trace, omitted unless SetDebug(true) was called.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if atomic.LoadInt32(&debugEnabled) == 0 {
		return
	}
	fmt.Fprintf(l, "%12s %s\n", "Debug:", fmt.Sprintf(format, args...))
}
