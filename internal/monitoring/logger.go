// Package monitoring holds the process-wide diagnostic logger used by the
// acquisition pipeline.
package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

var debugEnabled atomic.Bool

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetDebug toggles Debugf output. Off by default because the frame callback
// runs at hardware cadence.
func SetDebug(enabled bool) {
	debugEnabled.Store(enabled)
}

// DebugEnabled reports whether Debugf output is on.
func DebugEnabled() bool {
	return debugEnabled.Load()
}

// Debugf logs through Logf only when debug output is enabled.
func Debugf(format string, v ...interface{}) {
	if debugEnabled.Load() {
		Logf("[debug] "+format, v...)
	}
}

// Every reports whether the n-th occurrence of a repeated event should be
// logged: the first one and then every interval-th.
func Every(n uint64, interval uint64) bool {
	if interval == 0 {
		return true
	}
	return n == 1 || n%interval == 0
}
