// Package monitoring holds the diagnostic logger shared by the coupling
// packages. The cmd layer logs through the standard log package directly.
package monitoring

import (
	"log"
	"sync"
)

var (
	mu   sync.RWMutex
	logf = log.Printf
)

// Logf writes a diagnostic line through the current logger.
func Logf(format string, v ...interface{}) {
	mu.RLock()
	f := logf
	mu.RUnlock()
	f(format, v...)
}

// SetLogger replaces the package logger. Passing nil mutes it. The previous
// logger is returned so tests can restore it.
func SetLogger(f func(format string, v ...interface{})) func(format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	prev := logf
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	logf = f
	return prev
}
