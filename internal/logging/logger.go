package logging

import (
	"fmt"
	"log"
	"os"
)

// Logger is the structured logger the logging components take by
// constructor injection (cache namespaces, orchestrator, batch runner and
// worker pool), each tagged with its own prefix so a multi-stage extract()
// call's log lines are attributable to the stage that emitted them. The
// dispatcher and the OCR backend take no logger.
type Logger struct {
	prefix string
	logger *log.Logger
}

// NewLogger creates a logger tagged with prefix, e.g. "pipeline",
// "cache.<namespace>", "batch".
func NewLogger(prefix string) *Logger {
	return &Logger{
		prefix: prefix,
		logger: log.New(os.Stdout, fmt.Sprintf("[%s] ", prefix), log.LstdFlags),
	}
}

// Info logs a normal pipeline-stage event: cache hits, handler dispatch,
// feature completion.
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.logWithKV("INFO", msg, keysAndValues...)
}

// Warn logs a suppressed, non-bubbling condition: an optional feature's
// ProcessingError, a missing distributed lock, a skipped cache namespace.
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.logWithKV("WARN", msg, keysAndValues...)
}

// Error logs a must-bubble failure on its way out of extract().
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.logWithKV("ERROR", msg, keysAndValues...)
}

// Debug logs fine-grained detail not on by default: per-page OCR timing,
// cache-key inputs.
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.logWithKV("DEBUG", msg, keysAndValues...)
}

func (l *Logger) logWithKV(level, msg string, keysAndValues ...interface{}) {
	kvStr := ""
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 < len(keysAndValues) {
			kvStr += fmt.Sprintf(" %v=%v", keysAndValues[i], keysAndValues[i+1])
		}
	}
	l.logger.Printf("[%s] %s%s", level, msg, kvStr)
}
