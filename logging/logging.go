// Package logging provides leveled key=value console logging for the
// coordination loops. The audit log is the forensic record; this package
// is for real-time operator monitoring only.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger provides structured logging to stdout.
type Logger struct {
	mu        sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
	agentID   string
}

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// New creates a new Logger.
func New() *Logger {
	return &Logger{
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: component,
		agentID:   l.agentID,
	}
}

// WithAgent returns a new logger tagged with the given agent ID.
func (l *Logger) WithAgent(agentID string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: l.component,
		agentID:   agentID,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats a map of fields as key=value pairs.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	var parts []string
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return " " + strings.Join(parts, " ")
}

// log writes a log entry in traditional format: LEVEL TIMESTAMP [agent/component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}

	scope := l.component
	if l.agentID != "" {
		if scope != "" {
			scope = l.agentID + "/" + scope
		} else {
			scope = l.agentID
		}
	}

	var line string
	if scope != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, scope, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// --- Lifecycle-derived logging methods ---
// Convenience helpers used by the loops so log lines stay uniform.

// Transition logs a lifecycle transition.
func (l *Logger) Transition(itemID, from, to, actor string) {
	l.Info("transition", map[string]interface{}{
		"item":  itemID,
		"from":  from,
		"to":    to,
		"actor": actor,
	})
}

// Claimed logs a successful local claim.
func (l *Logger) Claimed(itemID, agentID string) {
	l.Info("claimed", map[string]interface{}{
		"item":  itemID,
		"agent": agentID,
	})
}

// Conflict logs a claim conflict resolution.
func (l *Logger) Conflict(itemID, winner, loser string) {
	l.Warn("claim_conflict", map[string]interface{}{
		"item":   itemID,
		"winner": winner,
		"loser":  loser,
	})
}

// SyncPass logs the outcome of a reconciliation pass.
func (l *Logger) SyncPass(duration time.Duration, pushed, pulled int, err error) {
	fields := map[string]interface{}{
		"duration": duration.String(),
		"pushed":   pushed,
		"pulled":   pulled,
	}
	if err != nil {
		fields["error"] = err.Error()
		l.Error("sync_pass", fields)
	} else {
		l.Debug("sync_pass", fields)
	}
}
