// Package logging provides structured application logging with JSON and text
// output formats.
package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// ApplicationLogger defines the interface for structured application logging.
type ApplicationLogger interface {
	Debug(ctx context.Context, message string, fields Fields)
	Info(ctx context.Context, message string, fields Fields)
	Warn(ctx context.Context, message string, fields Fields)
	Error(ctx context.Context, message string, fields Fields)
	ErrorWithError(ctx context.Context, err error, message string, fields Fields)
	LogPerformance(ctx context.Context, operation string, duration time.Duration, fields Fields)
	WithComponent(component string) ApplicationLogger
}

// Fields represents structured logging fields.
type Fields map[string]interface{}

// Config represents logger configuration.
type Config struct {
	Level           string // DEBUG, INFO, WARN, ERROR
	Format          string // json, text
	Output          string // stdout, stderr, buffer (for testing)
	TimestampFormat string
}

// Log levels in ascending severity.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

var levelRank = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// LogEntry represents the structure of log entries.
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Component string                 `json:"component,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type applicationLoggerImpl struct {
	config    Config
	component string
	writer    io.Writer
	buffer    *bytes.Buffer // non-nil only for buffer output
	mu        *sync.Mutex
}

// NewApplicationLogger creates a logger from config. Unknown levels and
// formats are rejected eagerly.
func NewApplicationLogger(config Config) (ApplicationLogger, error) {
	level := strings.ToUpper(config.Level)
	if level == "" {
		level = LevelInfo
	}
	if _, ok := levelRank[level]; !ok {
		return nil, fmt.Errorf("unknown log level: %s", config.Level)
	}
	config.Level = level

	switch config.Format {
	case "", "json":
		config.Format = "json"
	case "text":
	default:
		return nil, fmt.Errorf("unknown log format: %s", config.Format)
	}

	if config.TimestampFormat == "" {
		config.TimestampFormat = time.RFC3339
	}

	l := &applicationLoggerImpl{
		config: config,
		mu:     &sync.Mutex{},
	}

	switch config.Output {
	case "", "stdout":
		l.writer = os.Stdout
	case "stderr":
		l.writer = os.Stderr
	case "buffer":
		l.buffer = &bytes.Buffer{}
		l.writer = l.buffer
	default:
		return nil, fmt.Errorf("unknown log output: %s", config.Output)
	}

	return l, nil
}

func (l *applicationLoggerImpl) Debug(ctx context.Context, message string, fields Fields) {
	l.log(ctx, LevelDebug, message, "", fields)
}

func (l *applicationLoggerImpl) Info(ctx context.Context, message string, fields Fields) {
	l.log(ctx, LevelInfo, message, "", fields)
}

func (l *applicationLoggerImpl) Warn(ctx context.Context, message string, fields Fields) {
	l.log(ctx, LevelWarn, message, "", fields)
}

func (l *applicationLoggerImpl) Error(ctx context.Context, message string, fields Fields) {
	l.log(ctx, LevelError, message, "", fields)
}

func (l *applicationLoggerImpl) ErrorWithError(ctx context.Context, err error, message string, fields Fields) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	l.log(ctx, LevelError, message, errMsg, fields)
}

func (l *applicationLoggerImpl) LogPerformance(
	ctx context.Context,
	operation string,
	duration time.Duration,
	fields Fields,
) {
	merged := Fields{"operation": operation, "duration_ms": duration.Milliseconds()}
	for k, v := range fields {
		merged[k] = v
	}
	l.log(ctx, LevelInfo, "performance measurement", "", merged)
}

func (l *applicationLoggerImpl) WithComponent(component string) ApplicationLogger {
	clone := *l
	clone.component = component
	return &clone
}

// Buffer returns the captured log output when configured with buffer output.
// Used by tests.
func (l *applicationLoggerImpl) Buffer() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.buffer == nil {
		return ""
	}
	return l.buffer.String()
}

func (l *applicationLoggerImpl) log(_ context.Context, level, message, errMsg string, fields Fields) {
	if levelRank[level] < levelRank[l.config.Level] {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().Format(l.config.TimestampFormat),
		Level:     level,
		Message:   message,
		Component: l.component,
		Error:     errMsg,
	}
	if len(fields) > 0 {
		entry.Metadata = fields
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.config.Format == "json" {
		data, err := json.Marshal(entry)
		if err != nil {
			fmt.Fprintf(l.writer, "log marshal failure: %v\n", err)
			return
		}
		fmt.Fprintln(l.writer, string(data))
		return
	}

	var b strings.Builder
	b.WriteString(entry.Timestamp)
	b.WriteString(" [")
	b.WriteString(level)
	b.WriteString("] ")
	if l.component != "" {
		b.WriteString(l.component)
		b.WriteString(": ")
	}
	b.WriteString(message)
	if errMsg != "" {
		b.WriteString(" error=")
		b.WriteString(errMsg)
	}
	for _, k := range sortedKeys(fields) {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	fmt.Fprintln(l.writer, b.String())
}

func sortedKeys(fields Fields) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
