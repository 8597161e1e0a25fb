// Package logging provides categorized file-based logging for the
// translation pipeline. Logs are written to <workspace>/.pseudoflow/logs
// with one file per category per day. When debug mode is off every logger
// is a silent no-op, so hot paths can log freely.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category names one pipeline subsystem.
type Category string

const (
	CategoryBoot       Category = "boot"       // startup, config load
	CategoryParser     Category = "parser"     // block identification
	CategoryValidator  Category = "validator"  // syntax + logic checks
	CategoryAssembler  Category = "assembler"  // script assembly
	CategoryExec       Category = "exec"       // worker pool offload
	CategoryStream     Category = "stream"     // chunked translation
	CategoryModel      Category = "model"      // backend registry and calls
	CategoryTranslator Category = "translator" // end-to-end orchestration
	CategoryTelemetry  Category = "telemetry"  // recorder snapshots
)

// Log levels, ordered.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Options controls logger behavior; set once via Initialize.
type Options struct {
	DebugMode  bool
	Level      string          // debug, info, warn, error
	Categories map[string]bool // nil means all enabled
}

// Logger writes to one category's file. A Logger with a nil inner logger is
// a no-op.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	mu       sync.RWMutex
	loggers  = make(map[Category]*Logger)
	logsDir  string
	opts     Options
	logLevel = LevelInfo
)

// Initialize sets up the logging directory under the workspace and applies
// options. A disabled configuration is a silent no-op.
func Initialize(workspace string, o Options) error {
	mu.Lock()
	opts = o
	logLevel = parseLevel(o.Level)
	mu.Unlock()

	if !o.DebugMode {
		return nil
	}
	if workspace == "" {
		return fmt.Errorf("workspace path required")
	}

	dir := filepath.Join(workspace, ".pseudoflow", "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create logs directory: %w", err)
	}

	mu.Lock()
	logsDir = dir
	mu.Unlock()

	Get(CategoryBoot).Info("logging initialized: dir=%s level=%s", dir, o.Level)
	return nil
}

func parseLevel(s string) int {
	switch s {
	case "debug":
		return LevelDebug
	case "info", "":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func categoryEnabled(c Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if !opts.DebugMode {
		return false
	}
	if opts.Categories == nil {
		return true
	}
	enabled, ok := opts.Categories[string(c)]
	if !ok {
		return true
	}
	return enabled
}

// Get returns (or creates) the logger for a category. Disabled categories
// get a no-op logger.
func Get(category Category) *Logger {
	if !categoryEnabled(category) {
		return &Logger{category: category}
	}

	mu.RLock()
	dir := logsDir
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	if dir == "" {
		return &Logger{category: category}
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	date := time.Now().Format("2006-01-02")
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.log", date, category))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] could not open %s: %v\n", path, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs an error message (always logged if the logger is live).
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

// CloseAll closes all open log files. Call at shutdown.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			_ = l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// Convenience helpers for the hot categories.

// Parser logs to the parser category.
func Parser(format string, args ...interface{}) { Get(CategoryParser).Info(format, args...) }

// ParserDebug logs debug to the parser category.
func ParserDebug(format string, args ...interface{}) { Get(CategoryParser).Debug(format, args...) }

// Validator logs to the validator category.
func Validator(format string, args ...interface{}) { Get(CategoryValidator).Info(format, args...) }

// ValidatorDebug logs debug to the validator category.
func ValidatorDebug(format string, args ...interface{}) {
	Get(CategoryValidator).Debug(format, args...)
}

// Assembler logs to the assembler category.
func Assembler(format string, args ...interface{}) { Get(CategoryAssembler).Info(format, args...) }

// AssemblerDebug logs debug to the assembler category.
func AssemblerDebug(format string, args ...interface{}) {
	Get(CategoryAssembler).Debug(format, args...)
}

// AssemblerWarn logs warning to the assembler category.
func AssemblerWarn(format string, args ...interface{}) {
	Get(CategoryAssembler).Warn(format, args...)
}

// Exec logs to the exec category.
func Exec(format string, args ...interface{}) { Get(CategoryExec).Info(format, args...) }

// ExecDebug logs debug to the exec category.
func ExecDebug(format string, args ...interface{}) { Get(CategoryExec).Debug(format, args...) }

// ExecWarn logs warning to the exec category.
func ExecWarn(format string, args ...interface{}) { Get(CategoryExec).Warn(format, args...) }

// Stream logs to the stream category.
func Stream(format string, args ...interface{}) { Get(CategoryStream).Info(format, args...) }

// StreamDebug logs debug to the stream category.
func StreamDebug(format string, args ...interface{}) { Get(CategoryStream).Debug(format, args...) }

// Model logs to the model category.
func Model(format string, args ...interface{}) { Get(CategoryModel).Info(format, args...) }

// ModelDebug logs debug to the model category.
func ModelDebug(format string, args ...interface{}) { Get(CategoryModel).Debug(format, args...) }

// Translator logs to the translator category.
func Translator(format string, args ...interface{}) { Get(CategoryTranslator).Info(format, args...) }

// TranslatorDebug logs debug to the translator category.
func TranslatorDebug(format string, args ...interface{}) {
	Get(CategoryTranslator).Debug(format, args...)
}

// TranslatorError logs error to the translator category.
func TranslatorError(format string, args ...interface{}) {
	Get(CategoryTranslator).Error(format, args...)
}
