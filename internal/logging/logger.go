package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Identifier tags every record sent to the journal.
const Identifier = "ocrnode"

const defaultHistory = 1000

var (
	mu            sync.RWMutex
	initialized   bool
	current       Config
	rootLevel     = &slog.LevelVar{}
	modules       = make(map[string]*moduleLogger)
	history       *RingBuffer
	entryCallback LogCallback
)

type moduleLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`

	// Output replaces stdout as the console destination. Commands whose
	// stdout carries data point it at stderr.
	Output io.Writer `toml:"-"`
}

// Initialize sets up the logging system. It may be called again to apply a
// reloaded configuration; existing module loggers pick up the new levels.
func Initialize(config Config) {
	mu.Lock()
	defer mu.Unlock()

	current = config
	initialized = true
	if history == nil {
		history = NewRingBuffer(defaultHistory)
	}

	rootLevel.Set(levelOr(config.Level, slog.LevelInfo))

	// Handlers built before Initialize only wrote to stdout; rebuild them.
	for name, m := range modules {
		m.level.Set(moduleLevel(config, name))
		m.logger = slog.New(createHandler(config, m.level)).With("module", name)
	}

	slog.SetDefault(slog.New(createHandler(config, rootLevel)))
}

// GetBuffer returns the log history used by the log stream endpoint.
func GetBuffer() *RingBuffer {
	mu.RLock()
	defer mu.RUnlock()
	return history
}

// SetLogCallback registers fn to receive every buffered entry.
func SetLogCallback(fn LogCallback) {
	mu.Lock()
	defer mu.Unlock()
	entryCallback = fn
}

func bufferTarget() (*RingBuffer, LogCallback) {
	mu.RLock()
	defer mu.RUnlock()
	return history, entryCallback
}

// GetLogger returns the logger for module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	mu.RLock()
	m, ok := modules[module]
	mu.RUnlock()
	if ok {
		return m.logger
	}

	mu.Lock()
	defer mu.Unlock()
	if m, ok := modules[module]; ok {
		return m.logger
	}

	level := &slog.LevelVar{}
	if initialized {
		level.Set(moduleLevel(current, module))
	}

	m = &moduleLogger{
		logger: slog.New(createHandler(current, level)).With("module", module),
		level:  level,
	}
	modules[module] = m
	return m.logger
}

// SetModuleLevel changes the level of one module at runtime.
func SetModuleLevel(module, level string) error {
	parsed := parseLevel(level)
	if parsed == nil {
		return fmt.Errorf("unknown log level %q", level)
	}
	GetLogger(module)

	mu.Lock()
	defer mu.Unlock()
	modules[module].level.Set(*parsed)
	if current.Modules == nil {
		current.Modules = make(map[string]string)
	}
	current.Modules[module] = level
	return nil
}

func moduleLevel(config Config, module string) slog.Level {
	global := levelOr(config.Level, slog.LevelInfo)
	if s, ok := config.Modules[module]; ok {
		return levelOr(s, global)
	}
	return global
}

func levelOr(s string, fallback slog.Level) slog.Level {
	if l := parseLevel(s); l != nil {
		return *l
	}
	return fallback
}

// createHandler fans out to the console, the journal when present, and the history buffer.
func createHandler(config Config, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if out := config.Output; out != nil {
		handlers = append(handlers, consoleHandler(config.Format, out, opts))
	} else if isStdoutAvailable() {
		handlers = append(handlers, consoleHandler(config.Format, os.Stdout, opts))
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	handlers = append(handlers, NewBufferHandler(level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return NewMultiHandler(handlers...)
}

func consoleHandler(format string, w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// isStdoutAvailable reports whether stdout goes somewhere other than /dev/null.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&os.ModeCharDevice != 0 || mode&os.ModeNamedPipe != 0 || mode&os.ModeSocket != 0 || mode.IsRegular()
}

func parseLevel(level string) *slog.Level {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil
	}
	return &l
}
