package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/supermechanical/rangelink/internal/errors"
)

// CentralLogger owns the outputs and hands out module loggers.
type CentralLogger struct {
	mu           sync.RWMutex
	handler      slog.Handler
	defaultLevel slog.Level
	moduleLevels map[string]slog.Level
	file         *fileWriter
}

var (
	global   *CentralLogger
	globalMu sync.Mutex
)

// SetGlobal installs cl as the process logger.
func SetGlobal(cl *CentralLogger) {
	globalMu.Lock()
	global = cl
	globalMu.Unlock()
}

// Global returns the process logger. Before SetGlobal it is an info level
// console logger.
func Global() *CentralLogger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = &CentralLogger{
			handler:      newTextHandler(os.Stderr, slog.LevelInfo, time.Local),
			defaultLevel: slog.LevelInfo,
		}
	}
	return global
}

// NewCentralLogger builds the configured outputs.
func NewCentralLogger(cfg *LoggingConfig) (*CentralLogger, error) {
	return newCentralLogger(cfg, os.Stderr)
}

func newCentralLogger(cfg *LoggingConfig, console io.Writer) (*CentralLogger, error) {
	if cfg == nil {
		return nil, errors.Newf("nil logging config").
			Component("logger").
			Category(errors.CategoryConfiguration).
			Build()
	}
	c := cfg.withDefaults()

	tz, err := loadTimezone(c.Timezone)
	if err != nil {
		return nil, err
	}

	cl := &CentralLogger{
		defaultLevel: toSlog(c.DefaultLevel),
		moduleLevels: make(map[string]slog.Level, len(c.ModuleLevels)),
	}
	for module, level := range c.ModuleLevels {
		cl.moduleLevels[module] = toSlog(level)
	}

	var outputs []slog.Handler
	if c.Console.Enabled {
		outputs = append(outputs, newTextHandler(console, toSlog(c.Console.Level), tz))
	}
	if c.FileOutput.Enabled {
		fw, err := openFileWriter(c.FileOutput.Path)
		if err != nil {
			return nil, err
		}
		cl.file = fw
		outputs = append(outputs, slog.NewJSONHandler(fw, &slog.HandlerOptions{Level: toSlog(c.FileOutput.Level)}))
	}

	switch len(outputs) {
	case 0:
		cl.handler = newTextHandler(console, cl.defaultLevel, tz)
	case 1:
		cl.handler = outputs[0]
	default:
		cl.handler = fanout(outputs)
	}
	return cl, nil
}

func loadTimezone(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	tz, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.New(err).
			Component("logger").
			Category(errors.CategoryConfiguration).
			Context("timezone", name).
			Build()
	}
	return tz, nil
}

// Module returns the logger of a top-level module.
func (cl *CentralLogger) Module(name string) Logger {
	cl.mu.RLock()
	defer cl.mu.RUnlock()

	level, ok := cl.moduleLevels[name]
	if !ok {
		level = cl.defaultLevel
	}
	return &scoped{
		out:    slog.New(cl.handler),
		module: name,
		level:  level,
	}
}

// Flush pushes buffered file output to the OS.
func (cl *CentralLogger) Flush() error {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	if cl.file == nil {
		return nil
	}
	return cl.file.Flush()
}

// Close flushes and closes the log file. The console keeps working.
func (cl *CentralLogger) Close() error {
	if cl == nil {
		return nil
	}
	cl.mu.Lock()
	fw := cl.file
	cl.file = nil
	cl.mu.Unlock()

	if fw == nil {
		return nil
	}
	if err := fw.Close(); err != nil {
		return errors.New(err).
			Component("logger").
			Category(errors.CategoryFileIO).
			Build()
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o700)
}
