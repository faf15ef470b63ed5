// Package logging builds the process-wide zerolog logger and per-module
// children whose level can be tuned independently.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Config mirrors the log section of the configuration file.
type Config struct {
	// Format is one of json, text, color or empty for autodetection.
	Format string `toml:"format" yaml:"format"`
	// Level is the default level for every module.
	Level string `toml:"level" yaml:"level"`
	// Output is stderr, stdout or empty to discard.
	Output string `toml:"output" yaml:"output"`
	// Time is a zerolog time field format, empty disables timestamps.
	Time string `toml:"time" yaml:"time"`
	// Modules overrides the level of individual modules.
	Modules map[string]string `toml:"modules" yaml:"modules"`
	// Writer, when set, replaces Output.
	Writer io.Writer `toml:"-" yaml:"-"`
}

var (
	mu      sync.RWMutex
	logger  = zerolog.Nop()
	modules = map[string]string{}
)

// Init replaces the root logger. It is safe to call more than once.
func Init(cfg Config) zerolog.Logger {
	var writer io.Writer
	switch cfg.Output {
	case "stderr", "":
		writer = os.Stderr
	case "stdout":
		writer = os.Stdout
	case "none":
		writer = io.Discard
	}
	if cfg.Writer != nil {
		writer = cfg.Writer
	}

	if cfg.Format != "json" && writer != io.Discard {
		console := &zerolog.ConsoleWriter{Out: writer}
		switch cfg.Format {
		case "text":
			console.NoColor = true
		case "color":
			console.NoColor = false
		default:
			if f, ok := writer.(*os.File); ok {
				console.NoColor = !isatty.IsTerminal(f.Fd())
			}
		}
		if cfg.Time != "" {
			console.TimeFormat = cfg.Time
		} else {
			console.PartsOrder = []string{
				zerolog.LevelFieldName,
				zerolog.CallerFieldName,
				zerolog.MessageFieldName,
			}
		}
		writer = console
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		lvl = zerolog.InfoLevel
	}
	l := zerolog.New(writer).Level(lvl)
	if cfg.Time != "" {
		zerolog.TimeFieldFormat = cfg.Time
		l = l.With().Timestamp().Logger()
	}

	mu.Lock()
	logger = l
	modules = make(map[string]string, len(cfg.Modules))
	for k, v := range cfg.Modules {
		modules[k] = v
	}
	mu.Unlock()
	return l
}

// Logger returns the root logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// GetLogger returns the root logger with the level configured for module.
func GetLogger(module string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := logger.With().Str("module", module).Logger()
	if s, ok := modules[module]; ok {
		lvl, err := zerolog.ParseLevel(s)
		if err == nil {
			return l.Level(lvl)
		}
		logger.Warn().Err(err).Str("module", module).Msg("[logging] bad module level")
	}
	return l
}
