package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config controls where log records go and which levels survive.
type Config struct {
	// Level is the minimum record level: debug, info, warn, error.
	Level string

	// FilePath receives the JSON log. Empty disables file logging.
	FilePath string

	// MaxSizeMB rotates the file when it grows past this size.
	MaxSizeMB int

	// MaxFiles caps how many rotated files stay on disk.
	MaxFiles int

	// WriteToStderr mirrors records to stderr. The mcp command turns
	// this off: stdout carries JSON-RPC and stderr belongs to the
	// client's terminal.
	WriteToStderr bool
}

// DefaultConfig logs at info to the CLI log file, mirrored to stderr.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// DebugConfig is DefaultConfig at debug level.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = "debug"
	return cfg
}

// Setup opens the rotating log file and returns a JSON slog.Logger over
// it. The cleanup function flushes and closes the file; callers defer it
// for the life of the process.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	if err := EnsureLogDir(); err != nil {
		return nil, nil, err
	}

	writer, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = writer
	if cfg.WriteToStderr {
		out = io.MultiWriter(writer, os.Stderr)
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: LevelFromString(cfg.Level),
	})

	cleanup := func() {
		_ = writer.Sync()
		_ = writer.Close()
	}
	return slog.New(handler), cleanup, nil
}

// LevelFromString maps a level name to its slog.Level. Unknown names
// fall back to info.
func LevelFromString(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
