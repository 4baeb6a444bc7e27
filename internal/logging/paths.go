package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.docweave/logs/).
// Falls back to temp directory if home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".docweave", "logs")
	}
	return filepath.Join(home, ".docweave", "logs")
}

// DefaultLogPath returns the default CLI and pipeline log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "docweave.log")
}

// ServerLogPath returns the HTTP server log path.
func ServerLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}

// LogSource represents the source of logs to view.
type LogSource string

const (
	// LogSourceCLI is the CLI and pipeline logs (default).
	LogSourceCLI LogSource = "cli"
	// LogSourceServer is the HTTP server logs.
	LogSourceServer LogSource = "server"
	// LogSourceAll combines all log sources.
	LogSourceAll LogSource = "all"
)

// FindLogFile attempts to find the log file for viewing.
// Priority:
// 1. Explicit path (if provided)
// 2. ~/.docweave/logs/docweave.log (global)
//
// Returns an error if no log file is found.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	globalPath := DefaultLogPath()
	if _, err := os.Stat(globalPath); err == nil {
		return globalPath, nil
	}

	return "", fmt.Errorf("no log file found. DocWeave may not have run with --debug yet.\nExpected at: %s", globalPath)
}

// FindLogFileBySource finds log files based on the source type.
// Returns a list of log file paths that exist.
func FindLogFileBySource(source LogSource, explicit string) ([]string, error) {
	// Explicit path takes precedence
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return []string{explicit}, nil
		}
		return nil, fmt.Errorf("log file not found: %s", explicit)
	}

	var paths []string
	var checked []string

	switch source {
	case LogSourceCLI:
		cliPath := DefaultLogPath()
		checked = append(checked, cliPath)
		if _, err := os.Stat(cliPath); err == nil {
			paths = append(paths, cliPath)
		}

	case LogSourceServer:
		srvPath := ServerLogPath()
		checked = append(checked, srvPath)
		if _, err := os.Stat(srvPath); err == nil {
			paths = append(paths, srvPath)
		}

	case LogSourceAll:
		cliPath := DefaultLogPath()
		srvPath := ServerLogPath()
		checked = append(checked, cliPath, srvPath)

		if _, err := os.Stat(cliPath); err == nil {
			paths = append(paths, cliPath)
		}
		if _, err := os.Stat(srvPath); err == nil {
			paths = append(paths, srvPath)
		}

	default:
		return nil, fmt.Errorf("unknown log source: %s (use: cli, server, all)", source)
	}

	if len(paths) == 0 {
		hint := getLogHint(source)
		return nil, fmt.Errorf("no log files found for source '%s'.\nChecked: %v\n\n%s", source, checked, hint)
	}

	return paths, nil
}

// ParseLogSource parses a string into a LogSource.
func ParseLogSource(s string) LogSource {
	switch s {
	case "server":
		return LogSourceServer
	case "all":
		return LogSourceAll
	default:
		return LogSourceCLI
	}
}

// EnsureLogDir creates the log directory if it doesn't exist.
func EnsureLogDir() error {
	dir := DefaultLogDir()
	return os.MkdirAll(dir, 0o755)
}

// getLogHint returns a helpful message on how to generate logs for the given source.
func getLogHint(source LogSource) string {
	switch source {
	case LogSourceCLI:
		return "To generate CLI logs:\n  docweave --debug generate <repo>"
	case LogSourceServer:
		return "To generate server logs:\n  docweave serve"
	case LogSourceAll:
		return "To generate logs:\n  CLI:    docweave --debug generate <repo>\n  Server: docweave serve"
	default:
		return ""
	}
}
