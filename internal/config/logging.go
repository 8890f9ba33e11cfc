package config

import (
	"io"
	"log/slog"
	"os"
)

// SetupLogging configures the global slog logger based on args
// Returns the log file handle (caller must close it) or nil if no file
func SetupLogging(args Args) (*os.File, error) {
	// Determine output mode
	mode := "text"
	if args.Json {
		mode = "json"
	}

	var writers []io.Writer
	var logFile *os.File

	// Add file writer if specified
	if args.Log != "" {
		f, err := os.OpenFile(args.Log, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		logFile = f
		writers = append(writers, f)
	}

	// Reports go to stdout in both modes, logs to stderr
	writers = append(writers, os.Stderr)

	// Combine writers if multiple
	var output io.Writer
	if len(writers) == 1 {
		output = writers[0]
	} else {
		output = io.MultiWriter(writers...)
	}

	slog.SetDefault(slog.New(newHandler(output, mode, parseLogLevel(args.LogLevel))))

	return logFile, nil
}

func newHandler(w io.Writer, mode string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
	}
	if opts.Level == slog.LevelDebug {
		opts.AddSource = true
	}

	if mode == "json" {
		// JSON mode gets JSON-formatted logs
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// parseLogLevel converts string to slog.Level
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
