// Package logging wraps log/slog for the analyzer's CLI and core
// packages. Grounded on the teacher's internal/logging/logging.go:
// same Level/Format enums and InitLogger shape, but built around an
// injected *slog.Logger handle (spec.md §5's "injected logger handle
// held by the file handle") rather than a package-global default, and
// extended with go-isatty-based format auto-detection since this
// repository, unlike the teacher, writes logs to a user-chosen
// destination that may or may not be a terminal.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
)

// Level is a logging verbosity threshold.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps spec.md §6's log_level option ("debug", "info",
// "warn", "error", case-insensitive) to a Level, defaulting to
// LevelInfo for anything else.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Format selects the handler a logger renders through.
type Format int

const (
	// FormatAuto picks FormatText for an interactive terminal and
	// FormatJSON otherwise, per New's go-isatty check.
	FormatAuto Format = iota
	FormatText
	FormatJSON
)

// ParseFormat maps spec.md §6's log_format option to a Format; an
// empty or unrecognized string means FormatAuto.
func ParseFormat(s string) Format {
	switch s {
	case "text":
		return FormatText
	case "json":
		return FormatJSON
	default:
		return FormatAuto
	}
}

// New builds a logger writing to w at the given level and format. When
// format is FormatAuto, w is checked with go-isatty (only meaningful
// when w is a *os.File) to choose text for a terminal and JSON
// otherwise, matching spec.md §6's "human-readable when attached to a
// terminal, structured otherwise" expectation for log_file.
func New(w io.Writer, level Level, format Format) *slog.Logger {
	if format == FormatAuto {
		format = autoDetect(w)
	}
	opts := &slog.HandlerOptions{
		Level: level.slog(),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}
	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func autoDetect(w io.Writer) Format {
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return FormatText
	}
	return FormatJSON
}

// OpenDestination resolves spec.md §6's log_file option: empty means
// stderr, otherwise the named file is opened for append, created if
// absent. The caller is responsible for closing the returned file when
// it is not os.Stderr.
func OpenDestination(path string) (*os.File, error) {
	if path == "" {
		return os.Stderr, nil
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// ParsingWarning logs one fileformat.Warning-shaped non-strict-mode
// violation, per spec.md §6's warnings option. field/offset/err mirror
// the shape every core package's warning type already carries, so
// callers pass them straight through without a conversion step.
func ParsingWarning(logger *slog.Logger, source, field string, offset int64, err error) {
	logger.Warn("format warning", "source", source, "field", field, "offset", offset, "error", err)
}
