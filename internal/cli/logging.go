package cli

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	FlagLogLevel  = "loglevel"
	FlagLogFormat = "logformat"
)

// enumValue is a string flag restricted to a fixed set of values. The first
// value is the default.
type enumValue struct {
	value   string
	allowed []string
}

func newEnum(allowed ...string) *enumValue {
	return &enumValue{value: allowed[0], allowed: allowed}
}

func (e *enumValue) String() string { return e.value }

func (e *enumValue) Set(s string) error {
	s = strings.ToLower(strings.TrimSpace(s))
	if !slices.Contains(e.allowed, s) {
		return fmt.Errorf("must be one of %s", strings.Join(e.allowed, ", "))
	}
	e.value = s
	return nil
}

func (e *enumValue) Type() string { return "enum" }

func enumVar(f *pflag.FlagSet, name string, allowed []string, usage string) {
	f.Var(newEnum(allowed...), name, fmt.Sprintf("%s (%s)", usage, strings.Join(allowed, ", ")))
}

func RegisterLoggingFlags(f *pflag.FlagSet) {
	enumVar(f, FlagLogLevel, []string{"warn", "debug", "info", "error"}, "set the log level")
	enumVar(f, FlagLogFormat, []string{"text", "json"}, "set the log format")
}

// BaseLogger builds the process logger from the logging flags. Logs go to
// stderr so that command output on stdout stays machine readable.
func BaseLogger(cmd *cobra.Command) (*slog.Logger, error) {
	var level slog.Level
	switch lvl := cmd.Flag(FlagLogLevel).Value.String(); lvl {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level: %s", lvl)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch format := cmd.Flag(FlagLogFormat).Value.String(); format {
	case "json":
		handler = slog.NewJSONHandler(cmd.ErrOrStderr(), opts)
	case "text":
		handler = slog.NewTextHandler(cmd.ErrOrStderr(), opts)
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
	return slog.New(handler), nil
}
