// Package logging wires structured logging into the cobra command tree,
// grounded on cli/log/flag.go's RegisterLoggingFlags/GetBaseLogger pattern.
package logging

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/wasmcp/wasmcp/internal/enum"
)

// RegisterFlags adds --loglevel and --logformat as persistent flags on cmd.
func RegisterFlags(cmd *cobra.Command) {
	enum.Var(cmd.PersistentFlags(), "loglevel", []string{"warn", "info", "debug", "error"}, "set the log level")
	cmd.PersistentFlags().StringP("logformat", "f", "text", "set the log format (text, json)")
}

// FromCommand builds a *slog.Logger from cmd's loglevel/logformat flags,
// writing to the command's configured stderr stream.
func FromCommand(cmd *cobra.Command) (*slog.Logger, error) {
	level, err := levelFromCommand(cmd)
	if err != nil {
		return nil, err
	}

	format := cmd.Flag("logformat").Value.String()
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	case "text":
		handler = slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
	return slog.New(handler), nil
}

func levelFromCommand(cmd *cobra.Command) (slog.Level, error) {
	name, err := enum.Get(cmd.Flags(), "loglevel")
	if err != nil {
		return slog.LevelWarn, err
	}
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, fmt.Errorf("invalid log level: %s", name)
	}
}
