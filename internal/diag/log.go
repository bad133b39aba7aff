package diag

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// NewLogger builds the process-wide structured logger: a text handler
// on stderr, fanned out to an additional JSON handler on logFile when
// one is given (the --log-file CLI flag). Closing logFile is the
// caller's responsibility.
func NewLogger(logFile io.Writer) *slog.Logger {
	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}),
	}
	if logFile != nil {
		handlers = append(handlers, slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slogmulti.Fanout(handlers...))
}

// LogFatal logs a diag.Error at Error level with its kind/file/line as
// structured attributes, ahead of the CLI converting it to the one-line
// diagnostic and exiting 1.
func LogFatal(logger *slog.Logger, err *Error) {
	logger.Error(err.Error(),
		slog.String("kind", err.Kind.String()),
		slog.String("file", err.File),
		slog.Int("line", err.Line),
	)
}
