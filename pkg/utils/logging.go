package utils

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/golang-cz/devslog"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"google.golang.org/grpc"
)

// InterceptorLogger returns a pre-configured grpc.UnaryServerInterceptor using slog for logging.
func InterceptorLogger(l *slog.Logger) grpc.UnaryServerInterceptor {
	return logging.UnaryServerInterceptor(slogAdapter(l), loggingOptions()...)
}

// ClientInterceptorLogger is the client side counterpart of InterceptorLogger.
func ClientInterceptorLogger(l *slog.Logger) grpc.UnaryClientInterceptor {
	return logging.UnaryClientInterceptor(slogAdapter(l), loggingOptions()...)
}

func loggingOptions() []logging.Option {
	return []logging.Option{
		logging.WithLogOnEvents(logging.FinishCall),
		logging.WithDisableLoggingFields(
			logging.ComponentFieldKey,
			logging.MethodTypeFieldKey,
			logging.SystemTag[0],
			logging.SystemTag[1],
			logging.ServiceFieldKey,
		),
	}
}

func slogAdapter(l *slog.Logger) logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		l.Log(ctx, slog.Level(lvl), msg, fields...)
	})
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything else is info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger sets up a slog logger with the given level, format (text, json or dev) and file path.
// An empty path or a file that cannot be opened logs to stdout.
func SetupLogger(level, format, filePath string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var writer io.Writer = os.Stdout
	if filePath != "" {
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			slog.Error("Failed to open log file, falling back to stdout", "path", filePath, "error", err)
		} else {
			writer = file
		}
	}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(writer, opts)
	case "dev":
		handler = devslog.NewHandler(writer, &devslog.Options{
			HandlerOptions: opts,
		})
	default:
		handler = slog.NewTextHandler(writer, opts)
	}

	return slog.New(handler)
}

// OrDiscard returns l, or a logger dropping everything when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
