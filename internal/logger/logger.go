// Package logger provides the process-wide structured logger used by every
// subsystem of the automation core instead of fmt.Println or a second
// logging dependency.
package logger

import (
	"io"
	"log/slog"
	"os"
)

var Log *slog.Logger

func init() {
	// A usable default before Init runs, so package-level helpers never
	// dereference a nil logger in tests that skip explicit setup.
	Log = slog.New(slog.NewTextHandler(os.Stdout, nil))
}

// Init wires the global logger to stdout plus, when logFile is non-empty,
// an appended log file, at the given level (debug/info/warn/error).
func Init(level string, logFile string) error {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	writers := []io.Writer{os.Stdout}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		writers = append(writers, f)
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String("time", a.Value.Time().Format("15:04:05"))
			}
			return a
		},
	})

	Log = slog.New(handler)
	slog.SetDefault(Log)
	return nil
}

func Debug(msg string, args ...any) { Log.Debug(msg, args...) }
func Info(msg string, args ...any)  { Log.Info(msg, args...) }
func Warn(msg string, args ...any)  { Log.Warn(msg, args...) }
func Error(msg string, args ...any) { Log.Error(msg, args...) }
