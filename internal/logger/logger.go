package logger

import (
	"context"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// DefaultLogLevel is the default log level
	DefaultLogLevel = zerolog.InfoLevel

	LogFileName = "mongocheckd.log"
)

// DefaultLogWriter is the default log io.Writer implementor
var DefaultLogWriter = os.Stderr

// Logger wraps a zerolog.Logger along with the writer it logs to, so that
// sub-loggers and summaries can share the same destination.
type Logger struct {
	*zerolog.Logger
	writer io.Writer
}

// NewSubLogger creates a sub Logger of the parent one, with the same writer
func NewSubLogger(parentLogger *Logger, childComponentName string, childComponent string) *Logger {
	subLogger := parentLogger.With().Str(childComponentName, childComponent).Logger()
	return &Logger{
		Logger: &subLogger,
		writer: parentLogger.writer,
	}
}

// NewLogger creates a New Logger
func NewLogger(logger *zerolog.Logger, writer io.Writer) *Logger {
	ret := &Logger{
		Logger: logger,
		writer: writer,
	}
	ret.Rotate()
	return ret
}

// New builds the process logger. logPath is "stdout", "stderr", or a
// directory that receives a rotating log file. level is a zerolog level name.
func New(logPath string, level string) (*Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	writer, err := getLogWriter(logPath)
	if err != nil {
		return nil, err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        writer,
		TimeFormat: time.RFC3339,
		NoColor:    !isTerminal(logPath),
	}

	l := zerolog.New(consoleWriter).Level(lvl).With().Timestamp().Logger()
	return NewLogger(&l, writer), nil
}

// ParseLevel accepts zerolog level names plus "warning", case-insensitively.
// An empty string means DefaultLogLevel.
func ParseLevel(level string) (zerolog.Level, error) {
	level = strings.ToLower(strings.TrimSpace(level))

	switch level {
	case "":
		return DefaultLogLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.NoLevel, errors.Wrapf(err, "invalid log level %#q", level)
	}

	return lvl, nil
}

// NewDefaultLogger creates a new Logger with default log writer and level
func NewDefaultLogger() *Logger {
	logger := zerolog.New(DefaultLogWriter).Level(DefaultLogLevel).With().Timestamp().Logger()
	return &Logger{
		Logger: &logger,
		writer: DefaultLogWriter,
	}
}

// NewDebugLogger creates a new Logger with default log writer with debug level
func NewDebugLogger() *Logger {
	logger := zerolog.New(DefaultLogWriter).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	return &Logger{
		Logger: &logger,
		writer: DefaultLogWriter,
	}
}

// NewWriterLogger returns a Logger that writes JSON lines to w. Tests use it
// to capture output.
func NewWriterLogger(w io.Writer, level zerolog.Level) *Logger {
	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &Logger{
		Logger: &logger,
		writer: w,
	}
}

// Writer returns the raw destination, bypassing log formatting.
func (l *Logger) Writer() io.Writer {
	return l.writer
}

// Rotate will rotate the underlying Logger writer iff it is a *lumberjack.Logger
func (l *Logger) Rotate() {
	switch w := l.writer.(type) {
	case *lumberjack.Logger:
		_ = w.Rotate()
	}
}

// Close releases a rotating writer's file. Other writers are left alone.
func (l *Logger) Close() error {
	if w, ok := l.writer.(*lumberjack.Logger); ok {
		return w.Close()
	}

	return nil
}

// NewRotatingWriter creates a new io.Writer with an underlying lumberjack.Logger
func NewRotatingWriter(dirPath string) (io.Writer, error) {
	err := os.MkdirAll(dirPath, 0744)
	if err != nil {
		return nil, err
	}

	return &lumberjack.Logger{
		Filename:   path.Join(dirPath, LogFileName),
		MaxSize:    100,
		MaxBackups: 10,
		Compress:   true,
	}, nil
}

// WithContext stores the logger in ctx so that deeper layers can retrieve it
// with zerolog.Ctx.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return l.Logger.WithContext(ctx)
}

func getLogWriter(logPath string) (io.Writer, error) {
	switch logPath {
	case "", "stderr":
		return zerolog.SyncWriter(os.Stderr), nil
	case "stdout":
		return zerolog.SyncWriter(os.Stdout), nil
	}

	w, err := NewRotatingWriter(logPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open log path %#q", logPath)
	}

	return w, nil
}

// isTerminal reports whether logPath names a standard stream attached to a
// terminal. The writer from getLogWriter wraps the stream, so check the file.
func isTerminal(logPath string) bool {
	var f *os.File

	switch logPath {
	case "", "stderr":
		f = os.Stderr
	case "stdout":
		f = os.Stdout
	default:
		return false
	}

	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
