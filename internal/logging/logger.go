package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration
type Config struct {
	Level   string
	LogFile string
	Color   string    // auto, always or never
	Console io.Writer // defaults to os.Stderr
}

// NewLogger creates a new zerolog logger with dual output (console + file)
func NewLogger(cfg Config) *zerolog.Logger {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        newProgressSafeWriter(console),
		TimeFormat: "15:04:05",
		NoColor:    !UseColor(cfg.Color),
	}

	writers := []io.Writer{consoleWriter}

	if cfg.LogFile != "" {
		dir := filepath.Dir(cfg.LogFile)
		if err := os.MkdirAll(dir, 0755); err == nil {
			fileWriter := &lumberjack.Logger{
				Filename:   cfg.LogFile,
				MaxSize:    10, // MB
				MaxBackups: 3,
				MaxAge:     28, // days
				Compress:   true,
			}
			writers = append(writers, fileWriter)
		}
	}

	multi := zerolog.MultiLevelWriter(writers...)

	logger := zerolog.New(multi).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &logger
}

// ParseLevel converts a level name to zerolog.Level. An empty name means info.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	}
	l, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
	return l, nil
}

// UseColor resolves the logging.color setting. "auto" follows the terminal
// detection done by fatih/color, which honours NO_COLOR and TERM=dumb.
func UseColor(setting string) bool {
	switch strings.ToLower(setting) {
	case "always", "true", "yes":
		return true
	case "never", "false", "no":
		return false
	default:
		return !color.NoColor
	}
}

// NewTestLogger creates a logger for testing that writes to a buffer
func NewTestLogger(w io.Writer) *zerolog.Logger {
	logger := zerolog.New(w).With().Timestamp().Logger()
	return &logger
}

// progressSafeWriter clears the current terminal line before each write so log
// lines do not land in the middle of a progress bar.
type progressSafeWriter struct {
	mu  sync.Mutex
	out io.Writer
}

func newProgressSafeWriter(out io.Writer) *progressSafeWriter {
	return &progressSafeWriter{out: out}
}

func (w *progressSafeWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if f, ok := w.out.(*os.File); ok && isTerminal(f) {
		if _, err := io.WriteString(f, "\r\033[K"); err != nil {
			return 0, err
		}
	}
	return w.out.Write(p)
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
