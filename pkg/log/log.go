package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide base logger. Every call site derives a scoped
// child from it (WithComponent, WithUserID, ForRun) rather than writing to
// it directly, so a busy --web process running many concurrent test runs
// can still be filtered down to one run or one virtual user.
var Logger zerolog.Logger

// Level is a log verbosity accepted by Init.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls Init's behavior.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

func zerologLevel(l Level) zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Init configures the global Logger. JSONOutput is the mode a headless
// --users/--duration invocation wants (one parseable event per line,
// fit for shipping to a log aggregator); the console writer is for an
// operator watching --web interactively. Every line carries a "pid" field:
// it's common to run more than one loadgen process against the same four
// target services from the same host (e.g. a CI job matrix), and pid is
// the cheapest way to tell their interleaved log lines apart.
func Init(cfg Config) {
	zerolog.SetGlobalLevel(zerologLevel(cfg.Level))

	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if !cfg.JSONOutput {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	Logger = zerolog.New(output).With().Timestamp().Int("pid", os.Getpid()).Logger()
}

// WithComponent scopes Logger to a named subsystem (e.g. "generator", "control").
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithUserID scopes Logger to a single virtual user's synthetic username.
func WithUserID(userID string) zerolog.Logger {
	return Logger.With().Str("user_id", userID).Logger()
}

// ForRun further scopes an existing logger (typically one already carrying
// a "component" field) to a single test run, so every line the control
// plane emits about that run's lifecycle — start, user failures, stop,
// report append — can be grepped out by run_id alone, matching the run_id
// the /api/status and /api/reports responses already carry.
func ForRun(base zerolog.Logger, runID string) zerolog.Logger {
	return base.With().Str("run_id", runID).Logger()
}

// Info logs msg at info level on the unscoped global Logger.
func Info(msg string) {
	Logger.Info().Msg(msg)
}

// Debug logs msg at debug level on the unscoped global Logger.
func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

// Warn logs msg at warn level on the unscoped global Logger.
func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

// Error logs msg at error level on the unscoped global Logger.
func Error(msg string) {
	Logger.Error().Msg(msg)
}

// Errorf logs err against format at error level on the unscoped global Logger.
func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

// Fatal logs msg at fatal level and exits the process.
func Fatal(msg string) {
	Logger.Fatal().Msg(msg)
}
