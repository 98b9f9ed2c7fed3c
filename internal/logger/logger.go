package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Environment variables read by Configure
const (
	EnvLevel = "LOG_LEVEL"
	EnvType  = "LOG_TYPE"
)

// Field names attached by the context helpers
const (
	jobFieldName     = "Job"
	slurmIDFieldName = "SlurmID"
)

type tTesting interface {
	Log(args ...interface{})
	Logf(format string, args ...interface{})
	Helper()
	Cleanup(f func())
}

// Configure sets the global zerolog logger from LOG_LEVEL and LOG_TYPE.
// Text output goes to w; LOG_TYPE=json writes JSON lines to w instead.
func Configure(w io.Writer, options ...func(w *zerolog.ConsoleWriter)) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(ParseLevel(os.Getenv(EnvLevel)))

	isTerminal := false
	if f, ok := w.(*os.File); ok {
		isTerminal = isatty.IsTerminal(f.Fd())
	}

	defaults := func(cw *zerolog.ConsoleWriter) {
		cw.Out = w
		cw.NoColor = !isTerminal
		cw.TimeFormat = "15:04:05.999 |"
		cw.PartsOrder = []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			zerolog.CallerFieldName,
			zerolog.MessageFieldName,
		}
		cw.FormatFieldName = func(i interface{}) string {
			return fmt.Sprintf("[%s:", i)
		}
		cw.FormatFieldValue = func(i interface{}) string {
			if i == nil {
				i = ""
			}
			return fmt.Sprintf("%s]", i)
		}
	}
	options = append([]func(cw *zerolog.ConsoleWriter){defaults}, options...)

	zerolog.CallerMarshalFunc = shortCaller

	var out io.Writer = zerolog.NewConsoleWriter(options...)
	if strings.ToLower(os.Getenv(EnvType)) == "json" {
		out = w
	}

	log.Logger = zerolog.New(out).With().Timestamp().Caller().Logger()
	zerolog.DefaultContextLogger = &log.Logger
}

// ConfigureTestLogging routes log output into the test log
func ConfigureTestLogging(t tTesting) {
	oldLogger := log.Logger
	oldContextLogger := zerolog.DefaultContextLogger
	Configure(os.Stderr, zerolog.ConsoleTestWriter(t))
	t.Cleanup(func() {
		log.Logger = oldLogger
		zerolog.DefaultContextLogger = oldContextLogger
	})
}

// ParseLevel maps a LOG_LEVEL value to a zerolog level, defaulting to info
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// ContextWithJob returns a context whose logger carries the job identity
func ContextWithJob(ctx context.Context, jobName, slurmID string) context.Context {
	c := zerolog.Ctx(ctx).With().Str(jobFieldName, jobName)
	if slurmID != "" {
		c = c.Str(slurmIDFieldName, slurmID)
	}
	l := c.Logger()
	return l.WithContext(ctx)
}

// shortCaller keeps the last two path elements of the caller's file
func shortCaller(_ uintptr, file string, line int) string {
	short := file
	separators := 0
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			separators++
			if separators >= 2 {
				short = file[i+1:]
				break
			}
		}
	}
	return short + ":" + strconv.Itoa(line)
}
