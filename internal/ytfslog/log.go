// Package ytfslog is a small leveled logger in the subject-first, printf
// style ytfs components use throughout: Debugf(subject, format, args...).
// The subject is usually a fmt.Stringer identifying the object that is
// logging (a query, an item ID, a file handle) so log lines can be grepped
// per entity without structured-field ceremony at every call site.
package ytfslog

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var logger atomic.Pointer[zerolog.Logger]

func init() {
	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: false}).With().Timestamp().Logger()
	l = l.Level(zerolog.InfoLevel)
	logger.Store(&l)
}

// SetOutput redirects all subsequent log output to w.
func SetOutput(w io.Writer) {
	l := zerolog.New(w).With().Timestamp().Logger()
	l = l.Level(logger.Load().GetLevel())
	logger.Store(&l)
}

// SetLevel parses one of "debug", "info", "error" and sets the active level.
func SetLevel(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("unknown log level %q: %w", level, err)
	}
	l := logger.Load().Level(lvl)
	logger.Store(&l)
	return nil
}

func subjectString(subject any) string {
	if subject == nil {
		return "-"
	}
	if s, ok := subject.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(subject)
}

// Debugf logs a debug-level message attributed to subject.
func Debugf(subject any, format string, args ...any) {
	logger.Load().Debug().Str("subject", subjectString(subject)).Msg(fmt.Sprintf(format, args...))
}

// Infof logs an info-level message attributed to subject.
func Infof(subject any, format string, args ...any) {
	logger.Load().Info().Str("subject", subjectString(subject)).Msg(fmt.Sprintf(format, args...))
}

// Errorf logs an error-level message attributed to subject.
func Errorf(subject any, format string, args ...any) {
	logger.Load().Error().Str("subject", subjectString(subject)).Msg(fmt.Sprintf(format, args...))
}
