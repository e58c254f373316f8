package plug

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// NewLogger builds the dispatcher/device logger. level is one of
// "debug", "info", "warn", "error"; an unrecognised value falls back
// to "info".
func NewLogger(w io.Writer, level string) *log.Logger {
	if w == nil {
		w = os.Stderr
	}

	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		ReportCaller:    false,
	})

	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}

	logger.SetLevel(lvl)

	return logger
}
