package util

import (
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// SetupLogging configures the default logger from the config. Loggers
// obtained from Logger afterwards inherit these settings.
func SetupLogging(conf *AppConfig) {
	level, err := log.ParseLevel(strings.ToLower(conf.Conf.LogLevel))
	if err != nil {
		level = log.InfoLevel
	}
	log.SetOutput(os.Stderr)
	log.SetLevel(level)
	log.SetReportTimestamp(true)
	log.SetTimeFormat(time.RFC3339)

	switch strings.ToLower(conf.Conf.LogFormat) {
	case "json":
		log.SetFormatter(log.JSONFormatter)
	case "logfmt":
		log.SetFormatter(log.LogfmtFormatter)
	default:
		log.SetFormatter(log.TextFormatter)
	}
}

// Logger returns a child of the default logger with the given prefix.
func Logger(prefix string) *log.Logger {
	return log.Default().WithPrefix(prefix)
}
