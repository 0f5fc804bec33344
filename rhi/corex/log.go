// Package corex holds the ambient logging, clock and error-sentinel
// helpers shared by every rhi subpackage.
package corex

import (
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	logger     *log.Logger
	loggerOnce sync.Once
)

func getLogger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.NewWithOptions(os.Stderr, log.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          "rhi",
		})
		logger.SetLevel(log.InfoLevel)
	})
	return logger
}

// SetDebug raises the logger to debug level; used by Device configs
// that enable validation.
func SetDebug(enabled bool) {
	if enabled {
		getLogger().SetLevel(log.DebugLevel)
	} else {
		getLogger().SetLevel(log.InfoLevel)
	}
}

func LogDebug(msg string, args ...interface{}) {
	getLogger().Debugf(msg, args...)
}

func LogInfo(msg string, args ...interface{}) {
	getLogger().Infof(msg, args...)
}

func LogWarn(msg string, args ...interface{}) {
	getLogger().Warnf(msg, args...)
}

func LogError(msg string, args ...interface{}) {
	getLogger().Errorf(msg, args...)
}

// LogFatal logs at fatal level and exits the process. Used only on the
// initialisation paths the spec marks fatal (§4.2, §7).
func LogFatal(msg string, args ...interface{}) {
	getLogger().Fatalf(msg, args...)
}
