package config

import (
	"sync"

	"go.uber.org/zap/zapcore"

	"go.viam.com/simtemp/logging"
)

var globalLogger struct {
	// These variables are initialized once at startup. No need for special synchronization.
	logger           logging.Logger
	cmdLineDebugFlag bool

	// The file config can be reloaded by the watcher while the monitor is running.
	mu                  sync.Mutex
	fileConfigDebugFlag bool
}

// InitLoggingSettings initializes the global logging settings.
func InitLoggingSettings(logger logging.Logger, cmdLineDebugFlag bool) {
	globalLogger.logger = logger
	globalLogger.cmdLineDebugFlag = cmdLineDebugFlag
	if cmdLineDebugFlag {
		logging.GlobalLogLevel.SetLevel(zapcore.DebugLevel)
	} else {
		logging.GlobalLogLevel.SetLevel(zapcore.InfoLevel)
	}
	globalLogger.logger.Debugw("log level initialized", "level", logging.GlobalLogLevel.Level())
}

// UpdateFileConfigDebug is used to update the debug flag whenever a file-based config is
// refreshed.
func UpdateFileConfigDebug(fileDebug bool) {
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()

	globalLogger.fileConfigDebugFlag = fileDebug
	refreshLogLevelInLock()
}

func refreshLogLevelInLock() {
	var newLevel zapcore.Level
	if globalLogger.cmdLineDebugFlag || globalLogger.fileConfigDebugFlag {
		newLevel = zapcore.DebugLevel
	} else {
		newLevel = zapcore.InfoLevel
	}

	if logging.GlobalLogLevel.Level() == newLevel {
		return
	}
	logging.GlobalLogLevel.SetLevel(newLevel)
	if globalLogger.logger != nil {
		globalLogger.logger.Infow("log level changed", "level", newLevel)
	}
}
