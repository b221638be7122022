package recoverd

import (
	"github.com/btcsuite/btclog"
	"github.com/custodyhq/recoverd/assets"
	"github.com/custodyhq/recoverd/backup"
	"github.com/custodyhq/recoverd/build"
	"github.com/custodyhq/recoverd/derive"
	"github.com/custodyhq/recoverd/keychain"
	"github.com/custodyhq/recoverd/keystore"
	"github.com/custodyhq/recoverd/signal"
)

// replaceableLogger is a thin wrapper around a logger that is used so the
// logger can be replaced easily without some black pointer magic.
type replaceableLogger struct {
	btclog.Logger
	subsystem string
}

// Loggers can not be used before the log rotator has been initialized with a
// log file. This must be performed early during application startup by
// calling InitLogRotator() on the main log writer instance in the config.
var (
	// rcvdPkgLoggers is a list of all recoverd package level loggers that
	// are registered. They are tracked here so they can be replaced once
	// the SetupLoggers function is called with the final root logger.
	rcvdPkgLoggers []*replaceableLogger

	// addRcvdPkgLogger is a helper function that creates a new replaceable
	// main package level logger and adds it to the list of loggers that
	// are replaced again later, once the final root logger is ready.
	addRcvdPkgLogger = func(subsystem string) *replaceableLogger {
		l := &replaceableLogger{
			Logger:    build.NewSubLogger(subsystem, nil),
			subsystem: subsystem,
		}
		rcvdPkgLoggers = append(rcvdPkgLoggers, l)
		return l
	}

	rcvdLog = addRcvdPkgLogger("RCVD")
	srvrLog = addRcvdPkgLogger("SRVR")
)

// genSubLogger creates a logger for a subsystem. We provide an instance of
// a signal.Interceptor to be able to shutdown in the case of a critical
// error.
func genSubLogger(root *build.SubLoggerManager,
	interceptor signal.Interceptor) func(string) btclog.Logger {

	// createLogger is a function that will create a new logger for a
	// subsystem. It will also check if the logger is critical and shut
	// down the daemon if it is.
	createLogger := func(subsystem string) btclog.Logger {
		return &criticalLogger{
			Logger:      root.GenSubLogger(subsystem),
			interceptor: interceptor,
		}
	}

	return createLogger
}

// SetupLoggers initializes all package-global logger variables.
func SetupLoggers(root *build.SubLoggerManager,
	interceptor signal.Interceptor) {

	genLogger := genSubLogger(root, interceptor)

	// Now that we have the proper root logger, we can replace the
	// placeholder recoverd package loggers.
	for _, l := range rcvdPkgLoggers {
		l.Logger = build.NewSubLogger(l.subsystem, genLogger)
	}

	AddSubLogger(root, signal.Subsystem, interceptor, signal.UseLogger)
	AddSubLogger(root, assets.Subsystem, interceptor, assets.UseLogger)
	AddSubLogger(root, keychain.Subsystem, interceptor, keychain.UseLogger)
	AddSubLogger(root, keystore.Subsystem, interceptor, keystore.UseLogger)
	AddSubLogger(root, derive.Subsystem, interceptor, derive.UseLogger)
	AddSubLogger(root, backup.Subsystem, interceptor, backup.UseLogger)
}

// AddSubLogger is a helper method to conveniently create and register the
// logger of one or more sub systems.
func AddSubLogger(root *build.SubLoggerManager, subsystem string,
	interceptor signal.Interceptor, useLoggers ...func(btclog.Logger)) {

	logger := build.NewSubLogger(subsystem, genSubLogger(root, interceptor))
	for _, useLogger := range useLoggers {
		useLogger(logger)
	}
}

// criticalLogger requests a shutdown of the daemon whenever something is
// logged at the critical level.
type criticalLogger struct {
	btclog.Logger
	interceptor signal.Interceptor
}

// Criticalf formats message according to format specifier and writes to log
// with LevelCritical. It also requests a shutdown.
func (c *criticalLogger) Criticalf(format string, params ...interface{}) {
	c.Logger.Criticalf(format, params...)
	c.interceptor.RequestShutdown()
}

// Critical formats message using the default formats for its operands and
// writes to log with LevelCritical. It also requests a shutdown.
func (c *criticalLogger) Critical(v ...interface{}) {
	c.Logger.Critical(v...)
	c.interceptor.RequestShutdown()
}
