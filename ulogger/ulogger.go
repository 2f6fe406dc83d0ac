// Package ulogger is the logging facade of the node. Services receive a Logger and
// derive per service children from it with New; the default implementation writes
// through zerolog, tests use TestLogger or VerboseTestLogger.
package ulogger

// Logger is the leveled, printf style logger every service is handed. Levels map to
// the gocore levels so LogLevel can be compared against gocore.DEBUG and friends.
type Logger interface {
	LogLevel() int
	SetLogLevel(level string)
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	New(service string, options ...Option) Logger
	Duplicate(options ...Option) Logger
}

// New creates the logger selected by WithLoggerType: "test" discards everything,
// anything else logs through zerolog.
func New(service string, options ...Option) Logger {
	opts := DefaultOptions()
	for _, o := range options {
		o(opts)
	}

	if opts.loggerType == "test" {
		return TestLogger{}
	}

	return NewZeroLogger(service, options...)
}
