package ulogger

import (
	"sync"
	"testing"

	"github.com/ordishs/gocore"
)

// VerboseTestLogger writes through t.Logf, so the output only shows for failing or
// verbose tests. Messages below the level set with SetLogLevel are dropped; the
// default lets everything through.
type VerboseTestLogger struct {
	t       *testing.T
	service string
	mu      *sync.Mutex
	level   *int
}

func NewVerboseTestLogger(t *testing.T) *VerboseTestLogger {
	level := int(gocore.DEBUG)

	return &VerboseTestLogger{t: t, mu: &sync.Mutex{}, level: &level}
}

func (l *VerboseTestLogger) LogLevel() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return *l.level
}

// SetLogLevel applies to the logger and every child created from it.
func (l *VerboseTestLogger) SetLogLevel(level string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	*l.level = int(gocore.NewLogLevelFromString(level))
}

// New returns a child that prefixes its messages with service.
func (l *VerboseTestLogger) New(service string, _ ...Option) Logger {
	return &VerboseTestLogger{t: l.t, service: service, mu: l.mu, level: l.level}
}

func (l *VerboseTestLogger) Duplicate(_ ...Option) Logger {
	return l.New(l.service)
}

func (l *VerboseTestLogger) log(level int, tag, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < *l.level {
		return
	}

	l.t.Helper()

	if l.service != "" {
		format = l.service + " | " + format
	}

	l.t.Logf(tag+" "+format, args...)
}

func (l *VerboseTestLogger) Debugf(format string, args ...interface{}) {
	l.log(int(gocore.DEBUG), "[DEBUG]", format, args...)
}

func (l *VerboseTestLogger) Infof(format string, args ...interface{}) {
	l.log(int(gocore.INFO), "[INFO]", format, args...)
}

func (l *VerboseTestLogger) Warnf(format string, args ...interface{}) {
	l.log(int(gocore.WARN), "[WARN]", format, args...)
}

func (l *VerboseTestLogger) Errorf(format string, args ...interface{}) {
	l.log(int(gocore.ERROR), "[ERROR]", format, args...)
}

// Fatalf fails the test.
func (l *VerboseTestLogger) Fatalf(format string, args ...interface{}) {
	l.t.Helper()
	l.t.Fatalf("[FATAL] "+format, args...)
}
