package ulogger_test

import (
	"bytes"
	"testing"

	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/ordishs/gocore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroLoggerWritesToWriter(t *testing.T) {
	var buf bytes.Buffer

	logger := ulogger.New("chain", ulogger.WithWriter(&buf), ulogger.WithLevel("DEBUG"))
	logger.Infof("connected block %d", 12)
	logger.Debugf("debug line")

	out := buf.String()
	assert.Contains(t, out, "connected block 12")
	assert.Contains(t, out, "debug line")
}

func TestZeroLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	logger := ulogger.New("chain", ulogger.WithWriter(&buf), ulogger.WithLevel("WARN"))
	logger.Infof("not shown")
	logger.Debugf("not shown either")
	assert.Empty(t, buf.String())

	logger.Warnf("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestZeroLoggerChildKeepsWriterAndLevel(t *testing.T) {
	var buf bytes.Buffer

	parent := ulogger.New("parent", ulogger.WithWriter(&buf), ulogger.WithLevel("ERROR"))
	child := parent.New("child")

	child.Infof("filtered")
	assert.Empty(t, buf.String())

	child.Errorf("from child")
	assert.Contains(t, buf.String(), "from child")

	dup := parent.Duplicate(ulogger.WithLevel("DEBUG"))
	dup.Debugf("dup debug")
	assert.Contains(t, buf.String(), "dup debug")
}

func TestTestLogger(t *testing.T) {
	logger := ulogger.New("x", ulogger.WithLoggerType("test"))
	_, ok := logger.(ulogger.TestLogger)
	require.True(t, ok)

	// no-op, must not panic
	logger.Fatalf("fatal %s", "ignored")
	assert.Equal(t, logger, logger.New("y"))
}

func TestVerboseTestLogger(t *testing.T) {
	logger := ulogger.NewVerboseTestLogger(t)
	logger.Infof("verbose %d", 1)
	assert.Equal(t, int(gocore.DEBUG), logger.LogLevel())

	child := logger.New("chain")
	child.Debugf("from child")

	// children share the level of their parent
	child.SetLogLevel("warn")
	assert.Equal(t, int(gocore.WARN), logger.LogLevel())
	assert.Equal(t, int(gocore.WARN), child.LogLevel())
}
