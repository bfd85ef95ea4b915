package logsink_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperion-cluster/hyperion/internal/logsink"
	"github.com/hyperion-cluster/hyperion/internal/wire"
)

func TestRegisterCreatesLogFile(t *testing.T) {
	dir := t.TempDir()
	s := logsink.New(dir, "hyperion", nil)
	require.NoError(t, s.Register("worker-1", "10.0.0.5"))

	_, err := os.Stat(filepath.Join(dir, "hyperion@worker-1.log"))
	assert.NoError(t, err)
}

func TestRegisterRotatesPreexistingFileOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hyperion@worker-1.log")
	require.NoError(t, os.WriteFile(path, []byte("old contents\n"), 0o644))

	s := logsink.New(dir, "hyperion", nil)
	require.NoError(t, s.Register("worker-1", "10.0.0.5"))

	rotated, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, "old contents\n", string(rotated))

	fresh, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, fresh)
}

func TestSecondRegisterDoesNotRotateAgain(t *testing.T) {
	dir := t.TempDir()
	s := logsink.New(dir, "hyperion", nil)
	require.NoError(t, s.Register("worker-1", "10.0.0.5"))
	s.Deliver("10.0.0.5", wire.LogRecord{Level: "INFO", Message: "hello"})

	require.NoError(t, s.Register("worker-1", "10.0.0.5"))

	data, err := os.ReadFile(filepath.Join(dir, "hyperion@worker-1.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestDeliverWritesFormattedLine(t *testing.T) {
	dir := t.TempDir()
	s := logsink.New(dir, "hyperion", nil)
	require.NoError(t, s.Register("worker-1", "10.0.0.5"))

	s.Deliver("10.0.0.5", wire.LogRecord{Level: "DEBUG", Message: "booted"})
	s.Close()

	data, err := os.ReadFile(filepath.Join(dir, "hyperion@worker-1.log"))
	require.NoError(t, err)
	assert.Equal(t, "[DEBUG] booted\n", string(data))
}

func TestDeliverKeyedByIPNotHostname(t *testing.T) {
	dir := t.TempDir()
	s := logsink.New(dir, "hyperion", nil)
	require.NoError(t, s.Register("worker-1", "10.0.0.5"))

	// A log-record frame carries no hostname of its own; only the
	// connection's remote IP identifies which sink it belongs to, and
	// that IP is known before the slave ever authenticates.
	s.Deliver("10.0.0.5", wire.LogRecord{Level: "INFO", Message: "pre-auth"})
	s.Close()

	data, err := os.ReadFile(filepath.Join(dir, "hyperion@worker-1.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "pre-auth")
}

func TestDeliverToUnregisteredIPIsDroppedSilently(t *testing.T) {
	dir := t.TempDir()
	s := logsink.New(dir, "hyperion", nil)
	assert.NotPanics(t, func() {
		s.Deliver("10.0.0.99", wire.LogRecord{Level: "INFO", Message: "x"})
	})
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
