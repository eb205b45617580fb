package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/device-services/dsc/internal/provider"
)

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		entries = append(entries, e)
	}
	require.NoError(t, scanner.Err())
	return entries
}

func TestNewLoggerCreatesFile(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir)
	require.NoError(t, err)
	defer logger.Close()

	expected := filepath.Join(dir, "audit.jsonl")
	assert.Equal(t, expected, logger.FilePath())

	_, err = os.Stat(expected)
	require.NoError(t, err)
}

func TestLogActionWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir)
	require.NoError(t, err)
	defer logger.Close()

	ctx := WithUser(context.Background(), "operator")
	logger.LogAction(ctx, "getPosition", "gps-sim", "SUCCESS", 42*time.Millisecond)

	entries := readEntries(t, logger.FilePath())
	require.Len(t, entries, 1)
	assert.Equal(t, "operator", entries[0].User)
	assert.Equal(t, "getPosition", entries[0].Action)
	assert.Equal(t, "gps-sim", entries[0].Subject)
	assert.Equal(t, "SUCCESS", entries[0].Outcome)
	assert.Equal(t, int64(42), entries[0].LatencyMs)
}

func TestLogActionDefaultsUnknownUser(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir)
	require.NoError(t, err)
	defer logger.Close()

	logger.LogAction(context.Background(), "startWatch", "w1", "SUCCESS", 0)

	entries := readEntries(t, logger.FilePath())
	require.Len(t, entries, 1)
	assert.Equal(t, "unknown", entries[0].User)
}

func TestLogDetailedActionErrorCodes(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir)
	require.NoError(t, err)
	defer logger.Close()

	ctx := context.Background()
	logger.LogDetailedAction(ctx, "getPosition", "gps", nil, provider.ErrTimeout, time.Millisecond)
	logger.LogDetailedAction(ctx, "getPosition", "gps", nil, provider.ErrPermissionDenied, time.Millisecond)
	logger.LogDetailedAction(ctx, "syncSource", "contacts", map[string]interface{}{"pushed": 3}, nil, time.Second)

	entries := readEntries(t, logger.FilePath())
	require.Len(t, entries, 3)
	assert.Equal(t, "TIMEOUT", entries[0].Code)
	assert.Equal(t, "ERROR", entries[0].Outcome)
	assert.Equal(t, "PERMISSION_DENIED", entries[1].Code)
	assert.Equal(t, "SUCCESS", entries[2].Code)
	assert.Equal(t, float64(3), entries[2].Params["pushed"])
}

func TestRotate(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir)
	require.NoError(t, err)
	defer logger.Close()

	logger.LogAction(context.Background(), "getPosition", "gps", "SUCCESS", 0)
	require.NoError(t, logger.Rotate())
	logger.LogAction(context.Background(), "getPosition", "gps", "SUCCESS", 0)

	entries := readEntries(t, logger.FilePath())
	assert.Len(t, entries, 1)

	matches, err := filepath.Glob(logger.FilePath() + ".*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestRotateRenameFailureKeepsLogging(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir)
	require.NoError(t, err)
	defer logger.Close()

	// Yank the file out from under the logger so the rename fails.
	require.NoError(t, os.Remove(logger.FilePath()))
	require.Error(t, logger.Rotate())

	// The logger recovered a writable handle on the original path.
	logger.LogAction(context.Background(), "getPosition", "gps", "SUCCESS", 0)

	entries := readEntries(t, logger.FilePath())
	require.Len(t, entries, 1)
	assert.Equal(t, "getPosition", entries[0].Action)
}

func TestCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir)
	require.NoError(t, err)

	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())

	// Writes after close are dropped silently.
	logger.LogAction(context.Background(), "getPosition", "gps", "SUCCESS", 0)
}
