package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/wagerline/pkg/observability"
)

// recordingLogger collects events in memory
type recordingLogger struct {
	mu     sync.Mutex
	events []*AuditEvent
	err    error
	closed bool
}

func (l *recordingLogger) Log(ctx context.Context, event *AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return l.err
}

func (l *recordingLogger) Close() error {
	l.closed = true
	return nil
}

func TestMultiLogger(t *testing.T) {
	first := &recordingLogger{err: errors.New("first failed")}
	second := &recordingLogger{}
	multi := NewMultiLogger(first, second)

	event := NewEvent(context.Background(), nil, EventTypeRoleDelete, EventStatusSuccess)
	err := multi.Log(context.Background(), event)
	assert.ErrorContains(t, err, "first failed")
	assert.Len(t, second.events, 1)

	require.NoError(t, multi.Close())
	assert.True(t, first.closed)
	assert.True(t, second.closed)
}

func TestWriterLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf)

	event := NewEvent(context.Background(), nil, EventTypeAuthLogout, EventStatusSuccess)
	event.Message = "signed out"
	require.NoError(t, logger.Log(context.Background(), event))
	require.NoError(t, logger.Log(context.Background(), event))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var decoded AuditEvent
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &decoded))
	assert.Equal(t, EventTypeAuthLogout, decoded.EventType)
	assert.Equal(t, "signed out", decoded.Message)
	assert.NoError(t, logger.Close())
}

func TestFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.log")
	logger, err := NewFileLogger(path)
	require.NoError(t, err)

	require.NoError(t, logger.Log(context.Background(), NewEvent(context.Background(), nil, EventTypeAuthLogin, EventStatusSuccess)))
	require.NoError(t, logger.Close())
	assert.FileExists(t, path)
}

type fakePruneStore struct {
	cutoff time.Time
	err    error
}

func (f *fakePruneStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 3, f.err
}

func TestPruner_Prune(t *testing.T) {
	store := &fakePruneStore{}
	pruner := NewPruner(store, 24*time.Hour, observability.NewLogger(observability.ErrorLevel, io.Discard))
	now := time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)
	pruner.now = func() time.Time { return now }

	removed, err := pruner.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
	assert.Equal(t, now.Add(-24*time.Hour), store.cutoff)

	store.err = errors.New("locked")
	_, err = pruner.Prune(context.Background())
	assert.ErrorContains(t, err, "locked")
}

func TestPruner_StartRejectsBadSchedule(t *testing.T) {
	pruner := NewPruner(&fakePruneStore{}, time.Hour, observability.NewLogger(observability.ErrorLevel, io.Discard))

	err := pruner.Start("not a schedule")
	assert.ErrorContains(t, err, "invalid prune schedule")

	require.NoError(t, pruner.Start(""))
	pruner.Stop()
}
