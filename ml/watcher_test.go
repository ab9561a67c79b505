package ml

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestArtifactWatcherReportsChanges(t *testing.T) {
	dir := t.TempDir()
	scalerPath := filepath.Join(dir, "scaler.json")
	otherPath := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(scalerPath, []byte("{}"), 0o600))

	core, logs := observer.New(zap.WarnLevel)
	watcher, err := NewArtifactWatcher(zap.New(core), scalerPath)
	require.NoError(t, err)

	changed := make(chan string, 8)
	watcher.OnChange(func(path string, op fsnotify.Op) {
		changed <- path
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Run(ctx)

	require.NoError(t, os.WriteFile(otherPath, []byte("ignored"), 0o600))
	require.NoError(t, os.WriteFile(scalerPath, []byte(`{"mean":[]}`), 0o600))

	select {
	case path := <-changed:
		abs, err := filepath.Abs(scalerPath)
		require.NoError(t, err)
		assert.Equal(t, abs, path)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a change notification for the scaler artifact")
	}

	assert.NotZero(t, logs.FilterMessage("artifact changed on disk, restart required to load it").Len())
}

func TestArtifactWatcherMissingDirectory(t *testing.T) {
	_, err := NewArtifactWatcher(nil, filepath.Join(t.TempDir(), "missing", "model.json"))
	assert.Error(t, err)
}
