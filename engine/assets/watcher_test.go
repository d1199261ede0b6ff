package assets

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherIndexesAndReportsChanges(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "shaders")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	decl := filepath.Join(sub, "unlit.yaml")
	require.NoError(t, os.WriteFile(decl, []byte("name: Unlit\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "unlit.vert.spv"), []byte{1}, 0o644))

	w, err := NewWatcher()
	require.NoError(t, err)
	require.NoError(t, w.Start(root))
	defer w.Close()

	assert.True(t, w.Known(decl))
	assert.Equal(t, 1, w.Len())

	require.NoError(t, os.WriteFile(decl, []byte("name: Unlit\nvertex: a.spv\n"), 0o644))
	select {
	case got := <-w.Changes():
		assert.Equal(t, filepath.Clean(decl), got)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}

func TestWatcherDrainAfterClose(t *testing.T) {
	w, err := NewWatcher()
	require.NoError(t, err)
	require.NoError(t, w.Start(t.TempDir()))
	require.NoError(t, w.Close())
	assert.Empty(t, w.Drain())
}

func TestWatcherCloseAfterFailedStart(t *testing.T) {
	w, err := NewWatcher()
	require.NoError(t, err)
	require.Error(t, w.Start(filepath.Join(t.TempDir(), "missing")))

	closed := make(chan error, 1)
	go func() { closed <- w.Close() }()
	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after a failed Start")
	}
	assert.Empty(t, w.Drain())
	assert.NoError(t, w.Close())
}

func TestIsDeclFile(t *testing.T) {
	assert.True(t, IsDeclFile("a/b.yaml"))
	assert.True(t, IsDeclFile("b.yml"))
	assert.False(t, IsDeclFile("b.spv"))
}
