package intent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLibrary(t *testing.T, path, opening string) {
	t.Helper()
	data := strings.Replace(string(defaultLibraryYAML), Embedded().Greeting.Opening, opening, 1)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.yaml")
	writeLibrary(t, path, "First greeting")

	initial, err := LoadFile(path)
	require.NoError(t, err)
	store := NewStore(initial)

	reloaded := make(chan *Library, 4)
	w, err := NewWatcher(path, store, nil,
		WithDebounce(10*time.Millisecond),
		WithReloadHook(func(lib *Library) { reloaded <- lib }),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	writeLibrary(t, path, "Second greeting")

	select {
	case lib := <-reloaded:
		assert.Equal(t, "Second greeting", lib.Greeting.Opening)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for library reload")
	}
	assert.Equal(t, "Second greeting", store.Current().Greeting.Opening)
}

func TestWatcherKeepsPreviousLibraryOnInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.yaml")
	writeLibrary(t, path, "Stable greeting")

	initial, err := LoadFile(path)
	require.NoError(t, err)
	store := NewStore(initial)

	w, err := NewWatcher(path, store, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.watcher.Close() })

	require.NoError(t, os.WriteFile(path, []byte("rules: [oops"), 0o644))
	require.Error(t, w.Reload())
	assert.Same(t, initial, store.Current())
}
