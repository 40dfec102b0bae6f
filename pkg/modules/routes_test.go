package modules

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRouteFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("round trip", func(t *testing.T) {
		entries := []RouteEntry{
			{Module: "imaging", Package: "apps/imaging"},
			{Module: "roi", Package: "apps/roi"},
		}
		require.NoError(t, writeRouteFile(dir, "projects", entries))

		doc, err := LoadRoutes(dir, "projects")
		require.NoError(t, err)
		assert.Equal(t, "projects", doc.EntryPoint)
		assert.Equal(t, entries, doc.Modules)
	})

	t.Run("nil entries publish an empty list", func(t *testing.T) {
		require.NoError(t, writeRouteFile(dir, "empty", nil))
		doc, err := LoadRoutes(dir, "empty")
		require.NoError(t, err)
		assert.NotNil(t, doc.Modules)
		assert.Empty(t, doc.Modules)
	})

	t.Run("rewrite replaces the previous document", func(t *testing.T) {
		require.NoError(t, writeRouteFile(dir, "projects", []RouteEntry{{Module: "single", Package: "apps/single"}}))
		doc, err := LoadRoutes(dir, "projects")
		require.NoError(t, err)
		require.Len(t, doc.Modules, 1)
		assert.Equal(t, "single", doc.Modules[0].Module)
	})

	t.Run("no temporary file is left behind", func(t *testing.T) {
		names, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("empty directory disables writing", func(t *testing.T) {
		require.NoError(t, writeRouteFile("", "projects", nil))
	})

	t.Run("missing file fails to load", func(t *testing.T) {
		_, err := LoadRoutes(dir, "absent")
		assert.True(t, os.IsNotExist(err))
	})
}

func TestWatchRoutes(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seen := make(chan string, 8)
	done := make(chan error, 1)
	go func() {
		done <- WatchRoutes(ctx, dir, nil, func(epAlias string) { seen <- epAlias })
	}()

	// Give the watcher a moment to attach before the first write.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, writeRouteFile(dir, "authorizations", nil))

	select {
	case alias := <-seen:
		assert.Equal(t, "authorizations", alias)
	case <-time.After(5 * time.Second):
		t.Fatal("no change event for the written route file")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop on cancellation")
	}
}
