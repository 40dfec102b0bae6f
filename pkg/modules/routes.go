package modules

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// RouteEntry maps one child module onto the package serving it.
type RouteEntry struct {
	Module  string `json:"module"`
	Package string `json:"package"`
}

// RouteFile is the aggregation document written per entry point. The
// transport layer reads these at startup and on change events to mount
// URL prefixes.
type RouteFile struct {
	EntryPoint string       `json:"entry_point"`
	Modules    []RouteEntry `json:"modules"`
}

func routeFilePath(dir, epAlias string) string {
	return filepath.Join(dir, epAlias+".json")
}

// writeRouteFile replaces the aggregation file atomically, so a reader
// never observes a half-written document.
func writeRouteFile(dir, epAlias string, entries []RouteEntry) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create routes dir: %w", err)
	}
	doc := RouteFile{EntryPoint: epAlias, Modules: entries}
	if doc.Modules == nil {
		doc.Modules = []RouteEntry{}
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode routes of %s: %w", epAlias, err)
	}
	tmp := routeFilePath(dir, epAlias) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write routes of %s: %w", epAlias, err)
	}
	if err := os.Rename(tmp, routeFilePath(dir, epAlias)); err != nil {
		return fmt.Errorf("publish routes of %s: %w", epAlias, err)
	}
	return nil
}

// LoadRoutes reads one entry point's aggregation file.
func LoadRoutes(dir, epAlias string) (*RouteFile, error) {
	raw, err := os.ReadFile(routeFilePath(dir, epAlias))
	if err != nil {
		return nil, err
	}
	var doc RouteFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode routes of %s: %w", epAlias, err)
	}
	return &doc, nil
}

// WatchRoutes invokes fn with the entry point alias whenever an
// aggregation file lands in dir. It blocks until ctx is cancelled.
func WatchRoutes(ctx context.Context, dir string, log *logrus.Logger, fn func(epAlias string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create routes watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch routes dir: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Write) {
				continue
			}
			name := filepath.Base(event.Name)
			if !strings.HasSuffix(name, ".json") {
				continue
			}
			fn(strings.TrimSuffix(name, ".json"))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if log != nil {
				log.WithError(err).Warn("routes watcher error")
			}
		}
	}
}
