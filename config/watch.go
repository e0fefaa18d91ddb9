package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a TeamConfig from disk whenever its file changes,
// debouncing rapid successive writes into a single reload.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
}

// WatchConfig starts watching filePath's containing directory (some
// filesystems don't support watching a single file directly) and
// returns a Watcher plus a channel that receives the freshly reloaded
// TeamConfig each time the file changes. The channel is closed when
// ctx is cancelled or Close is called.
func WatchConfig(ctx context.Context, filePath string) (*Watcher, <-chan *TeamConfig, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}

	dir := filepath.Dir(absPath)
	base := filepath.Base(absPath)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, nil, err
	}

	w := &Watcher{path: absPath, watcher: fsw}
	ch := make(chan *TeamConfig, 1)
	go w.loop(ctx, base, ch)
	return w, ch, nil
}

const configReloadDebounce = 100 * time.Millisecond

func (w *Watcher) loop(ctx context.Context, base string, ch chan<- *TeamConfig) {
	defer close(ch)
	defer w.watcher.Close()

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(configReloadDebounce, func() {
				cfg, err := LoadConfig(w.path)
				if err != nil {
					slog.Error("config: reload failed", "path", w.path, "error", err)
					return
				}
				select {
				case ch <- cfg:
				default:
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("config: watcher error", "error", err)
		}
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
