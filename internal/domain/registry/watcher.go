package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/meridian-robotics/rappd/internal/infrastructure/logging"
)

// reloadDebounce coalesces bursts of filesystem events into one reload.
const reloadDebounce = 500 * time.Millisecond

// Watcher reloads the catalog when descriptor files change on disk and
// notifies the given callback after each reload so the list feeds can
// be republished.
type Watcher struct {
	manager  *Manager
	paths    []string
	onReload func()
	log      *logging.Logger
	debounce time.Duration

	fsw *fsnotify.Watcher
}

// NewWatcher creates a catalog watcher over the given directories.
func NewWatcher(manager *Manager, paths []string, onReload func(), log *logging.Logger) (*Watcher, error) {
	if log == nil {
		log = logging.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog watcher: %w", err)
	}
	return &Watcher{
		manager:  manager,
		paths:    paths,
		onReload: onReload,
		log:      log,
		debounce: reloadDebounce,
		fsw:      fsw,
	}, nil
}

// Start begins watching. Glob paths watch their static prefix
// directory. Missing directories are skipped with a warning; they are
// picked up on the next daemon restart.
func (w *Watcher) Start(ctx context.Context) error {
	var watched int
	for _, dir := range w.paths {
		if isGlobPattern(dir) {
			dir, _ = doublestar.SplitPattern(dir)
		}
		if err := w.fsw.Add(dir); err != nil {
			w.log.Warn("cannot watch catalog directory",
				zap.String("path", dir), zap.Error(err))
			continue
		}
		watched++
	}
	if watched == 0 {
		return fmt.Errorf("no catalog directories could be watched")
	}

	go w.loop(ctx)
	return nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	var pending *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, descriptorSuffix) {
				continue
			}
			w.log.Debug("catalog change detected",
				zap.String("file", event.Name),
				zap.String("op", event.Op.String()))
			if pending == nil {
				pending = time.NewTimer(w.debounce)
				fire = pending.C
			} else {
				if !pending.Stop() {
					select {
					case <-pending.C:
					default:
					}
				}
				pending.Reset(w.debounce)
			}

		case <-fire:
			pending = nil
			fire = nil
			if err := w.manager.Load(ctx, w.paths...); err != nil {
				w.log.Error("catalog reload failed", zap.Error(err))
				continue
			}
			if w.onReload != nil {
				w.onReload()
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("catalog watcher error", zap.Error(err))
		}
	}
}
