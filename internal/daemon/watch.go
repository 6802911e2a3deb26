package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/theirongolddev/ccquota/internal/source"
)

// LogWatcher reports, debounced, when session logs under a directory change.
type LogWatcher struct {
	watcher  *fsnotify.Watcher
	root     string
	debounce time.Duration
	logger   *zap.Logger

	changes chan struct{}
	done    chan struct{}
	started atomic.Bool
	once    sync.Once
}

// NewLogWatcher watches root and every directory below it.
func NewLogWatcher(root string, debounce time.Duration, logger *zap.Logger) (*LogWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	lw := &LogWatcher{
		watcher:  w,
		root:     root,
		debounce: debounce,
		logger:   logger,
		changes:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	if err := lw.addTree(root); err != nil {
		_ = w.Close()
		return nil, err
	}
	return lw, nil
}

// fsnotify does not recurse, so every project directory is added explicitly.
func (lw *LogWatcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // skip unreadable entries
		}
		if !d.IsDir() {
			return nil
		}
		if err := lw.watcher.Add(path); err != nil {
			lw.logger.Debug("watch directory", zap.String("dir", path), zap.Error(err))
		}
		return nil
	})
}

// Changes delivers one signal per burst of log writes.
func (lw *LogWatcher) Changes() <-chan struct{} {
	return lw.changes
}

// Start processes filesystem events until ctx is done or Close is called.
func (lw *LogWatcher) Start(ctx context.Context) {
	if lw.started.CompareAndSwap(false, true) {
		go lw.run(ctx)
	}
}

func (lw *LogWatcher) run(ctx context.Context) {
	defer close(lw.done)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-lw.watcher.Events:
			if !ok {
				return
			}
			if !lw.relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(lw.debounce)
			} else {
				timer.Reset(lw.debounce)
			}
			fire = timer.C
		case err, ok := <-lw.watcher.Errors:
			if !ok {
				return
			}
			lw.logger.Warn("log watcher error", zap.Error(err))
		case <-fire:
			fire = nil
			select {
			case lw.changes <- struct{}{}:
			default:
			}
		}
	}
}

func (lw *LogWatcher) relevant(ev fsnotify.Event) bool {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = lw.addTree(ev.Name)
			return true
		}
	}
	if !strings.HasSuffix(ev.Name, source.LogSuffix) {
		return false
	}
	return ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}

// Close stops the watcher and waits for its goroutine if it was started.
func (lw *LogWatcher) Close() error {
	var err error
	lw.once.Do(func() {
		err = lw.watcher.Close()
		if lw.started.Load() {
			<-lw.done
		}
	})
	return err
}
