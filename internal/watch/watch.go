// Package watch invalidates the schedule cache when a local source file
// changes on disk.
package watch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	appLog "matside/internal/log"
	"matside/internal/source"
)

const DefaultDebounce = 500 * time.Millisecond

// Invalidator is what a Watcher notifies; *schedule.Repository satisfies it.
type Invalidator interface {
	Invalidate()
}

// Watcher watches the directories of local source files. Editors and sheet
// exports often replace a file by rename, so the directory is watched and
// events are filtered by file name.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	target   Invalidator
	files    map[string]bool
	dirs     []string
	debounce time.Duration
	pending  bool
	lastSeen time.Time
	fired    int
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// New creates a Watcher for the local paths among locations. Remote URLs are
// ignored. It returns an error if none of the locations is a local file.
func New(locations []string, target Invalidator, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	files := make(map[string]bool)
	dirSet := make(map[string]bool)
	var dirs []string
	for _, loc := range locations {
		if loc == "" || source.IsRemote(loc) {
			continue
		}
		abs, err := filepath.Abs(loc)
		if err != nil {
			return nil, err
		}
		files[abs] = true
		if dir := filepath.Dir(abs); !dirSet[dir] {
			dirSet[dir] = true
			dirs = append(dirs, dir)
		}
	}
	if len(files) == 0 {
		return nil, errors.New("watch: no local source files")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:  fw,
		target:   target,
		files:    files,
		dirs:     dirs,
		debounce: debounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. It is non-blocking; events are handled in a
// goroutine until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	for _, dir := range w.dirs {
		if err := w.watcher.Add(dir); err != nil {
			// Directory may not exist yet; the source read will report it.
			appLog.Warn("watch: cannot watch directory", "dir", dir, "err", err.Error())
			continue
		}
		appLog.Info("watch: watching source directory", "dir", dir)
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()

	if wasRunning {
		close(w.stopCh)
		<-w.doneCh
	}
	if err := w.watcher.Close(); err != nil {
		appLog.Error("watch: error closing watcher", err)
	}
}

// Fired returns how many invalidations the watcher has issued.
func (w *Watcher) Fired() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fired
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounce / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			appLog.Error("watch: watcher error", err)
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return
	}
	name, err := filepath.Abs(event.Name)
	if err != nil || !w.files[name] {
		return
	}

	appLog.Debug("watch: source changed", "path", name, "op", event.Op.String())
	w.mu.Lock()
	w.pending = true
	w.lastSeen = time.Now()
	w.mu.Unlock()
}

// flush invalidates once the last event is older than the debounce window.
func (w *Watcher) flush() {
	w.mu.Lock()
	if !w.pending || time.Since(w.lastSeen) < w.debounce {
		w.mu.Unlock()
		return
	}
	w.pending = false
	w.fired++
	w.mu.Unlock()

	appLog.Info("watch: source file changed; invalidating schedule cache")
	w.target.Invalidate()
}
