package policy

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher follows the user rule document and hot reloads the engine when
// it changes. It watches the parent directory rather than the file: the
// refresher replaces the document by rename, which would silently detach
// a watch on the file itself.
type Watcher struct {
	engine   *Engine
	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	wg       sync.WaitGroup

	// Debounce rapid sequences of events from one replace.
	debounce     time.Duration
	pendingTimer *time.Timer
	timerMu      sync.Mutex
}

// NewWatcher creates a watcher for the engine's document path.
func NewWatcher(engine *Engine) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		engine:   engine,
		watcher:  fsWatcher,
		stopChan: make(chan struct{}),
		debounce: 500 * time.Millisecond,
	}, nil
}

// Start begins watching. A missing or unconfigured document directory is
// not an error; the watcher just stays idle.
func (w *Watcher) Start() error {
	docPath := w.engine.DocumentPath()
	if docPath == "" {
		log.Warn("No rule document configured, watcher not started")
		return nil
	}

	dir := filepath.Dir(docPath)
	if err := w.watcher.Add(dir); err != nil {
		log.Warn("Cannot watch %s (may not exist yet): %v", dir, err)
		return nil
	}

	w.wg.Add(1)
	go w.run()

	log.Info("Watching rule document: %s", docPath)
	return nil
}

// Stop halts the watcher and releases its file handles.
func (w *Watcher) Stop() error {
	close(w.stopChan)
	w.wg.Wait()

	w.timerMu.Lock()
	if w.pendingTimer != nil {
		w.pendingTimer.Stop()
	}
	w.timerMu.Unlock()

	return w.watcher.Close()
}

func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("Watcher error: %v", err)

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// The directory watch sees every neighbor; only the document and its
	// rename-in-place temp file matter.
	base := filepath.Base(w.engine.DocumentPath())
	name := filepath.Base(event.Name)
	if name != base && name != base+".tmp" {
		return
	}

	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	log.Debug("Rule document changed: %s (%s)", name, event.Op)
	w.scheduleReload()
}

func (w *Watcher) scheduleReload() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.pendingTimer != nil {
		w.pendingTimer.Stop()
	}
	w.pendingTimer = time.AfterFunc(w.debounce, w.doReload)
}

func (w *Watcher) doReload() {
	log.Info("Hot reloading user rules...")
	w.engine.Reload()
}
