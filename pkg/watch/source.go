// Package watch reloads a rule dataset whenever its source file changes.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/fsnotify.v1"

	"github.com/coolbeans/rulebook/pkg/ruleset"
)

// DefaultDebounce is how long the watcher waits for a burst of file events
// to settle before reloading.
const DefaultDebounce = 200 * time.Millisecond

// Status describes a running watcher.
type Status struct {
	// Path is the watched source file.
	Path string `json:"path"`

	// Running reports whether the watcher has been started.
	Running bool `json:"running"`

	// Paused reports whether change events are currently ignored.
	Paused bool `json:"paused"`

	// Reloads counts completed reloads, failures included.
	Reloads int `json:"reloads"`

	// Failures counts reloads that returned an error.
	Failures int `json:"failures"`

	// LastReload is when the last reload completed.
	LastReload time.Time `json:"last_reload"`

	// LastError holds the most recent reload error.
	LastError string `json:"last_error,omitempty"`

	// Loader is the state of the dataset loader.
	Loader ruleset.Status `json:"loader"`
}

// SourceWatcher watches one rules source and reloads a Loader when it
// changes. The parent directory is watched so that editors which replace
// the file on save are still observed.
type SourceWatcher struct {
	path     string
	loader   *ruleset.Loader
	debounce time.Duration

	watcher   *fsnotify.Watcher
	stopChan  chan struct{}
	running   bool
	paused    bool
	runningMu sync.Mutex

	status   Status
	statusMu sync.RWMutex

	callbacks  []func(Status, error)
	callbackMu sync.RWMutex
}

// NewSourceWatcher creates a watcher for path that reloads loader.
func NewSourceWatcher(path string, loader *ruleset.Loader) *SourceWatcher {
	clean := filepath.Clean(path)
	return &SourceWatcher{
		path:     clean,
		loader:   loader,
		debounce: DefaultDebounce,
		status:   Status{Path: clean},
	}
}

// SetDebounce changes the settle interval. Must be called before Start.
func (w *SourceWatcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// OnReload registers a callback invoked after every reload with the
// watcher status and the reload error, if any.
func (w *SourceWatcher) OnReload(callback func(Status, error)) {
	w.callbackMu.Lock()
	defer w.callbackMu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start performs an initial load and begins watching. The initial load
// error is returned, but the watcher keeps running so that a fixed source
// is picked up.
func (w *SourceWatcher) Start(ctx context.Context) error {
	w.runningMu.Lock()
	if w.running {
		w.runningMu.Unlock()
		return fmt.Errorf("watcher is already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.runningMu.Unlock()
		return fmt.Errorf("creating watcher: %w", err)
	}
	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		w.runningMu.Unlock()
		return fmt.Errorf("watching directory %s: %w", dir, err)
	}

	w.watcher = watcher
	w.stopChan = make(chan struct{})
	w.running = true
	w.runningMu.Unlock()

	w.statusMu.Lock()
	w.status.Running = true
	w.statusMu.Unlock()

	log.Info().Str("path", w.path).Msg("watching rules source")

	initialErr := w.reload(ctx)
	go w.watchLoop(ctx, watcher, w.stopChan)
	return initialErr
}

// Stop stops watching.
func (w *SourceWatcher) Stop() error {
	w.runningMu.Lock()
	defer w.runningMu.Unlock()

	if !w.running {
		return fmt.Errorf("watcher is not running")
	}

	close(w.stopChan)
	w.watcher.Close()
	w.running = false

	w.statusMu.Lock()
	w.status.Running = false
	w.statusMu.Unlock()
	return nil
}

// Pause ignores change events until Resume is called.
func (w *SourceWatcher) Pause() {
	w.setPaused(true)
}

// Resume resumes handling change events.
func (w *SourceWatcher) Resume() {
	w.setPaused(false)
}

func (w *SourceWatcher) setPaused(paused bool) {
	w.runningMu.Lock()
	w.paused = paused
	w.runningMu.Unlock()

	w.statusMu.Lock()
	w.status.Paused = paused
	w.statusMu.Unlock()
}

func (w *SourceWatcher) isPaused() bool {
	w.runningMu.Lock()
	defer w.runningMu.Unlock()
	return w.paused
}

// ReloadNow reloads immediately, regardless of file events.
func (w *SourceWatcher) ReloadNow(ctx context.Context) error {
	return w.reload(ctx)
}

// Status returns the watcher status.
func (w *SourceWatcher) Status() Status {
	w.statusMu.RLock()
	status := w.status
	w.statusMu.RUnlock()

	status.Loader = w.loader.Status()
	return status
}

func (w *SourceWatcher) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, stop <-chan struct{}) {
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
		case <-stop:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if w.isPaused() {
				log.Debug().Str("path", w.path).Str("op", event.Op.String()).Msg("change ignored while paused")
				continue
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			go w.reload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Str("path", w.path).Msg("source watcher error")
		}
	}
}

// reload runs one load. Overlapping reloads are allowed; the loader
// discards a result that finishes after a newer one.
func (w *SourceWatcher) reload(ctx context.Context) error {
	_, err := w.loader.Load(ctx)

	w.statusMu.Lock()
	w.status.Reloads++
	w.status.LastReload = time.Now()
	if err != nil {
		w.status.Failures++
		w.status.LastError = err.Error()
	} else {
		w.status.LastError = ""
	}
	w.statusMu.Unlock()

	if err != nil {
		log.Warn().Err(err).Str("path", w.path).Msg("reload failed")
	} else {
		log.Info().Str("path", w.path).Msg("rules source reloaded")
	}

	status := w.Status()
	w.callbackMu.RLock()
	callbacks := append([]func(Status, error){}, w.callbacks...)
	w.callbackMu.RUnlock()
	for _, callback := range callbacks {
		callback(status, err)
	}
	return err
}
