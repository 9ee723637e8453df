// Package confwatch reloads the application config when its file
// changes on disk.
package confwatch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"zmesh/internal/util/logger/sl"
)

const DefaultDebounceDuration = 500 * time.Millisecond

// Events that count as a config change. Rename covers editors that
// replace the file atomically.
var watchedEvents = fsnotify.Create | fsnotify.Write | fsnotify.Rename

type Config struct {
	DebounceDuration time.Duration
}

// Watcher observes one config file and invokes onChange after each
// debounced modification burst.
type Watcher struct {
	watcher   *fsnotify.Watcher
	path      string
	onChange  func()
	debouncer *Debouncer
	log       *slog.Logger
	stopChan  chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

func New(path string, onChange func(), config Config, log *slog.Logger) (*Watcher, error) {
	if config.DebounceDuration == 0 {
		config.DebounceDuration = DefaultDebounceDuration
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// watch the directory: most editors replace the file, which would
	// drop a watch on the file itself
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	w := &Watcher{
		watcher:   fw,
		path:      filepath.Clean(path),
		onChange:  onChange,
		debouncer: NewDebouncer(config.DebounceDuration),
		log:       log,
		stopChan:  make(chan struct{}),
	}

	w.wg.Add(1)
	go w.run()

	return w, nil
}

func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopChan:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.shouldProcessEvent(event) {
				continue
			}
			w.log.Debug("Config file changed", slog.String("event", event.String()))
			w.debouncer.Trigger(w.onChange)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("Config watcher error", sl.Err(err))
		}
	}
}

func (w *Watcher) shouldProcessEvent(event fsnotify.Event) bool {
	if event.Op&watchedEvents == 0 {
		return false
	}
	return filepath.Clean(event.Name) == w.path
}

func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.debouncer.Stop()
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}
