package warehouse

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher uses fsnotify to watch a local warehouse file and calls
// onChange, debounced, after it is modified.
type Watcher struct {
	onChange func()
	watcher  *fsnotify.Watcher
	base     string
	debounce time.Duration
	pending  time.Time
	mu       sync.Mutex
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewWatcher watches the sqlite file at path, including its
// -wal and -journal siblings.
func NewWatcher(
	path string, debounce time.Duration, onChange func(),
) (*Watcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("onChange callback is nil: %w", os.ErrInvalid)
	}
	if debounce <= 0 {
		return nil, fmt.Errorf(
			"debounce must be positive, got %s: %w", debounce, os.ErrInvalid,
		)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// sqlite creates and replaces sibling files; watch the dir.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", path, err)
	}

	return &Watcher{
		onChange: onChange,
		watcher:  fsw,
		base:     filepath.Base(path),
		debounce: debounce,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		now:      time.Now,
	}, nil
}

// Start begins processing file events in a goroutine.
func (w *Watcher) Start() {
	go w.loop()
}

// Stop stops the watcher and waits for it to finish.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		<-w.done
		w.watcher.Close()
	})
}

func (w *Watcher) loop() {
	defer close(w.done)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
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
			log.Printf("warehouse watcher error: %v", err)

		case <-ticker.C:
			w.flush()
		}
	}
}

// matches reports whether name is the warehouse file or one of
// its sqlite sidecars.
func (w *Watcher) matches(name string) bool {
	return strings.HasPrefix(filepath.Base(name), w.base)
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	if !w.matches(event.Name) {
		return
	}
	w.mu.Lock()
	w.pending = w.now()
	w.mu.Unlock()
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if w.pending.IsZero() || w.now().Sub(w.pending) < w.debounce {
		w.mu.Unlock()
		return
	}
	w.pending = time.Time{}
	w.mu.Unlock()

	log.Printf("warehouse watcher: %s changed, resetting caches", w.base)
	w.onChange()
}
