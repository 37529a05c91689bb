package tracker

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher records files matching patterns that are created or written in a
// directory while it runs. It complements Claim when an invocation finishes
// inside the filesystem's timestamp resolution and an overwritten file keeps
// its old modification time.
type Watcher struct {
	dir      string
	patterns []string
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	touched map[string]bool
	errs    []error
	done    chan struct{}
}

// Watch starts watching dir. Call Stop to collect the results.
func Watch(dir string, patterns []string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w := &Watcher{
		dir:      dir,
		patterns: patterns,
		watcher:  fw,
		touched:  make(map[string]bool),
		done:     make(chan struct{}),
	}
	go w.processEvents()
	return w, nil
}

func (w *Watcher) processEvents() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !Matches(event.Name, w.patterns) {
				continue
			}
			w.mu.Lock()
			w.touched[filepath.Clean(event.Name)] = true
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.mu.Lock()
			w.errs = append(w.errs, err)
			w.mu.Unlock()
		}
	}
}

// Stop ends the watch and returns the touched paths, sorted. Paths that
// were created and removed again during the watch are still reported; the
// caller is expected to stat them.
func (w *Watcher) Stop() ([]string, error) {
	err := w.watcher.Close()
	<-w.done

	w.mu.Lock()
	defer w.mu.Unlock()

	paths := make([]string, 0, len(w.touched))
	for p := range w.touched {
		paths = append(paths, p)
	}
	if err == nil && len(w.errs) > 0 {
		err = w.errs[0]
	}
	return Union(paths), err
}
