package userload

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"forge/internal/logging"
	"forge/internal/tools"
)

// Watcher watches a Loader's directory for *.go changes and hot-reloads
// the affected tool, so an approved user tool picks up an edit without a
// process restart. Grounded on
// _examples/theRebelliousNerd-codenerd/internal/core/mangle_watcher.go's
// fsnotify + debounce loop, retargeted from .mg rule files onto user
// tool source files and LoadAll's single-file reload path instead of
// Mangle rule validation/repair.
type Watcher struct {
	loader   *Loader
	registry *tools.Registry
	watcher  *fsnotify.Watcher

	mu          sync.Mutex
	debounce    map[string]time.Time
	debounceDur time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWatcher creates a Watcher over loader's directory. The directory
// need not exist yet: Start tries to add it once and only logs a warning
// if that fails, after which no events arrive for it.
func NewWatcher(loader *Loader, registry *tools.Registry) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		loader:      loader,
		registry:    registry,
		watcher:     fw,
		debounce:    make(map[string]time.Time),
		debounceDur: 300 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching in a background goroutine. Stop (or ctx
// cancellation) ends it.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.loader.dir); err != nil {
		logging.Get(logging.CategoryTools).Warn("userload watcher: %s not watchable yet: %v", w.loader.dir, err)
	}
	go w.run(ctx)
	return nil
}

// Stop ends the watch loop and closes the underlying fsnotify watcher.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
	_ = w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	ticker := time.NewTicker(100 * time.Millisecond)
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
			logging.Get(logging.CategoryTools).Warn("userload watcher error: %v", err)
		case <-ticker.C:
			w.flushDebounced()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".go") || strings.HasSuffix(event.Name, "_test.go") {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	w.mu.Lock()
	w.debounce[event.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flushDebounced() {
	w.mu.Lock()
	now := time.Now()
	var ready []string
	for path, at := range w.debounce {
		if now.Sub(at) >= w.debounceDur {
			ready = append(ready, path)
			delete(w.debounce, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		w.registry.Unregister(toolNameFromPath(path))
		if err := w.loader.loadOne(w.registry, path); err != nil {
			logging.Get(logging.CategoryTools).Warn("userload watcher: reloading %s: %v", path, err)
		}
	}
}
