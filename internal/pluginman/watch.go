package pluginman

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/litescript/oxviewer/pkg/plugin"
)

const watchDebounce = 150 * time.Millisecond

// Watcher installs plugins whose descriptors appear in a drop-in
// directory. A descriptor is installed when its plugin is missing or older.
type Watcher struct {
	dir     string
	manager plugin.Manager
	logger  *zap.Logger

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
	running sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// NewWatcher starts watching dir. Existing descriptors are installed by
// Scan, not by NewWatcher.
func NewWatcher(dir string, m plugin.Manager, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		dir:     dir,
		manager: m,
		logger:  logger,
		watcher: fsw,
		pending: make(map[string]*time.Timer),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go w.run()

	return w, nil
}

// Scan installs every descriptor already in the directory.
func (w *Watcher) Scan(ctx context.Context) {
	matches, _ := filepath.Glob(filepath.Join(w.dir, "*.ini"))
	for _, path := range matches {
		w.installDescriptor(ctx, path)
	}
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 && isDescriptor(event.Name) {
				w.schedule(event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Drop-in watcher error", zap.Error(err))

		case <-w.done:
			return
		}
	}
}

func isDescriptor(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".ini")
}

// schedule debounces rapid writes to the same descriptor.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(watchDebounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		if w.stopped {
			w.mu.Unlock()
			return
		}
		w.running.Add(1)
		w.mu.Unlock()
		defer w.running.Done()

		w.installDescriptor(w.ctx, path)
	})
}

func (w *Watcher) installDescriptor(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}

	info, err := ParseDescriptor(path)
	if err != nil {
		w.logger.Warn("Skipping drop-in", zap.String("path", path), zap.Error(err))
		return
	}

	if st, ok := w.manager.State(info.Name, info.Uploader); ok && st.Info.Version >= info.Version {
		w.logger.Debug("Drop-in already installed", zap.Stringer("plugin", info))
		return
	}

	if _, err := w.manager.Install(ctx, info); err != nil {
		w.logger.Warn("Drop-in install failed", zap.String("path", path), zap.Error(err))
	}
}

// Stop closes the watcher, cancels pending installs and waits for a
// running one to return. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.done)
		w.cancel()
		w.watcher.Close()

		w.mu.Lock()
		w.stopped = true
		for _, t := range w.pending {
			t.Stop()
		}
		w.pending = map[string]*time.Timer{}
		w.mu.Unlock()

		w.running.Wait()
	})
}
