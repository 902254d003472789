// Package watch turns class files rewritten by a compiler into
// redefinition batches.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/redefine/internal/config"
	"github.com/standardbeagle/redefine/internal/debug"
	"github.com/standardbeagle/redefine/internal/types"
)

// Root is a class output directory owned by one loader.
type Root struct {
	Loader types.LoaderID
	Dir    string
}

// Batch is the settled set of changes below one root. Names are type
// names, sorted.
type Batch struct {
	Loader  types.LoaderID
	Root    string
	Changed []string
	Removed []string
}

// Handler receives each batch. A returned error is counted and logged; the
// watcher keeps running.
type Handler func(ctx context.Context, b Batch) error

// Watcher monitors class output directories and hands debounced batches to
// a Handler, one batch per root, roots in the order given.
type Watcher struct {
	watcher   *fsnotify.Watcher
	roots     []Root
	include   []string
	exclude   []string
	handler   Handler
	debouncer *eventDebouncer
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	// Watch mode statistics
	batchesProcessed int64
	errorCount       int64
	lastBatchTime    time.Time
	statsMu          sync.RWMutex
}

// EventType classifies a file event.
type EventType int

const (
	EventCreate EventType = iota
	EventWrite
	EventRemove
	EventRename
)

// New creates a watcher over roots filtered by the include and exclude
// patterns of cfg, which match slash-separated paths relative to a root.
func New(cfg config.Watch, roots []Root, h Handler) (*Watcher, error) {
	if h == nil {
		return nil, fmt.Errorf("watch: nil handler")
	}
	for _, p := range slices.Concat(cfg.Include, cfg.Exclude) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("watch: invalid pattern %q", p)
		}
	}
	roots = slices.Clone(roots)
	for i := range roots {
		abs, err := filepath.Abs(roots[i].Dir)
		if err != nil {
			return nil, fmt.Errorf("watch: failed to resolve %s: %w", roots[i].Dir, err)
		}
		roots[i].Dir = abs
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		watcher: watcher,
		roots:   roots,
		include: cfg.Include,
		exclude: cfg.Exclude,
		handler: h,
		ctx:     ctx,
		cancel:  cancel,
	}
	debounce := time.Duration(cfg.DebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = config.DefaultWatchDebounceMs * time.Millisecond
	}
	w.debouncer = newEventDebouncer(debounce)
	return w, nil
}

// Start adds watches below every root and starts processing events.
func (w *Watcher) Start() error {
	var err error
	w.startOnce.Do(func() {
		for _, r := range w.roots {
			debug.LogWatch("starting watcher for %s (loader %s)\n", r.Dir, r.Loader)
			if err = w.addWatches(r.Dir); err != nil {
				err = fmt.Errorf("failed to add watches starting from %s: %w", r.Dir, err)
				return
			}
		}

		w.wg.Add(2)
		go w.processEvents()
		go w.debouncer.run(w.ctx, &w.wg, w.flush)
	})
	return err
}

// Stop stops the watcher and waits for an in-flight batch to finish.
// Events still pending are dropped.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		w.cancel()
		w.debouncer.stop()
		err = w.watcher.Close()
		w.wg.Wait()
		debug.LogWatch("watcher stopped\n")
	})
	return err
}

// addWatches recursively adds watches to every non-excluded directory
func (w *Watcher) addWatches(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", root)
	}

	// Track visited directories to prevent loops from symlink cycles
	visitedDirs := make(map[string]bool)

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return nil
		}
		if visitedDirs[realPath] {
			return filepath.SkipDir
		}
		visitedDirs[realPath] = true

		if path != root && w.shouldIgnoreDirectory(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			log.Printf("Warning: failed to add watch for %s: %v", path, err)
		}
		return nil
	})
}

// rootOf returns the root containing path and the slash-separated path
// relative to it.
func (w *Watcher) rootOf(path string) (Root, string, bool) {
	for _, r := range w.roots {
		rel, err := filepath.Rel(r.Dir, path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		return r, filepath.ToSlash(rel), true
	}
	return Root{}, "", false
}

func (w *Watcher) shouldIgnoreDirectory(path string) bool {
	_, rel, ok := w.rootOf(path)
	if !ok {
		return true
	}
	for _, pattern := range w.exclude {
		// "**/gen/**" excludes the directory gen itself
		dirPattern := strings.TrimSuffix(pattern, "/**")
		if matched, _ := doublestar.Match(dirPattern, rel); matched {
			return true
		}
		if matched, _ := doublestar.Match(pattern, rel+"/"); matched {
			return true
		}
	}
	return false
}

// shouldProcessPath checks a file path against the include and exclude patterns
func (w *Watcher) shouldProcessPath(rel string) bool {
	if !strings.HasSuffix(rel, types.ClassFileSuffix) {
		return false
	}
	for _, pattern := range w.exclude {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return false
		}
	}
	if len(w.include) == 0 {
		return true
	}
	for _, pattern := range w.include {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}

// processEvents processes file system events from fsnotify
func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
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
			log.Printf("File watcher error: %v", err)
			w.incrementStats(0, 1)
		}
	}
}

// handleEvent handles a single file system event
func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name
	debug.LogWatch("received %v for %s\n", event.Op, path)

	info, err := os.Stat(path)
	if err != nil {
		// Deleted, or renamed away
		if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			if _, rel, ok := w.rootOf(path); ok && w.shouldProcessPath(rel) {
				w.debouncer.addEvent(path, EventRemove)
			}
		}
		return
	}

	if info.IsDir() {
		if event.Op&fsnotify.Create != 0 && !w.shouldIgnoreDirectory(path) {
			// Classes written into the new directory before the watch
			// was added are picked up by the walk.
			if err := w.addWatches(path); err != nil {
				log.Printf("Warning: failed to add watch for new directory %s: %v", path, err)
			}
			w.addExisting(path)
		}
		return
	}

	_, rel, ok := w.rootOf(path)
	if !ok || !w.shouldProcessPath(rel) {
		debug.LogWatch("ignoring %s\n", path)
		return
	}

	var eventType EventType
	switch {
	case event.Op&fsnotify.Create != 0:
		eventType = EventCreate
	case event.Op&fsnotify.Write != 0:
		eventType = EventWrite
	case event.Op&fsnotify.Rename != 0:
		eventType = EventRename
	default:
		return
	}
	w.debouncer.addEvent(path, eventType)
}

func (w *Watcher) addExisting(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if _, rel, ok := w.rootOf(path); ok && w.shouldProcessPath(rel) {
			w.debouncer.addEvent(path, EventCreate)
		}
		return nil
	})
}

// flush groups settled events by root and hands each batch to the handler
func (w *Watcher) flush(events map[string]EventType) {
	batches := make(map[string]*Batch)
	for path, eventType := range events {
		r, rel, ok := w.rootOf(path)
		if !ok {
			continue
		}
		b := batches[r.Dir]
		if b == nil {
			b = &Batch{Loader: r.Loader, Root: r.Dir}
			batches[r.Dir] = b
		}
		name := strings.TrimSuffix(rel, types.ClassFileSuffix)
		if eventType == EventRemove {
			b.Removed = append(b.Removed, name)
		} else {
			b.Changed = append(b.Changed, name)
		}
	}

	for _, r := range w.roots {
		b := batches[r.Dir]
		if b == nil {
			continue
		}
		if w.ctx.Err() != nil {
			return
		}
		slices.Sort(b.Changed)
		slices.Sort(b.Removed)
		debug.LogWatch("batch for %s: %d changed, %d removed\n", b.Loader, len(b.Changed), len(b.Removed))

		var failed int64
		if err := w.handler(w.ctx, *b); err != nil {
			log.Printf("Redefinition of %d classes in loader %s failed: %v", len(b.Changed), b.Loader, err)
			failed = 1
		}
		w.incrementStats(1, failed)
	}
}

// incrementStats updates watch mode statistics
func (w *Watcher) incrementStats(batches int64, errors int64) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()

	w.batchesProcessed += batches
	w.errorCount += errors
	if batches > 0 {
		w.lastBatchTime = time.Now()
	}
}

// Stats returns current watch statistics
func (w *Watcher) Stats() Stats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()

	return Stats{
		BatchesProcessed: w.batchesProcessed,
		ErrorCount:       w.errorCount,
		LastBatchTime:    w.lastBatchTime,
		IsActive:         w.ctx.Err() == nil,
	}
}

// Stats contains statistics about watch operations
type Stats struct {
	BatchesProcessed int64
	ErrorCount       int64
	LastBatchTime    time.Time
	IsActive         bool
}
