// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package inputctx

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-chatlink/internal/text"
)

// DefaultDebounce is how long a file must be quiet before it is reloaded.
const DefaultDebounce = 150 * time.Millisecond

// =============================================================================
// WATCHER
// =============================================================================

// Watcher keeps file-backed entries of a Store in sync with the disk.
// It watches the parent directory of every pinned file so that editors that
// save by rename are still picked up.
type Watcher struct {
	store    *Store
	fsw      *fsnotify.Watcher
	logger   *zap.Logger
	debounce time.Duration

	mu      sync.Mutex
	dirs    map[string]bool
	pending map[string]time.Time
}

// NewWatcher creates a watcher for store. Call Run to start it.
func NewWatcher(store *Store, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		store:    store,
		fsw:      fsw,
		logger:   logger,
		debounce: DefaultDebounce,
		dirs:     make(map[string]bool),
		pending:  make(map[string]time.Time),
	}, nil
}

// SetDebounce changes the quiet period before reloads. Call before Run.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Run processes file events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	resync := make(chan struct{}, 1)
	unsubscribe := w.store.Subscribe(func(Change) {
		select {
		case resync <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	w.sync()

	interval := w.debounce / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-resync:
			w.sync()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.markPending(filepath.Clean(event.Name))
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("context watcher error", zap.Error(err))

		case <-ticker.C:
			w.flush()
		}
	}
}

// sync aligns the watched directories with the file-backed entries.
func (w *Watcher) sync() {
	want := make(map[string]bool)
	for _, e := range w.store.Entries() {
		if e.Source != "" {
			want[filepath.Dir(e.Source)] = true
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for dir := range w.dirs {
		if !want[dir] {
			if err := w.fsw.Remove(dir); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
				w.logger.Debug("unwatch failed", zap.String("dir", dir), zap.Error(err))
			}
			delete(w.dirs, dir)
		}
	}
	for dir := range want {
		if w.dirs[dir] {
			continue
		}
		if err := w.fsw.Add(dir); err != nil {
			w.logger.Warn("watch failed", zap.String("dir", dir), zap.Error(err))
			continue
		}
		w.dirs[dir] = true
	}
}

func (w *Watcher) markPending(path string) {
	if w.store.FindBySource(path) == nil {
		return
	}
	w.mu.Lock()
	w.pending[path] = time.Now()
	w.mu.Unlock()
}

// flush reloads files that have been quiet for the debounce period.
func (w *Watcher) flush() {
	now := time.Now()
	var due []string

	w.mu.Lock()
	for path, changed := range w.pending {
		if now.Sub(changed) >= w.debounce {
			due = append(due, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range due {
		w.reload(path)
	}
}

func (w *Watcher) reload(path string) {
	entry := w.store.FindBySource(path)
	if entry == nil {
		return
	}

	frag, ok, err := text.FromFile(path, w.store.maxFileSize)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Mid-rename; the Create for the new file will follow.
			return
		}
		w.logger.Warn("context reload failed", zap.String("path", path), zap.Error(err))
		return
	}

	var content text.TextContent
	if ok {
		content = frag
	}
	if current, has := entry.Payload(); has && content != nil && text.Equal(current, content) {
		return
	}
	w.store.Replace(entry.ID, content)
	w.logger.Debug("context entry refreshed", zap.String("path", path), zap.String("id", entry.ID))
}
