// Package hotloader watches the scripts directory and reloads the action set
// when a script changes.
// CRC: crc-HotLoader.md
// Sequence: seq-scripts-hotload.md
package hotloader

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zot/radial/internal/action"
	"github.com/zot/radial/internal/config"
)

// HotLoader watches a script tree, including directories reached through
// symlinked scripts, and calls reload once per burst of changes.
type HotLoader struct {
	config  *config.Config
	dir     string
	watcher *fsnotify.Watcher
	reload  func() error

	// Symlink tracking
	symlinkTargets map[string]string // script path -> resolved target dir
	watchedDirs    map[string]int    // dir path -> reference count
	mu             sync.Mutex

	// Debouncing
	dirtySince    time.Time
	debounceMu    sync.Mutex
	debounceDelay time.Duration

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// New creates a hot loader for dir. reload is called after changes settle.
func New(cfg *config.Config, dir string, reload func() error) (*HotLoader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &HotLoader{
		config:         cfg,
		dir:            filepath.Clean(dir),
		watcher:        watcher,
		reload:         reload,
		symlinkTargets: make(map[string]string),
		watchedDirs:    make(map[string]int),
		debounceDelay:  100 * time.Millisecond,
		done:           make(chan struct{}),
	}, nil
}

// Start watches every directory under dir and begins processing events.
func (h *HotLoader) Start() error {
	err := filepath.WalkDir(h.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return h.addWatch(p)
		}
		if action.IsScript(p) {
			h.updateSymlinkWatch(p)
		}
		return nil
	})
	if err != nil {
		return err
	}

	h.wg.Add(2)
	go h.eventLoop()
	go h.debounceLoop()

	h.config.Log(1, "HotLoader: watching %s for changes", h.dir)
	return nil
}

// Run starts the loader and stops it when ctx ends.
func (h *HotLoader) Run(ctx context.Context) error {
	if err := h.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return h.Stop()
}

// Stop stops the hot loader.
func (h *HotLoader) Stop() error {
	var err error
	h.once.Do(func() {
		close(h.done)
		err = h.watcher.Close()
		h.wg.Wait()
	})
	return err
}

// updateSymlinkWatch checks if a file is a symlink and updates watches accordingly.
func (h *HotLoader) updateSymlinkWatch(filePath string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	info, err := os.Lstat(filePath)
	if err != nil {
		return
	}

	if oldTarget, ok := h.symlinkTargets[filePath]; ok {
		h.removeWatchLocked(oldTarget)
		delete(h.symlinkTargets, filePath)
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := filepath.EvalSymlinks(filePath)
		if err != nil {
			h.config.Log(2, "HotLoader: cannot resolve symlink %s: %v", filePath, err)
			return
		}
		targetDir := filepath.Dir(target)
		h.symlinkTargets[filePath] = targetDir
		h.addWatchLocked(targetDir)
		h.config.Log(2, "HotLoader: watching symlink target dir %s for %s", targetDir, filePath)
	}
}

// removeSymlinkWatch removes the watch for a symlink's target directory.
func (h *HotLoader) removeSymlinkWatch(filePath string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if targetDir, ok := h.symlinkTargets[filePath]; ok {
		h.removeWatchLocked(targetDir)
		delete(h.symlinkTargets, filePath)
	}
}

func (h *HotLoader) addWatch(dir string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.addWatchLocked(dir)
}

func (h *HotLoader) addWatchLocked(dir string) error {
	h.watchedDirs[dir]++
	if h.watchedDirs[dir] == 1 {
		if err := h.watcher.Add(dir); err != nil {
			h.watchedDirs[dir]--
			return err
		}
		h.config.Log(2, "HotLoader: added watch for %s", dir)
	}
	return nil
}

func (h *HotLoader) removeWatchLocked(dir string) {
	h.watchedDirs[dir]--
	if h.watchedDirs[dir] <= 0 {
		h.watcher.Remove(dir)
		delete(h.watchedDirs, dir)
		h.config.Log(2, "HotLoader: removed watch for %s", dir)
	}
}

func (h *HotLoader) eventLoop() {
	defer h.wg.Done()
	for {
		select {
		case <-h.done:
			return
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			h.handleEvent(event)
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.config.Log(1, "HotLoader: watcher error: %v", err)
		}
	}
}

func (h *HotLoader) handleEvent(event fsnotify.Event) {
	h.config.Log(3, "HotLoader: event %s on %s", event.Op, event.Name)

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() && h.inTree(event.Name) {
			if err := h.addWatch(event.Name); err != nil {
				h.config.Log(1, "HotLoader: cannot watch %s: %v", event.Name, err)
			}
			h.markDirty()
			return
		}
	}
	if !action.IsScript(event.Name) {
		return
	}

	if h.inTree(event.Name) {
		switch {
		case event.Op&fsnotify.Create != 0:
			h.updateSymlinkWatch(event.Name)
		case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
			h.removeSymlinkWatch(event.Name)
		}
	} else if !h.isSymlinkTarget(event.Name) {
		return
	}

	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
		h.markDirty()
	}
}

func (h *HotLoader) inTree(p string) bool {
	rel, err := filepath.Rel(h.dir, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// isSymlinkTarget reports whether p is the file some script symlinks to.
func (h *HotLoader) isSymlinkTarget(p string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	dir, base := filepath.Dir(p), filepath.Base(p)
	for link, targetDir := range h.symlinkTargets {
		if targetDir != dir {
			continue
		}
		if target, err := filepath.EvalSymlinks(link); err == nil && filepath.Base(target) == base {
			return true
		}
	}
	return false
}

func (h *HotLoader) markDirty() {
	h.debounceMu.Lock()
	h.dirtySince = time.Now()
	h.debounceMu.Unlock()
}

func (h *HotLoader) debounceLoop() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.debounceDelay / 2)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.processPending()
		}
	}
}

// processPending reloads once the last change is older than debounceDelay.
func (h *HotLoader) processPending() {
	h.debounceMu.Lock()
	due := !h.dirtySince.IsZero() && time.Since(h.dirtySince) >= h.debounceDelay
	if due {
		h.dirtySince = time.Time{}
	}
	h.debounceMu.Unlock()
	if due {
		h.reloadScripts()
	}
}

// reloadScripts wraps reload in panic recovery so a bad script tree cannot
// take the server down.
func (h *HotLoader) reloadScripts() {
	defer func() {
		if r := recover(); r != nil {
			h.config.Log(0, "HotLoader: PANIC reloading %s: %v", h.dir, r)
		}
	}()
	h.config.Log(1, "HotLoader: reloading %s", h.dir)
	if err := h.reload(); err != nil {
		h.config.Log(0, "HotLoader: reload failed: %v", err)
	}
}
