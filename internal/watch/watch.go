// Package watch observes a repository for external mutation and fires
// a debounced callback. The host wires the callback to a session
// refresh; nothing here refreshes on its own.
package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/pbaumgart/loupe/internal/debounce"
)

const defaultDebounce = 250 * time.Millisecond

// Options configure a Watcher.
type Options struct {
	// Debounce is the quiet period before the callback fires.
	Debounce time.Duration
	// Ignore holds doublestar globs matched against the event path
	// relative to the watched root.
	Ignore []string
	Logger *slog.Logger
}

type Watcher struct {
	root     string
	ignore   []string
	log      *slog.Logger
	watcher  *fsnotify.Watcher
	debounce *debounce.Debouncer
	done     chan struct{}
}

// New starts watching root and invokes onChange after each debounced
// burst of relevant events. The .git directory is registered for ref
// and index mutations, and the worktree directories are registered
// recursively so plain editor saves of tracked files retrigger the
// uncommitted diff.
func New(root string, onChange func(), opts Options) (*Watcher, error) {
	if root == "" {
		return nil, errors.New("watch: empty root")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	delay := opts.Debounce
	if delay <= 0 {
		delay = defaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	w := &Watcher{
		root:     root,
		ignore:   opts.Ignore,
		log:      log,
		watcher:  fsw,
		debounce: debounce.New(delay, onChange),
		done:     make(chan struct{}),
	}
	if err := w.watchAll(); err != nil {
		return nil, errors.Join(err, fsw.Close())
	}
	go w.loop()
	return w, nil
}

// watchAll registers the .git directory (non-recursive; every git
// mutation touches it directly) and walks the worktree adding each
// directory, skipping ignored subtrees.
func (w *Watcher) watchAll() error {
	gitDir := filepath.Join(w.root, ".git")
	if info, err := os.Stat(gitDir); err == nil && info.IsDir() {
		w.log.Debug("adding path to FS watcher", slog.String("path", gitDir))
		if err := w.watcher.Add(gitDir); err != nil {
			return fmt.Errorf("watch %s: %w", gitDir, err)
		}
	}
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.log.Debug("skipping unreadable path", slog.String("path", path), slog.Any("error", err))
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			if w.ignored(path) {
				return filepath.SkipDir
			}
		}
		w.log.Debug("adding path to FS watcher", slog.String("path", path))
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// Close stops event delivery and cancels any pending callback.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	w.debounce.Stop()
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if w.ignored(ev.Name) {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				w.watchNewDir(ev.Name)
			}
			w.log.Debug("fsnotify event",
				slog.String("op", ev.Op.String()),
				slog.String("path", ev.Name))
			w.debounce.Trigger()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("fsnotify error", slog.Any("error", err))
		}
	}
}

// watchNewDir registers a directory created after the initial walk so
// files written into it keep triggering refreshes.
func (w *Watcher) watchNewDir(name string) {
	info, err := os.Stat(name)
	if err != nil || !info.IsDir() || info.Name() == ".git" {
		return
	}
	if err := w.watcher.Add(name); err != nil {
		w.log.Debug("adding created directory failed",
			slog.String("path", name), slog.Any("error", err))
	}
}

// ignored matches the path against the configured globs, both as-is
// and with a trailing slash so directory patterns like
// "**/node_modules/**" exclude the directory itself.
func (w *Watcher) ignored(name string) bool {
	if transientPath(name) {
		return true
	}
	rel, err := filepath.Rel(w.root, name)
	if err != nil {
		rel = name
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range w.ignore {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
		if ok, err := doublestar.Match(pattern, rel+"/"); err == nil && ok {
			return true
		}
	}
	return false
}

// transientPath filters git's own scratch files, which would otherwise
// retrigger the watcher on every command.
func transientPath(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".lock" || ext == ".ipc"
}
