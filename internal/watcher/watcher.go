// Package watcher watches a workspace tree with fsnotify and reports file
// events in protocol form. The engine uses it when the client cannot watch
// files on the server's behalf.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/ggoodman/lsp-server-go/lsp"
)

// Watcher reports changes below a root directory.
type Watcher struct {
	root string
	fs   *fsnotify.Watcher
	log  *slog.Logger
	skip func(name string) bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger used for watch errors.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// WithSkipDir overrides which directories are not descended into. By default
// hidden directories (.git, .cache, ...) are skipped.
func WithSkipDir(fn func(name string) bool) Option {
	return func(w *Watcher) {
		if fn != nil {
			w.skip = fn
		}
	}
}

// New starts watching root and every directory below it.
func New(root string, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		root: abs,
		fs:   fw,
		log:  slog.Default(),
		skip: func(name string) bool { return strings.HasPrefix(name, ".") && name != "." },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	if err := w.addTree(abs); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

// Root returns the absolute watch root.
func (w *Watcher) Root() string { return w.root }

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.skip(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// Run delivers events to emit until ctx ends or the watcher is closed.
func (w *Watcher) Run(ctx context.Context, emit func(lsp.FileEvent)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() && !w.skip(info.Name()) {
					if err := w.addTree(ev.Name); err != nil {
						w.log.WarnContext(ctx, "watcher.add.fail", slog.String("path", ev.Name), slog.String("err", err.Error()))
					}
				}
			}
			if fe, ok := toFileEvent(ev); ok {
				emit(fe)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.WarnContext(ctx, "watcher.error", slog.String("err", err.Error()))
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error { return w.fs.Close() }

func toFileEvent(ev fsnotify.Event) (lsp.FileEvent, bool) {
	var typ lsp.FileChangeType
	switch {
	case ev.Has(fsnotify.Create):
		typ = lsp.FileChangeCreated
	case ev.Has(fsnotify.Write):
		typ = lsp.FileChangeChanged
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		typ = lsp.FileChangeDeleted
	default:
		return lsp.FileEvent{}, false
	}
	return lsp.FileEvent{URI: lsp.FileURI(filepath.ToSlash(ev.Name)), Type: typ}, true
}

// ErrBadPattern is returned by Match for malformed globs.
var ErrBadPattern = errors.New("bad glob pattern")

// Match reports whether ev is selected by any of watchers. Patterns are
// matched against the path relative to root and against the absolute path.
func Match(root string, watchers []lsp.FileSystemWatcher, ev lsp.FileEvent) (bool, error) {
	abs := ev.URI.Path()
	rel, err := filepath.Rel(filepath.ToSlash(root), abs)
	if err != nil {
		rel = abs
	}
	rel = filepath.ToSlash(rel)
	for _, fw := range watchers {
		if !wants(fw.Kind, ev.Type) {
			continue
		}
		if !doublestar.ValidatePattern(fw.GlobPattern) {
			return false, fmt.Errorf("%w: %q", ErrBadPattern, fw.GlobPattern)
		}
		if ok, _ := doublestar.Match(fw.GlobPattern, rel); ok {
			return true, nil
		}
		if ok, _ := doublestar.Match(fw.GlobPattern, abs); ok {
			return true, nil
		}
	}
	return false, nil
}

func wants(kind *lsp.WatchKind, typ lsp.FileChangeType) bool {
	k := lsp.WatchKindCreate | lsp.WatchKindChange | lsp.WatchKindDelete
	if kind != nil {
		k = *kind
	}
	switch typ {
	case lsp.FileChangeCreated:
		return k&lsp.WatchKindCreate != 0
	case lsp.FileChangeChanged:
		return k&lsp.WatchKindChange != 0
	case lsp.FileChangeDeleted:
		return k&lsp.WatchKindDelete != 0
	default:
		return false
	}
}
