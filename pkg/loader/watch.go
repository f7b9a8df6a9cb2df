package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch invalidates units when their script modules change on disk, until
// ctx is done. A changed file invalidates its module; a removed or renamed
// directory invalidates its package.
func (l *Loader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range l.searchPath {
		if err := l.watchDirectory(watcher, dir); err != nil {
			l.logger.Warn().Err(err).Str("path", dir).Msg("Failed to watch directory")
		}
	}

	l.logger.Info().
		Strs("paths", l.searchPath).
		Msg("Started watching module paths")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			l.handleEvent(watcher, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// watchDirectory adds a directory and its subdirectories to the watcher.
func (l *Loader) watchDirectory(watcher *fsnotify.Watcher, dirPath string) error {
	return filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

func (l *Loader) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	name, ok := l.moduleName(event.Name)
	if !ok {
		return
	}

	l.logger.Debug().
		Str("file", event.Name).
		Str("op", event.Op.String()).
		Str("module", name).
		Msg("Module path changed")

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := l.watchDirectory(watcher, event.Name); err != nil {
				l.logger.Warn().Err(err).Str("path", event.Name).Msg("Failed to watch directory")
			}
			l.Invalidate(name)
			return
		}
	}

	if strings.HasSuffix(event.Name, Ext) {
		l.Invalidate(strings.TrimSuffix(name, Ext))
		return
	}
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		l.Invalidate(name)
	}
}

// moduleName maps a path under the search path to a dotted name. The
// extension of files is kept.
func (l *Loader) moduleName(path string) (string, bool) {
	for _, dir := range l.searchPath {
		rel, err := filepath.Rel(dir, path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		rel = filepath.ToSlash(rel)
		if strings.HasSuffix(rel, Ext) {
			return strings.ReplaceAll(strings.TrimSuffix(rel, Ext), "/", ".") + Ext, true
		}
		return strings.ReplaceAll(rel, "/", "."), true
	}
	return "", false
}
