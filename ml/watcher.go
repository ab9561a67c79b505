package ml

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ArtifactWatcher reports on-disk changes to loaded artifacts. It never
// reloads them: the in-memory copies stay fixed until the process restarts.
type ArtifactWatcher struct {
	watcher  *fsnotify.Watcher
	paths    map[string]bool
	logger   *zap.Logger
	onChange func(path string, op fsnotify.Op)
}

func NewArtifactWatcher(logger *zap.Logger, paths ...string) (*ArtifactWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	aw := &ArtifactWatcher{
		watcher: w,
		paths:   make(map[string]bool, len(paths)),
		logger:  logger,
	}
	dirs := make(map[string]bool)
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			w.Close()
			return nil, err
		}
		aw.paths[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	// watch directories so atomic replace-by-rename is seen too
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return aw, nil
}

// OnChange registers a hook called after each relevant event is logged.
// Must be set before Run.
func (aw *ArtifactWatcher) OnChange(fn func(path string, op fsnotify.Op)) {
	aw.onChange = fn
}

func (aw *ArtifactWatcher) Run(ctx context.Context) {
	defer aw.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-aw.watcher.Events:
			if !ok {
				return
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !aw.paths[abs] {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			aw.logger.Warn("artifact changed on disk, restart required to load it",
				zap.String("path", abs),
				zap.String("op", event.Op.String()),
			)
			if aw.onChange != nil {
				aw.onChange(abs, event.Op)
			}
		case err, ok := <-aw.watcher.Errors:
			if !ok {
				return
			}
			aw.logger.Error("artifact watcher error", zap.Error(err))
		}
	}
}
