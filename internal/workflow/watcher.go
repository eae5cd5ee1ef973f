package workflow

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher hot-reloads workflow definitions when YAML files in the workflow
// directory are created or modified. Deleting a file does not unregister its
// workflows; schedules referencing them keep their definitions until the
// daemon restarts.
type Watcher struct {
	registry *Registry
	dir      string
	logger   *zap.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher starts watching dir for workflow file changes. The directory
// must already exist.
func NewWatcher(r *Registry, dir string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating workflow watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching workflow dir %s: %w", dir, err)
	}

	w := &Watcher{
		registry: r,
		dir:      dir,
		logger:   logger,
		watcher:  fw,
		done:     make(chan struct{}),
	}
	go w.run()

	logger.Info("workflow watcher started", zap.String("dir", dir))
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isWorkflowFile(filepath.Base(event.Name)) {
				continue
			}
			n, err := LoadFile(w.registry, event.Name)
			if err != nil {
				w.logger.Warn("workflow reload failed",
					zap.String("file", event.Name),
					zap.Error(err))
				continue
			}
			w.logger.Info("workflows reloaded",
				zap.String("file", event.Name),
				zap.Int("count", n))
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("workflow watcher error", zap.Error(err))
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
