package config

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/simtemp/logging"
)

// A Watcher re-reads a config file whenever it changes and hands valid results to a callback.
// Invalid intermediate states (an editor truncating the file, a syntax error) are logged and
// skipped.
type Watcher struct {
	filePath string
	watcher  *fsnotify.Watcher
	onChange func(*Config)
	logger   logging.Logger

	cancelCtx               context.Context
	cancelFunc              func()
	activeBackgroundWorkers sync.WaitGroup
}

// NewWatcher starts watching filePath. The directory is watched rather than the file so that
// editors replacing the file by rename are still noticed.
func NewWatcher(filePath string, logger logging.Logger, onChange func(*Config)) (*Watcher, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, err
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "cannot create config watcher")
	}
	if err := fsWatcher.Add(filepath.Dir(absPath)); err != nil {
		utils.UncheckedErrorFunc(fsWatcher.Close)
		return nil, errors.Wrapf(err, "cannot watch %q", filepath.Dir(absPath))
	}

	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	w := &Watcher{
		filePath:   absPath,
		watcher:    fsWatcher,
		onChange:   onChange,
		logger:     logger,
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
	}
	w.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(w.watchLoop, w.activeBackgroundWorkers.Done)
	return w, nil
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.cancelCtx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.filePath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			conf, err := Read(w.filePath, w.logger)
			if err != nil {
				w.logger.Warnw("ignoring invalid config change", "path", w.filePath, "error", err)
				continue
			}
			UpdateFileConfigDebug(conf.Debug)
			w.onChange(conf)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("config watcher error", "error", err)
		}
	}
}

// Close stops watching and waits for the background goroutine to exit.
func (w *Watcher) Close() error {
	w.cancelFunc()
	err := w.watcher.Close()
	w.activeBackgroundWorkers.Wait()
	return err
}
