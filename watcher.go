package paperdesk

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// watcher re-reads the config file when it changes on disk and hands the
// new config to the apply callback. Watching the parent directory rather
// than the file itself survives the rename-and-replace dance editors and
// config management tools do on save.
type watcher struct {
	path  string
	log   *zap.Logger
	apply func(*Config)
	fw    *fsnotify.Watcher
	done  chan struct{}
}

func newWatcher(path string, log *zap.Logger, apply func(*Config)) (*watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "config watcher")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "config watcher")
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close() //nolint:errcheck
		return nil, errors.Wrap(err, "config watcher")
	}

	w := &watcher{
		path:  abs,
		log:   log,
		apply: apply,
		fw:    fw,
		done:  make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *watcher) run() {
	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.reload()

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (w *watcher) reload() {
	conf, err := ReadConfig(w.path)
	if err != nil {
		// Keep running with the previous config. Editors often write
		// partial files before the final save lands.
		w.log.Warn("config reload failed", zap.Error(err))
		return
	}
	w.apply(conf)
}

func (w *watcher) Close() error {
	close(w.done)
	return w.fw.Close()
}
