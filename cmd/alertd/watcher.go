package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/good-yellow-bee/blazealert/internal/detector"
	"github.com/good-yellow-bee/blazealert/internal/dispatch"
)

// reloadDelay coalesces the event bursts editors produce when saving.
const reloadDelay = 250 * time.Millisecond

// configWatcher applies detection threshold and alerting switch
// changes from the config file without a restart.
type configWatcher struct {
	path       string
	detector   *detector.Detector
	dispatcher *dispatch.Dispatcher
	watcher    *fsnotify.Watcher
}

func newConfigWatcher(path string, det *detector.Detector, disp *dispatch.Dispatcher) (*configWatcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory: editors and config management tools
	// typically replace the file rather than write in place.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch config directory: %w", err)
	}

	return &configWatcher{
		path:       absPath,
		detector:   det,
		dispatcher: disp,
		watcher:    watcher,
	}, nil
}

// Run processes file events until the context is canceled.
func (w *configWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var reload *time.Timer
	defer func() {
		if reload != nil {
			reload.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if reload != nil {
				reload.Stop()
			}
			reload = time.AfterFunc(reloadDelay, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("config watcher error: %v", err)
		}
	}
}

// reload re-reads the config file and applies the hot-reloadable
// settings. A file that fails to load or validate keeps the running
// configuration.
func (w *configWatcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		log.Printf("config reload skipped: %v", err)
		return
	}

	if err := w.detector.UpdateSettings(cfg.DetectorSettings()); err != nil {
		log.Printf("config reload: detector settings rejected: %v", err)
	} else {
		log.Printf("config reload: detector threshold %d failures per %s",
			cfg.Detector.FailuresInWindow, cfg.Detector.timeWindow)
	}

	w.dispatcher.SetEnabled(cfg.Alerting.Enabled)
	log.Printf("config reload: alerting enabled=%t", cfg.Alerting.Enabled)
}
