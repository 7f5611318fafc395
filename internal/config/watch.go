package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tliron/commonlog"
)

// DefaultDebounce groups the bursts of events editors emit for one save.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads a configuration file whenever it changes on disk.
type Watcher struct {
	path     string
	fw       *fsnotify.Watcher
	debounce time.Duration
	log      commonlog.Logger
}

// NewWatcher watches the directory holding path, so files replaced by
// rename are picked up as well as in-place writes.
func NewWatcher(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("cannot watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{
		path:     abs,
		fw:       fw,
		debounce: DefaultDebounce,
		log:      commonlog.GetLogger("orizon.config"),
	}, nil
}

// SetDebounce changes the quiet period before a reload.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// Run blocks until ctx is done, calling apply with every configuration that
// loads and validates. Invalid files are logged and skipped.
func (w *Watcher) Run(ctx context.Context, apply func(Config)) error {
	defer w.fw.Close()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			cfg, err := Load(w.path)
			if err != nil {
				w.log.Warningf("config reload skipped: %s", err)
				continue
			}
			w.log.Infof("config reloaded from %s", w.path)
			apply(cfg)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.log.Errorf("config watch: %s", err)
		}
	}
}
