package reconcile

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/wty0512/memory-mcp-server/internal/logger"
)

// DefaultPattern selects the memory files inside the watched directory.
const DefaultPattern = "*.md"

type WatchConfig struct {
	Dir      string
	Pattern  string
	Debounce time.Duration
}

// Debouncer collapses bursts of file events into one flush per window.
type Debouncer struct {
	window  time.Duration
	mu      sync.Mutex
	paths   map[string]bool
	timer   *time.Timer
	onFlush func([]string)
	stopped bool
}

func NewDebouncer(window time.Duration, onFlush func([]string)) *Debouncer {
	return &Debouncer{
		window:  window,
		paths:   make(map[string]bool),
		onFlush: onFlush,
	}
}

func (d *Debouncer) Add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.paths[path] = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	if d.stopped || len(d.paths) == 0 {
		d.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(d.paths))
	for p := range d.paths {
		paths = append(paths, p)
	}
	d.paths = make(map[string]bool)
	d.timer = nil
	d.mu.Unlock()

	d.onFlush(paths)
}

func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Watch runs fn after every debounced burst of changes to matching files
// in cfg.Dir until ctx is cancelled.
func Watch(ctx context.Context, cfg WatchConfig, fn func(paths []string)) error {
	if cfg.Pattern == "" {
		cfg.Pattern = DefaultPattern
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if !doublestar.ValidatePattern(cfg.Pattern) {
		return fmt.Errorf("invalid watch pattern %q", cfg.Pattern)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()
	if err := fsw.Add(cfg.Dir); err != nil {
		return err
	}

	log := logger.ForComponent("watcher")
	log.Info("watching markdown dir", "dir", cfg.Dir, "pattern", cfg.Pattern)

	deb := NewDebouncer(cfg.Debounce, fn)
	defer deb.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if match, _ := doublestar.Match(cfg.Pattern, filepath.Base(event.Name)); !match {
				continue
			}
			log.Debug("file event", "path", event.Name, "op", event.Op.String())
			deb.Add(event.Name)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", "error", err)
		}
	}
}
