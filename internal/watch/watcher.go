// Package watch re-runs a batch whenever its inputs change.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/penwyp/go-photometry-sync/internal/util"
)

// FileEvent is one change under a watched path.
type FileEvent struct {
	Path      string
	Operation string
}

// FileWatcher watches files and directory trees. Directories created after
// start are added as they appear.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	ignore  []string
	events  chan FileEvent
}

// NewFileWatcher starts watching paths. Events under any ignore prefix are
// dropped, so a batch writing into a watched tree does not retrigger itself.
func NewFileWatcher(paths, ignore []string) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	fw := &FileWatcher{
		watcher: watcher,
		events:  make(chan FileEvent, 100),
	}
	for _, p := range ignore {
		if abs, err := filepath.Abs(p); err == nil {
			fw.ignore = append(fw.ignore, abs)
		}
	}

	for _, path := range paths {
		if err := fw.addPath(path); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", path, err)
		}
	}

	go fw.processEvents()
	return fw, nil
}

func (fw *FileWatcher) addPath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		// Editors replace files by rename, so watch the parent.
		return fw.watcher.Add(filepath.Dir(path))
	}
	return filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if fw.ignored(p) {
				return filepath.SkipDir
			}
			return fw.watcher.Add(p)
		}
		return nil
	})
}

func (fw *FileWatcher) ignored(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, prefix := range fw.ignore {
		if abs == prefix || strings.HasPrefix(abs, prefix+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (fw *FileWatcher) processEvents() {
	defer close(fw.events)
	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if fw.ignored(event.Name) || event.Op == fsnotify.Chmod {
				continue
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := fw.addPath(event.Name); err != nil {
						util.LogWarn(fmt.Sprintf("Failed to watch new directory %s: %v", event.Name, err))
					}
				}
			}
			select {
			case fw.events <- FileEvent{Path: event.Name, Operation: event.Op.String()}:
			default:
				// A full buffer already guarantees a pending run.
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			util.LogError("File monitoring error: " + err.Error())
		}
	}
}

// Events delivers changes until the watcher is closed.
func (fw *FileWatcher) Events() <-chan FileEvent {
	return fw.events
}

func (fw *FileWatcher) Close() error {
	return fw.watcher.Close()
}

// Options configures Run.
type Options struct {
	// Paths are the manifest files and data folders to watch.
	Paths []string
	// Ignore lists trees whose changes never trigger a run, such as the
	// output folder.
	Ignore   []string
	Debounce time.Duration
}

// Run calls run once, then again after every quiet period of Debounce
// following a change, until ctx is done. A failing run is logged and
// watching continues.
func Run(ctx context.Context, opts Options, run func(context.Context) error) error {
	fw, err := NewFileWatcher(opts.Paths, opts.Ignore)
	if err != nil {
		return err
	}
	defer fw.Close()

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	runOnce := func() {
		if err := run(ctx); err != nil && ctx.Err() == nil {
			util.LogError(fmt.Sprintf("Batch run failed: %v", err))
		}
	}
	runOnce()

	timer := time.NewTimer(debounce)
	timer.Stop()
	pending := 0
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case event, ok := <-fw.Events():
			if !ok {
				return nil
			}
			util.LogDebug(fmt.Sprintf("Change detected: %s (%s)", event.Path, event.Operation))
			pending++
			timer.Reset(debounce)
		case <-timer.C:
			util.LogInfo(fmt.Sprintf("%d change(s) settled, re-running batch", pending))
			pending = 0
			runOnce()
		}
	}
}
