package shutdown

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/hupe1980/binwatch/internal/logging"
)

// install creates the recursive watcher and starts event delivery. The
// caller holds installMu.
func (s *Scheduler) install(ctx context.Context) error {
	info, err := os.Stat(s.target)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.target)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	if err := addRecursive(watcher, s.target); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watching %s: %w", s.target, err)
	}

	s.watcher = watcher

	s.state.Store(int32(StateWatching))

	// Handlers are in place; start delivering.
	s.wg.Add(1)
	go s.run(watcher)

	s.logger.Log(ctx, logging.LevelTrace, "added watcher", slog.String("path", s.target))

	return nil
}

// run forwards watcher events to HandleEvent until the watcher is closed.
func (s *Scheduler) run(watcher *fsnotify.Watcher) {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			// If a new directory was created, watch it too.
			if event.Has(fsnotify.Create) {
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					if err := addRecursive(watcher, event.Name); err != nil {
						s.logger.Info("could not watch new directory",
							slog.String("path", event.Name),
							slog.String("error", err.Error()),
						)
					}
				}
			}

			if ev, ok := fromFSNotify(event); ok {
				s.HandleEvent(ev)
			}

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return
			}

			s.HandleEvent(Event{Kind: KindError, Err: watchErr})
		}
	}
}

// addRecursive walks root and adds all directories to the watcher.
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return watcher.Add(path)
		}

		return nil
	})
}
