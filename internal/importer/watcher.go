package importer

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/K9kd22r8/logseq/internal/exporter"
	"github.com/K9kd22r8/logseq/internal/storage"
)

const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the graph root and imports changed
// files until ctx is cancelled. It calls cb (if non-nil) after each import
// or removal.
//
// New directories created at runtime are added to the watch list. Rename
// events trigger a debounced Sync pass that forgets files no longer on disk
// and imports the renamed ones.
func (s *Service) Watch(ctx context.Context, cb EventCallback) error {
	root := s.store.Root()
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	s.logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			s.logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			s.reconcile(ctx, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if strings.HasPrefix(info.Name(), ".") {
						continue
					}
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						s.logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						s.logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					s.importNewDir(ctx, root, absPath, cb)
					continue
				}
			}

			rel, relErr := filepath.Rel(root, absPath)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if !storage.Importable(rel) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				s.importLogged(ctx, "watcher", rel, cb)

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// Rename fires on the old path only; the new path arrives
				// as a Create if it stays inside a watched directory.
				s.forgetLogged(rel, cb)
				if ev.Op&fsnotify.Rename != 0 {
					scheduleReconcile()
				}
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (s *Service) forgetLogged(rel string, cb EventCallback) {
	if err := s.Forget(rel); err != nil {
		s.logger.Warn("watcher: forget failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	s.logger.Debug("watcher: removed", slog.String("path", rel))
	if cb != nil {
		cb("removed", &exporter.Result{File: rel})
	}
}

func (s *Service) reconcile(ctx context.Context, cb EventCallback) {
	before, err := s.db.AllChecksums()
	if err != nil {
		s.logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	rep, err := s.Sync(ctx)
	if err != nil {
		s.logger.Warn("reconcile: sync failed", slog.String("error", err.Error()))
		return
	}
	if cb == nil {
		return
	}
	for _, p := range rep.Removed {
		cb("removed", &exporter.Result{File: p})
	}
	for _, p := range rep.Imported {
		if _, known := before[p]; !known {
			cb("imported", &exporter.Result{File: p})
		}
	}
}

// importNewDir imports the files found in a newly created directory.
func (s *Service) importNewDir(ctx context.Context, root, dirPath string, cb EventCallback) {
	_ = filepath.WalkDir(dirPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil || !storage.Importable(rel) {
			return nil
		}
		s.importLogged(ctx, "watcher", filepath.ToSlash(rel), cb)
		return nil
	})
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
