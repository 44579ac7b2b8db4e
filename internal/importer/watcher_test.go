package importer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/K9kd22r8/logseq/internal/exporter"
	"github.com/K9kd22r8/logseq/internal/graphdb"
	"github.com/K9kd22r8/logseq/internal/testutil"
)

// watcherTestEnv sets up a graph dir, a DB and a session for watcher tests.
func watcherTestEnv(t *testing.T) (string, *graphdb.DB, *Service) {
	t.Helper()
	dir, store := testutil.TestGraph(t, nil)
	db := testutil.TestDB(t)
	return dir, db, newService(t, db, store)
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatcher_NewFileImported(t *testing.T) {
	dir, db, svc := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string

	go svc.Watch(ctx, func(kind string, res *exporter.Result) {
		mu.Lock()
		events = append(events, kind+":"+res.File)
		mu.Unlock()
	})

	time.Sleep(100 * time.Millisecond)

	testutil.WriteFile(t, dir, "new.md", "- new\n")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("new.md")
		return cs != ""
	}, "new file not imported by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == "imported:new.md" {
				return true
			}
		}
		return false
	}, "expected imported:new.md callback")
}

func TestWatcher_NewDirWatched(t *testing.T) {
	dir, db, svc := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go svc.Watch(ctx, nil)
	time.Sleep(100 * time.Millisecond)

	subDir := filepath.Join(dir, "pages")
	_ = os.MkdirAll(subDir, 0o755)
	time.Sleep(200 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(subDir, "deep.md"), []byte("- deep\n"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("pages/deep.md")
		return cs != ""
	}, "file in new subdir not imported by watcher")
}

func TestWatcher_DeleteForgetsFile(t *testing.T) {
	dir, db, svc := watcherTestEnv(t)

	testutil.WriteFile(t, dir, "del.md", "- delete me\n")
	if _, err := svc.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	if cs, _ := db.GetChecksum("del.md"); cs == "" {
		t.Fatal("precondition: file should be imported")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go svc.Watch(ctx, nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(filepath.Join(dir, "del.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("del.md")
		return cs == ""
	}, "deleted file still recorded")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	dir, db, svc := watcherTestEnv(t)

	testutil.WriteFile(t, dir, "old.md", "- rename\n")
	if _, err := svc.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go svc.Watch(ctx, nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Rename(filepath.Join(dir, "old.md"), filepath.Join(dir, "renamed.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		oldCS, _ := db.GetChecksum("old.md")
		newCS, _ := db.GetChecksum("renamed.md")
		return oldCS == "" && newCS != ""
	}, "rename reconciliation failed: old path should be forgotten and new path imported")
}
