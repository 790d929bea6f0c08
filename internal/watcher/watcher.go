// Package watcher provides the commit-watcher push helper: it observes a
// repository's branch refs and pushes the current branch after each new
// commit, with debouncing.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/twiced-technology-gmbh/ralphy/internal/gitx"
)

// debounceDelay is the time to wait after the last ref event before
// pushing. This coalesces rapid changes (e.g. a rebase) into a single
// push.
const debounceDelay = 100 * time.Millisecond

// Watcher watches a repository's branch refs and invokes a callback with
// debouncing.
type Watcher struct {
	fsw      *fsnotify.Watcher
	mu       sync.Mutex
	timer    *time.Timer
	callback func()
}

// New creates a Watcher over the repository at repoDir. The callback is
// invoked (debounced) whenever a branch ref changes.
func New(repoDir string, callback func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	heads := filepath.Join(repoDir, ".git", "refs", "heads")
	if err := fsw.Add(heads); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", heads, err)
	}

	return &Watcher{
		fsw:      fsw,
		callback: callback,
	}, nil
}

// Run starts the watch loop. It blocks until the context is canceled.
// Errors from the underlying watcher are passed to the optional errFn
// callback.
func (w *Watcher) Run(ctx context.Context, errFn func(error)) {
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			// Only react to meaningful operations.
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.debounce()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if errFn != nil {
				errFn(err)
			}
		}
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) debounce() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceDelay, w.callback)
}

// WatchAndPush runs a watcher that pushes the current branch after each
// new commit. It blocks until the context is canceled.
func WatchAndPush(ctx context.Context, git *gitx.Git, errFn func(error)) error {
	w, err := New(git.Dir(), func() {
		branch, err := git.CurrentBranch()
		if err != nil {
			if errFn != nil {
				errFn(err)
			}
			return
		}
		if err := git.Exec("push", "origin", branch); err != nil && errFn != nil {
			errFn(err)
		}
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	w.Run(ctx, errFn)
	return nil
}
