package filerepo

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce collapses the burst of events produced by one atomic write.
const watchDebounce = 100 * time.Millisecond

// Watch calls onChange after the token file is created, rewritten or removed
// by anyone, this process included. The directory is watched rather than the
// file because atomic renames replace the watched inode. Watching stops when
// ctx is done.
func (r *Repo) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("[filerepo Watch] %w", err)
	}
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("[filerepo Watch] %w", err)
	}

	changed := make(chan struct{}, 1)
	go r.handleEvents(ctx, watcher, changed)
	go debounce(ctx, changed, onChange)
	return nil
}

func (r *Repo) handleEvents(ctx context.Context, watcher *fsnotify.Watcher, changed chan<- struct{}) {
	defer watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				select {
				case changed <- struct{}{}:
				default:
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn().Err(err).Msg("token file watcher error")
		}
	}
}

func debounce(ctx context.Context, changed <-chan struct{}, onChange func()) {
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-changed:
			if timer != nil {
				timer.Reset(watchDebounce)
			} else {
				timer = time.NewTimer(watchDebounce)
				fire = timer.C
			}
		case <-fire:
			timer = nil
			fire = nil
			onChange()
		}
	}
}
