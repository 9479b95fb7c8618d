// SPDX-License-Identifier: MIT

package envfile

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watch signals on the returned channel whenever the record is rewritten
// out of band. Serve mode uses it to log drift between the persisted
// record and the routing config the proxy was last reloaded with.
//
// The parent directory is watched rather than the file itself: atomic
// replace-on-write swaps the inode, which would silently detach a watch
// on the file.
func (s *Store) Watch(ctx context.Context, logger zerolog.Logger) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("envfile: fsnotify.NewWatcher: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("envfile: watch directory %s: %w", dir, err)
	}

	target := filepath.Base(s.path)
	changes := make(chan struct{}, 1)

	go func() {
		defer func() {
			_ = watcher.Close()
			close(changes)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case changes <- struct{}{}:
				default: // coalesce bursts
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn().Err(err).Str("event", "envfile.watch_error").Msg("fsnotify watcher error")
			}
		}
	}()

	return changes, nil
}
