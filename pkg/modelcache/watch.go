package modelcache

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch purges the cache whenever the MedCAT config file is written,
// created or removed, so the next load picks up the new settings. The
// file's directory is watched because editors usually replace the file
// rather than writing it in place. Watch blocks until ctx is done.
func (c *Cache) Watch(ctx context.Context) error {
	if c.configFile == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	target := filepath.Clean(c.configFile)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", target, err)
	}
	c.logger.Info("watching MEDCAT_CONFIG_FILE for changes", zap.String("path", target))

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				c.logger.Info("MEDCAT_CONFIG_FILE changed, purging model cache",
					zap.String("op", event.Op.String()))
				c.Purge()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Error("config watcher error", zap.Error(err))
		case <-ctx.Done():
			return nil
		}
	}
}
