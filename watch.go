package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// watchDebounce is how long the inbox must be quiet before a run starts.
// Copying a batch of photos fires many events; one run should cover them all.
const watchDebounce = 2 * time.Second

// watchInbox processes the inbox once, then re-runs whenever new files land.
// Returns on interrupt or watcher failure.
func watchInbox(ctx context.Context, pipeline *Pipeline, logger *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	inbox := pipeline.cfg.Settings.InboxDirectory
	if err := os.MkdirAll(inbox, 0755); err != nil {
		return errors.Wrapf(err, "creating inbox %s", inbox)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(inbox); err != nil {
		return errors.Wrapf(err, "watching %s", inbox)
	}

	// Catch up on anything already sitting in the inbox.
	if _, err := pipeline.Run(ctx); err != nil {
		logger.Warnf("✗ Initial run failed: %v", err)
	}

	logger.Infof("Watching %s/ for new images (ctrl-c to stop)", inbox)

	debounce := time.NewTimer(watchDebounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			logger.Infof("Stopping watch")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher event channel closed")
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debugf("Inbox event: %s", event)
			if pending {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
			}
			debounce.Reset(watchDebounce)
			pending = true

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher error channel closed")
			}
			logger.Warnf("✗ Watcher error: %v", err)

		case <-debounce.C:
			pending = false
			if _, err := pipeline.Run(ctx); err != nil {
				logger.Warnf("✗ Run failed: %v", err)
			}
		}
	}
}
