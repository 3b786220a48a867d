// Package daemon runs the background side of the offline engine.
//
// # Architecture
//
// The daemon consists of two components:
//
//   - Daemon: drains the pending operation queue on connectivity changes,
//     applies the cache retention window, and imports inbox files
//   - InboxWatcher: file system event monitoring of the share inbox using
//     fsnotify
//
// # Connectivity
//
// Every PollInterval (2s by default) the daemon samples the repository's
// Operational state. When it changes from false to true the queue is
// drained once through the sync processor. A drain already in progress
// makes the trigger a no-op. After a drain that applied work and was not
// halted, the most recent days are refreshed from the server.
//
//	d, err := daemon.New(repo, processor, cache)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := d.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Retention
//
// The cache retention window (20 days by default) is applied on start and
// every EvictionInterval. Local items and items with queued operations are
// never evicted.
//
// # Share Inbox
//
// When Config.InboxDir is set, files dropped into it become items:
//
//   - *.txt, *.md: a text item with the file's content
//   - *.url: a URL item; internet shortcut files are read from their URL= line
//   - *.jpg, *.jpeg, *.png, *.gif, *.heic, *.webp: an image upload
//
// A name starting with yyyy-MM-dd files the item under that day; otherwise
// it goes to today. Files are imported through the repository, so offline
// imports are queued like any other write, and are removed once imported.
// Writes are debounced so a file still being copied is not read early.
//
// The watcher maps fsnotify operations as follows:
//   - fsnotify.Create, fsnotify.Write → InboxEvent
//   - fsnotify.Remove, fsnotify.Rename, fsnotify.Chmod → ignored
//
// Hidden files (leading dot) are ignored.
//
// # Graceful Shutdown
//
// Cancelling the context passed to Start, or calling Stop, stops the
// watcher and waits for every background goroutine to exit. A drain in
// progress observes the cancellation and halts between operations.
package daemon
