package daemon

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/daycast/syncengine/internal/offline/schema"
)

// InboxKind is the kind of item an inbox file becomes.
type InboxKind int

const (
	// KindText is a plain text note (*.txt, *.md).
	KindText InboxKind = iota
	// KindURL is a shared link (*.url, *.webloc-style text).
	KindURL
	// KindImage is a photo or screenshot.
	KindImage
)

// String returns a human-readable representation of the kind.
func (k InboxKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindURL:
		return "url"
	case KindImage:
		return "image"
	default:
		return "unknown"
	}
}

// ItemType returns the item type files of this kind are imported as.
func (k InboxKind) ItemType() schema.ItemType {
	switch k {
	case KindURL:
		return schema.ItemURL
	case KindImage:
		return schema.ItemImage
	default:
		return schema.ItemText
	}
}

var inboxKinds = map[string]InboxKind{
	".txt":  KindText,
	".md":   KindText,
	".url":  KindURL,
	".jpg":  KindImage,
	".jpeg": KindImage,
	".png":  KindImage,
	".gif":  KindImage,
	".heic": KindImage,
	".webp": KindImage,
}

// KindOf classifies a file by extension.
func KindOf(path string) (InboxKind, bool) {
	kind, ok := inboxKinds[strings.ToLower(filepath.Ext(path))]
	return kind, ok
}

// InboxEvent reports a file that appeared or changed in the inbox.
type InboxEvent struct {
	// Path is the path of the file.
	Path string
	// Kind is what the file will be imported as.
	Kind InboxKind
}

// InboxWatcher watches a share inbox directory for new files.
// Only files with a known extension are reported; removals are ignored.
type InboxWatcher struct {
	watcher *fsnotify.Watcher
	events  chan InboxEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewInboxWatcher creates a new InboxWatcher.
// The watcher must be started with Start() before it will emit events.
func NewInboxWatcher() (*InboxWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &InboxWatcher{
		watcher: watcher,
		events:  make(chan InboxEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching dir.
func (iw *InboxWatcher) Start(dir string) error {
	iw.mu.Lock()
	defer iw.mu.Unlock()

	if iw.running {
		return fmt.Errorf("watcher already running")
	}
	if err := iw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch inbox %s: %w", dir, err)
	}

	iw.running = true
	iw.wg.Add(1)
	go iw.processEvents()

	return nil
}

// Stop stops watching and closes the Events and Errors channels.
// A watcher that was never started is only released.
func (iw *InboxWatcher) Stop() error {
	iw.mu.Lock()
	if !iw.running {
		iw.mu.Unlock()
		return iw.watcher.Close()
	}
	iw.running = false
	iw.mu.Unlock()

	close(iw.done)

	if err := iw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	iw.wg.Wait()

	close(iw.events)
	close(iw.errors)

	return nil
}

// Events returns the channel that emits InboxEvent notifications.
func (iw *InboxWatcher) Events() <-chan InboxEvent {
	return iw.events
}

// Errors returns the channel that emits watcher errors.
func (iw *InboxWatcher) Errors() <-chan error {
	return iw.errors
}

// IsRunning returns true if the watcher is currently running.
func (iw *InboxWatcher) IsRunning() bool {
	iw.mu.Lock()
	defer iw.mu.Unlock()
	return iw.running
}

func (iw *InboxWatcher) processEvents() {
	defer iw.wg.Done()

	for {
		select {
		case <-iw.done:
			return

		case event, ok := <-iw.watcher.Events:
			if !ok {
				return
			}
			if inboxEvent, ok := convertEvent(event); ok {
				select {
				case iw.events <- inboxEvent:
				case <-iw.done:
					return
				}
			}

		case err, ok := <-iw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case iw.errors <- err:
			case <-iw.done:
				return
			}
		}
	}
}

// convertEvent keeps creates and writes of importable files. Hidden files
// are skipped so that editors' temp files and partial copies are not taken.
func convertEvent(event fsnotify.Event) (InboxEvent, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return InboxEvent{}, false
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return InboxEvent{}, false
	}
	kind, ok := KindOf(event.Name)
	if !ok {
		return InboxEvent{}, false
	}
	return InboxEvent{Path: event.Name, Kind: kind}, true
}
