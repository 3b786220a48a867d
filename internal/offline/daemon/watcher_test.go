package daemon

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/daycast/syncengine/internal/offline/schema"
)

// startTestWatcher starts an InboxWatcher on a fresh directory.
func startTestWatcher(t *testing.T) (*InboxWatcher, string) {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "inbox")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create inbox: %v", err)
	}

	iw, err := NewInboxWatcher()
	if err != nil {
		t.Fatalf("NewInboxWatcher() failed: %v", err)
	}
	t.Cleanup(func() { iw.Stop() })

	if err := iw.Start(dir); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	return iw, dir
}

func waitForEvent(t *testing.T, iw *InboxWatcher) InboxEvent {
	t.Helper()
	select {
	case event := <-iw.Events():
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for inbox event")
	}
	return InboxEvent{}
}

func TestNewInboxWatcher(t *testing.T) {
	iw, err := NewInboxWatcher()
	if err != nil {
		t.Fatalf("NewInboxWatcher() failed: %v", err)
	}
	defer iw.Stop()

	if iw.IsRunning() {
		t.Error("Newly created watcher should not be running")
	}
}

func TestInboxWatcher_StartStop(t *testing.T) {
	iw, _ := startTestWatcher(t)

	if !iw.IsRunning() {
		t.Error("Watcher should be running after Start()")
	}
	if err := iw.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if iw.IsRunning() {
		t.Error("Watcher should not be running after Stop()")
	}
}

func TestInboxWatcher_StartAlreadyRunning(t *testing.T) {
	iw, dir := startTestWatcher(t)

	if err := iw.Start(dir); err == nil {
		t.Error("Second Start() should fail when watcher is already running")
	}
}

func TestInboxWatcher_StartNonexistentDirectory(t *testing.T) {
	iw, err := NewInboxWatcher()
	if err != nil {
		t.Fatalf("NewInboxWatcher() failed: %v", err)
	}
	defer iw.Stop()

	if err := iw.Start(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Start() should fail for a missing directory")
	}
}

func TestInboxWatcher_FileCreated(t *testing.T) {
	iw, dir := startTestWatcher(t)

	if err := os.WriteFile(filepath.Join(dir, "note.txt"), []byte("hello"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	event := waitForEvent(t, iw)
	if event.Kind != KindText {
		t.Errorf("Expected KindText, got %v", event.Kind)
	}
	if filepath.Base(event.Path) != "note.txt" {
		t.Errorf("Expected note.txt, got %s", filepath.Base(event.Path))
	}
}

func TestInboxWatcher_IgnoredFiles(t *testing.T) {
	iw, dir := startTestWatcher(t)

	for _, name := range []string{"archive.zip", ".draft.txt", "notes"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "photo.JPG"), []byte("jpeg"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	event := waitForEvent(t, iw)
	if filepath.Base(event.Path) != "photo.JPG" || event.Kind != KindImage {
		t.Errorf("First event = %+v, want photo.JPG image", event)
	}
}

func TestInboxWatcher_StopClosesChannels(t *testing.T) {
	iw, _ := startTestWatcher(t)

	if err := iw.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}

	select {
	case _, ok := <-iw.Events():
		if ok {
			t.Error("Events channel should be closed")
		}
	case <-time.After(time.Second):
		t.Error("Events channel was not closed")
	}
	select {
	case _, ok := <-iw.Errors():
		if ok {
			t.Error("Errors channel should be closed")
		}
	case <-time.After(time.Second):
		t.Error("Errors channel was not closed")
	}
}

func TestInboxWatcher_ConcurrentAccess(t *testing.T) {
	iw, _ := startTestWatcher(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				iw.IsRunning()
			}
		}()
	}
	wg.Wait()
}

func TestConvertEvent(t *testing.T) {
	tests := []struct {
		name   string
		event  fsnotify.Event
		want   InboxKind
		wantOK bool
	}{
		{"create text", fsnotify.Event{Name: "/in/a.txt", Op: fsnotify.Create}, KindText, true},
		{"write markdown", fsnotify.Event{Name: "/in/a.md", Op: fsnotify.Write}, KindText, true},
		{"create url", fsnotify.Event{Name: "/in/link.url", Op: fsnotify.Create}, KindURL, true},
		{"create heic", fsnotify.Event{Name: "/in/IMG_1.HEIC", Op: fsnotify.Create}, KindImage, true},
		{"remove", fsnotify.Event{Name: "/in/a.txt", Op: fsnotify.Remove}, 0, false},
		{"rename", fsnotify.Event{Name: "/in/a.txt", Op: fsnotify.Rename}, 0, false},
		{"chmod", fsnotify.Event{Name: "/in/a.txt", Op: fsnotify.Chmod}, 0, false},
		{"hidden", fsnotify.Event{Name: "/in/.a.txt", Op: fsnotify.Create}, 0, false},
		{"unknown ext", fsnotify.Event{Name: "/in/a.pdf", Op: fsnotify.Create}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := convertEvent(tt.event)
			if ok != tt.wantOK {
				t.Fatalf("convertEvent() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.Kind != tt.want {
				t.Errorf("convertEvent() kind = %v, want %v", got.Kind, tt.want)
			}
		})
	}
}

func TestInboxKind(t *testing.T) {
	tests := []struct {
		kind     InboxKind
		name     string
		itemType schema.ItemType
	}{
		{KindText, "text", schema.ItemText},
		{KindURL, "url", schema.ItemURL},
		{KindImage, "image", schema.ItemImage},
		{InboxKind(99), "unknown", schema.ItemText},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.name {
			t.Errorf("InboxKind(%d).String() = %q, want %q", tt.kind, got, tt.name)
		}
		if got := tt.kind.ItemType(); got != tt.itemType {
			t.Errorf("InboxKind(%d).ItemType() = %q, want %q", tt.kind, got, tt.itemType)
		}
	}
}
