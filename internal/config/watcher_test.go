package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func writeFlowJSON(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func waitForCalls(t *testing.T, calls *atomic.Int64, want int64) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for calls.Load() < want {
		select {
		case <-deadline:
			t.Fatalf("callback fired %d times, want %d", calls.Load(), want)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestWatcher_FiresOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flow.json")
	writeFlowJSON(t, path, `{}`)

	var calls atomic.Int64
	w, err := NewWatcher(path, func() { calls.Add(1) }, WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	writeFlowJSON(t, path, `{"accounts":{}}`)
	waitForCalls(t, &calls, 1)
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flow.json")
	writeFlowJSON(t, path, `{}`)

	var calls atomic.Int64
	w, err := NewWatcher(path, func() { calls.Add(1) }, WithDebounce(150*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	for i := 0; i < 5; i++ {
		writeFlowJSON(t, path, `{}`)
		time.Sleep(10 * time.Millisecond)
	}

	waitForCalls(t, &calls, 1)
	time.Sleep(300 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("callback fired %d times for one burst, want 1", got)
	}
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flow.json")
	writeFlowJSON(t, path, `{}`)

	var calls atomic.Int64
	w, err := NewWatcher(path, func() { calls.Add(1) }, WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	writeFlowJSON(t, filepath.Join(dir, "emulator.log"), "boot")
	time.Sleep(200 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Errorf("callback fired %d times for sibling file, want 0", got)
	}
}

func TestWatcher_SeesFileCreatedLater(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flow.json")

	var calls atomic.Int64
	w, err := NewWatcher(path, func() { calls.Add(1) }, WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	writeFlowJSON(t, path, `{}`)
	waitForCalls(t, &calls, 1)
}

func TestWatcher_NoCallbackAfterClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flow.json")
	writeFlowJSON(t, path, `{}`)

	var calls atomic.Int64
	w, err := NewWatcher(path, func() { calls.Add(1) }, WithDebounce(100*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	// Close inside the debounce window: the pending callback must be
	// dropped, not delivered late.
	writeFlowJSON(t, path, `{"accounts":{}}`)
	time.Sleep(20 * time.Millisecond)
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	after := calls.Load()

	time.Sleep(300 * time.Millisecond)
	if got := calls.Load(); got != after {
		t.Errorf("callback fired %d times after Close, want %d", got, after)
	}
}

func TestWatcher_CloseTwice(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flow.json")
	writeFlowJSON(t, path, `{}`)

	w, err := NewWatcher(path, func() {})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("first Close() error = %v", err)
	}
	if err := w.Close(); err != ErrWatcherClosed {
		t.Errorf("second Close() error = %v, want ErrWatcherClosed", err)
	}
}
