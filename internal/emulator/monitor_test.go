package emulator

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

// transitionRecorder collects transition callback invocations.
type transitionRecorder struct {
	mu    sync.Mutex
	flags []bool
}

func (r *transitionRecorder) record(reachable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags = append(r.flags, reachable)
}

func (r *transitionRecorder) recorded() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.flags))
	copy(out, r.flags)
	return out
}

func TestMonitor_TransitionFiresOnce(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	var shared sync.Mutex
	rec := &transitionRecorder{}
	m := New(&shared, ln.Addr().String(), log.New(io.Discard), rec.record)

	// First tick: false -> true is a transition.
	if !m.tick() {
		t.Fatal("first tick should observe a transition")
	}
	// Identical reading: no action.
	if m.tick() {
		t.Fatal("second tick with unchanged reachability must not transition")
	}

	flags := rec.recorded()
	if len(flags) != 1 || flags[0] != true {
		t.Errorf("transitions = %v, want [true]", flags)
	}
	if !m.Reachable() {
		t.Error("Reachable() = false, want true")
	}
}

func TestMonitor_UnreachableAfterListenerCloses(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()

	var shared sync.Mutex
	rec := &transitionRecorder{}
	m := New(&shared, addr, log.New(io.Discard), rec.record, WithProbeTimeout(100*time.Millisecond))

	m.tick() // true
	ln.Close()
	m.tick() // false
	m.tick() // unchanged

	flags := rec.recorded()
	if len(flags) != 2 || flags[0] != true || flags[1] != false {
		t.Errorf("transitions = %v, want [true false]", flags)
	}
	if m.Reachable() {
		t.Error("Reachable() = true after listener closed")
	}
}

func TestMonitor_ProbeFailureIsUnreachableNotError(t *testing.T) {
	var shared sync.Mutex
	// Nothing listens on this address; the probe must degrade to false.
	m := New(&shared, "127.0.0.1:1", log.New(io.Discard), nil, WithProbeTimeout(100*time.Millisecond))

	if m.tick() {
		t.Error("initial unreachable reading matches the zero state; no transition expected")
	}
	if m.Reachable() {
		t.Error("Reachable() = true, want false")
	}
}

func TestMonitor_CallbackRunsOutsideSharedLock(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	var shared sync.Mutex
	locked := make(chan bool, 1)
	m := New(&shared, ln.Addr().String(), log.New(io.Discard), func(bool) {
		// If tick still held the lock this would deadlock; TryLock
		// proves it was released first.
		if shared.TryLock() {
			shared.Unlock()
			locked <- false
		} else {
			locked <- true
		}
	})

	m.tick()

	select {
	case held := <-locked:
		if held {
			t.Error("transition callback invoked while shared lock was held")
		}
	case <-time.After(time.Second):
		t.Fatal("transition callback never invoked")
	}
}

func TestMonitor_StartStop(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	var shared sync.Mutex
	rec := &transitionRecorder{}
	m := New(&shared, ln.Addr().String(), log.New(io.Discard), rec.record,
		WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	m.Start(ctx)
	m.Start(ctx) // no-op

	deadline := time.After(2 * time.Second)
	for !m.Reachable() {
		select {
		case <-deadline:
			t.Fatal("monitor never observed the listener")
		case <-time.After(5 * time.Millisecond):
		}
	}

	m.Stop()
	m.Stop() // no-op

	flags := rec.recorded()
	if len(flags) != 1 || flags[0] != true {
		t.Errorf("transitions = %v, want exactly [true]", flags)
	}
}
