package mux

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	return New(20*time.Millisecond, log.New(io.Discard))
}

func pipe(t *testing.T) (*os.File, *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})
	return r, w
}

func TestLoop_IdleOnlyTerminatesAfterOneIteration(t *testing.T) {
	// One idle handler that unregisters itself, no descriptors: the loop
	// must run exactly one iteration and then stop.
	l := newTestLoop(t)

	iterations := 0
	l.AddIdle(func() Action {
		iterations++
		return Unregister
	})

	runs := 0
	for l.RunOnce() {
		runs++
		if runs > 3 {
			t.Fatal("loop failed to terminate")
		}
	}

	if iterations != 1 {
		t.Errorf("idle handler ran %d times, want 1", iterations)
	}
	if runs != 1 {
		t.Errorf("loop ran %d iterations, want 1", runs)
	}
}

func TestLoop_EmptyLoopTerminatesImmediately(t *testing.T) {
	l := newTestLoop(t)
	if l.RunOnce() {
		t.Error("empty loop must terminate without waiting")
	}
}

func TestLoop_ReadableHandlerRuns(t *testing.T) {
	l := newTestLoop(t)
	r, w := pipe(t)

	var got []byte
	if err := l.Watch(int(r.Fd()), func() Action {
		buf := make([]byte, 64)
		n, _ := r.Read(buf)
		got = buf[:n]
		return Unregister
	}); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if _, err := w.WriteString("ready"); err != nil {
		t.Fatalf("write: %v", err)
	}

	if !l.RunOnce() {
		t.Fatal("loop stopped before dispatching the readable handler")
	}
	if string(got) != "ready" {
		t.Errorf("handler read %q, want %q", got, "ready")
	}
	if l.RunOnce() {
		t.Error("loop must terminate once the handler unregistered")
	}
}

func TestLoop_DuplicateWatchRejected(t *testing.T) {
	l := newTestLoop(t)
	r, _ := pipe(t)

	if err := l.Watch(int(r.Fd()), func() Action { return Continue }); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := l.Watch(int(r.Fd()), func() Action { return Continue }); err != ErrWatched {
		t.Errorf("second Watch error = %v, want ErrWatched", err)
	}
}

func TestLoop_OnlyReadyHandlersRun(t *testing.T) {
	l := newTestLoop(t)
	r1, w1 := pipe(t)
	r2, _ := pipe(t)

	ran1, ran2 := false, false
	l.Watch(int(r1.Fd()), func() Action {
		ran1 = true
		buf := make([]byte, 8)
		r1.Read(buf)
		return Unregister
	})
	l.Watch(int(r2.Fd()), func() Action {
		ran2 = true
		return Unregister
	})

	w1.WriteString("x")
	l.RunOnce()

	if !ran1 {
		t.Error("ready descriptor's handler did not run")
	}
	if ran2 {
		t.Error("handler for a non-ready descriptor ran")
	}
}

func TestLoop_IdleHandlersRunInOrder(t *testing.T) {
	l := newTestLoop(t)

	var order []int
	l.AddIdle(func() Action {
		order = append(order, 1)
		return Unregister
	})
	l.AddIdle(func() Action {
		order = append(order, 2)
		return Unregister
	})

	l.RunOnce()

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("idle order = %v, want [1 2]", order)
	}
}

func TestLoop_IdleHandlerKeepsRegistration(t *testing.T) {
	l := newTestLoop(t)

	ticks := 0
	id := l.AddIdle(func() Action {
		ticks++
		return Continue
	})

	l.RunOnce()
	l.RunOnce()
	if ticks != 2 {
		t.Errorf("idle handler ran %d times, want 2", ticks)
	}

	l.RemoveIdle(id)
	if l.RunOnce() {
		t.Error("loop must terminate after the idle handler is removed")
	}
}

func TestLoop_HandlerMayMutateRegistrations(t *testing.T) {
	l := newTestLoop(t)

	var secondRanThisTick bool
	var secondID uint64

	l.AddIdle(func() Action {
		// Remove the later handler from within this tick; it must not run.
		l.RemoveIdle(secondID)
		return Unregister
	})
	secondID = l.AddIdle(func() Action {
		secondRanThisTick = true
		return Unregister
	})

	l.RunOnce()

	if secondRanThisTick {
		t.Error("handler removed mid-tick must not run")
	}
}

func TestLoop_RunDrainsToTermination(t *testing.T) {
	l := newTestLoop(t)
	r, w := pipe(t)

	reads := 0
	l.Watch(int(r.Fd()), func() Action {
		buf := make([]byte, 8)
		r.Read(buf)
		reads++
		if reads == 2 {
			return Unregister
		}
		return Continue
	})

	go func() {
		w.WriteString("a")
		time.Sleep(5 * time.Millisecond)
		w.WriteString("b")
	}()

	done := make(chan struct{})
	go func() {
		l.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not terminate")
	}
	if reads != 2 {
		t.Errorf("reads = %d, want 2", reads)
	}
}
