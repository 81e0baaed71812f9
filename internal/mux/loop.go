package mux

import (
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"
)

// Action tells the loop what to do with a handler after it ran.
type Action int

const (
	// Continue keeps the handler registered.
	Continue Action = iota

	// Unregister removes the handler.
	Unregister
)

// ReadableFunc runs when its descriptor becomes readable.
type ReadableFunc func() Action

// IdleFunc runs once per idle timeout when nothing became ready.
type IdleFunc func() Action

// ErrWatched indicates the descriptor already has a readable handler.
var ErrWatched = errors.New("descriptor already watched")

// DefaultTimeout is the wait bound for one loop iteration.
const DefaultTimeout = 200 * time.Millisecond

type idleEntry struct {
	id uint64
	fn IdleFunc
}

// Loop is a poll(2)-based readiness loop. It is owned and driven by a
// single goroutine; none of its methods are safe to call from another one.
type Loop struct {
	timeout  time.Duration
	logger   *log.Logger
	readable map[int]ReadableFunc
	idle     []idleEntry
	lastID   uint64
}

// New creates a Loop waiting at most timeout per iteration.
func New(timeout time.Duration, logger *log.Logger) *Loop {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Loop{
		timeout:  timeout,
		logger:   logger,
		readable: make(map[int]ReadableFunc),
	}
}

// Watch registers a readable handler for a descriptor. A descriptor can
// have at most one handler.
func (l *Loop) Watch(fd int, fn ReadableFunc) error {
	if _, exists := l.readable[fd]; exists {
		return ErrWatched
	}
	l.readable[fd] = fn
	return nil
}

// Unwatch removes the readable handler for a descriptor, if any.
func (l *Loop) Unwatch(fd int) {
	delete(l.readable, fd)
}

// AddIdle registers an idle handler and returns its id. Idle handlers run
// in registration order on every idle tick.
func (l *Loop) AddIdle(fn IdleFunc) uint64 {
	l.lastID++
	l.idle = append(l.idle, idleEntry{id: l.lastID, fn: fn})
	return l.lastID
}

// RemoveIdle removes an idle handler by id.
func (l *Loop) RemoveIdle(id uint64) {
	for i, e := range l.idle {
		if e.id == id {
			l.idle = append(l.idle[:i], l.idle[i+1:]...)
			return
		}
	}
}

// RunOnce performs one loop iteration: wait up to the timeout for any
// descriptor to become ready, run the handlers for the ready ones, or run
// the idle handlers on timeout. It returns false when nothing remains
// registered or the wait primitive failed.
func (l *Loop) RunOnce() bool {
	if len(l.readable) == 0 && len(l.idle) == 0 {
		return false
	}

	fds := make([]unix.PollFd, 0, len(l.readable))
	for fd := range l.readable {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	}

	n, err := unix.Poll(fds, int(l.timeout/time.Millisecond))
	if err != nil {
		if err == unix.EINTR {
			// A signal wake is not a wait failure.
			return true
		}
		l.logger.Error("poll failed", "err", err)
		return false
	}

	if n == 0 {
		l.runIdle()
		return true
	}

	for _, p := range fds {
		if p.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) == 0 {
			continue
		}
		fd := int(p.Fd)
		fn, ok := l.readable[fd]
		if !ok {
			// Deregistered by an earlier handler in this same iteration.
			continue
		}
		if fn() == Unregister {
			delete(l.readable, fd)
		}
	}
	return true
}

// Run repeats iterations until the loop terminates.
func (l *Loop) Run() {
	for l.RunOnce() {
	}
}

// runIdle runs every idle handler once, in registration order. The snapshot
// lets handlers mutate the registration list mid-tick.
func (l *Loop) runIdle() {
	snapshot := make([]idleEntry, len(l.idle))
	copy(snapshot, l.idle)

	for _, e := range snapshot {
		if !l.hasIdle(e.id) {
			continue
		}
		if e.fn() == Unregister {
			l.RemoveIdle(e.id)
		}
	}
}

func (l *Loop) hasIdle(id uint64) bool {
	for _, e := range l.idle {
		if e.id == id {
			return true
		}
	}
	return false
}
