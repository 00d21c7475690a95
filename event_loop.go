package mqttflow

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrLoopClosed is returned when a task is submitted to a closed event loop.
var ErrLoopClosed = errors.New("event loop closed")

// EventLoop runs submitted tasks one at a time on a single goroutine.
// All state of a connection is mutated from its loop, so packet handling
// and timer callbacks never overlap.
type EventLoop struct {
	mu     sync.Mutex
	queue  []func()
	notify chan struct{}

	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewEventLoop creates and starts an event loop.
func NewEventLoop() *EventLoop {
	l := &EventLoop{
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *EventLoop) run() {
	defer close(l.stopped)

	var batch []func()
	for {
		select {
		case <-l.done:
			return
		case <-l.notify:
		}

		l.mu.Lock()
		batch, l.queue = l.queue, batch[:0]
		l.mu.Unlock()

		for i, fn := range batch {
			select {
			case <-l.done:
				return
			default:
			}
			fn()
			batch[i] = nil
		}
	}
}

// Execute enqueues fn. It never blocks, so it is safe to call from the loop itself.
func (l *EventLoop) Execute(fn func()) error {
	l.mu.Lock()
	select {
	case <-l.done:
		l.mu.Unlock()
		return ErrLoopClosed
	default:
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
	return nil
}

// Schedule runs fn on the loop after the delay.
func (l *EventLoop) Schedule(after time.Duration, fn func()) Scheduled {
	t := &loopTimer{}
	t.timer = time.AfterFunc(after, func() {
		_ = l.Execute(func() {
			if t.canceled.Swap(true) {
				return
			}
			fn()
		})
	})
	return t
}

// Close stops the loop. Queued tasks that did not run yet are dropped.
func (l *EventLoop) Close() {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		close(l.done)
		l.queue = nil
		l.mu.Unlock()
	})
}

// Done is closed once the loop goroutine has exited.
func (l *EventLoop) Done() <-chan struct{} {
	return l.stopped
}

type loopTimer struct {
	timer    *time.Timer
	canceled atomic.Bool
}

// Cancel stops the timer. A callback already queued on the loop is skipped.
func (t *loopTimer) Cancel() {
	t.canceled.Store(true)
	t.timer.Stop()
}
