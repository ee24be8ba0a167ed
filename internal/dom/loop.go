package dom

import (
	"context"
	"sync"
	"time"
)

// FrameHandle identifies a requested animation frame callback. The zero
// handle is never issued, so cancelling it is a no-op.
type FrameHandle uint64

type frameEntry struct {
	handle FrameHandle
	cb     func(time.Time)
}

// Loop is a cooperative event loop with a task queue, a microtask queue and
// animation frame callbacks. Callbacks run one at a time on whichever
// goroutine drives the loop.
type Loop struct {
	mu         sync.Mutex
	tasks      []func()
	microtasks []func()
	frames     []frameEntry
	running    map[FrameHandle]bool
	nextFrame  FrameHandle
	inflight   int
	wake       chan struct{}
	now        func() time.Time
}

// NewLoop creates an idle loop.
func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		now:  time.Now,
	}
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Post queues a task. It may be called from any goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
	l.signal()
}

// QueueMicrotask queues fn to run at the next microtask checkpoint.
func (l *Loop) QueueMicrotask(fn func()) {
	l.mu.Lock()
	l.microtasks = append(l.microtasks, fn)
	l.mu.Unlock()
	l.signal()
}

// Go runs work on its own goroutine and posts the continuation it returns
// back to the loop. The loop counts the work as outstanding until then, so
// RunUntilIdle waits for it.
func (l *Loop) Go(work func() func()) {
	l.mu.Lock()
	l.inflight++
	l.mu.Unlock()

	go func() {
		cont := work()
		l.mu.Lock()
		l.tasks = append(l.tasks, func() {
			if cont != nil {
				cont()
			}
		})
		l.inflight--
		l.mu.Unlock()
		l.signal()
	}()
}

// RequestAnimationFrame schedules cb to run on the next frame.
func (l *Loop) RequestAnimationFrame(cb func(time.Time)) FrameHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextFrame++
	l.frames = append(l.frames, frameEntry{handle: l.nextFrame, cb: cb})
	return l.nextFrame
}

// CancelAnimationFrame removes a scheduled frame callback that has not run,
// including one that belongs to the frame currently running.
func (l *Loop) CancelAnimationFrame(h FrameHandle) {
	if h == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, f := range l.frames {
		if f.handle == h {
			l.frames = append(l.frames[:i], l.frames[i+1:]...)
			return
		}
	}
	if _, ok := l.running[h]; ok {
		l.running[h] = false
	}
}

// PendingFrames returns the number of scheduled frame callbacks.
func (l *Loop) PendingFrames() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.frames)
}

// RunMicrotasks drains the microtask queue, including microtasks queued while
// draining.
func (l *Loop) RunMicrotasks() int {
	ran := 0
	for {
		l.mu.Lock()
		if len(l.microtasks) == 0 {
			l.mu.Unlock()
			return ran
		}
		fn := l.microtasks[0]
		l.microtasks = l.microtasks[1:]
		l.mu.Unlock()

		fn()
		ran++
	}
}

// RunTasks runs queued tasks until the queue is empty, with a microtask
// checkpoint after each one. It returns the number of tasks run.
func (l *Loop) RunTasks() int {
	l.RunMicrotasks()
	ran := 0
	for {
		l.mu.Lock()
		if len(l.tasks) == 0 {
			l.mu.Unlock()
			return ran
		}
		fn := l.tasks[0]
		l.tasks = l.tasks[1:]
		l.mu.Unlock()

		fn()
		ran++
		l.RunMicrotasks()
	}
}

// RunFrame runs the frame callbacks scheduled before the call and returns
// how many ran. Callbacks requested while the frame runs wait for the next
// one; callbacks cancelled while it runs are skipped.
func (l *Loop) RunFrame() int {
	l.mu.Lock()
	frames := l.frames
	l.frames = nil
	l.running = make(map[FrameHandle]bool, len(frames))
	for _, f := range frames {
		l.running[f.handle] = true
	}
	now := l.now()
	l.mu.Unlock()

	ran := 0
	for _, f := range frames {
		l.mu.Lock()
		live := l.running[f.handle]
		delete(l.running, f.handle)
		l.mu.Unlock()
		if !live {
			continue
		}
		f.cb(now)
		ran++
		l.RunMicrotasks()
	}

	l.mu.Lock()
	l.running = nil
	l.mu.Unlock()
	return ran
}

func (l *Loop) idle() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks) == 0 && len(l.microtasks) == 0 && len(l.frames) == 0 && l.inflight == 0
}

func (l *Loop) waiting() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks) == 0 && len(l.microtasks) == 0 && len(l.frames) == 0 && l.inflight > 0
}

// RunUntilIdle drives the loop as fast as possible until no tasks, frames or
// outstanding Go work remain.
func (l *Loop) RunUntilIdle(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.RunTasks()
		if l.PendingFrames() > 0 {
			l.RunFrame()
			continue
		}
		if l.idle() {
			return nil
		}
		if l.waiting() {
			select {
			case <-l.wake:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Run drives the loop in real time, running frames every interval, until ctx
// is done.
func (l *Loop) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		l.RunTasks()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		case <-ticker.C:
			l.RunTasks()
			l.RunFrame()
		}
	}
}
