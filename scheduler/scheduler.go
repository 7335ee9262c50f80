package scheduler

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Pool runs arbitrary tasks at specific future wall-clock times on a fixed
// number of worker goroutines. Due tasks that exceed the worker capacity
// queue until a worker frees up; they are never dropped. A task scheduled
// for a time already in the past runs immediately.
type Pool struct {
	tasks   chan func()
	workers int
	quit    chan struct{}
	wg      sync.WaitGroup

	mutex   sync.Mutex
	stopped bool
	pending sync.WaitGroup // timers armed but not yet enqueued
}

// Task is a cancellable handle to one scheduled execution.
type Task struct {
	timer *time.Timer

	mutex     sync.Mutex
	cancelled bool
	enqueued  bool
}

// NewPool starts a scheduler pool with the given worker count.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 10
	}

	p := &Pool{
		tasks:   make(chan func(), 64),
		workers: workers,
		quit:    make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	logrus.WithFields(logrus.Fields{
		"component": "SchedulerPool",
		"workers":   workers,
	}).Info("Scheduler pool started")

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case fn := <-p.tasks:
			fn()
		case <-p.quit:
			// Drain anything already enqueued before exiting.
			for {
				select {
				case fn := <-p.tasks:
					fn()
				default:
					return
				}
			}
		}
	}
}

// ScheduleAt arms a one-shot execution of fn at t. The returned handle can
// cancel the execution while the timer has not yet fired; cancellation of
// an enqueued or running task has no effect.
func (p *Pool) ScheduleAt(t time.Time, fn func()) *Task {
	delay := time.Until(t)
	if delay < 0 {
		delay = 0
	}

	task := &Task{}
	wrapped := p.recoverWrap(fn)

	p.pending.Add(1)
	task.timer = time.AfterFunc(delay, func() {
		defer p.pending.Done()

		task.mutex.Lock()
		if task.cancelled {
			task.mutex.Unlock()
			return
		}
		task.enqueued = true
		task.mutex.Unlock()

		select {
		case p.tasks <- wrapped:
		case <-p.quit:
			logrus.WithField("component", "SchedulerPool").
				Warn("Scheduler stopped, dropping due task")
		}
	})

	return task
}

// recoverWrap guards the pool against panicking task bodies. A failure
// inside a scheduled task is logged and the worker keeps running.
func (p *Pool) recoverWrap(fn func()) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithFields(logrus.Fields{
					"component": "SchedulerPool",
					"panic":     r,
				}).Error("Recovered from panic in scheduled task")
			}
		}()
		fn()
	}
}

// Stop shuts the pool down. Tasks already enqueued still run; timers that
// have not fired are left to expire into a closed pool and are dropped.
func (p *Pool) Stop() {
	p.mutex.Lock()
	if p.stopped {
		p.mutex.Unlock()
		return
	}
	p.stopped = true
	p.mutex.Unlock()

	close(p.quit)
	p.wg.Wait()

	logrus.WithField("component", "SchedulerPool").Info("Scheduler pool stopped")
}

// Cancel stops the task if its timer has not fired yet. It reports whether
// the cancellation took effect.
func (t *Task) Cancel() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.cancelled || t.enqueued {
		return false
	}

	t.cancelled = true
	t.timer.Stop()
	return true
}

// Cancelled reports whether Cancel won against the timer.
func (t *Task) Cancelled() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.cancelled
}
