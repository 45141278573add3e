// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package debounce coalesces bursts of calls into a single delayed call.
package debounce

import (
	"context"
	"sync"
	"time"
)

// Task is a function scheduled to run once after a delay.
type Task struct {
	timer   *time.Timer
	ready   chan struct{}
	done    chan struct{}
	once    sync.Once
	release func() bool
}

// Schedule runs fn after delay unless the task is cancelled first or ctx is
// done. Cancelling ctx before the delay elapses cancels the task; once fn has
// started it runs to completion with ctx.
func Schedule(ctx context.Context, delay time.Duration, fn func(context.Context)) *Task {
	t := &Task{
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}

	t.timer = time.AfterFunc(delay, func() {
		<-t.ready
		defer t.finish()

		if ctx.Err() != nil {
			return
		}

		fn(ctx)
	})

	t.release = context.AfterFunc(ctx, func() { t.Cancel() })
	close(t.ready)

	return t
}

func (t *Task) finish() {
	// release is assigned before ready is closed
	<-t.ready

	t.once.Do(func() {
		t.release()
		close(t.done)
	})
}

// Cancel stops the task if it has not started yet and reports whether it
// did. A started task is never interrupted.
func (t *Task) Cancel() bool {
	if !t.timer.Stop() {
		return false
	}

	t.finish()

	return true
}

// Done is closed when the task has run or was cancelled.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Debouncer runs the last triggered function once no new trigger arrived
// for Delay.
type Debouncer struct {
	mu      sync.Mutex
	ctx     context.Context
	delay   time.Duration
	pending *Task
	fn      func(context.Context)
}

// New returns a Debouncer whose tasks run with ctx.
func New(ctx context.Context, delay time.Duration) *Debouncer {
	return &Debouncer{ctx: ctx, delay: delay}
}

// Trigger cancels the pending call, if any, and schedules fn.
func (d *Debouncer) Trigger(fn func(context.Context)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending != nil {
		d.pending.Cancel()
	}

	d.fn = fn
	d.pending = Schedule(d.ctx, d.delay, fn)
}

// Flush runs the pending call now, on the calling goroutine, and reports
// whether there was one. A call that already started is waited for instead.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	task, fn := d.pending, d.fn
	d.pending, d.fn = nil, nil
	d.mu.Unlock()

	if task == nil {
		return false
	}

	if !task.Cancel() {
		<-task.Done()

		return false
	}

	fn(d.ctx)

	return true
}

// Stop drops the pending call, if any.
func (d *Debouncer) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending == nil {
		return false
	}

	stopped := d.pending.Cancel()
	d.pending, d.fn = nil, nil

	return stopped
}

// Pending reports whether a call is scheduled and has not finished.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending == nil {
		return false
	}

	select {
	case <-d.pending.Done():
		return false
	default:
		return true
	}
}
