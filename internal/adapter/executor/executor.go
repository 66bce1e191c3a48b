// Package executor contains the default task serializer used to guarantee
// that only one datastore operation runs at a time, while letting callers
// that arrive before the datastore is ready queue up instead of racing it.
package executor

import (
	"context"
	"sync"

	"github.com/go-embedb/embedb/domain"
	"github.com/go-embedb/embedb/pkg/ctxsync"
)

type bufferedTask struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

// Executor runs at most one task at a time, FIFO, and can be switched into
// buffering mode so tasks submitted through Push queue up instead of
// running, until ProcessBuffer or ResetBuffer drains the queue.
type Executor struct {
	mu *ctxsync.Mutex

	bufMu    sync.Mutex
	buffered bool
	buffer   []bufferedTask
}

// NewExecutor returns a ready Executor.
func NewExecutor() *Executor {
	return &Executor{mu: ctxsync.NewMutex()}
}

// LockWithContext blocks until the executor is free, or until ctx is
// cancelled. It exists for callers that want to hold the slot across
// multiple steps instead of passing a single closure to Push.
func (e *Executor) LockWithContext(ctx context.Context) error {
	return e.mu.LockWithContext(ctx)
}

// Unlock releases the slot acquired by LockWithContext.
func (e *Executor) Unlock() {
	e.mu.Unlock()
}

// Bufferize starts queuing tasks submitted through Push and GoPush instead
// of running them, until ProcessBuffer or ResetBuffer is called.
func (e *Executor) Bufferize() {
	e.bufMu.Lock()
	defer e.bufMu.Unlock()
	e.buffered = true
}

// Push runs fn serialized against every other task, or queues it behind
// Bufferize if the executor is currently buffering, blocking until fn runs
// or ctx is cancelled.
func (e *Executor) Push(ctx context.Context, fn func(ctx context.Context) error) error {
	e.bufMu.Lock()
	if e.buffered {
		bt := bufferedTask{ctx: ctx, fn: fn, done: make(chan error, 1)}
		e.buffer = append(e.buffer, bt)
		e.bufMu.Unlock()
		select {
		case err := <-bt.done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	e.bufMu.Unlock()
	return e.run(ctx, fn)
}

// GoPush behaves like Push but returns immediately, running or queuing fn
// in the background. Errors from fn are discarded; use Push when the
// caller needs the result.
func (e *Executor) GoPush(ctx context.Context, fn func(ctx context.Context) error) {
	go func() {
		_ = e.Push(ctx, fn)
	}()
}

func (e *Executor) run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := e.mu.LockWithContext(ctx); err != nil {
		return err
	}
	defer e.mu.Unlock()
	return fn(ctx)
}

// ProcessBuffer stops buffering and runs every task queued since Bufferize,
// in submission order.
func (e *Executor) ProcessBuffer() {
	tasks := e.drainBuffer()
	for _, t := range tasks {
		t.done <- e.run(t.ctx, t.fn)
	}
}

// ResetBuffer stops buffering and discards every task queued since
// Bufferize, failing their Push/GoPush callers with [domain.ErrBufferReset].
func (e *Executor) ResetBuffer() {
	tasks := e.drainBuffer()
	for _, t := range tasks {
		t.done <- domain.ErrBufferReset{}
	}
}

func (e *Executor) drainBuffer() []bufferedTask {
	e.bufMu.Lock()
	defer e.bufMu.Unlock()
	tasks := e.buffer
	e.buffer = nil
	e.buffered = false
	return tasks
}
