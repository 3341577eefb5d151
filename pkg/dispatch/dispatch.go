// Package dispatch runs jobs in receipt order per key while letting different
// keys proceed in parallel.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Job is one unit of work submitted under a key.
type Job func(context.Context)

// Dispatcher keeps one FIFO queue per active key. A key's worker goroutine
// exits when its queue drains, so idle conversations hold no resources.
type Dispatcher struct {
	ctx context.Context
	log *slog.Logger

	mu     sync.Mutex
	queues map[string][]Job
	wg     sync.WaitGroup
	closed bool
}

func New(ctx context.Context, log *slog.Logger) *Dispatcher {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		log = slog.Default()
	}

	return &Dispatcher{
		ctx:    ctx,
		log:    log.With("component", "dispatch"),
		queues: make(map[string][]Job),
	}
}

// Submit enqueues job behind any pending work for key. It returns false once
// the dispatcher has been closed.
func (d *Dispatcher) Submit(key string, job Job) bool {
	if job == nil {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}

	queue, active := d.queues[key]
	d.queues[key] = append(queue, job)
	if !active {
		d.wg.Add(1)
		go d.drain(key)
	}

	return true
}

// Active reports how many keys currently have a running worker.
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}

// Close rejects new submissions and waits for queued jobs to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.Wait()
}

// Wait blocks until every queue has drained.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) drain(key string) {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		queue := d.queues[key]
		if len(queue) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		job := queue[0]
		queue[0] = nil
		d.queues[key] = queue[1:]
		d.mu.Unlock()

		d.run(key, job)
	}
}

func (d *Dispatcher) run(key string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Job panicked", "key", key, "error", fmt.Sprint(r))
		}
	}()

	job(d.ctx)
}
