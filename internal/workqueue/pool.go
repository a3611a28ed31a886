// Package workqueue runs submitted tasks on a fixed set of goroutines and
// offers a drain barrier that also waits for work submitted by running
// tasks.
package workqueue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	apperrors "github.com/cgportillo/project-cpxrtillo/pkg/errors"
	"github.com/cgportillo/project-cpxrtillo/pkg/logger"
)

// ErrShutdown is returned by Submit after Shutdown.
var ErrShutdown = apperrors.ErrShutdown

// Observer is told the pending task count whenever it changes. It is called
// with the pool lock held, so reports arrive in order and must not call back
// into the pool.
type Observer interface {
	ObservePending(n int)
}

// Pool is a fixed-size worker pool over an unbounded FIFO queue.
//
// pending counts queued plus running tasks. It is incremented by Submit and
// decremented after a task returns, so a task that submits children keeps
// the count above zero until those children are queued.
type Pool struct {
	mu       sync.Mutex
	work     *sync.Cond
	idle     *sync.Cond
	queue    []func()
	pending  int
	shutdown bool
	workers  int
	wg       sync.WaitGroup
	obs      Observer
	logger   *slog.Logger
}

// New starts a pool with the given number of workers; values below one are
// raised to one.
func New(workers int, obs Observer) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		workers: workers,
		obs:     obs,
		logger:  logger.WithComponent("workqueue"),
	}
	p.work = sync.NewCond(&p.mu)
	p.idle = sync.NewCond(&p.mu)
	for range workers {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Submit queues task without blocking.
func (p *Pool) Submit(task func()) error {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return ErrShutdown
	}
	p.queue = append(p.queue, task)
	p.pending++
	p.observe(p.pending)
	p.work.Signal()
	p.mu.Unlock()
	return nil
}

// Drain blocks until no task is queued or running. If ctx ends first it
// returns ctx.Err(); queued work keeps running.
func (p *Pool) Drain(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.idle.Broadcast()
	})
	defer stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	for p.pending > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.idle.Wait()
	}
	return nil
}

// Shutdown refuses new work, lets the workers finish the queue and waits
// for them to exit. It is safe to call more than once.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.shutdown = true
	p.work.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

// Pending returns the number of queued and running tasks.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

func (p *Pool) Workers() int {
	return p.workers
}

func (p *Pool) run() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.shutdown {
			p.work.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.execute(task)

		p.mu.Lock()
		p.pending--
		p.observe(p.pending)
		if p.pending == 0 {
			p.idle.Broadcast()
		}
		p.mu.Unlock()
	}
}

func (p *Pool) execute(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	task()
}

func (p *Pool) observe(n int) {
	if p.obs != nil {
		p.obs.ObservePending(n)
	}
}
