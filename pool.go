package main

import (
	"errors"
	rdebug "runtime/debug"
	"sync"
)

var errPoolClosed = errors.New("pool closed")

// message is what workers receive: a job, or a request to exit.
type message struct {
	job       func()
	terminate bool
}

// Pool runs jobs on a fixed set of worker goroutines fed by one queue.
type Pool struct {
	queue  chan message
	wg     sync.WaitGroup
	mu     sync.RWMutex
	size   int
	closed bool
}

// NewPool starts size workers sharing a queue of queueSize pending jobs.
func NewPool(size, queueSize int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		queue: make(chan message, queueSize),
		size:  size,
	}
	p.wg.Add(size)
	for id := range size {
		go p.worker(id)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for msg := range p.queue {
		if msg.terminate {
			debug("worker %d was told to terminate", id)
			return
		}
		debug("worker %d got a job; executing", id)
		p.run(id, msg.job)
	}
}

// run executes job, recovering from a panic so the worker survives it.
func (p *Pool) run(id int, job func()) {
	defer func() {
		if rec := recover(); rec != nil {
			errorLog("worker %d: job panicked: %v\n%s", id, rec, rdebug.Stack())
		}
	}()
	job()
}

// Execute queues job for the next free worker. It blocks while the queue is
// full and fails once Close has been called.
func (p *Pool) Execute(job func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errPoolClosed
	}
	p.queue <- message{job: job}
	return nil
}

// Close queues one terminate message per worker behind any pending jobs and
// waits for every worker to exit, so all queued jobs run before it returns.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	info("Shutting down %d workers", p.size)
	for range p.size {
		p.queue <- message{terminate: true}
	}
	p.wg.Wait()
}
