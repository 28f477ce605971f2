// Package parallel provides the CPU fan-out used by the splatting executor.
//
// Every pipeline stage is data-parallel over one axis (Gaussians, tiles,
// pixels). A stage splits its axis into chunks, hands them to a WorkerPool,
// and waits at a join barrier before the next stage reads the results.
// Global steps such as the intersection sort run on the calling goroutine
// between two barriers.
//
// Thread safety: WorkerPool is safe for concurrent use. TileGrid is
// immutable after construction.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool runs work items on a fixed set of goroutines.
//
// Each worker owns a queue and steals from its neighbours when its own queue
// is empty, which keeps tiles with long contributor lists from stalling the
// stage.
type WorkerPool struct {
	workers    int
	workQueues []chan func()
	done       chan struct{}
	wg         sync.WaitGroup
	running    atomic.Bool
}

// NewWorkerPool starts a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	own := p.workQueues[id]
	for {
		select {
		case <-p.done:
			p.drain(own)
			return
		case work := <-own:
			if work != nil {
				work()
			}
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drain(own)
				return
			case work := <-own:
				if work != nil {
					work()
				}
			}
		}
	}
}

func (p *WorkerPool) drain(queue chan func()) {
	for {
		select {
		case work := <-queue:
			if work != nil {
				work()
			}
		default:
			return
		}
	}
}

// steal takes one item from another worker's queue, or returns nil.
func (p *WorkerPool) steal(id int) func() {
	for i := range p.workers {
		if i == id {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

// ExecuteAll distributes work round-robin and blocks until every item has
// finished. If the pool is closed, the items run on the calling goroutine so
// a stage never silently drops work.
func (p *WorkerPool) ExecuteAll(work []func()) {
	if len(work) == 0 {
		return
	}
	if !p.running.Load() {
		for _, fn := range work {
			fn()
		}
		return
	}

	var barrier sync.WaitGroup
	barrier.Add(len(work))
	for i, fn := range work {
		wrapped := func() {
			defer barrier.Done()
			fn()
		}
		select {
		case p.workQueues[i%p.workers] <- wrapped:
		case <-p.done:
			wrapped()
		}
	}
	barrier.Wait()
}

// ForChunks splits [0, n) into at most chunks contiguous ranges and calls
// fn(chunk, lo, hi) for each on the pool, returning after all have finished.
// Chunk indices are dense in [0, chunks) so callers can give each chunk its
// own accumulation buffer and reduce after the barrier.
func (p *WorkerPool) ForChunks(n, chunks int, fn func(chunk, lo, hi int)) {
	if n <= 0 {
		return
	}
	if chunks <= 0 {
		chunks = p.workers
	}
	chunks = min(chunks, n)
	size := (n + chunks - 1) / chunks

	work := make([]func(), 0, chunks)
	for c := range chunks {
		lo := c * size
		if lo >= n {
			break
		}
		hi := min(lo+size, n)
		work = append(work, func() { fn(c, lo, hi) })
	}
	p.ExecuteAll(work)
}

// ForEach calls fn(i) for every i in [0, n) using one chunk per worker.
func (p *WorkerPool) ForEach(n int, fn func(i int)) {
	p.ForChunks(n, p.workers, func(_, lo, hi int) {
		for i := lo; i < hi; i++ {
			fn(i)
		}
	})
}

// Close stops the workers after draining queued work. Safe to call twice.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning reports whether the pool still accepts work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}

// QueuedWork returns an approximate count of queued items.
func (p *WorkerPool) QueuedWork() int {
	total := 0
	for _, q := range p.workQueues {
		total += len(q)
	}
	return total
}
