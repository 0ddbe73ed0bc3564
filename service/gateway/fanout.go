package gateway

import (
	"hash/fnv"
	"sync"
)

type fanoutJob struct {
	conns   []*Client
	payload []byte
}

// Fanout spreads delivery across a worker pool. Jobs for the same scope
// always land on the same worker, so each scope keeps publish order while
// scopes run in parallel. A connection whose queue is full is handed to
// the overflow callback instead of blocking the worker.
type Fanout struct {
	workers  []chan fanoutJob
	overflow func(*Client)

	mu     sync.RWMutex
	closed bool
}

func NewFanout(workers, queue int, overflow func(*Client)) *Fanout {
	if workers <= 0 {
		workers = 4
	}
	if queue <= 0 {
		queue = 1024
	}
	f := &Fanout{
		workers:  make([]chan fanoutJob, workers),
		overflow: overflow,
	}
	for i := range f.workers {
		ch := make(chan fanoutJob, queue)
		f.workers[i] = ch
		go func() {
			for job := range ch {
				for _, c := range job.conns {
					if !c.TrySend(job.payload) {
						if f.overflow != nil {
							f.overflow(c)
						}
					}
				}
			}
		}()
	}
	return f
}

// Broadcast queues one delivery job on the scope's worker. After Close it
// is a no-op, so late publishers during shutdown are dropped, not panicked.
func (f *Fanout) Broadcast(scope string, conns []*Client, payload []byte) {
	if len(conns) == 0 || len(payload) == 0 {
		return
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(scope))

	// the read lock pins the channels open across the send
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	f.workers[int(h.Sum32())%len(f.workers)] <- fanoutJob{conns: conns, payload: payload}
}

// Close stops the workers; pending jobs drain first. Idempotent.
func (f *Fanout) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, ch := range f.workers {
		close(ch)
	}
}
