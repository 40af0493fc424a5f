// File: internal/verbs/cq.go
// Author: momentics <momentics@gmail.com>
//
// Completion queue. Backed by github.com/eapache/queue, the same
// dependency and FIFO shape the teacher's internal/concurrency/executor.go
// uses for its task queue, repurposed here to hold pending Completion
// records instead of TaskFunc closures — there is no worker pool on this
// side, PollOnce is called directly by the ring engine's own goroutine.

package verbs

import (
	"sync"

	"github.com/eapache/queue"
	"github.com/momentics/ringallreduce/api"
)

// CompletionQueue is a thread-safe FIFO of pending completions, sized per
// spec §4.1 ("depth >= 2*(N-1) is sufficient for both phases").
type CompletionQueue struct {
	mu     sync.Mutex
	items  *queue.Queue
	depth  int
	closed bool
}

// CreateCompletionQueue allocates a completion queue of the given depth.
// Depth is advisory here (the software queue grows as needed) but is kept
// on the struct so callers can size the underlying endpoint caps to match.
func CreateCompletionQueue(pd *ProtectionDomain, depth int) (*CompletionQueue, error) {
	if err := pd.checkOpen(); err != nil {
		return nil, err
	}
	if depth <= 0 {
		return nil, api.NewError(api.ErrCodeBadArg, "completion queue depth must be positive")
	}
	return &CompletionQueue{items: queue.New(), depth: depth}, nil
}

// push enqueues a completion; called by the softverbs reader/writer
// goroutines, never directly by ring-engine code.
func (cq *CompletionQueue) push(c Completion) {
	cq.mu.Lock()
	defer cq.mu.Unlock()
	cq.items.Add(c)
}

// PollOnce returns the next pending completion, or (zero, false) if the
// queue is currently empty. Never blocks: spec §4.1 defines the poll as a
// non-blocking check, with spin/yield discipline left to the caller.
func (cq *CompletionQueue) PollOnce() (Completion, bool) {
	cq.mu.Lock()
	defer cq.mu.Unlock()
	if cq.items.Length() == 0 {
		return Completion{}, false
	}
	v := cq.items.Remove()
	return v.(Completion), true
}

// Depth returns the configured depth.
func (cq *CompletionQueue) Depth() int {
	return cq.depth
}

// Close marks the completion queue closed. Idempotent.
func (cq *CompletionQueue) Close() error {
	cq.mu.Lock()
	defer cq.mu.Unlock()
	cq.closed = true
	return nil
}
