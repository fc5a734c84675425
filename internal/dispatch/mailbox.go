package dispatch

import (
	"sync"

	"github.com/aretw0/hetcore/pkg/domain"
)

// identity names a work item: the sub-graph it came from and its window.
type identity struct {
	base  *domain.KernelNode
	start int
	count int
}

func identityOf(nodes []domain.KernelNode, start, count int) identity {
	id := identity{start: start, count: count}
	if len(nodes) > 0 {
		id.base = &nodes[0]
	}
	return id
}

type result struct {
	executed int
	err      error
}

type future struct {
	ch        chan result
	abandoned bool
}

// mailbox matches completed work to its waiter by identity. Waiters with the
// same identity are served in submission order.
type mailbox struct {
	mu      sync.Mutex
	waiting map[identity][]*future
}

func newMailbox() *mailbox {
	return &mailbox{waiting: make(map[identity][]*future)}
}

func (mb *mailbox) register(id identity) *future {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	f := &future{ch: make(chan result, 1)}
	mb.waiting[id] = append(mb.waiting[id], f)
	return f
}

// deliver hands r to the oldest waiter for id. It reports false when nobody
// takes the result.
func (mb *mailbox) deliver(id identity, r result) bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	q := mb.waiting[id]
	if len(q) == 0 {
		return false
	}
	f := q[0]
	if len(q) == 1 {
		delete(mb.waiting, id)
	} else {
		mb.waiting[id] = q[1:]
	}
	if f.abandoned {
		return false
	}
	f.ch <- r
	return true
}

// abandon marks f as no longer waited on; its result is dropped on delivery.
func (mb *mailbox) abandon(f *future) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	f.abandoned = true
}

// withdraw removes f before its work was ever queued.
func (mb *mailbox) withdraw(id identity, f *future) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	q := mb.waiting[id]
	for i, g := range q {
		if g == f {
			q = append(q[:i], q[i+1:]...)
			break
		}
	}
	if len(q) == 0 {
		delete(mb.waiting, id)
	} else {
		mb.waiting[id] = q
	}
}

func (mb *mailbox) pending() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	n := 0
	for _, q := range mb.waiting {
		n += len(q)
	}
	return n
}
