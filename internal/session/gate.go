package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/initializ/skillforge/internal/contract"
)

// gate is a per-(skill,instance) concurrency admission control: at most
// limit calls run at once; callers beyond that queue up to backlog deep,
// and anything past the backlog fails fast with RateLimited rather than
// blocking indefinitely. This resolves the "what happens past
// max_concurrent_requests" Open Question recorded in DESIGN.md in favor of
// bounded-queue-then-fail-fast over unbounded blocking.
type gate struct {
	sem chan struct{}

	mu      sync.Mutex
	queued  int
	backlog int
}

func newGate(limit, backlog int) *gate {
	if limit <= 0 {
		limit = 1
	}
	if backlog <= 0 {
		backlog = limit
	}
	return &gate{sem: make(chan struct{}, limit), backlog: backlog}
}

// Acquire blocks until a permit is free, the backlog is full (returns
// RateLimited immediately), or ctx is done (returns Timeout).
func (g *gate) Acquire(ctx context.Context) *contract.Failure {
	g.mu.Lock()
	if g.queued >= g.backlog {
		g.mu.Unlock()
		return contract.NewFailure(contract.FailureRateLimited, fmt.Sprintf("concurrency backlog of %d exceeded", g.backlog))
	}
	g.queued++
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.queued--
		g.mu.Unlock()
	}()

	select {
	case g.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return contract.NewFailure(contract.FailureTimeout, "deadline exceeded waiting for a concurrency permit")
	}
}

// Release returns a permit acquired by Acquire.
func (g *gate) Release() {
	<-g.sem
}
