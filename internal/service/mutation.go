package service

import (
	"errors"
	"sync"
)

// ErrMutationInFlight signals that the same mutation key is already being
// processed; rapid repeated user actions are dropped instead of duplicated.
var ErrMutationInFlight = errors.New("mutation already in flight")

// Mutation is a three-phase optimistic update: apply the tentative local
// state, attempt the write, and on failure revert to the pre-mutation
// snapshot. Apply and Rollback are optional.
type Mutation struct {
	Apply    func()
	Commit   func() error
	Rollback func()
}

// Run executes the mutation phases in order.
func (m Mutation) Run() error {
	if m.Apply != nil {
		m.Apply()
	}

	if m.Commit == nil {
		return nil
	}

	if err := m.Commit(); err != nil {
		if m.Rollback != nil {
			m.Rollback()
		}
		return err
	}

	return nil
}

// InflightGuard serializes mutations by key. A second attempt while the first
// is still running returns ErrMutationInFlight rather than queuing.
type InflightGuard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewInflightGuard constructs an empty guard.
func NewInflightGuard() *InflightGuard {
	return &InflightGuard{active: make(map[string]struct{})}
}

// Do runs the mutation if the key is free.
func (g *InflightGuard) Do(key string, mutation Mutation) error {
	g.mu.Lock()
	if _, busy := g.active[key]; busy {
		g.mu.Unlock()
		return ErrMutationInFlight
	}
	g.active[key] = struct{}{}
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.active, key)
		g.mu.Unlock()
	}()

	return mutation.Run()
}
