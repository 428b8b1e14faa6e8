// Package lock provides named mutual exclusion for webhook handling.
// Deliveries touching the same (user, provider transaction, card) tuple
// share a key and are serialized; everything else runs in parallel.
package lock

import (
	"context"
	"sync"
)

// Service serializes critical sections sharing the same key. WithLock
// blocks until the lock is held, runs fn, and releases; fn's error is
// propagated. There is deliberately no acquisition timeout: a stuck
// lock is an operational incident, not a normal failure path. Context
// cancellation still aborts the wait.
type Service interface {
	WithLock(ctx context.Context, key string, fn func() error) error
}

// Local is an in-process Service backed by per-key mutexes. Suitable
// for tests and single-instance deployments.
type Local struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocal() *Local {
	return &Local{locks: make(map[string]*sync.Mutex)}
}

func (l *Local) WithLock(ctx context.Context, key string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn()
}
