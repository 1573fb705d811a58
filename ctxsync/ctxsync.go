// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package ctxsync provides synchronization primitives whose blocking
// operations are abandoned when a context is done.
package ctxsync

import (
	"context"
	"sync"
)

// A Cond is a condition variable that implements a context-aware
// Wait.
type Cond struct {
	l     sync.Locker
	waitc chan struct{}
}

// NewCond returns a new Cond based on Locker l.
func NewCond(l sync.Locker) *Cond {
	return &Cond{l: l}
}

// Broadcast notifies waiters of a state change. Broadcast must only
// be called while the cond's lock is held.
func (c *Cond) Broadcast() {
	if c.waitc != nil {
		close(c.waitc)
		c.waitc = nil
	}
}

// Wait returns after the next call to Broadcast, or when ctx is done,
// in which case ctx's error is returned. The cond's lock must be held
// when calling Wait; it is held again when Wait returns.
func (c *Cond) Wait(ctx context.Context) error {
	if c.waitc == nil {
		c.waitc = make(chan struct{})
	}
	waitc := c.waitc
	c.l.Unlock()
	var err error
	select {
	case <-waitc:
	case <-ctx.Done():
		err = ctx.Err()
	}
	c.l.Lock()
	return err
}

// A Mutex is a mutual exclusion lock whose Lock may be abandoned.
// The zero Mutex is unlocked.
type Mutex struct {
	mu     sync.Mutex
	cond   *Cond
	locked bool
}

// Lock acquires m, blocking until it is available or ctx is done.
// Lock returns ctx's error if it did not acquire the lock.
func (m *Mutex) Lock(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cond == nil {
		m.cond = NewCond(&m.mu)
	}
	for m.locked {
		if err := m.cond.Wait(ctx); err != nil {
			return err
		}
	}
	m.locked = true
	return nil
}

// Unlock releases m. It is a run-time error if m is not locked.
func (m *Mutex) Unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.locked {
		panic("ctxsync: unlock of unlocked mutex")
	}
	m.locked = false
	if m.cond != nil {
		m.cond.Broadcast()
	}
}
