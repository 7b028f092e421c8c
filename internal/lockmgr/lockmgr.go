// Package lockmgr grants exclusive, path-scoped locks so concurrent
// file writers never interleave on the same workspace path.
package lockmgr

import (
	"fmt"
	"sync"
)

type waiter struct {
	id    string
	ready chan struct{}
}

type pathLock struct {
	holder  string
	waiters []waiter
}

// Manager hands out one lock per path, FIFO. Acquire never blocks: it
// reserves the caller's place in line and returns a grant channel, so
// callers can queue in dispatch order and wait on their own schedule.
type Manager struct {
	mu    sync.Mutex
	paths map[string]*pathLock
}

// New creates an empty lock manager.
func New() *Manager {
	return &Manager{paths: make(map[string]*pathLock)}
}

// Acquire reserves path for id. The returned channel is closed once the
// lock is held; if the path is free it is closed already. An id may not
// hold or wait on the same path twice.
func (m *Manager) Acquire(path, id string) (<-chan struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pl := m.paths[path]
	if pl == nil {
		pl = &pathLock{}
		m.paths[path] = pl
	}

	if pl.holder == "" && len(pl.waiters) == 0 {
		pl.holder = id
		ready := make(chan struct{})
		close(ready)
		return ready, nil
	}

	if pl.holder == id {
		return nil, fmt.Errorf("action %s already holds lock on %s", id, path)
	}
	for _, w := range pl.waiters {
		if w.id == id {
			return nil, fmt.Errorf("action %s already queued for %s", id, path)
		}
	}

	ready := make(chan struct{})
	pl.waiters = append(pl.waiters, waiter{id: id, ready: ready})
	return ready, nil
}

// Release gives up the lock held by id and hands it to the next waiter
// in arrival order. Releasing a lock id does not hold is a no-op.
func (m *Manager) Release(path, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release(path, id)
}

// Abandon withdraws id from path entirely: if id is the holder the lock
// is released, if id is still queued its reservation is removed. Used
// when a waiting action times out or the session is aborted.
func (m *Manager) Abandon(path, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pl := m.paths[path]
	if pl == nil {
		return
	}
	if pl.holder == id {
		m.release(path, id)
		return
	}
	for i, w := range pl.waiters {
		if w.id == id {
			pl.waiters = append(pl.waiters[:i], pl.waiters[i+1:]...)
			break
		}
	}
	m.cleanup(path, pl)
}

// Holder returns the current holder of path, if any.
func (m *Manager) Holder(path string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pl := m.paths[path]
	if pl == nil || pl.holder == "" {
		return "", false
	}
	return pl.holder, true
}

// release assumes m.mu is held.
func (m *Manager) release(path, id string) {
	pl := m.paths[path]
	if pl == nil || pl.holder != id {
		return
	}
	pl.holder = ""
	if len(pl.waiters) > 0 {
		next := pl.waiters[0]
		pl.waiters = pl.waiters[1:]
		pl.holder = next.id
		close(next.ready)
	}
	m.cleanup(path, pl)
}

// cleanup assumes m.mu is held.
func (m *Manager) cleanup(path string, pl *pathLock) {
	if pl.holder == "" && len(pl.waiters) == 0 {
		delete(m.paths, path)
	}
}
