// Package lock implements the per-page shared/exclusive lock manager with
// randomized-timeout deadlock avoidance (spec §4.D). Structural
// decomposition (lock table, wait queue) is grounded on the teacher's
// pkg/concurrency/lock/lock.go; the wait/wake mechanism itself follows the
// original SimpleDB LockManager.parkTransaction (a single intrinsic
// monitor, condition wait with a per-attempt uniform-random timeout in
// [1000,2000)ms) rather than the teacher's exponential-backoff
// dependency-graph scheme, per spec §4.D/§9.
package lock

import (
	"math/rand"
	"sync"
	"time"

	"coursedb/internal/dberr"
	"coursedb/internal/primitives"
)

// Mode is a lock's access mode.
type Mode int

const (
	Shared Mode = iota
	Exclusive
)

// pageState tracks current holders of one page's lock.
type pageState struct {
	shared    map[primitives.TransactionID]bool
	exclusive *primitives.TransactionID
}

func newPageState() *pageState {
	return &pageState{shared: make(map[primitives.TransactionID]bool)}
}

// Manager is the engine-wide lock table. All public methods, and the
// internal wait itself, hold a single mutex guarding a single
// sync.Cond — the Go analogue of the original's intrinsic-monitor
// wait()/notifyAll().
type Manager struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pages   map[primitives.PageID]*pageState
	waiters map[primitives.TransactionID]bool
	rng     *rand.Rand
	rngMu   sync.Mutex
}

// NewManager constructs an empty lock table.
func NewManager() *Manager {
	m := &Manager{
		pages:   make(map[primitives.PageID]*pageState),
		waiters: make(map[primitives.TransactionID]bool),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *Manager) randomTimeout() time.Duration {
	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	return time.Duration(1000+m.rng.Intn(1000)) * time.Millisecond
}

// AcquireLock blocks the calling goroutine until tid is granted mode on
// pid, or aborts with a TransactionAborted DBError if a wait exceeds its
// randomized timeout budget.
func (m *Manager) AcquireLock(tid primitives.TransactionID, pid primitives.PageID, mode Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		if m.tryGrantLocked(tid, pid, mode) {
			return nil
		}

		timeout := m.randomTimeout()
		if err := m.waitLocked(tid, timeout); err != nil {
			return err
		}
	}
}

// waitLocked parks the caller on the condition variable for at most
// timeout, measuring elapsed wall time to decide whether to abort. Must be
// called with m.mu held; releases it while parked, per sync.Cond.
func (m *Manager) waitLocked(tid primitives.TransactionID, timeout time.Duration) error {
	m.waiters[tid] = true
	defer delete(m.waiters, tid)

	deadline := time.Now().Add(timeout)
	done := make(chan struct{})

	go func() {
		select {
		case <-time.After(timeout):
			m.mu.Lock()
			m.cond.Broadcast()
			m.mu.Unlock()
		case <-done:
		}
	}()

	m.cond.Wait()
	close(done)

	if time.Now().After(deadline) || time.Now().Equal(deadline) {
		return dberr.TransactionAborted("AcquireLock")
	}
	return nil
}

// tryGrantLocked attempts to grant mode to tid on pid without blocking.
// Must be called with m.mu held.
func (m *Manager) tryGrantLocked(tid primitives.TransactionID, pid primitives.PageID, mode Mode) bool {
	ps, ok := m.pages[pid]
	if !ok {
		ps = newPageState()
		m.pages[pid] = ps
	}

	switch mode {
	case Shared:
		if ps.exclusive != nil && *ps.exclusive != tid {
			return false
		}
		ps.shared[tid] = true
		return true

	case Exclusive:
		if ps.exclusive != nil {
			return *ps.exclusive == tid
		}
		if len(ps.shared) > 1 {
			return false
		}
		if len(ps.shared) == 1 && !ps.shared[tid] {
			return false
		}
		// Either no holders, or tid is the sole shared holder: upgrade.
		tidCopy := tid
		ps.exclusive = &tidCopy
		return true
	}
	return false
}

// ReleaseLock removes tid's holder entry for pid in the given mode,
// removes tid from the waiters set, and wakes every waiter. Idempotent.
func (m *Manager) ReleaseLock(tid primitives.TransactionID, pid primitives.PageID, mode Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked(tid, pid, mode)
	delete(m.waiters, tid)
	m.cond.Broadcast()
}

func (m *Manager) releaseLocked(tid primitives.TransactionID, pid primitives.PageID, mode Mode) {
	ps, ok := m.pages[pid]
	if !ok {
		return
	}

	switch mode {
	case Shared:
		delete(ps.shared, tid)
	case Exclusive:
		if ps.exclusive != nil && *ps.exclusive == tid {
			ps.exclusive = nil
		}
	}

	if len(ps.shared) == 0 && ps.exclusive == nil {
		delete(m.pages, pid)
	}
}

// ReleaseAll releases every lock (both modes) tid holds on pid. Used by
// unsafeReleasePage.
func (m *Manager) ReleaseAll(tid primitives.TransactionID, pid primitives.PageID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked(tid, pid, Shared)
	m.releaseLocked(tid, pid, Exclusive)
	delete(m.waiters, tid)
	m.cond.Broadcast()
}

// HoldsLock reports whether tid holds either mode on pid.
func (m *Manager) HoldsLock(tid primitives.TransactionID, pid primitives.PageID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ps, ok := m.pages[pid]
	if !ok {
		return false
	}
	return ps.shared[tid] || (ps.exclusive != nil && *ps.exclusive == tid)
}

// PagesHeldBy returns every page on which tid currently holds a lock in
// either mode.
func (m *Manager) PagesHeldBy(tid primitives.TransactionID) []primitives.PageID {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []primitives.PageID
	for pid, ps := range m.pages {
		if ps.shared[tid] || (ps.exclusive != nil && *ps.exclusive == tid) {
			out = append(out, pid)
		}
	}
	return out
}
