package lock

import (
	"errors"
	"sync"
	"testing"
	"time"

	"coursedb/internal/dberr"
	"coursedb/internal/primitives"
)

func testPageID() primitives.PageID {
	return primitives.PageID{TableID: 1, PageNumber: 0}
}

func TestManager_SharedLocksCoexist(t *testing.T) {
	m := NewManager()
	pid := testPageID()
	t1, t2 := primitives.NewTransactionID(), primitives.NewTransactionID()

	if err := m.AcquireLock(t1, pid, Shared); err != nil {
		t.Fatalf("t1 acquire shared: %v", err)
	}
	if err := m.AcquireLock(t2, pid, Shared); err != nil {
		t.Fatalf("t2 acquire shared: %v", err)
	}

	if !m.HoldsLock(t1, pid) || !m.HoldsLock(t2, pid) {
		t.Fatal("expected both transactions to hold the shared lock")
	}
}

// P9 / S5: a transaction holding SHARED on P as the sole holder can obtain
// EXCLUSIVE on P without blocking.
func TestManager_UpgradeSoleSharedHolder(t *testing.T) {
	m := NewManager()
	pid := testPageID()
	tid := primitives.NewTransactionID()

	if err := m.AcquireLock(tid, pid, Shared); err != nil {
		t.Fatalf("acquire shared: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- m.AcquireLock(tid, pid, Exclusive) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("upgrade failed: %v", err)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("upgrade blocked; expected immediate grant for sole shared holder")
	}
}

func TestManager_ExclusiveBlocksOtherExclusive(t *testing.T) {
	m := NewManager()
	pid := testPageID()
	t1, t2 := primitives.NewTransactionID(), primitives.NewTransactionID()

	if err := m.AcquireLock(t1, pid, Exclusive); err != nil {
		t.Fatalf("t1 acquire exclusive: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- m.AcquireLock(t2, pid, Exclusive) }()

	select {
	case <-done:
		t.Fatal("expected t2's acquire to block while t1 holds exclusive")
	case <-time.After(100 * time.Millisecond):
	}

	m.ReleaseLock(t1, pid, Exclusive)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("t2 acquire after release: %v", err)
		}
	case <-time.After(2500 * time.Millisecond):
		t.Fatal("t2 never acquired after t1 released")
	}
}

// S4: two transactions each hold one page exclusively and request the
// other's page; within the timeout window one must observe
// TransactionAborted. AcquireLock itself never releases the caller's own
// locks on abort (that is transactionComplete's job), so each goroutine
// releases its own originally-held page once it sees the abort, letting
// the survivor's still-blocked acquire proceed.
func TestManager_DeadlockResolvedByTimeout(t *testing.T) {
	m := NewManager()
	p, q := primitives.PageID{TableID: 1, PageNumber: 0}, primitives.PageID{TableID: 1, PageNumber: 1}
	t1, t2 := primitives.NewTransactionID(), primitives.NewTransactionID()

	if err := m.AcquireLock(t1, p, Exclusive); err != nil {
		t.Fatalf("t1 lock P: %v", err)
	}
	if err := m.AcquireLock(t2, q, Exclusive); err != nil {
		t.Fatalf("t2 lock Q: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0] = m.AcquireLock(t1, q, Exclusive)
		if results[0] != nil {
			// t1 aborted: mirror transactionComplete(t1, false) releasing
			// every lock t1 held, so t2's blocked acquire of p can proceed.
			m.ReleaseLock(t1, p, Exclusive)
		}
	}()
	go func() {
		defer wg.Done()
		results[1] = m.AcquireLock(t2, p, Exclusive)
		if results[1] != nil {
			m.ReleaseLock(t2, q, Exclusive)
		}
	}()

	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-time.After(3 * time.Second):
		t.Fatal("deadlock not resolved within 3s")
	}

	abortedCount := 0
	for _, err := range results {
		if err != nil {
			var dbErr *dberr.DBError
			if !errors.As(err, &dbErr) || dbErr.Code != dberr.CodeTransactionAborted {
				t.Fatalf("unexpected error: %v", err)
			}
			abortedCount++
		}
	}

	if abortedCount != 1 {
		t.Fatalf("expected exactly one TransactionAborted, got %d", abortedCount)
	}
}

func TestManager_ReleaseIsIdempotent(t *testing.T) {
	m := NewManager()
	pid := testPageID()
	tid := primitives.NewTransactionID()

	m.ReleaseLock(tid, pid, Shared)
	m.ReleaseLock(tid, pid, Shared)

	if m.HoldsLock(tid, pid) {
		t.Fatal("expected no lock held after release of an unheld lock")
	}
}

func TestManager_PagesHeldBy(t *testing.T) {
	m := NewManager()
	p1 := primitives.PageID{TableID: 1, PageNumber: 0}
	p2 := primitives.PageID{TableID: 1, PageNumber: 1}
	tid := primitives.NewTransactionID()

	_ = m.AcquireLock(tid, p1, Shared)
	_ = m.AcquireLock(tid, p2, Exclusive)

	held := m.PagesHeldBy(tid)
	if len(held) != 2 {
		t.Fatalf("PagesHeldBy = %v, want 2 entries", held)
	}
}
