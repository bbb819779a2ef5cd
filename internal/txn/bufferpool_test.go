package txn

import (
	"path/filepath"
	"testing"

	"coursedb/internal/catalog"
	"coursedb/internal/dberr"
	"coursedb/internal/heap"
	"coursedb/internal/primitives"
	"coursedb/internal/tuple"
	"coursedb/internal/types"
	"coursedb/internal/walog"
)

func intSchema() *tuple.Description {
	return tuple.NewDescription(tuple.ColumnDesc{Name: "v", Kind: types.IntKind})
}

func newTestPool(t *testing.T, capacity int) (*BufferPool, *catalog.Registry) {
	t.Helper()

	logPath := filepath.Join(t.TempDir(), "wal.log")
	logFile, err := walog.OpenFileLogFile(logPath)
	if err != nil {
		t.Fatalf("OpenFileLogFile: %v", err)
	}
	t.Cleanup(func() { _ = logFile.Close() })

	reg := catalog.NewRegistry()
	pool := NewBufferPool(capacity, reg, logFile)
	return pool, reg
}

func newTestHeapFile(t *testing.T, name string) *heap.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := heap.Open(path, intSchema())
	if err != nil {
		t.Fatalf("heap.Open: %v", err)
	}
	return f
}

// S1: insert+scan. tid1 inserts IntField(7), IntField(11), commits. A new
// tid2 scan yields exactly [7, 11] in that order.
func TestBufferPool_InsertCommitThenScan(t *testing.T) {
	pool, reg := newTestPool(t, 10)
	file := newTestHeapFile(t, "a.heap")
	reg.Add(file)
	ctrl := NewController(pool)

	tid1 := ctrl.Begin()
	for _, v := range []int32{7, 11} {
		tup := tuple.NewTuple(intSchema())
		_ = tup.SetField(0, types.IntField{Value: v})
		if err := pool.InsertTuple(tid1, file.ID(), tup); err != nil {
			t.Fatalf("InsertTuple: %v", err)
		}
	}
	if err := ctrl.Commit(tid1); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tid2 := ctrl.Begin()
	it := file.Iterator(tid2, pool)
	if err := it.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer it.Close()

	var got []int32
	for {
		has, err := it.HasNext()
		if err != nil {
			t.Fatalf("HasNext: %v", err)
		}
		if !has {
			break
		}
		tup, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		f, _ := tup.Field(0)
		got = append(got, f.(types.IntField).Value)
	}
	_ = ctrl.Commit(tid2)

	want := []int32{7, 11}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// S2: numPages=1. tid1 reads page 0 of file A; tid1 reads page 0 of file
// B -> eviction of A's clean page succeeds; resident set = {(B,0)}.
func TestBufferPool_EvictionUnderWritePressure(t *testing.T) {
	pool, reg := newTestPool(t, 1)
	fileA := newTestHeapFile(t, "a.heap")
	fileB := newTestHeapFile(t, "b.heap")
	reg.Add(fileA)
	reg.Add(fileB)

	tid := primitives.NewTransactionID()
	pidA := primitives.PageID{TableID: fileA.ID(), PageNumber: 0}
	pidB := primitives.PageID{TableID: fileB.ID(), PageNumber: 0}

	// Neither file has a page 0 on disk yet; ReadPage past EOF returns a
	// blank page, as this direct read of A checks, so GetPage can read both.
	if _, err := fileA.ReadPage(pidA); err != nil {
		t.Fatalf("prime A: %v", err)
	}

	if _, err := pool.GetPage(tid, pidA, heap.ReadOnly); err != nil {
		t.Fatalf("GetPage A: %v", err)
	}
	if _, err := pool.GetPage(tid, pidB, heap.ReadOnly); err != nil {
		t.Fatalf("GetPage B: %v", err)
	}

	pool.mu.Lock()
	_, aResident := pool.resident[pidA]
	_, bResident := pool.resident[pidB]
	residentCount := len(pool.resident)
	pool.mu.Unlock()

	if aResident || !bResident || residentCount != 1 {
		t.Fatalf("expected only B resident after eviction, got A=%v B=%v count=%d", aResident, bResident, residentCount)
	}
}

// S3: numPages=1. tid1 inserts into a new page of file A (dirty,
// uncommitted). A concurrent tid2 trying to read page 0 of file B must
// see DbException("evict failed"). The only disk write to A is the zeroed
// page the insert appended, which the final check relies on.
func TestBufferPool_NoStealBlocksEviction(t *testing.T) {
	pool, reg := newTestPool(t, 1)
	fileA := newTestHeapFile(t, "a.heap")
	fileB := newTestHeapFile(t, "b.heap")
	reg.Add(fileA)
	reg.Add(fileB)

	tid1 := primitives.NewTransactionID()
	tup := tuple.NewTuple(intSchema())
	_ = tup.SetField(0, types.IntField{Value: 42})
	if err := pool.InsertTuple(tid1, fileA.ID(), tup); err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}

	tid2 := primitives.NewTransactionID()
	pidB := primitives.PageID{TableID: fileB.ID(), PageNumber: 0}
	_, err := pool.GetPage(tid2, pidB, heap.ReadOnly)
	if err == nil {
		t.Fatal("expected eviction failure when the only resident page is dirty")
	}

	dbErr, ok := err.(*dberr.DBError)
	if !ok || dbErr.Code != dberr.CodeDbException {
		t.Fatalf("expected DbException, got %v", err)
	}

	if got := fileA.NumPages(); got == 0 {
		t.Fatal("expected file A to have grown from the insert's appended page")
	}
}

// P10 / S6: after TransactionComplete(tid, false), no page dirtied by tid
// is resident, and re-reading from disk yields the pre-insert contents.
func TestBufferPool_AbortRollsBack(t *testing.T) {
	pool, reg := newTestPool(t, 10)
	file := newTestHeapFile(t, "a.heap")
	reg.Add(file)
	ctrl := NewController(pool)

	tid := ctrl.Begin()
	tup := tuple.NewTuple(intSchema())
	_ = tup.SetField(0, types.IntField{Value: 5})
	if err := pool.InsertTuple(tid, file.ID(), tup); err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}

	pid := primitives.PageID{TableID: file.ID(), PageNumber: 0}

	if err := ctrl.Abort(tid); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	pool.mu.Lock()
	_, resident := pool.resident[pid]
	pool.mu.Unlock()
	if resident {
		t.Fatal("expected no dirty page resident after abort")
	}

	onDisk, err := file.ReadPage(pid)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	it := onDisk.Iterator()
	if it.HasNext() {
		t.Fatal("expected disk page to still be empty; insert must not have been written")
	}
}

// P7: |resident| <= numPages after every public operation returns.
func TestBufferPool_CapacityBound(t *testing.T) {
	pool, reg := newTestPool(t, 2)
	file := newTestHeapFile(t, "a.heap")
	reg.Add(file)
	tid := primitives.NewTransactionID()

	for pn := primitives.PageNumber(0); pn < 5; pn++ {
		pid := primitives.PageID{TableID: file.ID(), PageNumber: pn}
		if _, err := file.ReadPage(pid); err != nil {
			t.Fatalf("prime page %d: %v", pn, err)
		}
		if err := file.WritePage(heap.NewEmptyPage(pid, intSchema())); err != nil {
			t.Fatalf("write blank page %d: %v", pn, err)
		}
		if _, err := pool.GetPage(tid, pid, heap.ReadOnly); err != nil {
			t.Fatalf("GetPage %d: %v", pn, err)
		}

		pool.mu.Lock()
		count := len(pool.resident)
		pool.mu.Unlock()
		if count > 2 {
			t.Fatalf("resident count %d exceeds capacity 2 after page %d", count, pn)
		}
	}
}
