// Package primitives defines the value-typed identifiers shared across the
// storage and transaction kernel: table ids, page ids, and transaction ids.
package primitives

import (
	"fmt"
	"hash/fnv"
	"path/filepath"
	"sync/atomic"
)

// TableID identifies a heap file across the engine. It is derived from the
// stable hash of the file's absolute path (spec §3/§6): two processes must
// agree on the path to agree on the id.
type TableID uint64

// PageNumber is a zero-based page offset within a table's backing file.
type PageNumber uint64

// SlotID is a zero-based slot offset within a page.
type SlotID uint32

// TableIDFromPath derives a TableID by hashing the absolute form of path
// with FNV-1a. Grounded on the teacher's Filepath.Hash (pkg/primitives).
func TableIDFromPath(path string) (TableID, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("resolve absolute path: %w", err)
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(abs))
	return TableID(h.Sum64()), nil
}

// PageID identifies a page within a table. Value-equal and hashable: a bare
// struct works as a map key directly, so no custom Equals/HashCode methods
// are needed (the teacher's interface-based PageID is collapsed into this
// concrete struct, since the closed heap-file-only domain needs no second
// implementation).
type PageID struct {
	TableID    TableID
	PageNumber PageNumber
}

// String renders the page id for logging and error messages.
func (p PageID) String() string {
	return fmt.Sprintf("page(%d,%d)", p.TableID, p.PageNumber)
}

// TransactionID is an opaque, monotonically increasing transaction
// identity. Grounded on the teacher's pkg/concurrency/transaction.
type TransactionID struct {
	id int64
}

var transactionCounter int64

// NewTransactionID allocates a fresh, process-unique transaction id.
func NewTransactionID() TransactionID {
	return TransactionID{id: atomic.AddInt64(&transactionCounter, 1)}
}

// ID returns the underlying counter value.
func (t TransactionID) ID() int64 {
	return t.id
}

func (t TransactionID) String() string {
	return fmt.Sprintf("txn(%d)", t.id)
}
