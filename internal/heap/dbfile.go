package heap

import (
	"coursedb/internal/primitives"
	"coursedb/internal/tuple"
)

// DbFile is the capability set every table storage backend must offer
// (spec §4.G). HeapFile is the only implementation in this kernel; a
// future B+-tree file would honor the same contract.
type DbFile interface {
	ID() primitives.TableID
	TupleDesc() *tuple.Description
	ReadPage(pid primitives.PageID) (*Page, error)
	WritePage(p *Page) error
	NumPages() primitives.PageNumber
	InsertTuple(tid primitives.TransactionID, pf PageFetcher, t *tuple.Tuple) ([]*Page, error)
	DeleteTuple(tid primitives.TransactionID, pf PageFetcher, t *tuple.Tuple) ([]*Page, error)
	Iterator(tid primitives.TransactionID, pf PageFetcher) DbFileIterator
}

// DbFileIterator is the operator-facing iterator contract from spec §6:
// hasNext is idempotent between Next calls, Next without a prior HasNext
// still returns a tuple if one exists, and Next fails with NoElement after
// Close.
type DbFileIterator interface {
	Open() error
	HasNext() (bool, error)
	Next() (*tuple.Tuple, error)
	Rewind() error
	Close()
}
