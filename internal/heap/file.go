package heap

import (
	"io"
	"os"
	"sync"

	"coursedb/internal/dberr"
	"coursedb/internal/primitives"
	"coursedb/internal/tuple"
)

// File is a heap-organized table backed by a single OS file: a pure
// concatenation of PageSize-byte pages, no header, no footer. Grounded on
// the teacher's pkg/storage/heap/file.go (BaseFile embedding, seek+read/
// write page access, EOF-as-blank-page) and pkg/storage/page/commons.go.
type File struct {
	mu   sync.Mutex
	f    *os.File
	id   primitives.TableID
	desc *tuple.Description
}

// Open opens (creating if absent) the heap file at path for the given
// schema. The table id is the FNV hash of path's absolute form.
func Open(path string, desc *tuple.Description) (*File, error) {
	id, err := primitives.TableIDFromPath(path)
	if err != nil {
		return nil, dberr.Wrap(err, dberr.CodeDbException, "Open", "HeapFile")
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, dberr.Wrap(err, dberr.CodeDbException, "Open", "HeapFile")
	}

	return &File{f: f, id: id, desc: desc}, nil
}

func (hf *File) ID() primitives.TableID       { return hf.id }
func (hf *File) TupleDesc() *tuple.Description { return hf.desc }

// NumPages returns ceil(fileLength / PageSize).
func (hf *File) NumPages() primitives.PageNumber {
	hf.mu.Lock()
	defer hf.mu.Unlock()
	return hf.numPagesLocked()
}

func (hf *File) numPagesLocked() primitives.PageNumber {
	info, err := hf.f.Stat()
	if err != nil {
		return 0
	}
	size := info.Size()
	return primitives.PageNumber((size + PageSize - 1) / PageSize)
}

// ReadPage seeks to pageNumber*PageSize and reads one page, padding with
// zeros and returning a blank page if the read runs past EOF.
func (hf *File) ReadPage(pid primitives.PageID) (*Page, error) {
	if pid.TableID != hf.id {
		return nil, dberr.DbException("HeapFile", "page id table mismatch")
	}

	hf.mu.Lock()
	defer hf.mu.Unlock()

	buf := make([]byte, PageSize)
	offset := int64(pid.PageNumber) * PageSize

	n, err := hf.f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, dberr.Wrap(err, dberr.CodeDbException, "ReadPage", "HeapFile")
	}
	_ = n // remaining bytes beyond n are already zero in buf

	return NewPage(pid, buf, hf.desc)
}

// WritePage seeks to page.id.pageNumber*PageSize and writes exactly
// PageSize bytes.
func (hf *File) WritePage(p *Page) error {
	hf.mu.Lock()
	defer hf.mu.Unlock()

	offset := int64(p.ID().PageNumber) * PageSize
	if _, err := hf.f.WriteAt(p.GetPageData(), offset); err != nil {
		return dberr.Wrap(err, dberr.CodeDbException, "WritePage", "HeapFile")
	}
	return nil
}

// appendBlankPageLocked grows the file by one zeroed page and returns its
// PageID. Must be called with hf.mu held.
func (hf *File) appendBlankPageLocked() (primitives.PageID, error) {
	pageNo := hf.numPagesLocked()
	offset := int64(pageNo) * PageSize
	if _, err := hf.f.WriteAt(make([]byte, PageSize), offset); err != nil {
		return primitives.PageID{}, dberr.Wrap(err, dberr.CodeDbException, "InsertTuple", "HeapFile")
	}
	return primitives.PageID{TableID: hf.id, PageNumber: pageNo}, nil
}

// InsertTuple scans pages 0..numPages-1 through pf for the first one with
// free space; if none has space, appends a zeroed page and inserts there.
// Per spec §4.C, returns the single mutated page.
func (hf *File) InsertTuple(tid primitives.TransactionID, pf PageFetcher, t *tuple.Tuple) ([]*Page, error) {
	if !t.Desc.Equals(hf.desc) {
		return nil, dberr.DbException("HeapFile", "tuple schema does not match file schema")
	}

	numPages := hf.NumPages()
	for pn := primitives.PageNumber(0); pn < numPages; pn++ {
		pid := primitives.PageID{TableID: hf.id, PageNumber: pn}
		page, err := pf.GetPage(tid, pid, ReadWrite)
		if err != nil {
			return nil, err
		}
		if page.GetNumEmptySlots() > 0 {
			if err := page.InsertTuple(t); err != nil {
				return nil, err
			}
			return []*Page{page}, nil
		}
	}

	hf.mu.Lock()
	newPid, err := hf.appendBlankPageLocked()
	hf.mu.Unlock()
	if err != nil {
		return nil, err
	}

	page, err := pf.GetPage(tid, newPid, ReadWrite)
	if err != nil {
		return nil, err
	}
	if err := page.InsertTuple(t); err != nil {
		return nil, err
	}
	return []*Page{page}, nil
}

// DeleteTuple fetches t.RecordID.PageID with ReadWrite and deletes t there.
func (hf *File) DeleteTuple(tid primitives.TransactionID, pf PageFetcher, t *tuple.Tuple) ([]*Page, error) {
	if !t.HasRecordID() {
		return nil, dberr.DbException("HeapFile", "tuple has no record id")
	}

	page, err := pf.GetPage(tid, t.RecordID.PageID, ReadWrite)
	if err != nil {
		return nil, err
	}
	if err := page.DeleteTuple(t); err != nil {
		return nil, err
	}
	return []*Page{page}, nil
}

// Iterator returns a DbFileIterator walking pages 0..NumPages()-1 under
// ReadOnly permission, yielding tuples in slot order.
func (hf *File) Iterator(tid primitives.TransactionID, pf PageFetcher) DbFileIterator {
	return &fileIterator{hf: hf, tid: tid, pf: pf}
}

type fileIterator struct {
	hf  *File
	tid primitives.TransactionID
	pf  PageFetcher

	opened    bool
	closed    bool
	pageNo    primitives.PageNumber
	pageIter  *TupleIterator
	pending   *tuple.Tuple
	havePend  bool
}

func (it *fileIterator) Open() error {
	it.opened = true
	it.closed = false
	it.pageNo = 0
	it.pageIter = nil
	it.havePend = false
	return nil
}

func (it *fileIterator) Rewind() error {
	return it.Open()
}

func (it *fileIterator) Close() {
	it.closed = true
	it.opened = false
	it.pageIter = nil
	it.havePend = false
}

// advanceToNonEmptyPage fetches the next non-empty page iterator, or returns false once
// all pages have been scanned.
func (it *fileIterator) advanceToNonEmptyPage() (bool, error) {
	numPages := it.hf.NumPages()
	for it.pageNo < numPages {
		pid := primitives.PageID{TableID: it.hf.id, PageNumber: it.pageNo}
		page, err := it.pf.GetPage(it.tid, pid, ReadOnly)
		if err != nil {
			return false, err
		}
		iter := page.Iterator()
		it.pageNo++
		if iter.HasNext() {
			it.pageIter = iter
			return true, nil
		}
	}
	return false, nil
}

func (it *fileIterator) HasNext() (bool, error) {
	if !it.opened || it.closed {
		return false, nil
	}
	if it.havePend {
		return true, nil
	}

	for {
		if it.pageIter != nil && it.pageIter.HasNext() {
			t, err := it.pageIter.Next()
			if err != nil {
				return false, err
			}
			it.pending = t
			it.havePend = true
			return true, nil
		}

		ok, err := it.advanceToNonEmptyPage()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
}

func (it *fileIterator) Next() (*tuple.Tuple, error) {
	if it.closed {
		return nil, dberr.NoElement("HeapFile.Iterator")
	}
	if !it.opened {
		if err := it.Open(); err != nil {
			return nil, err
		}
	}

	if it.havePend {
		t := it.pending
		it.pending = nil
		it.havePend = false
		return t, nil
	}

	has, err := it.HasNext()
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, dberr.NoElement("HeapFile.Iterator")
	}

	t := it.pending
	it.pending = nil
	it.havePend = false
	return t, nil
}
