// Package heap implements the on-disk heap page and heap file formats: a
// fixed-size, bitmap-headed slotted page and the contiguous file of such
// pages that backs a table. Grounded on the teacher's pkg/storage/heap,
// with the slot-pointer body format replaced by the spec's bitmap-header +
// fixed-width body layout.
package heap

import (
	"bytes"
	"sync"

	"coursedb/internal/dberr"
	"coursedb/internal/primitives"
	"coursedb/internal/tuple"
)

// PageSize is the page width in bytes. It is a constant: no override is
// provided, for tests or otherwise.
const PageSize = 4096

// Permission is the access mode a caller requests a page under.
type Permission int

const (
	ReadOnly Permission = iota
	ReadWrite
)

// PageFetcher is the capability a DbFile needs to route page access through
// the buffer pool's cache and locking rather than reading the file
// directly. BufferPool implements this interface; passing it explicitly
// (instead of reaching for a package-level singleton, as the Java original
// does via Database.getBufferPool()) keeps heap free of a dependency on the
// txn package while still letting insert/delete/iterate go through the
// pool.
type PageFetcher interface {
	GetPage(tid primitives.TransactionID, pid primitives.PageID, perm Permission) (*Page, error)
}

// Page is a single fixed-size slotted page: a bitmap occupancy header
// followed by numSlots fixed-width tuple slots.
//
// numSlots = floor((PageSize*8) / (tupleWidth*8 + 1)), headerBytes =
// ceil(numSlots/8); bit i of the header (LSB-first within its byte) is set
// iff slot i is occupied.
type Page struct {
	mu sync.RWMutex

	id         primitives.PageID
	desc       *tuple.Description
	numSlots   int
	headerSize int
	header     []byte // headerSize bytes; bit i = occupancy of slot i
	tuples     []*tuple.Tuple

	dirtyBy     *primitives.TransactionID
	beforeImage []byte
}

// NumSlots computes the slot capacity of a page for the given tuple width,
// per spec §3.
func NumSlots(tupleWidth int) int {
	if tupleWidth <= 0 {
		return 0
	}
	return (PageSize * 8) / (tupleWidth*8 + 1)
}

func headerBytes(numSlots int) int {
	return (numSlots + 7) / 8
}

// NewEmptyPage allocates a zeroed page (no occupied slots) for the given id
// and schema.
func NewEmptyPage(id primitives.PageID, desc *tuple.Description) *Page {
	p, _ := NewPage(id, make([]byte, PageSize), desc)
	return p
}

// NewPage decodes a Page from a raw PageSize-byte buffer per the bitmap
// header format.
func NewPage(id primitives.PageID, data []byte, desc *tuple.Description) (*Page, error) {
	if len(data) != PageSize {
		return nil, dberr.DbException("HeapPage", "page data must be exactly PageSize bytes")
	}

	numSlots := NumSlots(desc.Width())
	hdrSize := headerBytes(numSlots)

	p := &Page{
		id:          id,
		desc:        desc,
		numSlots:    numSlots,
		headerSize:  hdrSize,
		header:      append([]byte(nil), data[:hdrSize]...),
		tuples:      make([]*tuple.Tuple, numSlots),
		beforeImage: append([]byte(nil), data...),
	}

	if err := p.decodeBody(data); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Page) slotOccupied(header []byte, slot int) bool {
	return header[slot/8]&(1<<(slot%8)) != 0
}

func setSlotBit(header []byte, slot int, occupied bool) {
	byteIdx, bit := slot/8, uint(slot%8)
	if occupied {
		header[byteIdx] |= 1 << bit
	} else {
		header[byteIdx] &^= 1 << bit
	}
}

func (p *Page) decodeBody(data []byte) error {
	tupleWidth := p.desc.Width()
	for slot := 0; slot < p.numSlots; slot++ {
		if !p.slotOccupied(p.header, slot) {
			continue
		}
		start := p.headerSize + slot*tupleWidth
		end := start + tupleWidth
		t, err := p.desc.Parse(bytes.NewReader(data[start:end]))
		if err != nil {
			return dberr.Wrap(err, dberr.CodeDbException, "decode", "HeapPage")
		}
		t.SetRecordID(tuple.RecordID{PageID: p.id, Slot: primitives.SlotID(slot)})
		p.tuples[slot] = t
	}
	return nil
}

// ID returns this page's identifier.
func (p *Page) ID() primitives.PageID {
	return p.id
}

// GetNumEmptySlots returns the count of unoccupied slots.
func (p *Page) GetNumEmptySlots() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.numEmptySlotsLocked()
}

func (p *Page) numEmptySlotsLocked() int {
	empty := 0
	for slot := 0; slot < p.numSlots; slot++ {
		if !p.slotOccupied(p.header, slot) {
			empty++
		}
	}
	return empty
}

// IsDirty returns the transaction that last dirtied this page, or nil if
// clean.
func (p *Page) IsDirty() *primitives.TransactionID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dirtyBy
}

// MarkDirty sets or clears this page's dirty mark.
func (p *Page) MarkDirty(dirty bool, tid primitives.TransactionID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if dirty {
		p.dirtyBy = &tid
	} else {
		p.dirtyBy = nil
	}
}

// InsertTuple places t into the lowest-indexed empty slot, per spec §4.B.
func (p *Page) InsertTuple(t *tuple.Tuple) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !t.Desc.Equals(p.desc) {
		return dberr.DbException("HeapPage", "tuple schema does not match page schema")
	}

	slot := -1
	for i := 0; i < p.numSlots; i++ {
		if !p.slotOccupied(p.header, i) {
			slot = i
			break
		}
	}
	if slot == -1 {
		return dberr.DbException("HeapPage", "no empty slot available")
	}

	setSlotBit(p.header, slot, true)
	p.tuples[slot] = t
	t.SetRecordID(tuple.RecordID{PageID: p.id, Slot: primitives.SlotID(slot)})
	return nil
}

// DeleteTuple clears t's slot. Fails if t is not recorded as living on this
// page or its slot is already empty.
func (p *Page) DeleteTuple(t *tuple.Tuple) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !t.HasRecordID() || t.RecordID.PageID != p.id {
		return dberr.DbException("HeapPage", "tuple is not on this page")
	}

	slot := int(t.RecordID.Slot)
	if slot < 0 || slot >= p.numSlots || !p.slotOccupied(p.header, slot) {
		return dberr.DbException("HeapPage", "tuple slot is already empty")
	}

	setSlotBit(p.header, slot, false)
	p.tuples[slot] = nil
	t.ClearRecordID()
	return nil
}

// Iterator returns tuples in ascending slot order. Not restartable: a new
// call to Iterator starts a fresh pass.
func (p *Page) Iterator() *TupleIterator {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*tuple.Tuple, 0, p.numSlots-p.numEmptySlotsLocked())
	for _, t := range p.tuples {
		if t != nil {
			out = append(out, t)
		}
	}
	return &TupleIterator{tuples: out}
}

// TupleIterator walks a fixed snapshot of a page's occupied tuples.
type TupleIterator struct {
	tuples []*tuple.Tuple
	pos    int
}

func (it *TupleIterator) HasNext() bool {
	return it.pos < len(it.tuples)
}

func (it *TupleIterator) Next() (*tuple.Tuple, error) {
	if !it.HasNext() {
		return nil, dberr.NoElement("HeapPage.TupleIterator")
	}
	t := it.tuples[it.pos]
	it.pos++
	return t, nil
}

// GetPageData serializes the page back to a PageSize-byte buffer: the
// bitmap header (dropping any in-memory tombstones not reflected in it)
// followed by each slot's bytes (occupied slots get current contents,
// vacant slots are zeroed).
func (p *Page) GetPageData() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]byte, PageSize)
	copy(out, p.header)

	tupleWidth := p.desc.Width()
	for slot := 0; slot < p.numSlots; slot++ {
		if !p.slotOccupied(p.header, slot) || p.tuples[slot] == nil {
			continue
		}
		start := p.headerSize + slot*tupleWidth
		buf := bytes.NewBuffer(out[start:start])
		_ = p.tuples[slot].Serialize(buf)
		copy(out[start:start+tupleWidth], buf.Bytes())
	}
	return out
}

// GetBeforeImage returns a page reflecting the byte image captured at load
// time or at the last flush.
func (p *Page) GetBeforeImage() *Page {
	p.mu.RLock()
	before := append([]byte(nil), p.beforeImage...)
	p.mu.RUnlock()

	pg, _ := NewPage(p.id, before, p.desc)
	return pg
}

// SetBeforeImage captures the page's current serialized bytes as its new
// before-image. Called after a flush, and on commit also just before it.
func (p *Page) SetBeforeImage() {
	data := p.GetPageData()
	p.mu.Lock()
	p.beforeImage = data
	p.mu.Unlock()
}
