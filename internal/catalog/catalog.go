// Package catalog defines the table-id-to-file lookup contract the kernel
// depends on (spec §4.G) and provides a minimal in-memory implementation
// so the kernel is independently testable. Table registration itself is
// out of scope.
package catalog

import (
	"sync"

	"coursedb/internal/dberr"
	"coursedb/internal/heap"
	"coursedb/internal/primitives"
)

// Catalog resolves a table id to its backing DbFile.
type Catalog interface {
	DatabaseFile(tableID primitives.TableID) (heap.DbFile, error)
}

// Registry is a minimal in-memory Catalog: a map populated by the test or
// application wiring code, not by any SQL DDL (DDL is out of scope).
type Registry struct {
	mu    sync.RWMutex
	files map[primitives.TableID]heap.DbFile
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{files: make(map[primitives.TableID]heap.DbFile)}
}

// Add registers a DbFile under its own id.
func (r *Registry) Add(f heap.DbFile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[f.ID()] = f
}

// DatabaseFile implements Catalog.
func (r *Registry) DatabaseFile(tableID primitives.TableID) (heap.DbFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.files[tableID]
	if !ok {
		return nil, dberr.DbException("Catalog", "no file registered for table id")
	}
	return f, nil
}
