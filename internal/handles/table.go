// Package handles implements FileHandleTable from spec.md §4.2: allocation
// of the lowest unused non-negative integer handle, bound to an arbitrary
// binding value (a *store.StreamingStore, or a control-file marker).
package handles

import "sync"

// Table allocates and tracks integer file handles. Allocate/Release are
// atomic with respect to each other (spec.md §4.2).
type Table struct {
	mu       sync.Mutex
	bindings map[int]any
}

// New returns an empty handle table.
func New() *Table {
	return &Table{bindings: make(map[int]any)}
}

// Allocate binds binding to the smallest non-negative integer not
// currently in use and returns that handle id.
func (t *Table) Allocate(binding any) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := 0
	for {
		if _, taken := t.bindings[id]; !taken {
			break
		}
		id++
	}
	t.bindings[id] = binding
	return id
}

// Lookup returns the binding for id and whether it exists.
func (t *Table) Lookup(id int) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.bindings[id]
	return b, ok
}

// Release frees id, making it available for reuse by a later Allocate.
func (t *Table) Release(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.bindings, id)
}

// Len reports how many handles are currently allocated (test/diagnostic use).
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.bindings)
}
