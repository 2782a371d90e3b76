// Package resolvertest provides an in-memory MediaResolver used by
// StreamingStore and ResultSet tests, standing in for the out-of-scope
// real search API the way rclone's backend tests stand up an
// httptest.Server rather than hit a real cloud provider.
package resolvertest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/the-shelter/ytfs/internal/config"
	"github.com/the-shelter/ytfs/internal/resolver"
)

// Fake is a MediaResolver backed by an in-memory page list and per-item
// resolution table, both settable by tests.
type Fake struct {
	mu sync.Mutex

	// Pages, keyed by query, in fetch order; Search returns the page whose
	// index is the cursor ("" for the first page, then "1", "2", ...).
	Pages map[string][]resolver.SearchPage

	// Resolutions, keyed by item ID.
	Resolutions map[string]resolver.Resolution

	// ResolveErr, keyed by item ID, forces Resolve to fail for that item.
	ResolveErr map[string]error

	searchCalls  atomic.Int64
	resolveCalls atomic.Int64
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		Pages:       make(map[string][]resolver.SearchPage),
		Resolutions: make(map[string]resolver.Resolution),
		ResolveErr:  make(map[string]error),
	}
}

// SearchCalls reports how many times Search has been invoked.
func (f *Fake) SearchCalls() int64 { return f.searchCalls.Load() }

// ResolveCalls reports how many times Resolve has been invoked (used by
// StreamingStore's obtainInfo-is-idempotent test).
func (f *Fake) ResolveCalls() int64 { return f.resolveCalls.Load() }

// Search implements resolver.MediaResolver.
func (f *Fake) Search(_ context.Context, query string, cursor string, _ int) (resolver.SearchPage, error) {
	f.searchCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()

	pages := f.Pages[query]
	idx := 0
	if cursor != "" {
		if _, err := fmt.Sscanf(cursor, "%d", &idx); err != nil {
			return resolver.SearchPage{}, fmt.Errorf("bad cursor %q", cursor)
		}
	}
	if idx < 0 || idx >= len(pages) {
		return resolver.SearchPage{}, nil
	}
	return pages[idx], nil
}

// Resolve implements resolver.MediaResolver.
func (f *Fake) Resolve(_ context.Context, itemID string, _ config.MediaMode) (resolver.Resolution, error) {
	f.resolveCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.ResolveErr[itemID]; ok {
		return resolver.Resolution{}, err
	}
	res, ok := f.Resolutions[itemID]
	if !ok {
		return resolver.Resolution{}, resolver.ErrNotAvailable
	}
	return res, nil
}

var _ resolver.MediaResolver = (*Fake)(nil)
