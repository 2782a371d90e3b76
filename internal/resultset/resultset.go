// Package resultset implements ResultSet and Mount (spec.md §4.3 and §3):
// the per-query page of results and the mount-wide query→ResultSet map.
// Locking discipline follows spec.md §5: the Mount map has one exclusive
// lock taken briefly for lookup/insert/remove; each ResultSet has its own
// lock covering page operations and its name→store map — the same
// single-lock-per-aggregate shape rclone's vfs.VFS uses for its root
// directory and per-directory entry maps.
package resultset

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/the-shelter/ytfs/internal/config"
	"github.com/the-shelter/ytfs/internal/errkind"
	"github.com/the-shelter/ytfs/internal/pathmodel"
	"github.com/the-shelter/ytfs/internal/resolver"
	"github.com/the-shelter/ytfs/internal/store"
)

// Direction names which way a control file pages a ResultSet.
type Direction int

const (
	Next Direction = iota
	Prev
)

// ControlBinding is what a control-file open() binds a FileHandle to: no
// store, just enough to know which ResultSet to page and which way.
type ControlBinding struct {
	Query     string
	Direction Direction
}

// extensionForMode is the fixed, mount-wide display extension a ResultSet
// appends to every bare result name at readdir; lookups strip it again
// with pathmodel.StripExtension. There is no per-name extension table.
func extensionForMode(mode config.MediaMode) string {
	switch mode {
	case config.VideoOnly, config.Muxed:
		return ".mp4"
	default:
		return ".m4a"
	}
}

// ResultSet holds the current page of results for one query: its
// pagination cursor and an insertion-ordered name→StreamingStore map
// (spec.md §4.3).
type ResultSet struct {
	mu sync.Mutex

	query    string
	resolver resolver.MediaResolver
	opts     config.Options
	client   *http.Client
	ext      string

	nextCursor string
	prevCursor string
	hasNext    bool
	hasPrev    bool

	names  []string // bare (extension-less) names, insertion order
	byName map[string]*store.StreamingStore
}

// New constructs an empty ResultSet; call Initialize before use.
func New(query string, res resolver.MediaResolver, opts config.Options, client *http.Client) *ResultSet {
	return &ResultSet{
		query:    query,
		resolver: res,
		opts:     opts,
		client:   client,
		ext:      extensionForMode(opts.Mode),
		byName:   make(map[string]*store.StreamingStore),
	}
}

func (rs *ResultSet) String() string { return rs.query }

// Initialize performs the first page fetch (spec.md §4.3). A first page
// with zero items fails with errkind.ErrNotFound per DESIGN.md's
// empty-first-page-on-mkdir decision.
func (rs *ResultSet) Initialize(ctx context.Context) error {
	page, err := rs.resolver.Search(ctx, rs.query, "", rs.opts.PageSize)
	if err != nil {
		return fmt.Errorf("%w: %v", errkind.ErrIO, err)
	}
	if len(page.Items) == 0 {
		return errkind.ErrNotFound
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.applyPage(page)
	return nil
}

// Page advances the cursor in the given direction, rebuilds the name→store
// map, and cleans up any store that was present on the previous page but
// absent from the new one (spec.md §4.3). Paging past the last page or
// before the first clamps without error.
func (rs *ResultSet) Page(ctx context.Context, dir Direction) error {
	rs.mu.Lock()
	var cursor string
	switch dir {
	case Next:
		if !rs.hasNext {
			rs.mu.Unlock()
			return nil
		}
		cursor = rs.nextCursor
	case Prev:
		if !rs.hasPrev {
			rs.mu.Unlock()
			return nil
		}
		cursor = rs.prevCursor
	}
	rs.mu.Unlock()

	page, err := rs.resolver.Search(ctx, rs.query, cursor, rs.opts.PageSize)
	if err != nil {
		return fmt.Errorf("%w: %v", errkind.ErrIO, err)
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	old := rs.byName
	rs.applyPage(page)
	for name, s := range old {
		if _, kept := rs.byName[name]; !kept {
			s.Cleanup()
		}
	}
	return nil
}

// applyPage replaces names/byName/cursor state from a freshly fetched
// page. Must be called with rs.mu held.
func (rs *ResultSet) applyPage(page resolver.SearchPage) {
	names := make([]string, 0, len(page.Items))
	byName := make(map[string]*store.StreamingStore, len(page.Items))
	seen := make(map[string]int)

	for _, item := range page.Items {
		base := sanitizeName(item.Title)
		name := base
		if n := seen[base]; n > 0 {
			name = fmt.Sprintf("%s (%d)", base, n+1)
		}
		seen[base]++

		names = append(names, name)
		byName[name] = store.New(item.ID, rs.opts.Mode, rs.resolver, rs.opts, rs.client)
	}

	rs.names = names
	rs.byName = byName
	rs.nextCursor = page.NextCursor
	rs.prevCursor = page.PrevCursor
	rs.hasNext = page.HasNext
	rs.hasPrev = page.HasPrev
}

// sanitizeName replaces path separators in a search-result title so it is
// always a legal single path segment.
func sanitizeName(title string) string {
	title = strings.ReplaceAll(title, "/", "_")
	if title == "" {
		return "untitled"
	}
	return title
}

// List returns the current page's display names (bare names decorated
// with the mount's extension) plus the two control files, in a stable
// order (spec.md §4.6 readdir(searchDir)).
func (rs *ResultSet) List() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]string, 0, len(rs.names)+2)
	for _, n := range rs.names {
		out = append(out, n+rs.ext)
	}
	out = append(out, pathmodel.ControlNext, pathmodel.ControlPrev)
	sort.Strings(out[:len(rs.names)])
	return out
}

// Lookup returns the binding for a non-control display name's bare form,
// or a ControlBinding for " next"/" prev". The ok result is false for any
// other name.
func (rs *ResultSet) Lookup(bareOrControlName string) (any, bool) {
	switch bareOrControlName {
	case pathmodel.ControlNext:
		return ControlBinding{Query: rs.query, Direction: Next}, true
	case pathmodel.ControlPrev:
		return ControlBinding{Query: rs.query, Direction: Prev}, true
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	s, ok := rs.byName[bareOrControlName]
	return s, ok
}

// Cleanup calls Cleanup on every owned store and clears the map (spec.md
// §4.3, invoked by rmdir/rename before a ResultSet is dropped).
func (rs *ResultSet) Cleanup() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, s := range rs.byName {
		s.Cleanup()
	}
	rs.names = nil
	rs.byName = make(map[string]*store.StreamingStore)
}

// Mount is the query→ResultSet map every filesystem operation shares
// (spec.md §3 "Mount state").
type Mount struct {
	mu       sync.Mutex
	sets     map[string]*ResultSet
	resolver resolver.MediaResolver
	opts     config.Options
	client   *http.Client
}

// NewMount constructs an empty Mount.
func NewMount(res resolver.MediaResolver, opts config.Options, client *http.Client) *Mount {
	return &Mount{
		sets:     make(map[string]*ResultSet),
		resolver: res,
		opts:     opts,
		client:   client,
	}
}

// Get returns the ResultSet bound to query, if any.
func (m *Mount) Get(query string) (*ResultSet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.sets[query]
	return rs, ok
}

// List returns every query currently mounted, for readdir(root).
func (m *Mount) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sets))
	for q := range m.sets {
		out = append(out, q)
	}
	sort.Strings(out)
	return out
}

// Create mkdir's a new query: builds and initializes a ResultSet, then
// publishes it. Fails with errkind.ErrExist if query is already mounted.
func (m *Mount) Create(ctx context.Context, query string) (*ResultSet, error) {
	m.mu.Lock()
	if _, exists := m.sets[query]; exists {
		m.mu.Unlock()
		return nil, errkind.ErrExist
	}
	m.mu.Unlock()

	rs := New(query, m.resolver, m.opts, m.client)
	if err := rs.Initialize(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if _, exists := m.sets[query]; exists {
		m.mu.Unlock()
		rs.Cleanup()
		return nil, errkind.ErrExist
	}
	m.sets[query] = rs
	m.mu.Unlock()
	return rs, nil
}

// Remove rmdir's query, returning the removed ResultSet so the caller can
// Cleanup it outside the Mount lock.
func (m *Mount) Remove(query string) (*ResultSet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.sets[query]
	if ok {
		delete(m.sets, query)
	}
	return rs, ok
}

// Rename replaces oldQuery's ResultSet with a freshly initialized one
// bound to newQuery (spec.md §4.6: "atomically creates new ResultSet and
// drops old" — the directory name is the search query, so renaming is a
// fresh search under the new name, not a relabeling of old results).
func (m *Mount) Rename(ctx context.Context, oldQuery, newQuery string) error {
	m.mu.Lock()
	old, ok := m.sets[oldQuery]
	if !ok {
		m.mu.Unlock()
		return errkind.ErrNotFound
	}
	if _, exists := m.sets[newQuery]; exists {
		m.mu.Unlock()
		return errkind.ErrExist
	}
	m.mu.Unlock()

	fresh := New(newQuery, m.resolver, m.opts, m.client)
	if err := fresh.Initialize(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	if _, exists := m.sets[newQuery]; exists {
		m.mu.Unlock()
		fresh.Cleanup()
		return errkind.ErrExist
	}
	delete(m.sets, oldQuery)
	m.sets[newQuery] = fresh
	m.mu.Unlock()

	old.Cleanup()
	return nil
}
