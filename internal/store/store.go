// Package store implements StreamingStore, spec.md §4.5: the per-item
// cache and download engine that turns a seekable, length-reporting,
// concurrency-safe byte-range read contract into interleaved fetches from
// one or two remote HTTP media sources, with an on-the-fly muxing mode.
//
// Grounded on rclone's backend/cache/handle.go (Handle/worker shape:
// queueOffset-style coalescing, retry/backoff in download) adapted from a
// fixed-chunk worker pool into an exact, interval-set-driven coalesced
// fetch loop, because spec.md's invariant is byte-exact coverage rather
// than chunk-aligned coverage.
package store

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/the-shelter/ytfs/internal/config"
	"github.com/the-shelter/ytfs/internal/errkind"
	"github.com/the-shelter/ytfs/internal/pacer"
	"github.com/the-shelter/ytfs/internal/ranges"
	"github.com/the-shelter/ytfs/internal/resolver"
	"github.com/the-shelter/ytfs/internal/ytfslog"
)

// state is StreamingStore's lifecycle state machine (spec.md §4.5).
type state int

const (
	stateNew state = iota
	stateResolving
	stateReady
	stateClosed
)

// cacheBackend is the seekable byte store behind a StreamingStore: either
// an in-memory buffer or a temp file, chosen by size at obtainInfo time.
type cacheBackend interface {
	io.ReaderAt
	io.WriterAt
	Close() error
}

// memCache is a growable in-memory cacheBackend for small items.
type memCache struct {
	mu  sync.Mutex
	buf []byte
}

func (m *memCache) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := off + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[off:end], p)
	return len(p), nil
}

func (m *memCache) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	var err error
	if n < len(p) {
		err = io.EOF
	}
	return n, err
}

func (m *memCache) Close() error { return nil }

// fetchSet tracks in-flight fetch ranges so concurrent readers coalesce
// onto a single in-flight fetch per overlapping byte offset (spec.md §4.5
// "Concurrent readers for overlapping ranges must coalesce").
type fetchSet []ranges.Range

func (s fetchSet) overlaps(r ranges.Range) bool {
	for _, p := range s {
		if !p.Intersection(r).IsEmpty() {
			return true
		}
	}
	return false
}

func (s *fetchSet) add(r ranges.Range)    { *s = append(*s, r) }
func (s *fetchSet) remove(r ranges.Range) {
	cur := *s
	for i, p := range cur {
		if p == r {
			*s = append(cur[:i], cur[i+1:]...)
			return
		}
	}
}

// StreamingStore is the per-item streaming cache and fetch engine
// described in spec.md §4.5.
type StreamingStore struct {
	itemID   string
	mode     config.MediaMode
	resolver resolver.MediaResolver
	opts     config.Options
	client   *http.Client
	pacer    *pacer.Pacer

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	cond     *sync.Cond
	state    state
	fatalErr error

	sourceURLs []resolver.SourceURL
	cache      cacheBackend
	intervals  ranges.Ranges
	pending    fetchSet
	size       int64
	sizeFinal  bool // true once filesize() is the exact, terminal length
	handleIDs  map[int]struct{}

	mux *muxState // non-nil only in config.Muxed mode, set in obtainInfo

	inFlight sync.WaitGroup // outstanding fetch/feeder goroutines
}

// New constructs a StreamingStore for itemID. It does no I/O; call
// ObtainInfo to resolve URLs and publish a size (spec.md: "created lazily
// when a result page is materialized; fully initialized on first open").
func New(itemID string, mode config.MediaMode, res resolver.MediaResolver, opts config.Options, client *http.Client) *StreamingStore {
	if client == nil {
		client = http.DefaultClient
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &StreamingStore{
		itemID:    itemID,
		mode:      mode,
		resolver:  res,
		opts:      opts,
		client:    client,
		pacer:     pacer.New(opts.RetryAttempts, opts.RetryBackoffBase, opts.RetryBackoffCap),
		ctx:       ctx,
		cancel:    cancel,
		handleIDs: make(map[int]struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *StreamingStore) String() string { return s.itemID }

// ObtainInfo resolves source URLs and publishes a filesize. Idempotent:
// subsequent calls are no-ops returning the outcome of the first call
// (spec.md §4.5).
func (s *StreamingStore) ObtainInfo(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case stateReady:
		s.mu.Unlock()
		return nil
	case stateClosed:
		err := s.fatalErr
		s.mu.Unlock()
		if err == nil {
			err = errkind.ErrIO
		}
		return err
	case stateResolving:
		// Another caller is already resolving; wait for it to finish.
		for s.state == stateResolving {
			s.cond.Wait()
		}
		state, err := s.state, s.fatalErr
		s.mu.Unlock()
		if state == stateReady {
			return nil
		}
		if err == nil {
			err = errkind.ErrNotFound
		}
		return err
	}
	s.state = stateResolving
	s.mu.Unlock()

	err := s.resolveAndPrepare(ctx)

	s.mu.Lock()
	if err != nil {
		s.state = stateClosed
		s.fatalErr = err
		s.mu.Unlock()
		s.cond.Broadcast()
		return err
	}
	s.state = stateReady
	s.mu.Unlock()
	s.cond.Broadcast()
	return nil
}

func (s *StreamingStore) resolveAndPrepare(ctx context.Context) error {
	res, err := s.resolver.Resolve(ctx, s.itemID, s.mode)
	if err != nil {
		ytfslog.Errorf(s, "resolve failed: %v", err)
		return fmt.Errorf("%w: %v", errkind.ErrNotFound, err)
	}
	if len(res.URLs) == 0 {
		return fmt.Errorf("%w: resolver returned no source URLs", errkind.ErrNotFound)
	}
	s.sourceURLs = res.URLs

	var size int64
	if s.mode == config.Muxed {
		size = res.ContentLengthHint
		if size <= 0 {
			size = resolver.EstimateMuxedSize(res.URLs[0].Bitrate, res.URLs[1].Bitrate, res.DurationSeconds)
		}
	} else {
		prober := resolver.NewHTTPProber(s.client)
		length, _, perr := prober.Probe(ctx, res.URLs[0].URL)
		if perr != nil || length <= 0 {
			size = res.ContentLengthHint
		} else {
			size = length
		}
	}

	cache, err := s.newCache(size)
	if err != nil {
		return fmt.Errorf("%w: %v", errkind.ErrIO, err)
	}

	s.mu.Lock()
	s.cache = cache
	s.size = size
	s.sizeFinal = s.mode != config.Muxed
	s.mu.Unlock()

	if s.mode == config.Muxed {
		if err := s.startMuxing(); err != nil {
			cache.Close()
			return fmt.Errorf("%w: %v", errkind.ErrIO, err)
		}
	}
	return nil
}

func (s *StreamingStore) newCache(sizeHint int64) (cacheBackend, error) {
	if sizeHint > 0 && sizeHint <= s.opts.InMemoryCacheThreshold {
		return &memCache{}, nil
	}
	// A random name avoids any collision between concurrently open stores
	// for the same item (e.g. the same query paged back into view).
	f, err := os.CreateTemp("", "ytfs-"+uuid.NewString()+"-*")
	if err != nil {
		return nil, err
	}
	// Unlink immediately: the cache is anonymous and must vanish with the
	// fd (spec.md §6 "Persisted state: None").
	_ = os.Remove(f.Name())
	return f, nil
}

// RegisterHandle records id as an active reader of this store.
func (s *StreamingStore) RegisterHandle(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handleIDs[id] = struct{}{}
}

// UnregisterHandle drops id from the active-reader set.
func (s *StreamingStore) UnregisterHandle(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handleIDs, id)
}

// ActiveHandles reports how many handles currently hold this store open.
func (s *StreamingStore) ActiveHandles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handleIDs)
}

// Filesize returns the currently reported length (spec.md §4.5): the
// Content-Length for single-source modes, or the container hint then the
// exact length for muxed mode. Monotonically non-decreasing.
func (s *StreamingStore) Filesize() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Read returns up to length bytes starting at offset, synchronously
// driving whatever fetches are needed to cover the range (spec.md §4.5).
func (s *StreamingStore) Read(ctx context.Context, offset, length int64, handleID int) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, errkind.ErrInvalid
	}

	s.mu.Lock()
	for {
		switch s.state {
		case stateClosed:
			err := s.fatalErr
			s.mu.Unlock()
			if err != nil {
				return nil, errkind.ErrIO
			}
			return nil, errkind.ErrBadHandle
		case stateNew, stateResolving:
			s.mu.Unlock()
			return nil, fmt.Errorf("store not initialized: %w", errkind.ErrInvalid)
		}

		if ctx.Err() != nil {
			s.mu.Unlock()
			return nil, errkind.ErrIO
		}

		if offset >= s.size {
			s.mu.Unlock()
			return nil, nil
		}
		clipLen := length
		if offset+clipLen > s.size {
			clipLen = s.size - offset
		}
		want := ranges.Range{Pos: offset, Size: clipLen}

		if s.mode == config.Muxed {
			covered, done := s.muxCoverage(want)
			if covered {
				data, err := s.readFromCache(offset, clipLen)
				s.mu.Unlock()
				return data, err
			}
			if s.mux != nil && s.mux.err != nil {
				s.mu.Unlock()
				return nil, errkind.ErrIO
			}
			if done {
				// Muxer finished short of this offset: true EOF.
				s.mu.Unlock()
				return nil, nil
			}
			s.cond.Wait()
			continue
		}

		gaps := s.intervals.FindGaps(want)
		if len(gaps) == 0 {
			data, err := s.readFromCache(offset, clipLen)
			s.mu.Unlock()
			return data, err
		}

		gap := gaps[0]
		if s.pending.overlaps(gap) {
			s.cond.Wait()
			continue
		}

		fetchEnd := gap.End() + s.opts.ReadAhead
		if fetchEnd > s.size {
			fetchEnd = s.size
		}
		fetchRange := ranges.Range{Pos: gap.Pos, Size: fetchEnd - gap.Pos}
		s.pending.add(fetchRange)
		s.inFlight.Add(1)
		s.mu.Unlock()

		ferr := s.fetchAndStore(fetchRange)

		s.mu.Lock()
		s.pending.remove(fetchRange)
		s.inFlight.Done()
		if ferr != nil {
			s.mu.Unlock()
			s.cond.Broadcast()
			return nil, ferr
		}
		s.cond.Broadcast()
	}
}

// readFromCache must be called with s.mu held.
func (s *StreamingStore) readFromCache(offset, length int64) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	buf := make([]byte, length)
	n, err := s.cache.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, errkind.ErrIO
	}
	return buf[:n], nil
}

// fetchAndStore performs one ranged HTTP GET, retrying transient failures,
// and inserts the result into the cache and interval set. Runs with no
// lock held, per spec.md §5 ("Fetches execute outside any held lock").
func (s *StreamingStore) fetchAndStore(r ranges.Range) error {
	url := s.sourceURLs[0].URL
	var body []byte
	err := s.pacer.Call(s.ctx, func() (bool, error) {
		b, ferr := s.doRangedGet(url, r.Pos, r.End()-1)
		if ferr != nil {
			ytfslog.Debugf(s, "fetch %d-%d failed, will retry: %v", r.Pos, r.End()-1, ferr)
			return true, ferr
		}
		body = b
		return false, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errkind.ErrIO, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, werr := s.cache.WriteAt(body, r.Pos); werr != nil {
		return fmt.Errorf("%w: %v", errkind.ErrIO, werr)
	}
	s.intervals.Insert(ranges.Range{Pos: r.Pos, Size: int64(len(body))})
	return nil
}

func (s *StreamingStore) doRangedGet(url string, start, end int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	res, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusPartialContent && res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", res.Status)
	}
	return io.ReadAll(res.Body)
}

// Cleanup cancels in-flight fetches, terminates any child muxer, and
// releases cache storage. After Cleanup no further reads are valid
// (spec.md §4.5).
func (s *StreamingStore) Cleanup() {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return
	}
	s.state = stateClosed
	mux := s.mux
	s.mu.Unlock()

	s.cancel()
	if mux != nil {
		mux.kill()
	}

	// Wait for in-flight fetches/feeders to drain before freeing the
	// cache, so a read racing with cleanup never touches freed storage
	// (spec.md §5 ordering guarantees).
	s.inFlight.Wait()

	s.mu.Lock()
	cache := s.cache
	s.mu.Unlock()
	if cache != nil {
		_ = cache.Close()
	}

	s.cond.Broadcast()
}
