// Package resolver defines MediaResolver (spec.md §4.4): the sole
// component permitted to talk to the remote search/media service. The
// actual search API and media-URL discovery library are out of scope per
// spec.md §1 ("external collaborators"); what's implemented here is the
// interface every other component programs against, plus a reference HTTP
// prober that turns a resolved URL into the content-length and
// range-support facts a StreamingStore needs, in the style of rclone's backend/http
// (Object.head / decodeMetadata).
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/the-shelter/ytfs/internal/config"
	"github.com/the-shelter/ytfs/internal/errkind"
	"github.com/the-shelter/ytfs/internal/ytfslog"
)

// Sentinel errors returned by Resolve, per spec.md §4.4.
var (
	// ErrTransient is a network error worth retrying.
	ErrTransient = errors.New("resolver: transient network error")
	// ErrNotAvailable means the item cannot be resolved (fatal, this item).
	ErrNotAvailable = fmt.Errorf("resolver: %w", errkind.ErrNotFound)
	// ErrParse is a response the resolver could not understand (fatal).
	ErrParse = errors.New("resolver: parse error")
)

// Item is one search hit: enough identity and display metadata for
// ResultSet to build a page and for the frontend to decorate a name.
type Item struct {
	ID    string
	Title string
}

// SourceURL is a single resolvable stream endpoint plus the metadata
// needed to estimate a container's eventual size without downloading it.
type SourceURL struct {
	URL       string
	Bitrate   int64 // bits per second, 0 if unknown
	Container string
}

// Resolution is the result of resolving one item for a given mode.
type Resolution struct {
	// URLs holds one entry for single-source modes, two (audio, video)
	// for config.Muxed.
	URLs              []SourceURL
	DurationSeconds   float64
	ContentLengthHint int64
}

// SearchPage is one page of results for a query, plus an opaque cursor the
// caller passes back to page forward or backward.
type SearchPage struct {
	Items      []Item
	NextCursor string
	PrevCursor string
	HasNext    bool
	HasPrev    bool
}

// MediaResolver is the only component allowed to reach the remote search
// and media-URL discovery service.
type MediaResolver interface {
	// Search returns a page of results for query. cursor is "" for the
	// first page; otherwise it is a cursor previously returned in
	// SearchPage.
	Search(ctx context.Context, query string, cursor string, pageSize int) (SearchPage, error)

	// Resolve returns the source URL(s) for itemID in the given mode, the
	// item's total duration, and a content-length hint (spec.md §4.4:
	// "audioBitrate × duration + videoBitrate × duration" for muxed mode).
	Resolve(ctx context.Context, itemID string, mode config.MediaMode) (Resolution, error)
}

// HTTPProber is a reference helper (not a full MediaResolver) that turns a
// resolved SourceURL into an authoritative Content-Length and confirms the
// server accepts ranged requests, mirroring backend/http.Object.head. A
// concrete MediaResolver implementation built against the real search API
// would use this to fill in ContentLengthHint when the API doesn't already
// provide one.
type HTTPProber struct {
	Client *http.Client
}

// NewHTTPProber returns a prober using http.DefaultClient if client is nil.
func NewHTTPProber(client *http.Client) *HTTPProber {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProber{Client: client}
}

// Probe issues a HEAD request to learn the Content-Length and whether byte
// ranges are accepted. There is no fallback request when HEAD is rejected:
// a 404 is ErrNotAvailable and any other non-2xx status is ErrTransient.
func (p *HTTPProber) Probe(ctx context.Context, url string) (contentLength int64, acceptsRanges bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrParse, err)
	}
	res, err := p.Client.Do(req)
	if err != nil {
		ytfslog.Debugf(url, "HEAD probe failed, treating as transient: %v", err)
		return 0, false, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return 0, false, ErrNotAvailable
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return 0, false, fmt.Errorf("%w: HTTP status %s", ErrTransient, res.Status)
	}

	acceptsRanges = res.Header.Get("Accept-Ranges") == "bytes"
	return res.ContentLength, acceptsRanges, nil
}

// EstimateMuxedSize applies spec.md §4.4's muxed-mode content-length
// formula, audioBitrate × duration + videoBitrate × duration, with each
// bits-per-second product divided by 8 so the result is a byte count.
func EstimateMuxedSize(audioBitrate, videoBitrate int64, duration float64) int64 {
	return int64(float64(audioBitrate)*duration/8) + int64(float64(videoBitrate)*duration/8)
}
