package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/the-shelter/ytfs/internal/config"
)

// HTTPResolver is a MediaResolver backed by a JSON-over-HTTP search/resolve
// API, following the decode-into-a-typed-response-then-map idiom of
// backend/cache's plexConnector rather than a generated client, since the
// wire shape here is two small, fixed endpoints. The real search service
// behind BaseURL is the out-of-scope external collaborator (spec.md §1);
// this is the reference client any concrete deployment of ytfsmount wires
// in for it.
type HTTPResolver struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPResolver returns an HTTPResolver using http.DefaultClient if client
// is nil.
func NewHTTPResolver(baseURL string, client *http.Client) *HTTPResolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPResolver{BaseURL: baseURL, Client: client}
}

type searchResponseItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type searchResponse struct {
	Items      []searchResponseItem `json:"items"`
	NextCursor string                `json:"next_cursor"`
	PrevCursor string                `json:"prev_cursor"`
	HasNext    bool                  `json:"has_next"`
	HasPrev    bool                  `json:"has_prev"`
}

// Search implements MediaResolver by calling GET {BaseURL}/search.
func (r *HTTPResolver) Search(ctx context.Context, query string, cursor string, pageSize int) (SearchPage, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("page_size", fmt.Sprint(pageSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var body searchResponse
	if err := r.getJSON(ctx, "/search?"+q.Encode(), &body); err != nil {
		return SearchPage{}, err
	}

	items := make([]Item, len(body.Items))
	for i, it := range body.Items {
		items[i] = Item{ID: it.ID, Title: it.Title}
	}
	return SearchPage{
		Items:      items,
		NextCursor: body.NextCursor,
		PrevCursor: body.PrevCursor,
		HasNext:    body.HasNext,
		HasPrev:    body.HasPrev,
	}, nil
}

type resolveResponseSource struct {
	URL       string `json:"url"`
	Bitrate   int64  `json:"bitrate"`
	Container string `json:"container"`
}

type resolveResponse struct {
	Sources           []resolveResponseSource `json:"sources"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	ContentLengthHint int64                   `json:"content_length_hint"`
}

// Resolve implements MediaResolver by calling GET {BaseURL}/resolve.
func (r *HTTPResolver) Resolve(ctx context.Context, itemID string, mode config.MediaMode) (Resolution, error) {
	q := url.Values{}
	q.Set("id", itemID)
	q.Set("mode", mode.String())

	var body resolveResponse
	if err := r.getJSON(ctx, "/resolve?"+q.Encode(), &body); err != nil {
		return Resolution{}, err
	}
	if len(body.Sources) == 0 {
		return Resolution{}, ErrNotAvailable
	}

	urls := make([]SourceURL, len(body.Sources))
	for i, s := range body.Sources {
		urls[i] = SourceURL{URL: s.URL, Bitrate: s.Bitrate, Container: s.Container}
	}
	return Resolution{
		URLs:              urls,
		DurationSeconds:   body.DurationSeconds,
		ContentLengthHint: body.ContentLengthHint,
	}, nil
}

func (r *HTTPResolver) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := r.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return ErrNotAvailable
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("%w: HTTP status %s", ErrTransient, res.Status)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	return nil
}

var _ MediaResolver = (*HTTPResolver)(nil)
