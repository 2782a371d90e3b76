package fsfrontend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"bazil.org/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-shelter/ytfs/internal/config"
	"github.com/the-shelter/ytfs/internal/errkind"
	"github.com/the-shelter/ytfs/internal/pathmodel"
	"github.com/the-shelter/ytfs/internal/resolver"
	"github.com/the-shelter/ytfs/internal/resolvertest"
	"github.com/the-shelter/ytfs/internal/resultset"
)

// mediaServer serves a fixed four-byte payload: HEAD reports its length,
// and every GET, whatever its Range header, gets the whole payload as 206
// Partial Content, which is enough for reads that cover all four bytes.
func mediaServer(t *testing.T) *httptest.Server {
	t.Helper()
	data := []byte("abcd")
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Accept-Ranges", "bytes")
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "4")
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(data)
	}))
}

// Node/Handle methods are exercised directly with constructed requests
// rather than through a real kernel mount: bazil.org/fuse's own tests
// (fs/serve_test.go) drive a live mount via fstestutil, which needs a
// working /dev/fuse this sandbox doesn't provide.

func newTestFS(t *testing.T, query string, items []resolver.Item) (*FS, *httptest.Server) {
	t.Helper()
	srv := mediaServer(t)
	res := resolvertest.New()
	res.Pages[query] = []resolver.SearchPage{{
		Items:   items,
		HasNext: false,
		HasPrev: false,
	}}
	for _, it := range items {
		res.Resolutions[it.ID] = resolver.Resolution{
			URLs:              []resolver.SourceURL{{URL: srv.URL}},
			ContentLengthHint: 4,
		}
	}
	mount := resultset.NewMount(res, config.Default(), nil)
	_, err := mount.Create(context.Background(), query)
	require.NoError(t, err)
	return New(mount), srv
}

func TestRootLookupAndReadDirAll(t *testing.T) {
	f, srv := newTestFS(t, "cats", []resolver.Item{{ID: "1", Title: "first"}})
	defer srv.Close()

	root, err := f.Root()
	require.NoError(t, err)
	rn := root.(*rootNode)

	ents, err := rn.ReadDirAll(context.Background())
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.Equal(t, "cats", ents[0].Name)
	assert.Equal(t, fuse.DT_Dir, ents[0].Type)

	node, err := rn.Lookup(context.Background(), "cats")
	require.NoError(t, err)
	assert.IsType(t, &queryDirNode{}, node)

	_, err = rn.Lookup(context.Background(), "dogs")
	assert.ErrorIs(t, err, toErrno(errkind.ErrNotFound))
}

func TestQueryDirListsResultsAndControlFiles(t *testing.T) {
	f, srv := newTestFS(t, "cats", []resolver.Item{{ID: "1", Title: "first"}})
	defer srv.Close()

	root, _ := f.Root()
	qn, err := root.(*rootNode).Lookup(context.Background(), "cats")
	require.NoError(t, err)
	qdn := qn.(*queryDirNode)

	ents, err := qdn.ReadDirAll(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "first.m4a")
	assert.Contains(t, names, pathmodel.ControlNext)
	assert.Contains(t, names, pathmodel.ControlPrev)

	resultNode, err := qdn.Lookup(context.Background(), "first.m4a")
	require.NoError(t, err)
	assert.IsType(t, &resultFileNode{}, resultNode)

	ctrlNode, err := qdn.Lookup(context.Background(), pathmodel.ControlNext)
	require.NoError(t, err)
	assert.IsType(t, &controlFileNode{}, ctrlNode)
}

func TestMkdirCreatesQueryRmdirRemovesIt(t *testing.T) {
	res := resolvertest.New()
	res.Pages["cats"] = []resolver.SearchPage{{Items: []resolver.Item{{ID: "1", Title: "first"}}}}
	res.Pages["dogs"] = []resolver.SearchPage{{Items: []resolver.Item{{ID: "2", Title: "second"}}}}
	mount := resultset.NewMount(res, config.Default(), nil)
	f := New(mount)

	root, _ := f.Root()
	rn := root.(*rootNode)

	node, err := rn.Mkdir(context.Background(), &fuse.MkdirRequest{Name: "dogs"})
	require.NoError(t, err)
	assert.IsType(t, &queryDirNode{}, node)

	_, ok := mount.Get("dogs")
	assert.True(t, ok)

	_, err = rn.Mkdir(context.Background(), &fuse.MkdirRequest{Name: "dogs"})
	assert.Error(t, err, "mkdir on an existing query must fail")

	require.NoError(t, rn.Remove(context.Background(), &fuse.RemoveRequest{Name: "dogs", Dir: true}))
	_, ok = mount.Get("dogs")
	assert.False(t, ok)

	err = rn.Remove(context.Background(), &fuse.RemoveRequest{Name: "dogs", Dir: true})
	assert.Error(t, err, "rmdir on a missing query must fail")
}

// TestUnlinkAlwaysSucceedsThenRmdirRemovesQuery mirrors what `rm -r
// /cats` actually does: unlink every entry in the directory first, then
// rmdir the now-"empty" directory. Without queryDirNode.Remove this whole
// sequence fails on the first unlink with ENOSYS.
func TestUnlinkAlwaysSucceedsThenRmdirRemovesQuery(t *testing.T) {
	f, srv := newTestFS(t, "cats", []resolver.Item{{ID: "1", Title: "first"}})
	defer srv.Close()

	root, _ := f.Root()
	rn := root.(*rootNode)
	qn, err := rn.Lookup(context.Background(), "cats")
	require.NoError(t, err)
	qdn := qn.(*queryDirNode)

	require.NoError(t, qdn.Remove(context.Background(), &fuse.RemoveRequest{Name: "first.m4a"}))
	require.NoError(t, qdn.Remove(context.Background(), &fuse.RemoveRequest{Name: pathmodel.ControlNext}))

	// The ResultSet itself is untouched by unlink: its entries still list.
	_, ok := f.mount.Get("cats")
	require.True(t, ok)

	err = qdn.Remove(context.Background(), &fuse.RemoveRequest{Name: "first.m4a", Dir: true})
	assert.Error(t, err, "a Dir removal request never legitimately targets a query directory's children")

	require.NoError(t, rn.Remove(context.Background(), &fuse.RemoveRequest{Name: "cats", Dir: true}))
	_, ok = f.mount.Get("cats")
	assert.False(t, ok)
}

func TestResultFileOpenAndRead(t *testing.T) {
	f, srv := newTestFS(t, "cats", []resolver.Item{{ID: "1", Title: "first"}})
	defer srv.Close()

	root, _ := f.Root()
	qn, _ := root.(*rootNode).Lookup(context.Background(), "cats")
	node, err := qn.(*queryDirNode).Lookup(context.Background(), "first.m4a")
	require.NoError(t, err)
	rfn := node.(*resultFileNode)

	openReq := &fuse.OpenRequest{Flags: fuse.OpenReadOnly}
	openResp := &fuse.OpenResponse{}
	h, err := rfn.Open(context.Background(), openReq, openResp)
	require.NoError(t, err)
	handle := h.(*resultFileHandle)

	readReq := &fuse.ReadRequest{Offset: 0, Size: 4}
	readResp := &fuse.ReadResponse{}
	require.NoError(t, handle.Read(context.Background(), readReq, readResp))
	assert.Len(t, readResp.Data, 4)

	require.NoError(t, handle.Release(context.Background(), &fuse.ReleaseRequest{}))
	assert.Equal(t, 0, rfn.store.ActiveHandles())
}

func TestControlFileReadPagesResultSet(t *testing.T) {
	res := resolvertest.New()
	res.Pages["cats"] = []resolver.SearchPage{
		{Items: []resolver.Item{{ID: "1", Title: "first"}}, NextCursor: "1", HasNext: true},
		{Items: []resolver.Item{{ID: "2", Title: "second"}}, HasPrev: true},
	}
	mount := resultset.NewMount(res, config.Default(), nil)
	_, err := mount.Create(context.Background(), "cats")
	require.NoError(t, err)
	f := New(mount)

	root, _ := f.Root()
	qn, _ := root.(*rootNode).Lookup(context.Background(), "cats")
	node, err := qn.(*queryDirNode).Lookup(context.Background(), pathmodel.ControlNext)
	require.NoError(t, err)
	cfn := node.(*controlFileNode)

	h, err := cfn.Open(context.Background(), &fuse.OpenRequest{Flags: fuse.OpenReadOnly}, &fuse.OpenResponse{})
	require.NoError(t, err)
	handle := h.(*controlFileHandle)

	resp := &fuse.ReadResponse{}
	require.NoError(t, handle.Read(context.Background(), &fuse.ReadRequest{Offset: 0, Size: 64}, resp))
	assert.Equal(t, []byte(controlPayload), resp.Data)

	rs, ok := mount.Get("cats")
	require.True(t, ok)
	_, onSecondPage := rs.Lookup("second")
	assert.True(t, onSecondPage, "reading the control file must have advanced the page")
}

func TestOpenForWriteIsRejected(t *testing.T) {
	f, srv := newTestFS(t, "cats", []resolver.Item{{ID: "1", Title: "first"}})
	defer srv.Close()

	root, _ := f.Root()
	qn, _ := root.(*rootNode).Lookup(context.Background(), "cats")
	node, _ := qn.(*queryDirNode).Lookup(context.Background(), "first.m4a")
	rfn := node.(*resultFileNode)

	_, err := rfn.Open(context.Background(), &fuse.OpenRequest{Flags: fuse.OpenWriteOnly}, &fuse.OpenResponse{})
	assert.Error(t, err)
}

func TestToErrnoMapsSentinels(t *testing.T) {
	assert.Nil(t, toErrno(nil))
	assert.NotNil(t, toErrno(errkind.ErrNotFound))
	assert.NotNil(t, toErrno(errkind.ErrExist))
}
