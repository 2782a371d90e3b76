// Package fsfrontend implements the FUSE operation set (spec.md §4.6) by
// composing PathModel, the Mount/ResultSet layer, the StreamingStore layer
// and the handle table into bazil.org/fuse/fs's Node/Handle interfaces.
// Grounded on the interface shapes exercised by bazil.org/fuse's own
// fs/serve_test.go (Attr, NodeStringLookuper.Lookup, HandleReadDirAller,
// NodeMkdirer, NodeRemover, NodeRenamer, HandleReader + fuseutil.HandleRead)
// and on rclone's cmd/mount for the mount/signal lifecycle. This is the
// only internal package that imports syscall: every other internal package
// deals in the plain errkind sentinels, translated to POSIX errno here, at
// the FUSE boundary, the way rclone's own FUSE frontends do it.
package fsfrontend

import (
	"context"
	"errors"
	"os"
	"syscall"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"bazil.org/fuse/fuseutil"

	"github.com/the-shelter/ytfs/internal/errkind"
	"github.com/the-shelter/ytfs/internal/handles"
	"github.com/the-shelter/ytfs/internal/pathmodel"
	"github.com/the-shelter/ytfs/internal/resultset"
	"github.com/the-shelter/ytfs/internal/store"
)

// controlPayload is returned verbatim, sliced to the requested window, by
// any read of a control file (spec.md §6).
const controlPayload = "#!/bin/sh\n"

// toErrno maps an errkind sentinel to the POSIX errno FUSE expects
// (spec.md §7). Unrecognized errors default to EIO.
func toErrno(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errkind.ErrInvalid):
		return fuse.Errno(syscall.EINVAL)
	case errors.Is(err, errkind.ErrNotFound):
		return fuse.Errno(syscall.ENOENT)
	case errors.Is(err, errkind.ErrNotDir):
		return fuse.Errno(syscall.ENOTDIR)
	case errors.Is(err, errkind.ErrIsDir):
		return fuse.Errno(syscall.EISDIR)
	case errors.Is(err, errkind.ErrPermission):
		return fuse.Errno(syscall.EPERM)
	case errors.Is(err, errkind.ErrReadOnly):
		return fuse.Errno(syscall.EROFS)
	case errors.Is(err, errkind.ErrExist):
		return fuse.Errno(syscall.EEXIST)
	case errors.Is(err, errkind.ErrBadHandle):
		return fuse.Errno(syscall.EBADF)
	default:
		return fuse.Errno(syscall.EIO)
	}
}

// FS is the mounted filesystem root, composing the mount-wide ResultSet
// map and the file handle table (spec.md §3 "Global mount state").
type FS struct {
	mount   *resultset.Mount
	handles *handles.Table
}

// New constructs the FUSE FS around an already-configured Mount.
func New(mount *resultset.Mount) *FS {
	return &FS{mount: mount, handles: handles.New()}
}

// Root implements fs.FS.
func (f *FS) Root() (fs.Node, error) {
	return &rootNode{fs: f}, nil
}

// rootNode is "/": a directory of search-query directories.
type rootNode struct {
	fs *FS
}

func (n *rootNode) Attr(_ context.Context, a *fuse.Attr) error {
	a.Mode = os.ModeDir | 0555
	return nil
}

func (n *rootNode) Lookup(_ context.Context, name string) (fs.Node, error) {
	if _, ok := n.fs.mount.Get(name); !ok {
		return nil, toErrno(errkind.ErrNotFound)
	}
	return &queryDirNode{fs: n.fs, query: name}, nil
}

func (n *rootNode) ReadDirAll(_ context.Context) ([]fuse.Dirent, error) {
	queries := n.fs.mount.List()
	ents := make([]fuse.Dirent, 0, len(queries))
	for _, q := range queries {
		ents = append(ents, fuse.Dirent{Name: q, Type: fuse.DT_Dir})
	}
	return ents, nil
}

// Mkdir creates a new search query: mkdir(searchDir) (spec.md §4.6).
func (n *rootNode) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fs.Node, error) {
	if _, err := n.fs.mount.Create(ctx, req.Name); err != nil {
		return nil, toErrno(err)
	}
	return &queryDirNode{fs: n.fs, query: req.Name}, nil
}

// Remove implements rmdir(searchDir) (spec.md §4.6). Removal of the mount
// root itself is never routed here; the kernel rejects rmdir on a mount
// point before dispatching to us.
func (n *rootNode) Remove(_ context.Context, req *fuse.RemoveRequest) error {
	if !req.Dir {
		return toErrno(errkind.ErrNotDir)
	}
	rs, ok := n.fs.mount.Remove(req.Name)
	if !ok {
		return toErrno(errkind.ErrNotFound)
	}
	rs.Cleanup()
	return nil
}

// Rename implements rename(oldDir,newDir): both names must be search-dir
// paths directly under root (spec.md §4.6).
func (n *rootNode) Rename(ctx context.Context, req *fuse.RenameRequest, newDir fs.Node) error {
	if _, ok := newDir.(*rootNode); !ok {
		return toErrno(errkind.ErrInvalid)
	}
	return toErrno(n.fs.mount.Rename(ctx, req.OldName, req.NewName))
}

// queryDirNode is "/<query>": the current page of results for one query.
type queryDirNode struct {
	fs    *FS
	query string
}

func (n *queryDirNode) Attr(_ context.Context, a *fuse.Attr) error {
	a.Mode = os.ModeDir | 0555
	return nil
}

func (n *queryDirNode) resultSet() (*resultset.ResultSet, error) {
	rs, ok := n.fs.mount.Get(n.query)
	if !ok {
		return nil, errkind.ErrNotFound
	}
	return rs, nil
}

func (n *queryDirNode) ReadDirAll(_ context.Context) ([]fuse.Dirent, error) {
	rs, err := n.resultSet()
	if err != nil {
		return nil, toErrno(err)
	}
	names := rs.List()
	ents := make([]fuse.Dirent, 0, len(names))
	for _, name := range names {
		ents = append(ents, fuse.Dirent{Name: name, Type: fuse.DT_File})
	}
	return ents, nil
}

// Lookup classifies the full path with pathmodel.Classify rather than
// guessing at rs.Lookup twice: a name either parses as a ResultFile (its
// extension already stripped by Classify) or a ControlFile, and anything
// else can't exist under a query directory.
func (n *queryDirNode) Lookup(_ context.Context, name string) (fs.Node, error) {
	rs, err := n.resultSet()
	if err != nil {
		return nil, toErrno(err)
	}

	p := pathmodel.Classify("/" + n.query + "/" + name)
	if p.Class != pathmodel.ResultFile && p.Class != pathmodel.ControlFile {
		return nil, toErrno(errkind.ErrNotFound)
	}

	binding, ok := rs.Lookup(p.Name)
	if !ok {
		return nil, toErrno(errkind.ErrNotFound)
	}

	switch b := binding.(type) {
	case resultset.ControlBinding:
		return &controlFileNode{fs: n.fs, binding: b}, nil
	case *store.StreamingStore:
		return &resultFileNode{fs: n.fs, query: n.query, store: b}, nil
	default:
		return nil, toErrno(errkind.ErrInvalid)
	}
}

// Remove implements unlink(/<query>/<name>) (spec.md §4.6, §6): it always
// succeeds without touching the ResultSet, the same trick ytfs.py's
// unlink(tid) plays so that `rm -r` can walk a search directory out from
// under itself without ever failing on the files inside it. A query
// directory has no subdirectories, so a Dir request here is never genuine.
func (n *queryDirNode) Remove(_ context.Context, req *fuse.RemoveRequest) error {
	if req.Dir {
		return toErrno(errkind.ErrNotDir)
	}
	return nil
}

// resultFileNode is "/<query>/<name>": the streamed media for one result.
type resultFileNode struct {
	fs    *FS
	query string
	store *store.StreamingStore
}

func (n *resultFileNode) Attr(_ context.Context, a *fuse.Attr) error {
	a.Mode = 0444
	a.Size = uint64(n.store.Filesize())
	return nil
}

func (n *resultFileNode) Open(ctx context.Context, req *fuse.OpenRequest, _ *fuse.OpenResponse) (fs.Handle, error) {
	if !req.Flags.IsReadOnly() {
		return nil, toErrno(errkind.ErrReadOnly)
	}
	if err := n.store.ObtainInfo(ctx); err != nil {
		return nil, toErrno(err)
	}

	id := n.fs.handles.Allocate(n.store)
	n.store.RegisterHandle(id)
	return &resultFileHandle{fs: n.fs, store: n.store, id: id}, nil
}

// resultFileHandle streams bytes from the bound StreamingStore.
type resultFileHandle struct {
	fs    *FS
	store *store.StreamingStore
	id    int
}

func (h *resultFileHandle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	data, err := h.store.Read(ctx, req.Offset, int64(req.Size), h.id)
	if err != nil {
		return toErrno(err)
	}
	resp.Data = data
	return nil
}

func (h *resultFileHandle) Release(_ context.Context, _ *fuse.ReleaseRequest) error {
	h.store.UnregisterHandle(h.id)
	h.fs.handles.Release(h.id)
	return nil
}

// controlFileNode is "/<query>/ next" or "/<query>/ prev": reading it
// pages the owning ResultSet (spec.md §4.6, §9 "pagination side-effects
// via file read").
type controlFileNode struct {
	fs      *FS
	binding resultset.ControlBinding
}

func (n *controlFileNode) Attr(_ context.Context, a *fuse.Attr) error {
	a.Mode = 0555
	a.Size = uint64(len(controlPayload))
	return nil
}

func (n *controlFileNode) Open(_ context.Context, req *fuse.OpenRequest, _ *fuse.OpenResponse) (fs.Handle, error) {
	if !req.Flags.IsReadOnly() {
		return nil, toErrno(errkind.ErrReadOnly)
	}
	id := n.fs.handles.Allocate(n.binding)
	return &controlFileHandle{fs: n.fs, mount: n.fs.mount, binding: n.binding, id: id}, nil
}

type controlFileHandle struct {
	fs      *FS
	mount   *resultset.Mount
	binding resultset.ControlBinding
	id      int
}

func (h *controlFileHandle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	if rs, ok := h.mount.Get(h.binding.Query); ok {
		if err := rs.Page(ctx, h.binding.Direction); err != nil {
			return toErrno(err)
		}
	}
	fuseutil.HandleRead(req, resp, []byte(controlPayload))
	return nil
}

func (h *controlFileHandle) Release(_ context.Context, _ *fuse.ReleaseRequest) error {
	h.fs.handles.Release(h.id)
	return nil
}
