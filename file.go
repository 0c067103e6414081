// Package vdb reads OpenVDB archives into an in-memory sparse 5-4-3 tree
// and flattens that tree into a dense atlas a GPU ray-marcher can sample
// directly. It never writes archives and never evaluates the stored
// transform: both are out of scope (see SPEC_FULL.md's Non-goals and
// design notes).
package vdb

import (
	"io"
	"os"

	"github.com/openvdb-go/vdb/internal/atlas"
	"github.com/openvdb-go/vdb/internal/core"
)

// Re-exported so callers never need to import the internal packages
// directly: Numeric constrains grid value types, Half is the narrow
// float OpenVDB stores half-precision grids as, and Tree/Transform/
// Metadata/Endpoint/Atlas are the shapes ReadGrid and PackAtlas hand back.
type (
	Numeric             = core.Numeric
	Half                = core.Half
	Tree[V Numeric]     = core.Tree[V]
	Transform           = core.Transform
	Metadata            = core.Metadata
	Endpoint[V Numeric] = core.Endpoint[V]
	Atlas[V Numeric]    = atlas.Atlas[V]
)

// Endpoint kinds, re-exported for callers matching on GetVoxel's result.
const (
	EndpointBackground = core.EndpointBackground
	EndpointRootTile   = core.EndpointRootTile
	EndpointInnerTile  = core.EndpointInnerTile
	EndpointLeafTile   = core.EndpointLeafTile
	EndpointLeaf       = core.EndpointLeaf
)

// TransformKind names the affine map family behind a grid's Transform.
type TransformKind = core.TransformKind

const (
	TransformUniformScale   = core.TransformUniformScale
	TransformScaleTranslate = core.TransformScaleTranslate
)

// File is an opened OpenVDB archive: the parsed header and per-grid
// descriptor table, ready for ReadGrid to load individual grids by name.
// Mirrors the teacher's own File: a thin handle over an io.ReaderAt plus
// whatever summary was cheap to parse up front, with the expensive,
// per-grid payload read deferred until asked for.
type File struct {
	r      io.ReaderAt
	closer io.Closer
	header *core.ArchiveHeader
	grids  []core.GridDescriptor
	byName map[string]int
	opts   openOptions
}

// Open opens the archive at path and parses its header and grid
// descriptor table. The underlying file stays open until Close.
func Open(path string, opts ...Option) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	file, err := openReader(f, opts...)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	file.closer = f
	return file, nil
}

// OpenReader parses an archive already held in memory or behind any other
// io.ReaderAt (an *os.File, a bytes.Reader over a mapped buffer, a mock in
// tests). The caller owns r and Close is a no-op for it.
func OpenReader(r io.ReaderAt, opts ...Option) (*File, error) {
	return openReader(r, opts...)
}

func openReader(r io.ReaderAt, opts ...Option) (*File, error) {
	o := defaultOpenOptions()
	for _, opt := range opts {
		opt(&o)
	}
	core.Logger = o.logger

	header, err := core.ReadHeader(r)
	if err != nil {
		return nil, err
	}

	grids, err := core.ReadGridDescriptors(r, header)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]int, len(grids))
	for i, g := range grids {
		byName[g.Name] = i
	}

	return &File{
		r:      r,
		header: header,
		grids:  grids,
		byName: byName,
		opts:   o,
	}, nil
}

// Close releases the underlying file, if Open opened one. Safe to call on
// a File returned by OpenReader, where it does nothing.
func (f *File) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

// FileVersion reports the archive's on-disk format version.
func (f *File) FileVersion() uint32 { return f.header.FileVersion }

// GridNames lists every grid in the archive, in descriptor-table order.
func (f *File) GridNames() []string {
	names := make([]string, len(f.grids))
	for i, g := range f.grids {
		names[i] = g.Name
	}
	return names
}

// descriptor looks up a grid's descriptor by name.
func (f *File) descriptor(name string) (*core.GridDescriptor, error) {
	i, ok := f.byName[name]
	if !ok {
		return nil, core.NewError(core.KindUnknownGrid, name)
	}
	return &f.grids[i], nil
}

// ReadGrid loads one grid's tree topology and leaf values into an owning
// Tree[V], along with its transform and its own re-read metadata block.
// V must match the precision the grid was actually written at: reading a
// FloatGrid's half-widened leaf buffers into uint16, say, silently
// truncates rather than erroring, the same way the original reader leaves
// value-type selection to the caller.
func ReadGrid[V Numeric](f *File, name string) (*Tree[V], Transform, Metadata, error) {
	desc, err := f.descriptor(name)
	if err != nil {
		return nil, Transform{}, Metadata{}, err
	}

	tree, transform, meta, err := core.ReadGridTree[V](f.r, f.header, desc)
	if err != nil {
		return nil, Transform{}, Metadata{}, err
	}

	if f.opts.maxGridSize > 0 {
		n5, n4, n3 := tree.CountNodes()
		if uint64(n5)+uint64(n4)+uint64(n3) > f.opts.maxGridSize {
			return nil, Transform{}, Metadata{}, core.NewError(core.KindUnexpectedMaskLength, "grid "+name+" exceeds configured max size")
		}
	}

	return tree, transform, meta, nil
}

// PackAtlas flattens tree into the dense arrays and mask sequences a
// GPU ray-marcher samples, via internal/atlas's deterministic traversal.
// Fails if tree's node counts would need an unreasonably large dense
// cube to pack into.
func PackAtlas[V Numeric](tree *Tree[V]) (Atlas[V], error) {
	return atlas.Pack[V](tree)
}

// NewTree builds an empty tree with a zero-value background, for callers
// populating a grid programmatically rather than reading one from disk.
func NewTree[V Numeric]() *Tree[V] {
	return core.New[V]()
}
