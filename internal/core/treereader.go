package core

import (
	"encoding/binary"
	"io"
	"strings"
)

// ReadGridTree loads one grid's tree topology and leaf values by name,
// given the grid's descriptor from the archive's descriptor table. It
// reopens the grid's own header at desc.GridPos (distinct from, and
// re-read independently of, the summary already parsed into desc by
// ReadGridDescriptors) the way §4.5 describes: per-grid compression word,
// grid metadata, transform, then tree topology.
func ReadGridTree[V Numeric](r io.ReaderAt, header *ArchiveHeader, desc *GridDescriptor) (*Tree[V], Transform, Metadata, error) {
	cur := newCursor(r, int64(desc.GridPos))

	compression := header.Compression
	if header.FileVersion >= VersionNodeMaskCompress {
		bits, err := cur.readUint32()
		if err != nil {
			return nil, Transform{}, Metadata{}, WrapError(KindIO, "reading grid compression", err)
		}
		c, err := ParseCompression(bits)
		if err != nil {
			return nil, Transform{}, Metadata{}, err
		}
		compression = c
	}

	meta, err := ReadMetadata(cur)
	if err != nil {
		return nil, Transform{}, Metadata{}, err
	}

	transform, err := ReadTransform(cur)
	if err != nil {
		return nil, Transform{}, Metadata{}, err
	}

	forceHalf := meta.IsSavedAsHalfFloat() || isSinglePrecisionTypeTag(desc.GridType)

	bufferCount, err := cur.readByte()
	if err != nil {
		return nil, Transform{}, Metadata{}, WrapError(KindIO, "reading buffer count", err)
	}
	if bufferCount != 1 {
		return nil, Transform{}, Metadata{}, NewError(KindIO, "expected buffer count 1, got "+itoa(int(bufferCount)))
	}

	backgroundRaw, err := cur.readUint32()
	if err != nil {
		return nil, Transform{}, Metadata{}, WrapError(KindIO, "reading root background value", err)
	}
	background := ValueFromLE4[V](backgroundRaw)

	tree := New[V]()
	tree.Root.Background = background

	numTiles, err := cur.readUint32()
	if err != nil {
		return nil, Transform{}, Metadata{}, WrapError(KindIO, "reading root tile count", err)
	}
	numChildren, err := cur.readUint32()
	if err != nil {
		return nil, Transform{}, Metadata{}, WrapError(KindIO, "reading root child count", err)
	}

	for i := uint32(0); i < numTiles; i++ {
		origin, err := readCoord(cur)
		if err != nil {
			return nil, Transform{}, Metadata{}, err
		}
		valueRaw, err := cur.readUint32()
		if err != nil {
			return nil, Transform{}, Metadata{}, WrapError(KindIO, "reading root tile value", err)
		}
		activeByte, err := cur.readByte()
		if err != nil {
			return nil, Transform{}, Metadata{}, WrapError(KindIO, "reading root tile active flag", err)
		}
		tree.Root.Map[Level5.NodeOrigin(origin)] = &RootEntry[V]{
			Tile:   ValueFromLE4[V](valueRaw),
			Active: activeByte != 0,
		}
	}

	var leaves []*LeafNode[V]

	for i := uint32(0); i < numChildren; i++ {
		origin, err := readCoord(cur)
		if err != nil {
			return nil, Transform{}, Metadata{}, err
		}
		node5, err := readInnerNode5(cur, header, compression, background, forceHalf, origin, &leaves)
		if err != nil {
			return nil, Transform{}, Metadata{}, err
		}
		tree.Root.Map[origin] = &RootEntry[V]{Node: node5}
	}

	cur.seek(int64(desc.BlockPos))
	for _, leaf := range leaves {
		valueMask, err := readMask(cur, Level3.MaskWords())
		if err != nil {
			return nil, Transform{}, Metadata{}, err
		}
		if header.FileVersion < VersionNodeMaskCompress {
			discard := make([]byte, 13)
			if err := cur.read(discard); err != nil {
				return nil, Transform{}, Metadata{}, WrapError(KindIO, "reading pre-222 leaf origin/buffer-count", err)
			}
		}
		values, err := readValueBuffer[V](cur, Level3Size, valueMask, compression, header.FileVersion, background, forceHalf)
		if err != nil {
			return nil, Transform{}, Metadata{}, err
		}
		copy(leaf.ValueMask[:], valueMask)
		for off := 0; off < Level3Size; off++ {
			if testBit(valueMask, off) {
				leaf.Data[off] = values[off]
			}
		}
	}

	return tree, transform, meta, nil
}

func readInnerNode5[V Numeric](cur *cursor, header *ArchiveHeader, compression Compression, background V, forceHalf bool, origin [3]int32, leaves *[]*LeafNode[V]) (*InnerNode5[V], error) {
	node5 := newInnerNode5[V](origin)

	childMask, err := readMask(cur, Level5.MaskWords())
	if err != nil {
		return nil, err
	}
	valueMask, err := readMask(cur, Level5.MaskWords())
	if err != nil {
		return nil, err
	}
	copy(node5.ChildMask[:], childMask)
	copy(node5.ValueMask[:], valueMask)

	tileSize := Level5Size
	if header.FileVersion < VersionNodeMaskCompress {
		tileSize = Level5Size - popcountWords(childMask)
	}
	tileValues, err := readValueBuffer[V](cur, tileSize, valueMask, compression, header.FileVersion, background, forceHalf)
	if err != nil {
		return nil, err
	}
	scatterTiles(node5.Tiles[:], childMask, tileValues, header.FileVersion < VersionNodeMaskCompress)

	for off := 0; off < Level5Size; off++ {
		if !testBit(childMask, off) {
			continue
		}
		childOrigin := childOriginOf(origin, Level5, off)
		node4, err := readInnerNode4[V](cur, header, compression, background, forceHalf, childOrigin, leaves)
		if err != nil {
			return nil, err
		}
		node5.Children[off] = node4
	}

	return node5, nil
}

func readInnerNode4[V Numeric](cur *cursor, header *ArchiveHeader, compression Compression, background V, forceHalf bool, origin [3]int32, leaves *[]*LeafNode[V]) (*InnerNode4[V], error) {
	node4 := newInnerNode4[V](origin)

	childMask, err := readMask(cur, Level4.MaskWords())
	if err != nil {
		return nil, err
	}
	valueMask, err := readMask(cur, Level4.MaskWords())
	if err != nil {
		return nil, err
	}
	copy(node4.ChildMask[:], childMask)
	copy(node4.ValueMask[:], valueMask)

	tileSize := Level4Size
	if header.FileVersion < VersionNodeMaskCompress {
		tileSize = Level4Size - popcountWords(childMask)
	}
	tileValues, err := readValueBuffer[V](cur, tileSize, valueMask, compression, header.FileVersion, background, forceHalf)
	if err != nil {
		return nil, err
	}
	scatterTiles(node4.Tiles[:], childMask, tileValues, header.FileVersion < VersionNodeMaskCompress)

	for off := 0; off < Level4Size; off++ {
		if !testBit(childMask, off) {
			continue
		}
		valueMaskLeaf, err := readMask(cur, Level3.MaskWords())
		if err != nil {
			return nil, err
		}
		leaf := newLeafNode[V]()
		copy(leaf.ValueMask[:], valueMaskLeaf)
		node4.Children[off] = leaf
		*leaves = append(*leaves, leaf)
	}

	return node4, nil
}

// readMask reads n little-endian uint64 words (a child_mask or value_mask).
func readMask(cur *cursor, n int) ([]uint64, error) {
	buf := make([]byte, n*8)
	if err := cur.read(buf); err != nil {
		return nil, WrapError(KindIO, "reading bitmask", err)
	}
	out := make([]uint64, n)
	for i := 0; i < n; i++ {
		out[i] = binary.LittleEndian.Uint64(buf[i*8 : i*8+8])
	}
	return out, nil
}

// scatterTiles maps a decoded tile-value sequence back onto a full-size
// Tiles array. At file versions ≥222 the sequence already has one entry
// per offset (childMask-owned offsets carry a value that is simply never
// consulted); before that, the sequence only has one entry per non-child
// offset, in ascending order, per §4.5's pre-222 sizing rule.
func scatterTiles[V Numeric](tiles []V, childMask []uint64, values []V, compact bool) {
	if !compact {
		copy(tiles, values)
		return
	}
	idx := 0
	for off := 0; off < len(tiles); off++ {
		if testBit(childMask, off) {
			continue
		}
		tiles[off] = values[idx]
		idx++
	}
}

func readCoord(cur *cursor) ([3]int32, error) {
	var c [3]int32
	for i := range c {
		v, err := cur.readInt32()
		if err != nil {
			return c, WrapError(KindIO, "reading coordinate", err)
		}
		c[i] = v
	}
	return c, nil
}

// childOriginOf returns the global origin of the child block at offset off
// within a parent block of the given level, rooted at parentOrigin.
func childOriginOf(parentOrigin [3]int32, level Level, off int) [3]int32 {
	rel := level.OffsetToChild(off)
	shift := level.ChildLog2D()
	return [3]int32{
		parentOrigin[0] + rel[0]<<shift,
		parentOrigin[1] + rel[1]<<shift,
		parentOrigin[2] + rel[2]<<shift,
	}
}

// isSinglePrecisionTypeTag reports whether an OpenVDB grid type name (e.g.
// "Tree_float_5_4_3") names a single-precision scalar grid, the case where
// §4.6's half-float quirk forces 16-bit reads even without the metadata
// flag set.
func isSinglePrecisionTypeTag(gridType string) bool {
	lower := strings.ToLower(gridType)
	return strings.Contains(lower, "float") && !strings.Contains(lower, "double") && !strings.Contains(lower, "half")
}
