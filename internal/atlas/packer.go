// Package atlas flattens a sparse VDB tree into the dense 3-D arrays plus
// side tables consumed by a GPU ray-marcher, the way internal/structures
// builds the teacher's own dense derived views (fractal heap / B-tree v2
// table builders) over its sparse on-disk structures.
package atlas

import (
	"math"
	"sort"

	"github.com/openvdb-go/vdb/internal/core"
	"github.com/openvdb-go/vdb/internal/utils"
)

// DenseBlock is one inner-level atlas: a cubic arrangement of side^3
// block slots, each dim^3 cells wide, stored as a flat row-major array of
// 32-bit cells (child slot indices or widened tile values).
type DenseBlock struct {
	Side  int
	Dim   int
	Cells []uint32
}

// FullDim is the atlas's per-axis cell count: Side*Dim.
func (b DenseBlock) FullDim() int { return b.Side * b.Dim }

// LeafBlock is the level-3 atlas: same cubic arrangement, but cells hold
// the grid's native value type rather than a widened index.
type LeafBlock[V core.Numeric] struct {
	Side  int
	Dim   int
	Cells []V
}

// FullDim is the atlas's per-axis cell count: Side*Dim.
func (b LeafBlock[V]) FullDim() int { return b.Side * b.Dim }

// Masks bundles the five parallel bit-mask sequences in atlas order, each
// repacked from 64-bit words into 32-bit words (low word first, high word
// second) so the layout matches what a GPU-side reader expects.
type Masks struct {
	Level5Child []uint32
	Level5Value []uint32
	Level4Child []uint32
	Level4Value []uint32
	Level3Value []uint32
}

// Atlas is the packer's full output: three dense arrays, the five mask
// sequences, and the root origin list.
type Atlas[V core.Numeric] struct {
	Level5  DenseBlock
	Level4  DenseBlock
	Level3  LeafBlock[V]
	Masks   Masks
	Origins [][4]int32
}

// Pack linearises tree into an Atlas. The traversal order is
// deterministic (root-key ascending, then offset order within each
// block), so repeated calls on the same tree produce byte-identical
// output (INV-5). Returns an error rather than allocating if a level's
// node count would need a dense cube bigger than utils.MaxNodeAtlasCells,
// guarding against a corrupt or adversarial grid driving an unbounded
// allocation.
func Pack[V core.Numeric](tree *core.Tree[V]) (Atlas[V], error) {
	n5, n4, n3 := tree.CountNodes()

	a := Atlas[V]{
		Level5: DenseBlock{Side: sideLen(n5), Dim: core.Level5.Dim()},
		Level4: DenseBlock{Side: sideLen(n4), Dim: core.Level4.Dim()},
		Level3: LeafBlock[V]{Side: sideLen(n3), Dim: core.Level3.Dim()},
	}

	cellCount5, err := checkedCubeCells(a.Level5.FullDim())
	if err != nil {
		return Atlas[V]{}, err
	}
	cellCount4, err := checkedCubeCells(a.Level4.FullDim())
	if err != nil {
		return Atlas[V]{}, err
	}
	cellCount3, err := checkedCubeCells(a.Level3.FullDim())
	if err != nil {
		return Atlas[V]{}, err
	}

	a.Level5.Cells = make([]uint32, cellCount5)
	a.Level4.Cells = make([]uint32, cellCount4)
	a.Level3.Cells = make([]V, cellCount3)

	roots := sortedRootKeys(tree)
	a.Origins = make([][4]int32, 0, len(roots))

	n4Slot, n3Slot := 0, 0

	for l5Slot, key := range roots {
		entry := tree.Root.Map[key]
		node5 := entry.Node

		a.Origins = append(a.Origins, [4]int32{node5.Origin[0], node5.Origin[1], node5.Origin[2], 0})
		appendMaskWords(&a.Masks.Level5Child, node5.ChildMask[:])
		appendMaskWords(&a.Masks.Level5Value, node5.ValueMask[:])

		for off5, node4 := range node5.Children {
			if node4 == nil {
				if core.TestBit(node5.ValueMask[:], off5) {
					writeCell(a.Level5, l5Slot, off5, uint32FromValue(node5.Tiles[off5]))
				}
				continue
			}

			writeCell(a.Level5, l5Slot, off5, uint32(n4Slot))

			appendMaskWords(&a.Masks.Level4Child, node4.ChildMask[:])
			appendMaskWords(&a.Masks.Level4Value, node4.ValueMask[:])

			for off4, leaf := range node4.Children {
				if leaf == nil {
					if core.TestBit(node4.ValueMask[:], off4) {
						writeCell(a.Level4, n4Slot, off4, uint32FromValue(node4.Tiles[off4]))
					}
					continue
				}

				writeCell(a.Level4, n4Slot, off4, uint32(n3Slot))
				appendMaskWords(&a.Masks.Level3Value, leaf.ValueMask[:])

				for off3, v := range leaf.Data {
					if core.TestBit(leaf.ValueMask[:], off3) {
						writeLeafCell(a.Level3, n3Slot, off3, v)
					}
				}

				n3Slot++
			}

			n4Slot++
		}
	}

	return a, nil
}

// checkedCubeCells computes fullDim^3, the flat cell count for a dense
// atlas block, failing instead of silently wrapping or allocating
// something unreasonable when fullDim is large enough that the cube
// would overflow uint64 or exceed utils.MaxNodeAtlasCells.
func checkedCubeCells(fullDim int) (int, error) {
	n := uint64(fullDim)
	square, err := utils.SafeMultiply(n, n)
	if err != nil {
		return 0, err
	}
	total, err := utils.SafeMultiply(square, n)
	if err != nil {
		return 0, err
	}
	if err := utils.ValidateBufferSize(total, utils.MaxNodeAtlasCells, "atlas block cell count"); err != nil {
		return 0, err
	}
	return int(total), nil
}

func sortedRootKeys[V core.Numeric](tree *core.Tree[V]) [][3]int32 {
	keys := make([][3]int32, 0, len(tree.Root.Map))
	for k, entry := range tree.Root.Map {
		if entry.IsNode() {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		if a[1] != b[1] {
			return a[1] < b[1]
		}
		return a[2] < b[2]
	})
	return keys
}

// sideLen computes ceil(count^(1/3)), the per-axis slot count needed to
// arrange count blocks in a cube. count == 0 still reserves a single slot
// so an empty level's atlas is a well-formed (if unused) 1-block cube.
func sideLen(count int) int {
	if count <= 0 {
		return 1
	}
	side := int(math.Ceil(math.Cbrt(float64(count))))
	for side*side*side < count {
		side++
	}
	return side
}

// writeCell stores a child-slot index or widened tile value into an inner
// atlas block at (blockSlot, entryOffset), mapping the block's own
// per-axis Dim coordinate (from entryOffset) into the atlas's flat array.
func writeCell(b DenseBlock, blockSlot, entryOffset int, v uint32) {
	full := b.FullDim()
	bx, by, bz := blockCoord(blockSlot, b.Side)
	lx, ly, lz := localCoord(entryOffset, b.Dim)
	idx := flatIndex(bx*b.Dim+lx, by*b.Dim+ly, bz*b.Dim+lz, full)
	b.Cells[idx] = v
}

func writeLeafCell[V core.Numeric](b LeafBlock[V], blockSlot, entryOffset int, v V) {
	full := b.FullDim()
	bx, by, bz := blockCoord(blockSlot, b.Side)
	lx, ly, lz := localCoord(entryOffset, b.Dim)
	idx := flatIndex(bx*b.Dim+lx, by*b.Dim+ly, bz*b.Dim+lz, full)
	b.Cells[idx] = v
}

func blockCoord(slot, side int) (x, y, z int) {
	z = slot % side
	y = (slot / side) % side
	x = slot / (side * side)
	return
}

// localCoord recovers a node entry's (x,y,z) within its dim^3 block from
// its linear offset, the same bit packing OffsetOf/OffsetToChild use.
func localCoord(offset, dim int) (x, y, z int) {
	shift := 0
	for 1<<shift < dim {
		shift++
	}
	mask := dim - 1
	x = (offset >> (2 * shift)) & mask
	y = (offset >> shift) & mask
	z = offset & mask
	return
}

func flatIndex(x, y, z, full int) int {
	return (x*full+y)*full + z
}

// appendMaskWords repacks 64-bit mask words into 32-bit words (low word
// first, high word second) and appends them to dst.
func appendMaskWords(dst *[]uint32, words []uint64) {
	for _, w := range words {
		*dst = append(*dst, uint32(w), uint32(w>>32))
	}
}

func uint32FromValue[V core.Numeric](v V) uint32 {
	switch x := any(v).(type) {
	case uint8:
		return uint32(x)
	case uint16:
		return uint32(x)
	case core.Half:
		return uint32(x)
	case float32:
		return math.Float32bits(x)
	default:
		return 0
	}
}
