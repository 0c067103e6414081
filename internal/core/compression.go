package core

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"math/bits"

	"github.com/openvdb-go/vdb/internal/utils"
)

// nodeMetaTag is the per-node byte (read only for file versions ≥222) that
// picks how a value buffer's inactive regions are represented.
type nodeMetaTag uint8

const (
	nodeMetaNoMaskNoInactive    nodeMetaTag = 0
	nodeMetaNoMaskBackgroundMinus nodeMetaTag = 1
	nodeMetaNoMaskOneInactive   nodeMetaTag = 2
	nodeMetaMaskNoInactive      nodeMetaTag = 3
	nodeMetaMaskOneInactive     nodeMetaTag = 4
	nodeMetaMaskTwoInactive     nodeMetaTag = 5
	nodeMetaNoMaskAllValues     nodeMetaTag = 6
)

// readValueBuffer reads one level's worth of tile/leaf values (levelSize of
// them), expanding an elided inactive-voxel encoding back out to a full
// dense array using valueMask. background is only consulted for the
// nodeMetaNoMaskBackgroundMinus tag, which OpenVDB emits for nodes whose
// inactive values are uniformly "background, negated" (used by narrow-band
// level sets); this reader treats it as background verbatim and does not
// apply the negation.
func readValueBuffer[V Numeric](cur *cursor, levelSize int, valueMask []uint64, comp Compression, fileVersion uint32, background V, forceHalf bool) ([]V, error) {
	tag := nodeMetaNoMaskAllValues
	if fileVersion >= VersionNodeMaskCompress {
		raw, err := cur.readByte()
		if err != nil {
			return nil, WrapError(KindIO, "reading node metadata tag", err)
		}
		if raw > uint8(nodeMetaNoMaskAllValues) {
			return nil, NewError(KindInvalidNodeMetadata, itoa(int(raw)))
		}
		tag = nodeMetaTag(raw)
	}

	var inactive0, inactive1 V
	var selectionMask []uint64
	hasSelection := tag == nodeMetaMaskNoInactive || tag == nodeMetaMaskOneInactive || tag == nodeMetaMaskTwoInactive

	switch tag {
	case nodeMetaNoMaskBackgroundMinus:
		inactive0 = background
	case nodeMetaNoMaskOneInactive, nodeMetaMaskOneInactive:
		v, err := cur.readUint32()
		if err != nil {
			return nil, WrapError(KindIO, "reading inactive value", err)
		}
		inactive0 = ValueFromLE4[V](v)
	case nodeMetaMaskTwoInactive:
		v0, err := cur.readUint32()
		if err != nil {
			return nil, WrapError(KindIO, "reading first inactive value", err)
		}
		v1, err := cur.readUint32()
		if err != nil {
			return nil, WrapError(KindIO, "reading second inactive value", err)
		}
		inactive0 = ValueFromLE4[V](v0)
		inactive1 = ValueFromLE4[V](v1)
	}

	if hasSelection {
		words := levelSize / 64
		selectionMask = make([]uint64, words)
		buf := utils.GetBuffer(words * 8)
		defer utils.ReleaseBuffer(buf)
		if err := cur.read(buf); err != nil {
			return nil, WrapError(KindIO, "reading selection mask", err)
		}
		for i := 0; i < words; i++ {
			selectionMask[i] = binary.LittleEndian.Uint64(buf[i*8 : i*8+8])
		}
	}

	elementCount := levelSize
	if comp.Has(CompressionActiveMask) && tag != nodeMetaNoMaskAllValues && fileVersion >= VersionNodeMaskCompress {
		elementCount = popcountWords(valueMask)
	}

	decoded, err := decodeValueSequence[V](cur, elementCount, comp, forceHalf)
	if err != nil {
		return nil, err
	}

	if len(decoded) == levelSize {
		return decoded, nil
	}

	out := make([]V, levelSize)
	src := 0
	for i := 0; i < levelSize; i++ {
		if testBit(valueMask, i) {
			if src >= len(decoded) {
				return nil, NewError(KindUnexpectedMaskLength, "value mask popcount exceeds decoded values")
			}
			out[i] = decoded[src]
			src++
			continue
		}
		if hasSelection && testBit(selectionMask, i) {
			out[i] = inactive1
		} else {
			out[i] = inactive0
		}
	}
	return out, nil
}

// decodeValueSequence reads count values of type V from cur, dispatching to
// Blosc, zlib or a raw read per the priority in §4.6 (Blosc first, then
// Zip, then uncompressed). The Blosc and Zip branches begin with an 8-byte
// signed length (the uncompressed branch has none): a non-positive length means the data was stored raw with
// -length/sizeof(T) values, which lets the writer skip compression for
// buffers too small to benefit from it.
func decodeValueSequence[V Numeric](cur *cursor, count int, comp Compression, forceHalf bool) ([]V, error) {
	width := ByteWidth[V]()
	if forceHalf {
		width = 2
	}

	if !comp.Has(CompressionBlosc) && !comp.Has(CompressionZip) {
		return readRawValues[V](cur, count, forceHalf)
	}

	lengthRaw, err := cur.readUint64()
	if err != nil {
		return nil, WrapError(KindIO, "reading compressed length", err)
	}
	length := int64(lengthRaw)

	switch {
	case comp.Has(CompressionBlosc):
		if length <= 0 {
			return readRawValues[V](cur, int(-length)/width, forceHalf)
		}
		compressed := make([]byte, length)
		if err := cur.read(compressed); err != nil {
			return nil, WrapError(KindIO, "reading blosc block", err)
		}
		decodedBytes, err := bloscDecompress(compressed)
		if err != nil {
			return nil, err
		}
		n := len(decodedBytes) / width
		return valuesFromBytes[V](decodedBytes, n, forceHalf)

	case comp.Has(CompressionZip):
		if length <= 0 {
			return readRawValues[V](cur, int(-length)/width, forceHalf)
		}
		compressed := make([]byte, length)
		if err := cur.read(compressed); err != nil {
			return nil, WrapError(KindIO, "reading zip block", err)
		}
		r, err := zlib.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, WrapError(KindIO, "opening zlib stream", err)
		}
		defer func() { _ = r.Close() }()
		inflated, err := io.ReadAll(r)
		if err != nil {
			return nil, WrapError(KindIO, "inflating zip block", err)
		}
		return valuesFromBytes[V](inflated, count, forceHalf)

	default:
		return readRawValues[V](cur, count, forceHalf)
	}
}

func readRawValues[V Numeric](cur *cursor, count int, forceHalf bool) ([]V, error) {
	width := ByteWidth[V]()
	if forceHalf {
		width = 2
	}
	buf := make([]byte, count*width)
	if err := cur.read(buf); err != nil {
		return nil, WrapError(KindIO, "reading raw value buffer", err)
	}
	return valuesFromBytes[V](buf, count, forceHalf)
}

// valuesFromBytes decodes count little-endian values of width forceHalf?2:sizeof(V)
// from buf. When forceHalf is set and V is not itself Half, every sample is
// read as half-precision and widened to V (the quirk from §4.6: a
// half-float grid's metadata can go unnoticed while the single-precision
// type tag on disk still forces 16-bit reads).
func valuesFromBytes[V Numeric](buf []byte, count int, forceHalf bool) ([]V, error) {
	out := make([]V, count)
	width := ByteWidth[V]()
	if forceHalf {
		width = 2
	}
	if len(buf) < count*width {
		return nil, NewError(KindUnexpectedMaskLength, "value buffer shorter than element count")
	}

	for i := 0; i < count; i++ {
		off := i * width
		if forceHalf {
			bits16 := binary.LittleEndian.Uint16(buf[off : off+2])
			out[i] = ValueFromFloat32[V](Half(bits16).ToFloat32())
			continue
		}
		var zero V
		switch any(zero).(type) {
		case uint8:
			out[i] = any(buf[off]).(V)
		case uint16:
			out[i] = any(binary.LittleEndian.Uint16(buf[off : off+2])).(V)
		case Half:
			out[i] = any(Half(binary.LittleEndian.Uint16(buf[off : off+2]))).(V)
		case float32:
			out[i] = any(float32FromBits(binary.LittleEndian.Uint32(buf[off : off+4]))).(V)
		}
	}
	return out, nil
}

func popcountWords(words []uint64) int {
	n := 0
	for _, w := range words {
		n += bits.OnesCount64(w)
	}
	return n
}
