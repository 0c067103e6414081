package core

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadValueBufferNoneTagAllValues(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(uint8(nodeMetaNoMaskAllValues))
	for i := 0; i < 8; i++ {
		buf.WriteByte(byte(i))
	}

	cur := newCursor(bytes.NewReader(buf.Bytes()), 0)
	valueMask := make([]uint64, 1) // unused by tag 6
	out, err := readValueBuffer[uint8](cur, 8, valueMask, CompressionNone, VersionNodeMaskCompress, 0, false)
	require.NoError(t, err)
	for i, v := range out {
		assert.Equal(t, uint8(i), v)
	}
}

func TestReadValueBufferOneInactiveValueScatters(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(uint8(nodeMetaNoMaskOneInactive))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(99)) // inactive value (uint8 low byte = 99)

	// ACTIVE_MASK elision: only the popcount(value_mask) active values follow.
	valueMask := []uint64{0b101} // bits 0 and 2 active
	buf.WriteByte(10)
	buf.WriteByte(20)

	cur := newCursor(bytes.NewReader(buf.Bytes()), 0)
	out, err := readValueBuffer[uint8](cur, 8, valueMask, CompressionActiveMask, VersionNodeMaskCompress, 0, false)
	require.NoError(t, err)
	require.Len(t, out, 8)
	assert.Equal(t, uint8(10), out[0])
	assert.Equal(t, uint8(99), out[1])
	assert.Equal(t, uint8(20), out[2])
	assert.Equal(t, uint8(99), out[3])
}

func TestReadValueBufferTwoInactiveValuesUseSelectionMask(t *testing.T) {
	// levelSize must be a multiple of 64 so the selection mask (size/64
	// words) occupies a whole number of words; 64 is the smallest such
	// size and exercises exactly one word.
	const levelSize = 64

	var buf bytes.Buffer
	buf.WriteByte(uint8(nodeMetaMaskTwoInactive))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(1)) // inactive0
	_ = binary.Write(&buf, binary.LittleEndian, uint32(2)) // inactive1

	// selection mask: one word, bit 3 set -> position 3 gets inactive1.
	selection := make([]byte, 8)
	binary.LittleEndian.PutUint64(selection, 1<<3)
	buf.Write(selection)

	valueMask := []uint64{0b1} // only offset 0 active
	buf.WriteByte(55)

	cur := newCursor(bytes.NewReader(buf.Bytes()), 0)
	out, err := readValueBuffer[uint8](cur, levelSize, valueMask, CompressionActiveMask, VersionNodeMaskCompress, 0, false)
	require.NoError(t, err)
	assert.Equal(t, uint8(55), out[0])
	assert.Equal(t, uint8(1), out[1]) // not selected -> inactive0
	assert.Equal(t, uint8(2), out[3]) // selected -> inactive1
}

func TestReadValueBufferPreVersion222DefaultsToAllValues(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i < 4; i++ {
		buf.WriteByte(byte(i + 1))
	}

	cur := newCursor(bytes.NewReader(buf.Bytes()), 0)
	out, err := readValueBuffer[uint8](cur, 4, nil, CompressionNone, VersionBoostUUID, 0, false)
	require.NoError(t, err)
	assert.Equal(t, []uint8{1, 2, 3, 4}, out)
}

func TestReadValueBufferRejectsInvalidTag(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(7) // out of 0..=6

	cur := newCursor(bytes.NewReader(buf.Bytes()), 0)
	_, err := readValueBuffer[uint8](cur, 4, nil, CompressionNone, VersionNodeMaskCompress, 0, false)
	require.Error(t, err)
	var typed *Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, KindInvalidNodeMetadata, typed.Kind)
}

func TestDecodeValueSequenceBloscRawLengthPath(t *testing.T) {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, int64(-4)) // -4/1 = 4 raw uint8 values
	buf.Write([]byte{9, 8, 7, 6})

	cur := newCursor(bytes.NewReader(buf.Bytes()), 0)
	out, err := decodeValueSequence[uint8](cur, 4, CompressionBlosc, false)
	require.NoError(t, err)
	assert.Equal(t, []uint8{9, 8, 7, 6}, out)
}

func TestDecodeValueSequenceNoneHasNoLengthPrefix(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{1, 2, 3})

	cur := newCursor(bytes.NewReader(buf.Bytes()), 0)
	out, err := decodeValueSequence[uint8](cur, 3, CompressionNone, false)
	require.NoError(t, err)
	assert.Equal(t, []uint8{1, 2, 3}, out)
}

func TestHalfWideningQuirk(t *testing.T) {
	var buf bytes.Buffer
	half := FromFloat32(2.0)
	_ = binary.Write(&buf, binary.LittleEndian, uint16(half))

	cur := newCursor(bytes.NewReader(buf.Bytes()), 0)
	out, err := readRawValues[float32](cur, 1, true)
	require.NoError(t, err)
	assert.Equal(t, float32(2.0), out[0])
}
