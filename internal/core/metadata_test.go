package core

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLenString(buf *bytes.Buffer, s string) {
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(s)))
	buf.WriteString(s)
}

func writeMetadataRecord(buf *bytes.Buffer, name, tag string, payload []byte) {
	writeLenString(buf, name)
	writeLenString(buf, tag)
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(payload)))
	buf.Write(payload)
}

func TestReadMetadataAllKnownTags(t *testing.T) {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint32(6))

	writeMetadataRecord(&buf, "name", "string", []byte("density"))
	writeMetadataRecord(&buf, "is_saved_as_half_float", "bool", []byte{1})

	i32 := make([]byte, 4)
	neg := int32(-7)
	binary.LittleEndian.PutUint32(i32, uint32(neg))
	writeMetadataRecord(&buf, "count", "int32", i32)

	i64 := make([]byte, 8)
	binary.LittleEndian.PutUint64(i64, uint64(int64(42)))
	writeMetadataRecord(&buf, "voxel_count", "int64", i64)

	f32 := make([]byte, 4)
	binary.LittleEndian.PutUint32(f32, 0x3F800000) // 1.0f
	writeMetadataRecord(&buf, "half_width", "float", f32)

	vec := make([]byte, 12)
	binary.LittleEndian.PutUint32(vec[0:4], uint32(int32(1)))
	binary.LittleEndian.PutUint32(vec[4:8], uint32(int32(2)))
	binary.LittleEndian.PutUint32(vec[8:12], uint32(int32(3)))
	writeMetadataRecord(&buf, "file_bbox_min", "vec3i", vec)

	cur := newCursor(bytes.NewReader(buf.Bytes()), 0)
	meta, err := ReadMetadata(cur)
	require.NoError(t, err)

	nameVal, ok := meta.Get("name")
	require.True(t, ok)
	assert.Equal(t, "density", nameVal.String)

	assert.True(t, meta.IsSavedAsHalfFloat())

	countVal, _ := meta.Get("count")
	assert.EqualValues(t, -7, countVal.Int32)

	voxelVal, _ := meta.Get("voxel_count")
	assert.EqualValues(t, 42, voxelVal.Int64)

	floatVal, _ := meta.Get("half_width")
	assert.Equal(t, float32(1.0), floatVal.Float)

	bboxVal, _ := meta.Get("file_bbox_min")
	assert.Equal(t, [3]int32{1, 2, 3}, bboxVal.Vec3i)
}

func TestReadMetadataUnknownTagPreservesPayload(t *testing.T) {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint32(1))
	writeMetadataRecord(&buf, "mystery", "some_future_type", []byte{9, 9, 9})

	cur := newCursor(bytes.NewReader(buf.Bytes()), 0)
	meta, err := ReadMetadata(cur)
	require.NoError(t, err)

	val, ok := meta.Get("mystery")
	require.True(t, ok)
	assert.Equal(t, []byte{9, 9, 9}, val.Unknown)
}

func TestMetadataOrderPreservesInsertion(t *testing.T) {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint32(2))
	writeMetadataRecord(&buf, "b", "bool", []byte{0})
	writeMetadataRecord(&buf, "a", "bool", []byte{1})

	cur := newCursor(bytes.NewReader(buf.Bytes()), 0)
	meta, err := ReadMetadata(cur)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, meta.Order)
}
