package core

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDescriptorTable(t *testing.T, version uint32, names []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, name := range names {
		writeLenString(&buf, name)
		writeLenString(&buf, "Tree_float_5_4_3")
		writeLenString(&buf, "")

		_ = binary.Write(&buf, binary.LittleEndian, uint64(1000)) // grid pos
		_ = binary.Write(&buf, binary.LittleEndian, uint64(2000)) // block pos
		endPosOffset := buf.Len()
		_ = binary.Write(&buf, binary.LittleEndian, uint64(0)) // end pos, patched below

		if version >= VersionNodeMaskCompress {
			_ = binary.Write(&buf, binary.LittleEndian, uint32(CompressionBlosc|CompressionActiveMask))
		}

		_ = binary.Write(&buf, binary.LittleEndian, uint32(1)) // one metadata record
		writeMetadataRecord(&buf, "file_bbox_min", "vec3i", make([]byte, 12))

		data := buf.Bytes()
		binary.LittleEndian.PutUint64(data[endPosOffset:endPosOffset+8], uint64(buf.Len()))
	}
	return buf.Bytes()
}

func headerWithDescriptorOffset(version uint32, gridCount uint32, tableOffset int64) *ArchiveHeader {
	return &ArchiveHeader{
		FileVersion:           version,
		HasGridOffsets:        true,
		Compression:           CompressionZip | CompressionActiveMask,
		GridCount:             gridCount,
		descriptorTableOffset: tableOffset,
	}
}

func TestReadGridDescriptorsParsesNamesAndPositions(t *testing.T) {
	table := buildDescriptorTable(t, VersionNodeMaskCompress, []string{"density", "temperature"})
	header := headerWithDescriptorOffset(VersionNodeMaskCompress, 2, 0)

	descs, err := ReadGridDescriptors(bytes.NewReader(table), header)
	require.NoError(t, err)
	require.Len(t, descs, 2)
	assert.Equal(t, "density", descs[0].Name)
	assert.Equal(t, "temperature", descs[1].Name)
	assert.EqualValues(t, 1000, descs[0].GridPos)
	assert.EqualValues(t, 2000, descs[0].BlockPos)
	assert.Equal(t, CompressionBlosc|CompressionActiveMask, descs[0].Compression)
}

func TestReadGridDescriptorsRequiresFileBboxMin(t *testing.T) {
	var buf bytes.Buffer
	writeLenString(&buf, "density")
	writeLenString(&buf, "Tree_float_5_4_3")
	writeLenString(&buf, "")
	_ = binary.Write(&buf, binary.LittleEndian, uint64(0))
	_ = binary.Write(&buf, binary.LittleEndian, uint64(0))
	_ = binary.Write(&buf, binary.LittleEndian, uint64(0))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(0)) // no metadata records at all

	header := headerWithDescriptorOffset(VersionBoostUUID, 1, 0)
	_, err := ReadGridDescriptors(bytes.NewReader(buf.Bytes()), header)
	require.Error(t, err)
	var typed *Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, KindMissingFileBboxMin, typed.Kind)
}

func TestReadGridDescriptorsRequiresGridOffsets(t *testing.T) {
	header := &ArchiveHeader{HasGridOffsets: false}
	_, err := ReadGridDescriptors(bytes.NewReader(nil), header)
	require.Error(t, err)
}
