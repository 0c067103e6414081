package core

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeVec3d(buf *bytes.Buffer, v Vec3d) {
	for _, f := range v {
		_ = binary.Write(buf, binary.LittleEndian, f)
	}
}

func TestReadTransformUniformScaleMap(t *testing.T) {
	var buf bytes.Buffer
	writeLenString(&buf, "UniformScaleMap")
	for i := 0; i < 5; i++ {
		writeVec3d(&buf, Vec3d{float64(i), float64(i) + 0.5, float64(i) + 0.25})
	}

	cur := newCursor(bytes.NewReader(buf.Bytes()), 0)
	tr, err := ReadTransform(cur)
	require.NoError(t, err)

	assert.Equal(t, TransformUniformScale, tr.Kind)
	assert.Equal(t, Vec3d{}, tr.Translation)
	assert.Equal(t, Vec3d{0, 0.5, 0.25}, tr.ScaleValues)
	assert.Equal(t, Vec3d{1, 1.5, 1.25}, tr.VoxelSize)
}

func TestReadTransformScaleTranslateMap(t *testing.T) {
	var buf bytes.Buffer
	writeLenString(&buf, "ScaleTranslateMap")
	for i := 0; i < 6; i++ {
		writeVec3d(&buf, Vec3d{float64(i), float64(i), float64(i)})
	}

	cur := newCursor(bytes.NewReader(buf.Bytes()), 0)
	tr, err := ReadTransform(cur)
	require.NoError(t, err)

	assert.Equal(t, TransformScaleTranslate, tr.Kind)
	assert.Equal(t, Vec3d{0, 0, 0}, tr.Translation)
	assert.Equal(t, Vec3d{1, 1, 1}, tr.ScaleValues)
}

func TestReadTransformRejectsUnknownMapType(t *testing.T) {
	var buf bytes.Buffer
	writeLenString(&buf, "NonlinearFrustumMap")

	cur := newCursor(bytes.NewReader(buf.Bytes()), 0)
	_, err := ReadTransform(cur)
	require.Error(t, err)
}
