package core

// Vec3d is a 3-vector of double-precision floats, the width every affine
// map field is stored at.
type Vec3d [3]float64

// TransformKind names the affine map family a grid's transform uses.
type TransformKind int

const (
	TransformUniformScale TransformKind = iota
	TransformScaleTranslate
)

// Transform is a grid's per-instance affine map, stored verbatim for
// downstream use (§9: the atlas is index-space only, applying the
// transform is left to the renderer) and never consulted for tree shape.
type Transform struct {
	Kind           TransformKind
	Translation    Vec3d // zero for TransformUniformScale
	ScaleValues    Vec3d
	VoxelSize      Vec3d
	ScaleValuesInv Vec3d
	InvScaleSqr    Vec3d
	InvTwiceScale  Vec3d
	SourceTypeName string
}

// ReadTransform reads the length-prefixed map-type tag followed by five
// (uniform scale) or six (scale-translate) Vec3d fields.
func ReadTransform(cur *cursor) (Transform, error) {
	name, err := cur.readLenString()
	if err != nil {
		return Transform{}, WrapError(KindIO, "reading transform type name", err)
	}

	t := Transform{SourceTypeName: name}

	switch name {
	case "UniformScaleMap":
		t.Kind = TransformUniformScale
		if err := readVec3dInto(cur, &t.ScaleValues, &t.VoxelSize, &t.ScaleValuesInv, &t.InvScaleSqr, &t.InvTwiceScale); err != nil {
			return Transform{}, err
		}
	case "UniformScaleTranslateMap", "ScaleTranslateMap":
		t.Kind = TransformScaleTranslate
		if err := readVec3dInto(cur, &t.Translation, &t.ScaleValues, &t.VoxelSize, &t.ScaleValuesInv, &t.InvScaleSqr, &t.InvTwiceScale); err != nil {
			return Transform{}, err
		}
	default:
		return Transform{}, NewError(KindIO, "unsupported transform type "+name)
	}

	return t, nil
}

func readVec3dInto(cur *cursor, vecs ...*Vec3d) error {
	for _, v := range vecs {
		for i := range v {
			f, err := cur.readFloat64()
			if err != nil {
				return WrapError(KindIO, "reading transform vector", err)
			}
			v[i] = f
		}
	}
	return nil
}
