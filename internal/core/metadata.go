package core

// MetadataValue is the decoded payload of one metadata record. Exactly
// one field is meaningful, picked by the record's type tag; an
// unrecognised tag preserves the raw payload in Unknown and is logged by
// the caller rather than rejected.
type MetadataValue struct {
	Tag     string
	String  string
	Bool    bool
	Int32   int32
	Int64   int64
	Float   float32
	Vec3i   [3]int32
	Unknown []byte
}

// Metadata is a name-keyed set of metadata records (grid or archive
// level), preserving insertion order for deterministic re-dumping.
type Metadata struct {
	Order  []string
	Values map[string]MetadataValue
}

// Get looks up a record by name.
func (m Metadata) Get(name string) (MetadataValue, bool) {
	v, ok := m.Values[name]
	return v, ok
}

// IsSavedAsHalfFloat reports the grid metadata flag that forces 16-bit
// leaf-buffer reads (§4.6).
func (m Metadata) IsSavedAsHalfFloat() bool {
	v, ok := m.Get("is_saved_as_half_float")
	return ok && v.Bool
}

// ReadMetadata reads a metadata block: a 4-byte record count followed by
// that many (name, type, length, payload) records.
func ReadMetadata(cur *cursor) (Metadata, error) {
	count, err := cur.readUint32()
	if err != nil {
		return Metadata{}, WrapError(KindIO, "reading metadata count", err)
	}

	meta := Metadata{Values: make(map[string]MetadataValue, count)}

	for i := uint32(0); i < count; i++ {
		name, err := cur.readLenString()
		if err != nil {
			return Metadata{}, WrapError(KindIO, "reading metadata name", err)
		}
		tag, err := cur.readLenString()
		if err != nil {
			return Metadata{}, WrapError(KindIO, "reading metadata type tag", err)
		}
		length, err := cur.readUint32()
		if err != nil {
			return Metadata{}, WrapError(KindIO, "reading metadata payload length", err)
		}

		value := MetadataValue{Tag: tag}

		switch tag {
		case "string":
			buf := make([]byte, length)
			if err := cur.read(buf); err != nil {
				return Metadata{}, WrapError(KindIO, "reading string metadata", err)
			}
			value.String = string(buf)
		case "bool":
			b, err := cur.readByte()
			if err != nil {
				return Metadata{}, WrapError(KindIO, "reading bool metadata", err)
			}
			value.Bool = b != 0
		case "int32":
			v, err := cur.readInt32()
			if err != nil {
				return Metadata{}, WrapError(KindIO, "reading int32 metadata", err)
			}
			value.Int32 = v
		case "int64":
			v, err := cur.readUint64()
			if err != nil {
				return Metadata{}, WrapError(KindIO, "reading int64 metadata", err)
			}
			value.Int64 = int64(v)
		case "float":
			v, err := cur.readUint32()
			if err != nil {
				return Metadata{}, WrapError(KindIO, "reading float metadata", err)
			}
			value.Float = float32FromBits(v)
		case "vec3i":
			var vec [3]int32
			for i := range vec {
				v, err := cur.readInt32()
				if err != nil {
					return Metadata{}, WrapError(KindIO, "reading vec3i metadata", err)
				}
				vec[i] = v
			}
			value.Vec3i = vec
		default:
			buf := make([]byte, length)
			if err := cur.read(buf); err != nil {
				return Metadata{}, WrapError(KindIO, "reading unknown metadata payload", err)
			}
			value.Unknown = buf
			logUnknownMetadata(name, tag)
		}

		meta.Values[name] = value
		meta.Order = append(meta.Order, name)
	}

	return meta, nil
}
