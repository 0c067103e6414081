package core

import "io"

// GridDescriptor names one grid in the archive and the three stream
// positions needed to seek to it: its own header, its leaf block data,
// and the next grid descriptor.
type GridDescriptor struct {
	Name            string
	GridType        string
	InstanceParent  string
	GridPos         uint64
	BlockPos        uint64
	EndPos          uint64
	Compression     Compression
	Metadata        Metadata
	FileBboxMin     [3]int32
}

// ReadGridDescriptors reads header.GridCount grid descriptors starting
// just after the archive header, seeking to each descriptor's EndPos
// before reading the next so grid-specific metadata that exceeds the
// table's fixed layout never misaligns the stream.
func ReadGridDescriptors(r io.ReaderAt, header *ArchiveHeader) ([]GridDescriptor, error) {
	if !header.HasGridOffsets {
		return nil, NewError(KindIO, "archive lacks grid offsets")
	}

	cur := newCursor(r, header.descriptorTableOffset)
	descriptors := make([]GridDescriptor, 0, header.GridCount)

	for i := uint32(0); i < header.GridCount; i++ {
		name, err := cur.readLenString()
		if err != nil {
			return nil, WrapError(KindIO, "reading grid name", err)
		}
		gridType, err := cur.readLenString()
		if err != nil {
			return nil, WrapError(KindIO, "reading grid type", err)
		}
		instanceParent, err := cur.readLenString()
		if err != nil {
			return nil, WrapError(KindIO, "reading grid instance parent", err)
		}

		gridPos, err := cur.readUint64()
		if err != nil {
			return nil, WrapError(KindIO, "reading grid pos", err)
		}
		blockPos, err := cur.readUint64()
		if err != nil {
			return nil, WrapError(KindIO, "reading block pos", err)
		}
		endPos, err := cur.readUint64()
		if err != nil {
			return nil, WrapError(KindIO, "reading end pos", err)
		}

		desc := GridDescriptor{
			Name:           name,
			GridType:       gridType,
			InstanceParent: instanceParent,
			GridPos:        gridPos,
			BlockPos:       blockPos,
			EndPos:         endPos,
			Compression:    header.Compression,
		}

		if header.FileVersion >= VersionNodeMaskCompress {
			bits, err := cur.readUint32()
			if err != nil {
				return nil, WrapError(KindIO, "reading per-grid compression", err)
			}
			compression, err := ParseCompression(bits)
			if err != nil {
				return nil, err
			}
			desc.Compression = compression
		}

		meta, err := ReadMetadata(cur)
		if err != nil {
			return nil, err
		}
		desc.Metadata = meta

		bbox, ok := meta.Get("file_bbox_min")
		if !ok {
			return nil, NewError(KindMissingFileBboxMin, name)
		}
		desc.FileBboxMin = bbox.Vec3i

		descriptors = append(descriptors, desc)

		cur.seek(int64(endPos))
	}

	return descriptors, nil
}
