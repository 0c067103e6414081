package core

import (
	"encoding/binary"
	"io"

	"github.com/openvdb-go/vdb/internal/utils"
)

// Magic is the 8-byte signature every OpenVDB archive opens with.
const Magic = "\x20\x56\x44\x42\x00\x00\x00\x00"

// File version gates, named the way the format itself names them.
const (
	VersionBoostUUID          = 218 // minimum accepted version
	VersionSelectiveCompress  = 220
	VersionNodeMaskCompress   = 222
	VersionPerGridCompression = 223
)

// Compression is the archive/grid-level compression flag set.
type Compression uint32

// Compression bits. Any bit outside this set is rejected.
const (
	CompressionNone       Compression = 0
	CompressionZip        Compression = 1
	CompressionActiveMask Compression = 2
	CompressionBlosc      Compression = 4

	compressionKnownBits = CompressionZip | CompressionActiveMask | CompressionBlosc
)

// ParseCompression validates a raw compression flag word.
func ParseCompression(bits uint32) (Compression, error) {
	if Compression(bits)&^compressionKnownBits != 0 {
		return 0, NewError(KindInvalidCompression, "unknown compression bits")
	}
	return Compression(bits), nil
}

// Has reports whether flag is set in c.
func (c Compression) Has(flag Compression) bool { return c&flag != 0 }

// ArchiveHeader is the OpenVDB file header: format version, library
// version, UUID, archive-wide metadata and the grid count that follows.
type ArchiveHeader struct {
	FileVersion    uint32
	LibraryMajor   uint32
	LibraryMinor   uint32
	HasGridOffsets bool
	Compression    Compression
	UUID           string
	Metadata       Metadata
	GridCount      uint32

	// descriptorTableOffset is the stream position immediately following
	// the header, where the per-grid descriptor table begins.
	descriptorTableOffset int64
}

// ReadHeader reads and parses the archive header starting at offset 0,
// the way the teacher's ReadSuperblock parses a fixed-layout header and
// branches on a version field to pick the right field layout.
func ReadHeader(r io.ReaderAt) (*ArchiveHeader, error) {
	cur := newCursor(r, 0)

	magic := make([]byte, 8)
	if err := cur.read(magic); err != nil {
		return nil, WrapError(KindIO, "reading magic", err)
	}
	if string(magic) != Magic {
		return nil, NewError(KindMagicMismatch, "")
	}

	fileVersion, err := cur.readUint32()
	if err != nil {
		return nil, WrapError(KindIO, "reading file version", err)
	}
	if fileVersion < VersionBoostUUID {
		return nil, NewError(KindUnsupportedVersion, itoa(int(fileVersion)))
	}

	libMajor, err := cur.readUint32()
	if err != nil {
		return nil, WrapError(KindIO, "reading library major version", err)
	}
	libMinor, err := cur.readUint32()
	if err != nil {
		return nil, WrapError(KindIO, "reading library minor version", err)
	}

	hasOffsetsByte, err := cur.readByte()
	if err != nil {
		return nil, WrapError(KindIO, "reading has-offsets flag", err)
	}

	compression := CompressionZip | CompressionActiveMask
	if fileVersion >= VersionPerGridCompression {
		compression = CompressionBlosc | CompressionActiveMask
	}

	if fileVersion >= VersionSelectiveCompress && fileVersion < VersionNodeMaskCompress {
		isCompressed, err := cur.readByte()
		if err != nil {
			return nil, WrapError(KindIO, "reading legacy compression flag", err)
		}
		if isCompressed == 1 {
			compression = CompressionZip
		} else {
			compression = CompressionNone
		}
	}

	uuid := make([]byte, 36)
	if err := cur.read(uuid); err != nil {
		return nil, WrapError(KindIO, "reading uuid", err)
	}

	meta, err := ReadMetadata(cur)
	if err != nil {
		return nil, err
	}

	gridCount, err := cur.readUint32()
	if err != nil {
		return nil, WrapError(KindIO, "reading grid count", err)
	}

	return &ArchiveHeader{
		FileVersion:           fileVersion,
		LibraryMajor:          libMajor,
		LibraryMinor:          libMinor,
		HasGridOffsets:        hasOffsetsByte != 0,
		Compression:           compression,
		UUID:                  string(uuid),
		Metadata:              meta,
		GridCount:             gridCount,
		descriptorTableOffset: cur.tell(),
	}, nil
}

// cursor is a small streaming reader over an io.ReaderAt, tracking its own
// offset the way callers otherwise thread a running position by hand.
// Buffers for small fixed reads come from the pool, matching
// utils.GetBuffer/ReleaseBuffer's use in the teacher's own header parser.
type cursor struct {
	r   io.ReaderAt
	pos int64
}

func newCursor(r io.ReaderAt, pos int64) *cursor {
	return &cursor{r: r, pos: pos}
}

func (c *cursor) seek(pos int64) { c.pos = pos }

func (c *cursor) tell() int64 { return c.pos }

func (c *cursor) read(p []byte) error {
	n, err := c.r.ReadAt(p, c.pos)
	c.pos += int64(n)
	if err != nil && !(err == io.EOF && n == len(p)) {
		return err
	}
	return nil
}

func (c *cursor) readByte() (byte, error) {
	buf := utils.GetBuffer(1)
	defer utils.ReleaseBuffer(buf)
	if err := c.read(buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (c *cursor) readUint32() (uint32, error) {
	buf := utils.GetBuffer(4)
	defer utils.ReleaseBuffer(buf)
	if err := c.read(buf); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

func (c *cursor) readInt32() (int32, error) {
	v, err := c.readUint32()
	return int32(v), err
}

func (c *cursor) readUint64() (uint64, error) {
	buf := utils.GetBuffer(8)
	defer utils.ReleaseBuffer(buf)
	if err := c.read(buf); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}

func (c *cursor) readFloat64() (float64, error) {
	v, err := c.readUint64()
	return float64FromBits(v), err
}

func (c *cursor) readLenString() (string, error) {
	n, err := c.readUint32()
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if err := c.read(buf); err != nil {
		return "", err
	}
	if !isValidUTF8(buf) {
		return "", NewError(KindBadUTF8, "")
	}
	return string(buf), nil
}
