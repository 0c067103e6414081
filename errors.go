package vdb

import "github.com/openvdb-go/vdb/internal/core"

// Error is the error type Open, OpenReader and ReadGrid raise for a
// malformed or unsupported archive. Open returns os.Open's own error
// unchanged when the file cannot be opened, and PackAtlas reports an
// oversized atlas as a plain error, not an *Error.
type Error = core.Error

// Kind identifies one of the reader's fatal conditions.
type Kind = core.Kind

// Error kinds, re-exported so callers can switch on err.(*vdb.Error).Kind
// (or errors.As) without importing internal/core.
const (
	KindMagicMismatch          = core.KindMagicMismatch
	KindUnsupportedVersion     = core.KindUnsupportedVersion
	KindIO                     = core.KindIO
	KindBadUTF8                = core.KindBadUTF8
	KindInvalidCompression     = core.KindInvalidCompression
	KindUnknownGrid            = core.KindUnknownGrid
	KindMissingFileBboxMin     = core.KindMissingFileBboxMin
	KindInvalidNodeMetadata    = core.KindInvalidNodeMetadata
	KindUnsupportedBloscFormat = core.KindUnsupportedBloscFormat
	KindInvalidBloscData       = core.KindInvalidBloscData
	KindUnexpectedMaskLength   = core.KindUnexpectedMaskLength
)
