package core

import (
	"log/slog"
	"math"
	"strconv"
	"unicode/utf8"
)

func itoa(v int) string { return strconv.Itoa(v) }

func isValidUTF8(b []byte) bool { return utf8.Valid(b) }

func float64FromBits(bits uint64) float64 { return math.Float64frombits(bits) }

func float32FromBits(bits uint32) float32 { return math.Float32frombits(bits) }

// Logger receives non-fatal parse events (currently only an unrecognised
// metadata tag). Defaults to slog's default logger; vdb.Open's
// WithLogger option replaces it for the duration of the process, matching
// the single-threaded, cooperative resource model (§5) the reader runs
// under.
var Logger = slog.Default()

func logUnknownMetadata(name, tag string) {
	Logger.Warn("unknown metadata value", "name", name, "tag", tag)
}
