package vdb

import "log/slog"

// Option configures Open the way the teacher's FileWriterOption
// configures its own writer: small functional-option structs applied in
// order over a private options struct.
type Option func(*openOptions)

type openOptions struct {
	logger      *slog.Logger
	maxGridSize uint64
}

func defaultOpenOptions() openOptions {
	return openOptions{logger: slog.Default()}
}

// WithLogger overrides where non-fatal parse events (an unrecognised
// metadata tag, for instance) are logged. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *openOptions) { o.logger = logger }
}

// WithMaxGridSize rejects grids whose declared tree would need more than
// n total node entries (summed across all three levels) to pack into an
// atlas, guarding the atlas packer's dense cube allocation against a
// corrupt or adversarial grid count. Zero (the default) means unlimited.
func WithMaxGridSize(n uint64) Option {
	return func(o *openOptions) { o.maxGridSize = n }
}
