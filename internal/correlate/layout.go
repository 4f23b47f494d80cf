package correlate

import (
	"opfinder/internal/config"
	"opfinder/internal/pex"
	"opfinder/internal/xref"
)

const (
	DefaultBlockSize      = 0xC00
	DefaultSearchWindow   = 0x50
	DefaultFunctionWindow = xref.DefaultFunctionWindow
)

// Layout holds the compiler-layout constants used while correlating.
type Layout struct {
	// BlockSize converts table RVAs to file offsets.
	BlockSize int64
	// Deltas are added to a reference address, in order, before searching
	// the table.
	Deltas []int64
	// SearchWindow bounds the backward table search, inclusive.
	SearchWindow int
	// FunctionWindow bounds the backward scan for a function start.
	FunctionWindow int
}

// NewLayout fills unset values in cfg. The block size defaults to the
// .text section's VA minus its raw offset, then to DefaultBlockSize.
func NewLayout(cfg config.Layout, img *pex.Image) Layout {
	l := Layout{
		BlockSize:      cfg.BlockSize,
		Deltas:         cfg.Deltas,
		SearchWindow:   cfg.SearchWindow,
		FunctionWindow: cfg.FunctionWindow,
	}
	if l.BlockSize <= 0 && img != nil {
		if text, err := img.Text(); err == nil && text.Delta() > 0 {
			l.BlockSize = text.Delta()
		}
	}
	if l.BlockSize <= 0 {
		l.BlockSize = DefaultBlockSize
	}
	if l.Deltas == nil {
		l.Deltas = []int64{0, l.BlockSize, -l.BlockSize}
	}
	if l.SearchWindow <= 0 {
		l.SearchWindow = DefaultSearchWindow
	}
	if l.FunctionWindow <= 0 {
		l.FunctionWindow = DefaultFunctionWindow
	}
	return l
}
