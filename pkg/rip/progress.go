package rip

import (
	"context"
	"log/slog"
)

// Progress receives rip lifecycle events. Implementations must be cheap;
// they are called from the tile loop.
type Progress interface {
	StartBase(tiles int)
	BaseProgress(done, total int)
	CompleteBase(tiles int, bytes int64)
	StartPyramid(layers int)
	StartLayer(layer, tiles, width, height int)
	LayerProgress(layer, done, total int)
	CompleteLayer(layer, tiles int, bytes int64)
	CompletePyramid(layers int)
}

// NopProgress discards all events.
type NopProgress struct{}

func (NopProgress) StartBase(int)                 {}
func (NopProgress) BaseProgress(int, int)         {}
func (NopProgress) CompleteBase(int, int64)       {}
func (NopProgress) StartPyramid(int)              {}
func (NopProgress) StartLayer(int, int, int, int) {}
func (NopProgress) LayerProgress(int, int, int)   {}
func (NopProgress) CompleteLayer(int, int, int64) {}
func (NopProgress) CompletePyramid(int)           {}

// SlogProgress logs every event through slog at debug level, with the
// start/complete milestones at info.
type SlogProgress struct {
	Ctx context.Context
}

func (p SlogProgress) ctx() context.Context {
	if p.Ctx != nil {
		return p.Ctx
	}
	return context.Background()
}

func (p SlogProgress) StartBase(tiles int) {
	slog.InfoContext(p.ctx(), "base layer start", "tiles", tiles)
}

func (p SlogProgress) BaseProgress(done, total int) {
	slog.DebugContext(p.ctx(), "base layer progress", "done", done, "total", total)
}

func (p SlogProgress) CompleteBase(tiles int, bytes int64) {
	slog.InfoContext(p.ctx(), "base layer complete", "tiles", tiles, "bytes", bytes)
}

func (p SlogProgress) StartPyramid(layers int) {
	slog.InfoContext(p.ctx(), "pyramid start", "layers", layers)
}

func (p SlogProgress) StartLayer(layer, tiles, width, height int) {
	slog.InfoContext(p.ctx(), "layer start", "layer", layer, "tiles", tiles, "width", width, "height", height)
}

func (p SlogProgress) LayerProgress(layer, done, total int) {
	slog.DebugContext(p.ctx(), "layer progress", "layer", layer, "done", done, "total", total)
}

func (p SlogProgress) CompleteLayer(layer, tiles int, bytes int64) {
	slog.InfoContext(p.ctx(), "layer complete", "layer", layer, "tiles", tiles, "bytes", bytes)
}

func (p SlogProgress) CompletePyramid(layers int) {
	slog.InfoContext(p.ctx(), "pyramid complete", "layers", layers)
}
