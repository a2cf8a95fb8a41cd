package rip

import (
	"bytes"
	"context"
	"image"
	"image/draw"

	"github.com/jpfielding/dzi.go/pkg/dzi"
)

// regionFiller stitches DZI source tiles into output-tile canvases, carrying
// reusable source tiles across iterations through double-buffered stripe
// caches so each source tile is fetched once in the common case. The
// vertical pair rotates after every output tile (right-edge carries feed the
// neighbor to the right); the horizontal pair rotates when the output row
// advances (bottom-edge carries feed the row below).
type regionFiller struct {
	src     dzi.Source
	man     *dzi.Manifest
	level   int
	outTile int

	vertCur, vertNext   *vertCache
	horizCur, horizNext *horizCache
	rowY                int

	fetches int64
	buf     bytes.Buffer
}

func newRegionFiller(src dzi.Source, outTile int) *regionFiller {
	return &regionFiller{
		src:       src,
		man:       src.Manifest(),
		level:     src.Manifest().BaseLevel(),
		outTile:   outTile,
		vertCur:   &vertCache{},
		vertNext:  &vertCache{},
		horizCur:  newHorizCache(),
		horizNext: newHorizCache(),
		rowY:      -1,
	}
}

// Fill overwrites canvas with the base-image rectangle
// [outX,outX+O) x [outY,outY+O), clipped to the image (outside stays black),
// then rotates the carry caches. Callers must iterate output tiles
// row-major.
func (f *regionFiller) Fill(ctx context.Context, outX, outY int, canvas *image.RGBA) error {
	clearCanvas(canvas)

	if outY != f.rowY {
		// new output row: last row's bottom carries become readable, the
		// vertical carries of the previous row are stale
		f.horizCur, f.horizNext = f.horizNext, f.horizCur
		f.horizNext.clear()
		f.vertCur.clear()
		f.rowY = outY
	}

	s := f.man.TileSize
	o := f.outTile
	overlap := f.man.Overlap

	tx0 := outX / s
	txN := min(ceilDiv(outX%s+o, s), f.man.Cols()-tx0)
	ty0 := outY / s
	tyN := min(ceilDiv(outY%s+o, s), f.man.Rows()-ty0)

	// column-major so the left column is consulted against the vertical
	// carries before anything new lands in them
	for ti := 0; ti < txN; ti++ {
		tx := tx0 + ti
		for tj := 0; tj < tyN; tj++ {
			ty := ty0 + tj
			px, py := tx*s, ty*s

			tile, err := f.acquire(ctx, tx, ty, ti == 0, tj == 0)
			if err != nil {
				return err
			}

			// the decoded tile starts at the source origin minus the
			// overlap border, which exists on inner edges only
			ox, oy := px-outX, py-outY
			if tx > 0 {
				ox -= overlap
			}
			if ty > 0 {
				oy -= overlap
			}
			r := image.Rect(ox, oy, ox+tile.Rect.Dx(), oy+tile.Rect.Dy())
			draw.Draw(canvas, r, tile, tile.Rect.Min, draw.Src)

			rightEdge := px+s > outX+o
			bottomEdge := py+s > outY+o
			switch {
			case rightEdge && bottomEdge:
				f.vertNext.put(px, py, tile)
				f.horizNext.put(px, py, cloneRGBA(tile))
			case rightEdge:
				f.vertNext.put(px, py, tile)
			case bottomEdge:
				f.horizNext.put(px, py, tile)
			}
		}
	}

	f.vertCur, f.vertNext = f.vertNext, f.vertCur
	f.vertNext.clear()
	return nil
}

// acquire takes the tile from the carry caches if present, otherwise fetches
// and decodes it. Vertical hits are only possible on the leftmost column of
// the iteration, horizontal hits on the topmost row.
func (f *regionFiller) acquire(ctx context.Context, tx, ty int, leftCol, topRow bool) (*image.RGBA, error) {
	px, py := tx*f.man.TileSize, ty*f.man.TileSize
	if leftCol {
		if tile := f.vertCur.take(px, py); tile != nil {
			return tile, nil
		}
	}
	if topRow {
		if tile := f.horizCur.take(px, py); tile != nil {
			return tile, nil
		}
	}
	f.buf.Reset()
	if err := f.src.CopyTile(ctx, f.level, tx, ty, &f.buf); err != nil {
		return nil, err
	}
	f.fetches++
	return dzi.DecodeTile(f.man.Format, f.buf.Bytes())
}

// Fetches is the number of source tiles fetched and decoded so far.
func (f *regionFiller) Fetches() int64 { return f.fetches }

// clearCanvas resets to opaque black.
func clearCanvas(img *image.RGBA) {
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 0, 0, 0, 255
	}
}

func cloneRGBA(img *image.RGBA) *image.RGBA {
	out := &image.RGBA{
		Pix:    make([]uint8, len(img.Pix)),
		Stride: img.Stride,
		Rect:   img.Rect,
	}
	copy(out.Pix, img.Pix)
	return out
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
