package rip

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"log/slog"

	"github.com/oov/downscale"

	"github.com/jpfielding/dzi.go/pkg/dzi"
	"github.com/jpfielding/dzi.go/pkg/tiff"
)

// Software is the value of the TIFF Software tag unless suppressed.
const Software = "dzi.go rip"

// minLayerSide: no reduced-resolution directory is written below this on its
// shorter side.
const minLayerSide = 32

// Config is immutable for one rip.
type Config struct {
	// TileSize is the output tile side O; positive multiple of 16.
	TileSize int
	// Quality is the JPEG quality in [1,100].
	Quality int
	// SharedQuantTables emits one JPEGTables field per directory and
	// abbreviated per-tile streams.
	SharedQuantTables bool
	// OmitSoftware suppresses the Software tag.
	OmitSoftware bool
	// Compression selects the tile codec: "jpeg" (default) or "deflate".
	Compression string
}

func (c Config) withDefaults() Config {
	if c.TileSize == 0 {
		c.TileSize = 256
	}
	if c.Quality == 0 {
		c.Quality = 75
	}
	if c.Compression == "" {
		c.Compression = "jpeg"
	}
	return c
}

func (c Config) validate() error {
	if c.TileSize <= 0 || c.TileSize%16 != 0 {
		return fmt.Errorf("%w: tile size %d must be a positive multiple of 16", ErrInvalidArgument, c.TileSize)
	}
	if c.Quality < 1 || c.Quality > 100 {
		return fmt.Errorf("%w: quality %d", ErrInvalidArgument, c.Quality)
	}
	return nil
}

// Metrics summarizes one rip.
type Metrics struct {
	Fetches int64 // source tiles fetched and decoded
	Retries int64 // extra fetch attempts beyond first tries
	Tiles   int64 // output tiles written across all directories
	Bytes   int64 // total bytes appended to the file
}

// Ripper converts one DZI source into a pyramid TIFF. Not safe for
// concurrent use; run one rip per instance.
type Ripper struct {
	src     dzi.Source
	cfg     Config
	codec   Codec
	prog    Progress
	metrics Metrics
}

// New validates cfg and builds a Ripper. prog may be nil.
func New(src dzi.Source, cfg Config, prog Progress) (*Ripper, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	codec, err := codecFor(cfg)
	if err != nil {
		return nil, err
	}
	if prog == nil {
		prog = NopProgress{}
	}
	return &Ripper{src: src, cfg: cfg, codec: codec, prog: prog}, nil
}

// Metrics returns the counters accumulated by the last Rip.
func (r *Ripper) Metrics() Metrics { return r.metrics }

// Rip writes the full pyramid to path: the re-tiled base directory first,
// then reduced-resolution directories until the image needs only one output
// tile per axis. A failed rip leaves a truncated file the caller should
// delete.
func (r *Ripper) Rip(ctx context.Context, path string) error {
	man := r.src.Manifest()
	r.metrics = Metrics{}

	bigtiff := useBigTIFF(man.Size.Width, man.Size.Height)
	slog.DebugContext(ctx, "rip start",
		"source", r.src.ID(), "width", man.Size.Width, "height", man.Size.Height,
		"tile", r.cfg.TileSize, "codec", r.codec.Name(), "bigtiff", bigtiff)

	w, err := tiff.Create(path, bigtiff)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := r.writeBase(ctx, w); err != nil {
		return err
	}
	if err := r.writePyramid(ctx, w, path); err != nil {
		return err
	}

	r.metrics.Bytes = w.Written()
	if s, ok := r.src.(interface{ Retries() int64 }); ok {
		r.metrics.Retries = s.Retries()
	}
	return w.Close()
}

// writeBase re-tiles the source into the full-resolution directory.
func (r *Ripper) writeBase(ctx context.Context, w *tiff.Writer) error {
	man := r.src.Manifest()
	o := r.cfg.TileSize
	cols := ceilDiv(man.Size.Width, o)
	rows := ceilDiv(man.Size.Height, o)
	total := cols * rows
	r.prog.StartBase(total)

	canvas := image.NewRGBA(image.Rect(0, 0, o, o))
	filler := newRegionFiller(r.src, o)
	start := w.Written()

	offsets := make([]uint64, 0, total)
	counts := make([]uint64, 0, total)
	var enc bytes.Buffer
	done := 0
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := filler.Fill(ctx, col*o, row*o, canvas); err != nil {
				return err
			}
			off, n, err := r.encodeTile(w, &enc, canvas)
			if err != nil {
				return err
			}
			offsets = append(offsets, off)
			counts = append(counts, n)
			done++
			r.prog.BaseProgress(done, total)
		}
	}
	r.metrics.Fetches = filler.Fetches()
	r.metrics.Tiles += int64(total)

	ifd := r.newIFD(man.Size.Width, man.Size.Height, offsets, counts)
	ifd.DocumentName = r.src.Name()
	if !r.cfg.OmitSoftware {
		ifd.Software = Software
	}
	if _, err := w.WriteIFD(ifd); err != nil {
		return err
	}
	r.prog.CompleteBase(total, w.Written()-start)
	return nil
}

// writePyramid appends one half-resolution directory per planned level,
// reading 2x2 output-tile blocks back from the directory written before it.
func (r *Ripper) writePyramid(ctx context.Context, w *tiff.Writer, path string) error {
	man := r.src.Manifest()
	o := r.cfg.TileSize
	plan := pyramidPlan(man.Size.Width, man.Size.Height, o)
	r.prog.StartPyramid(len(plan))

	big := image.NewRGBA(image.Rect(0, 0, 2*o, 2*o))
	small := image.NewRGBA(image.Rect(0, 0, o, o))
	var enc bytes.Buffer
	curW, curH := man.Size.Width, man.Size.Height

	for layer, dims := range plan {
		rd, err := tiff.OpenReader(path)
		if err != nil {
			return err
		}
		prev := rd.Last()

		nw, nh := dims.w, dims.h
		cols := ceilDiv(nw, o)
		tiles := cols * ceilDiv(nh, o)
		r.prog.StartLayer(layer, tiles, nw, nh)
		start := w.Written()

		offsets := make([]uint64, 0, tiles)
		counts := make([]uint64, 0, tiles)
		done := 0
		for y := 0; y < curH; y += 2 * o {
			for x := 0; x < curW; x += 2 * o {
				if err := ctx.Err(); err != nil {
					rd.Close()
					return err
				}
				if err := r.decodeRegion(rd, prev, x, y, curW, curH, big); err != nil {
					rd.Close()
					return err
				}
				if err := downscale.RGBA(ctx, small, big); err != nil {
					rd.Close()
					return err
				}
				off, n, err := r.encodeTile(w, &enc, small)
				if err != nil {
					rd.Close()
					return err
				}
				offsets = append(offsets, off)
				counts = append(counts, n)
				done++
				r.prog.LayerProgress(layer, done, tiles)
			}
		}
		rd.Close()

		ifd := r.newIFD(nw, nh, offsets, counts)
		ifd.SubfileType = tiff.SubfileReducedImage
		if _, err := w.WriteIFD(ifd); err != nil {
			return err
		}
		r.metrics.Tiles += int64(tiles)
		r.prog.CompleteLayer(layer, tiles, w.Written()-start)
		curW, curH = nw, nh
	}

	r.prog.CompletePyramid(len(plan))
	return nil
}

// decodeRegion fills canvas with source pixels [x,x+2O) x [y,y+2O) of the
// previous directory, leaving pixels outside the image extent black.
func (r *Ripper) decodeRegion(rd *tiff.Reader, d *tiff.ReadIFD, x, y, curW, curH int, canvas *image.RGBA) error {
	clearCanvas(canvas)
	o := int(d.TileWidth)
	cols, rows := d.Cols(), d.Rows()
	tx0, ty0 := x/o, y/o

	validW := min(canvas.Rect.Dx(), curW-x)
	validH := min(canvas.Rect.Dy(), curH-y)

	for dty := 0; dty < 2; dty++ {
		for dtx := 0; dtx < 2; dtx++ {
			tx, ty := tx0+dtx, ty0+dty
			if tx >= cols || ty >= rows {
				continue
			}
			data, err := rd.TileBytes(d, ty*cols+tx)
			if err != nil {
				return err
			}
			img, err := r.codec.DecodeTile(data, o, o)
			if err != nil {
				return err
			}
			dst := image.Rect(dtx*o, dty*o, dtx*o+img.Rect.Dx(), dty*o+img.Rect.Dy()).
				Intersect(image.Rect(0, 0, validW, validH))
			draw.Draw(canvas, dst, img, img.Rect.Min, draw.Src)
		}
	}
	return nil
}

// encodeTile runs the codec into enc and appends the blob.
func (r *Ripper) encodeTile(w *tiff.Writer, enc *bytes.Buffer, canvas *image.RGBA) (uint64, uint64, error) {
	enc.Reset()
	if err := r.codec.EncodeTile(enc, canvas); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	off, err := w.AppendTile(enc.Bytes())
	if err != nil {
		return 0, 0, err
	}
	return off, uint64(enc.Len()), nil
}

// newIFD carries the invariant tag set of every directory.
func (r *Ripper) newIFD(width, height int, offsets, counts []uint64) *tiff.IFD {
	o := r.cfg.TileSize
	return &tiff.IFD{
		ImageWidth:      uint64(width),
		ImageLength:     uint64(height),
		BitsPerSample:   []uint16{8, 8, 8},
		Compression:     r.codec.Compression(),
		Photometric:     r.codec.Photometric(),
		SamplesPerPixel: 3,
		TileWidth:       uint16(o),
		TileLength:      uint16(o),
		TileOffsets:     offsets,
		TileByteCounts:  counts,
		SampleFormat:    []uint16{1, 1, 1},
		JPEGTables:      r.codec.Tables(),
	}
}

// useBigTIFF selects 8-byte offsets once, at initialization, for every
// directory of the file.
func useBigTIFF(width, height int) bool {
	return int64(width)*int64(height) > tiff.BigTIFFPixelThreshold
}

// levelDims is one planned reduced-resolution level.
type levelDims struct {
	w, h int
}

// pyramidPlan lists the reduced levels top-down: halve while the image still
// needs more than one output tile in either axis, never dropping a level
// below 32 px on its shorter side. The progress reporter and the generator
// loop both iterate this plan.
func pyramidPlan(w, h, o int) []levelDims {
	var plan []levelDims
	for w > o || h > o {
		nw, nh := (w+1)/2, (h+1)/2
		if nw < minLayerSide || nh < minLayerSide {
			break
		}
		plan = append(plan, levelDims{w: nw, h: nh})
		w, h = nw, nh
	}
	return plan
}
