package dzi

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/jpfielding/dzi.go/pkg/util"
	xtiff "golang.org/x/image/tiff"
)

// rasterTileSize is the synthetic grid applied to plain raster sources.
const rasterTileSize = 256

// rasterSource treats a single local raster file as a degenerate DZI: one
// level, tile_size=256, no overlap, tiles cut from the decoded image on
// demand.
type rasterSource struct {
	man      *Manifest
	img      image.Image
	baseName string
	id       string
}

func openRaster(p string) (*rasterSource, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestInvalid, err)
	}
	defer f.Close()

	var img image.Image
	switch strings.ToLower(filepath.Ext(p)) {
	case ".tif", ".tiff":
		img, err = xtiff.Decode(f)
	default:
		img, err = imaging.Decode(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrManifestInvalid, p, err)
	}

	b := img.Bounds()
	base := filepath.Base(p)
	return &rasterSource{
		man: &Manifest{
			Format:   "png",
			TileSize: rasterTileSize,
			Overlap:  0,
			Size:     Size{Width: b.Dx(), Height: b.Dy()},
		},
		img:      img,
		baseName: strings.TrimSuffix(base, filepath.Ext(base)),
		id:       util.UUIDFromBytes([]byte(fmt.Sprintf("%s:%dx%d", base, b.Dx(), b.Dy()))),
	}, nil
}

func (s *rasterSource) Manifest() *Manifest { return s.man }
func (s *rasterSource) Name() string        { return s.baseName }
func (s *rasterSource) ID() string          { return s.id }
func (s *rasterSource) Close() error        { return nil }

func (s *rasterSource) CopyTile(ctx context.Context, level, col, row int, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if level != s.man.BaseLevel() {
		return fmt.Errorf("%w: level %d", ErrTileNotFound, level)
	}
	b := s.img.Bounds()
	rect := image.Rect(col*rasterTileSize, row*rasterTileSize,
		(col+1)*rasterTileSize, (row+1)*rasterTileSize).
		Add(b.Min).Intersect(b)
	if rect.Empty() {
		return fmt.Errorf("%w: %d_%d", ErrTileNotFound, col, row)
	}
	return png.Encode(w, imaging.Crop(s.img, rect))
}
