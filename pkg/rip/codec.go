package rip

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/jpfielding/dzi.go/pkg/compress/jpegbl"
	"github.com/jpfielding/dzi.go/pkg/tiff"
)

// Codec turns one canvas into a TIFF tile blob and back.
type Codec interface {
	// EncodeTile compresses img to w.
	EncodeTile(w io.Writer, img *image.RGBA) error
	// DecodeTile decompresses one tile blob. width/height provided for
	// codecs that carry no dimensions of their own.
	DecodeTile(data []byte, width, height int) (*image.RGBA, error)
	// Compression and Photometric are the TIFF tag values for this codec.
	Compression() uint16
	Photometric() uint16
	// Tables is the shared JPEGTables stream, nil when tiles are
	// self-contained.
	Tables() []byte
	// Name returns the codec identifier (e.g. "jpeg")
	Name() string
}

// jpegCodec stores tiles as baseline JPEG with YCbCr 4:2:0.
type jpegCodec struct {
	quality int
	shared  *jpegbl.QuantTables
	tables  []byte
}

func newJPEGCodec(quality int, sharedTables bool) *jpegCodec {
	c := &jpegCodec{quality: quality}
	if sharedTables {
		c.shared = jpegbl.NewQuantTables(quality)
		c.tables = c.shared.TablesStream()
	}
	return c
}

func (c *jpegCodec) EncodeTile(w io.Writer, img *image.RGBA) error {
	return jpegbl.Encode(w, img, &jpegbl.Encoder{Quality: c.quality, Tables: c.shared})
}

func (c *jpegCodec) DecodeTile(data []byte, width, height int) (*image.RGBA, error) {
	img, err := jpegbl.Decode(data, c.tables)
	if err != nil {
		return nil, err
	}
	return toRGBA(img), nil
}

func (c *jpegCodec) Compression() uint16 { return tiff.CompressionJPEG }
func (c *jpegCodec) Photometric() uint16 { return tiff.PhotometricYCbCr }
func (c *jpegCodec) Tables() []byte      { return c.tables }
func (c *jpegCodec) Name() string        { return "jpeg" }

// deflateCodec stores tiles as zlib-compressed raw RGB rows
// (TIFF Compression 8).
type deflateCodec struct{}

func (deflateCodec) EncodeTile(w io.Writer, img *image.RGBA) error {
	zw := zlib.NewWriter(w)
	b := img.Rect
	row := make([]byte, b.Dx()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		i := 0
		for x := b.Min.X; x < b.Max.X; x++ {
			p := img.Pix[img.PixOffset(x, y):]
			row[i+0], row[i+1], row[i+2] = p[0], p[1], p[2]
			i += 3
		}
		if _, err := zw.Write(row); err != nil {
			zw.Close()
			return err
		}
	}
	return zw.Close()
}

func (deflateCodec) DecodeTile(data []byte, width, height int) (*image.RGBA, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	if len(raw) < width*height*3 {
		return nil, fmt.Errorf("deflate tile: %d bytes, want %d", len(raw), width*height*3)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			s := (y*width + x) * 3
			d := img.PixOffset(x, y)
			img.Pix[d+0], img.Pix[d+1], img.Pix[d+2], img.Pix[d+3] = raw[s], raw[s+1], raw[s+2], 255
		}
	}
	return img, nil
}

func (deflateCodec) Compression() uint16 { return tiff.CompressionDeflate }
func (deflateCodec) Photometric() uint16 { return tiff.PhotometricRGB }
func (deflateCodec) Tables() []byte      { return nil }
func (deflateCodec) Name() string        { return "deflate" }

// codecFor builds the codec named in the configuration.
func codecFor(cfg Config) (Codec, error) {
	switch cfg.Compression {
	case "", "jpeg":
		return newJPEGCodec(cfg.Quality, cfg.SharedQuantTables), nil
	case "deflate":
		return deflateCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: compression %q", ErrInvalidArgument, cfg.Compression)
	}
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Rect, img, b.Min, draw.Src)
	return rgba
}
