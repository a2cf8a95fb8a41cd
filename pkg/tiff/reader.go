package tiff

import (
	"fmt"
	"os"

	gtiff "github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
)

// ReadIFD is the directory subset the pyramid generator needs, unmarshaled
// through google/tiff.
type ReadIFD struct {
	SubfileType    uint32   `tiff:"field,tag=254"`
	ImageWidth     uint64   `tiff:"field,tag=256"`
	ImageLength    uint64   `tiff:"field,tag=257"`
	BitsPerSample  []uint16 `tiff:"field,tag=258"`
	Compression    uint16   `tiff:"field,tag=259"`
	Photometric    uint16   `tiff:"field,tag=262"`
	TileWidth      uint16   `tiff:"field,tag=322"`
	TileLength     uint16   `tiff:"field,tag=323"`
	TileOffsets    []uint64 `tiff:"field,tag=324"`
	TileByteCounts []uint64 `tiff:"field,tag=325"`
	JPEGTables     []byte   `tiff:"field,tag=347"`
}

// Cols and Rows are the tile grid extents of the directory.
func (d *ReadIFD) Cols() int {
	return int((d.ImageWidth + uint64(d.TileWidth) - 1) / uint64(d.TileWidth))
}

func (d *ReadIFD) Rows() int {
	return int((d.ImageLength + uint64(d.TileLength) - 1) / uint64(d.TileLength))
}

// Reader parses the IFD chain of a (possibly still growing) pyramid file and
// serves tile blobs by index.
type Reader struct {
	f    *os.File
	IFDs []*ReadIFD
}

// OpenReader parses path. Classic and BigTIFF are both handled.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	tif, err := gtiff.Parse(f, nil, nil)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("tiff: parse %s: %w", path, err)
	}
	r := &Reader{f: f}
	for i, d := range tif.IFDs() {
		ifd := &ReadIFD{}
		if err := gtiff.UnmarshalIFD(d, ifd); err != nil {
			f.Close()
			return nil, fmt.Errorf("tiff: ifd %d: %w", i, err)
		}
		if len(ifd.TileOffsets) == 0 || len(ifd.TileOffsets) != len(ifd.TileByteCounts) {
			f.Close()
			return nil, fmt.Errorf("tiff: ifd %d is not tiled", i)
		}
		r.IFDs = append(r.IFDs, ifd)
	}
	if len(r.IFDs) == 0 {
		f.Close()
		return nil, fmt.Errorf("tiff: %s has no directories", path)
	}
	return r, nil
}

// Last returns the most recently appended directory.
func (r *Reader) Last() *ReadIFD {
	return r.IFDs[len(r.IFDs)-1]
}

// TileBytes reads the blob of tile idx (row-major) in d.
func (r *Reader) TileBytes(d *ReadIFD, idx int) ([]byte, error) {
	if idx < 0 || idx >= len(d.TileOffsets) {
		return nil, fmt.Errorf("tiff: tile index %d out of range", idx)
	}
	buf := make([]byte, d.TileByteCounts[idx])
	if _, err := r.f.ReadAt(buf, int64(d.TileOffsets[idx])); err != nil {
		return nil, fmt.Errorf("tiff: read tile %d at %d: %w", idx, d.TileOffsets[idx], err)
	}
	return buf, nil
}

func (r *Reader) Close() error {
	return r.f.Close()
}
