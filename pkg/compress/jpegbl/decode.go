package jpegbl

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
)

// Decode decodes a baseline JPEG stream. When tables is non-nil it must be a
// SOI/DQT/EOI stream (the TIFF JPEGTables payload); its segments are spliced
// in after the tile stream's SOI before decoding, which is how abbreviated
// per-tile streams reference shared quantization tables.
func Decode(data, tables []byte) (image.Image, error) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, errors.New("jpegbl: not a JPEG stream")
	}
	if len(tables) > 4 {
		spliced := make([]byte, 0, len(data)+len(tables))
		spliced = append(spliced, 0xFF, 0xD8)
		spliced = append(spliced, tables[2:len(tables)-2]...)
		spliced = append(spliced, data[2:]...)
		data = spliced
	}
	return jpeg.Decode(bytes.NewReader(data))
}
