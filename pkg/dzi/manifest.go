package dzi

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Manifest is a parsed DZI descriptor. Immutable once parsed.
type Manifest struct {
	XMLName  xml.Name `xml:"Image"`
	Format   string   `xml:"Format,attr"`
	TileSize int      `xml:"TileSize,attr"`
	Overlap  int      `xml:"Overlap,attr"`
	Size     Size     `xml:"Size"`
}

// Size is the pixel extent of the full-resolution image.
type Size struct {
	Width  int `xml:"Width,attr"`
	Height int `xml:"Height,attr"`
}

// ParseManifest decodes and validates a DZI XML document. Unknown attributes
// and elements are ignored.
func ParseManifest(data []byte) (*Manifest, error) {
	m := &Manifest{}
	if err := xml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestInvalid, err)
	}
	m.Format = strings.ToLower(m.Format)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the invariants the engine relies on.
func (m *Manifest) Validate() error {
	switch {
	case m.Format == "":
		return fmt.Errorf("%w: missing Format", ErrManifestInvalid)
	case m.TileSize <= 0:
		return fmt.Errorf("%w: TileSize %d", ErrManifestInvalid, m.TileSize)
	case m.Overlap < 0:
		return fmt.Errorf("%w: Overlap %d", ErrManifestInvalid, m.Overlap)
	case m.Size.Width <= 0 || m.Size.Height <= 0:
		return fmt.Errorf("%w: Size %dx%d", ErrManifestInvalid, m.Size.Width, m.Size.Height)
	}
	return nil
}

// Levels is the number of DZI pyramid levels: level 0 is 1x1 and the last
// level matches the full Size, each level ceil-halving the next.
func (m *Manifest) Levels() int {
	n := 1
	for w, h := m.Size.Width, m.Size.Height; w > 1 || h > 1; {
		w, h = (w+1)/2, (h+1)/2
		n++
	}
	return n
}

// BaseLevel is the index of the full-resolution level.
func (m *Manifest) BaseLevel() int {
	return m.Levels() - 1
}

// Cols and Rows are the source-tile grid extents at the base level.
func (m *Manifest) Cols() int {
	return (m.Size.Width + m.TileSize - 1) / m.TileSize
}

func (m *Manifest) Rows() int {
	return (m.Size.Height + m.TileSize - 1) / m.TileSize
}
