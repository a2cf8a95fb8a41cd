package dzi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `<?xml version="1.0" encoding="utf-8"?>
<Image xmlns="http://schemas.microsoft.com/deepzoom/2008"
       Format="jpeg" TileSize="254" Overlap="1" ServerFormat="Default">
  <Size Width="300" Height="200"/>
</Image>`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(sampleManifest))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", m.Format)
	assert.Equal(t, 254, m.TileSize)
	assert.Equal(t, 1, m.Overlap)
	assert.Equal(t, 300, m.Size.Width)
	assert.Equal(t, 200, m.Size.Height)
}

func TestParseManifestInvalid(t *testing.T) {
	for name, doc := range map[string]string{
		"not xml":       "not xml at all",
		"no format":     `<Image TileSize="254" Overlap="1"><Size Width="10" Height="10"/></Image>`,
		"zero tilesize": `<Image Format="png" TileSize="0" Overlap="1"><Size Width="10" Height="10"/></Image>`,
		"neg overlap":   `<Image Format="png" TileSize="254" Overlap="-1"><Size Width="10" Height="10"/></Image>`,
		"no size":       `<Image Format="png" TileSize="254" Overlap="1"/>`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseManifest([]byte(doc))
			assert.ErrorIs(t, err, ErrManifestInvalid)
		})
	}
}

func TestLevels(t *testing.T) {
	m := &Manifest{Format: "png", TileSize: 254, Size: Size{Width: 300, Height: 200}}
	// 300x200 -> 150x100 -> 75x50 -> 38x25 -> 19x13 -> 10x7 -> 5x4 ->
	// 3x2 -> 2x1 -> 1x1
	assert.Equal(t, 10, m.Levels())
	assert.Equal(t, 9, m.BaseLevel())

	one := &Manifest{Format: "png", TileSize: 254, Size: Size{Width: 1, Height: 1}}
	assert.Equal(t, 1, one.Levels())
	assert.Equal(t, 0, one.BaseLevel())
}

func TestGrid(t *testing.T) {
	m := &Manifest{Format: "png", TileSize: 254, Size: Size{Width: 300, Height: 200}}
	assert.Equal(t, 2, m.Cols())
	assert.Equal(t, 1, m.Rows())
}
