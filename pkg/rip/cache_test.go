package rip

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tileImg(w, h int) *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func TestVertCacheTakeRemoves(t *testing.T) {
	c := &vertCache{}
	a := tileImg(4, 4)
	c.put(256, 0, a)
	require.Equal(t, 1, c.size())

	got := c.take(256, 0)
	assert.Same(t, a, got)
	assert.Nil(t, c.take(256, 0), "take must remove on hit")
	assert.Equal(t, 0, c.size())
}

func TestVertCacheReplace(t *testing.T) {
	c := &vertCache{}
	c.put(0, 0, tileImg(2, 2))
	b := tileImg(3, 3)
	c.put(0, 0, b)
	require.Equal(t, 1, c.size())
	assert.Same(t, b, c.take(0, 0))
}

func TestVertCacheClear(t *testing.T) {
	c := &vertCache{}
	c.put(0, 0, tileImg(2, 2))
	c.put(0, 256, tileImg(2, 2))
	c.clear()
	assert.Equal(t, 0, c.size())
	assert.Nil(t, c.take(0, 0))
}

func TestHorizCacheTakeRemoves(t *testing.T) {
	c := newHorizCache()
	a := tileImg(4, 4)
	c.put(512, 256, a)
	assert.Same(t, a, c.take(512, 256))
	assert.Nil(t, c.take(512, 256), "take must remove on hit")
}

func TestHorizCacheReplace(t *testing.T) {
	c := newHorizCache()
	c.put(512, 256, tileImg(2, 2))
	d := tileImg(3, 3)
	c.put(512, 256, d)
	require.Equal(t, 1, c.size())
	assert.Same(t, d, c.take(512, 256))
}

func TestHorizCacheClear(t *testing.T) {
	c := newHorizCache()
	c.put(0, 0, tileImg(2, 2))
	c.put(256, 0, tileImg(2, 2))
	c.clear()
	assert.Equal(t, 0, c.size())
}

func TestPackKeyDistinct(t *testing.T) {
	// (x,y) and (y,x) must not collide
	assert.NotEqual(t, packKey(256, 0), packKey(0, 256))
	assert.NotEqual(t, packKey(1, 2), packKey(2, 1))
}
