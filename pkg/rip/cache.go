package rip

import "image"

// packKey packs a source-tile pixel origin into one map key.
func packKey(x, y int) uint64 {
	return uint64(uint32(x))<<32 | uint64(uint32(y))
}

// stripeEntry is one carried tile keyed by its source pixel origin.
type stripeEntry struct {
	key uint64
	img *image.RGBA
}

// vertCache carries right-edge tiles to the next output tile. It holds at
// most one source-tile column, so a linear list keeps the overhead small.
// Every stored tile is owned by exactly one cache; take removes on hit.
type vertCache struct {
	entries []stripeEntry
}

func (c *vertCache) take(x, y int) *image.RGBA {
	k := packKey(x, y)
	for i := range c.entries {
		if c.entries[i].key == k {
			img := c.entries[i].img
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return img
		}
	}
	return nil
}

// put stores a carry, replacing any prior entry at the key.
func (c *vertCache) put(x, y int, img *image.RGBA) {
	k := packKey(x, y)
	for i := range c.entries {
		if c.entries[i].key == k {
			c.entries[i].img = img
			return
		}
	}
	c.entries = append(c.entries, stripeEntry{key: k, img: img})
}

// clear drops residual entries (tiles that turned out not to be reused).
func (c *vertCache) clear() {
	c.entries = c.entries[:0]
}

func (c *vertCache) size() int { return len(c.entries) }

// horizCache carries bottom-edge tiles to the next output-tile row. Hits can
// span the entire top row of source tiles of that iteration, so it is a map
// on the packed origin.
type horizCache struct {
	m map[uint64]*image.RGBA
}

func newHorizCache() *horizCache {
	return &horizCache{m: make(map[uint64]*image.RGBA)}
}

func (c *horizCache) take(x, y int) *image.RGBA {
	k := packKey(x, y)
	if img, ok := c.m[k]; ok {
		delete(c.m, k)
		return img
	}
	return nil
}

func (c *horizCache) put(x, y int, img *image.RGBA) {
	c.m[packKey(x, y)] = img
}

func (c *horizCache) clear() {
	for k := range c.m {
		delete(c.m, k)
	}
}

func (c *horizCache) size() int { return len(c.m) }
