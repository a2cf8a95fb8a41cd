package jpegbl

import (
	"bytes"
	"image"
	"testing"
)

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(x, y)
			img.Pix[i+0] = uint8((x * 255) / w)
			img.Pix[i+1] = uint8((y * 255) / h)
			img.Pix[i+2] = uint8(((x + y) * 255) / (w + h))
			img.Pix[i+3] = 255
		}
	}
	return img
}

// TestRoundTrip encodes and decodes a gradient and checks dimensions and a
// loose per-pixel error bound appropriate for lossy 4:2:0 at quality 90.
func TestRoundTrip(t *testing.T) {
	src := gradient(64, 48)

	var buf bytes.Buffer
	if err := Encode(&buf, src, &Encoder{Quality: 90}); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	t.Logf("Encoded size: %d bytes", buf.Len())

	dec, err := Decode(buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	b := dec.Bounds()
	if b.Dx() != 64 || b.Dy() != 48 {
		t.Fatalf("dimensions: got %dx%d, want 64x48", b.Dx(), b.Dy())
	}

	worst := 0
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			sr, sg, sb, _ := src.At(x, y).RGBA()
			dr, dg, db, _ := dec.At(x, y).RGBA()
			for _, d := range []int{
				int(sr>>8) - int(dr>>8),
				int(sg>>8) - int(dg>>8),
				int(sb>>8) - int(db>>8),
			} {
				if d < 0 {
					d = -d
				}
				if d > worst {
					worst = d
				}
			}
		}
	}
	if worst > 32 {
		t.Errorf("max channel error %d, want <= 32", worst)
	}
}

// TestSharedTables checks that an abbreviated stream has no DQT of its own
// and decodes once the shared tables are spliced back in.
func TestSharedTables(t *testing.T) {
	src := gradient(32, 32)
	qt := NewQuantTables(75)

	var buf bytes.Buffer
	if err := Encode(&buf, src, &Encoder{Quality: 75, Tables: qt}); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if bytes.Contains(buf.Bytes(), []byte{0xFF, 0xDB}) {
		t.Error("abbreviated stream contains a DQT segment")
	}

	dec, err := Decode(buf.Bytes(), qt.TablesStream())
	if err != nil {
		t.Fatalf("Decode with tables failed: %v", err)
	}
	if dec.Bounds().Dx() != 32 {
		t.Errorf("width: got %d, want 32", dec.Bounds().Dx())
	}
}

// TestDeterministic encodes the same canvas twice and expects identical bytes.
func TestDeterministic(t *testing.T) {
	src := gradient(48, 32)
	var a, b bytes.Buffer
	if err := Encode(&a, src, nil); err != nil {
		t.Fatal(err)
	}
	if err := Encode(&b, src, nil); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("two encodes of the same input differ")
	}
}

func TestQuantScaling(t *testing.T) {
	lo := NewQuantTables(10)
	hi := NewQuantTables(95)
	if lo.Luma[0] <= hi.Luma[0] {
		t.Errorf("low quality should quantize harder: q10=%d q95=%d", lo.Luma[0], hi.Luma[0])
	}
	q50 := NewQuantTables(50)
	if int(q50.Luma[0]) != baseLumaQuant[0] {
		t.Errorf("quality 50 luma[0]: got %d, want base %d", q50.Luma[0], baseLumaQuant[0])
	}
}

func TestTablesStream(t *testing.T) {
	s := NewQuantTables(75).TablesStream()
	if s[0] != 0xFF || s[1] != 0xD8 {
		t.Fatal("missing SOI")
	}
	if s[len(s)-2] != 0xFF || s[len(s)-1] != 0xD9 {
		t.Fatal("missing EOI")
	}
	// two DQT segments, each with a length field of 67 (length bytes, table
	// id, 64 entries)
	if s[2] != 0xFF || s[3] != 0xDB || s[4] != 0 || s[5] != 67 {
		t.Fatalf("unexpected first DQT header: % x", s[2:6])
	}
}
