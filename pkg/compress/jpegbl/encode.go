package jpegbl

import (
	"errors"
	"image"
	"image/color"
	"io"
)

// Encoder configures baseline JPEG encoding.
type Encoder struct {
	// Quality in [1,100], default 75.
	Quality int
	// Tables, when set, are used for quantization and the stream carries no
	// DQT of its own (the container is expected to hold them, e.g. in a TIFF
	// JPEGTables field).
	Tables *QuantTables
}

// blocksPerMCU is 4 luma + Cb + Cr for 4:2:0.
const blocksPerMCU = 6

// Encode writes img to w as a baseline sequential JPEG with YCbCr 4:2:0
// subsampling and per-image optimized Huffman tables.
func Encode(w io.Writer, img *image.RGBA, opts *Encoder) error {
	e := &encoder{w: w, quality: 75}
	if opts != nil {
		if opts.Quality >= 1 && opts.Quality <= 100 {
			e.quality = opts.Quality
		}
		e.external = opts.Tables
	}
	return e.encode(img)
}

type encoder struct {
	w        io.Writer
	quality  int
	external *QuantTables

	width, height int
	qt            *QuantTables
	// quantized coefficient blocks, zigzag order, MCU-major:
	// Y0 Y1 Y2 Y3 Cb Cr per MCU
	blocks [][64]int32
}

func (e *encoder) encode(img *image.RGBA) error {
	e.width = img.Rect.Dx()
	e.height = img.Rect.Dy()
	if e.width <= 0 || e.height <= 0 {
		return errors.New("jpegbl: empty image")
	}

	e.qt = e.external
	if e.qt == nil {
		e.qt = NewQuantTables(e.quality)
	}

	e.transform(img)

	dcLuma, acLuma, dcChroma, acChroma := e.optimizeTables()

	if err := e.writeMarker(MarkerSOI); err != nil {
		return err
	}
	if e.external == nil {
		if err := e.writeDQT(); err != nil {
			return err
		}
	}
	if err := e.writeSOF0(); err != nil {
		return err
	}
	if err := e.writeDHT(dcLuma, acLuma, dcChroma, acChroma); err != nil {
		return err
	}
	if err := e.writeSOS(); err != nil {
		return err
	}
	if err := e.writeScan(dcLuma, acLuma, dcChroma, acChroma); err != nil {
		return err
	}
	return e.writeMarker(MarkerEOI)
}

// transform converts, subsamples, DCTs and quantizes every MCU. Samples
// outside the image replicate the last row/column.
func (e *encoder) transform(img *image.RGBA) {
	mcusX := (e.width + 15) / 16
	mcusY := (e.height + 15) / 16
	e.blocks = make([][64]int32, mcusX*mcusY*blocksPerMCU)

	var yy, cb, cr [16][16]int
	var blk [64]float64
	bi := 0
	for my := 0; my < mcusY; my++ {
		for mx := 0; mx < mcusX; mx++ {
			for py := 0; py < 16; py++ {
				sy := my*16 + py
				if sy >= e.height {
					sy = e.height - 1
				}
				row := img.Pix[img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+sy):]
				for px := 0; px < 16; px++ {
					sx := mx*16 + px
					if sx >= e.width {
						sx = e.width - 1
					}
					p := row[sx*4 : sx*4+3]
					y, b, r := color.RGBToYCbCr(p[0], p[1], p[2])
					yy[py][px] = int(y)
					cb[py][px] = int(b)
					cr[py][px] = int(r)
				}
			}
			// four luma blocks
			for _, q := range [][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
				for y := 0; y < 8; y++ {
					for x := 0; x < 8; x++ {
						blk[y*8+x] = float64(yy[q[1]*8+y][q[0]*8+x] - 128)
					}
				}
				fdctQuant(&blk, &e.qt.Luma, &e.blocks[bi])
				bi++
			}
			// subsampled chroma blocks
			for _, c := range []*[16][16]int{&cb, &cr} {
				for y := 0; y < 8; y++ {
					for x := 0; x < 8; x++ {
						s := c[2*y][2*x] + c[2*y][2*x+1] + c[2*y+1][2*x] + c[2*y+1][2*x+1]
						blk[y*8+x] = float64((s+2)>>2 - 128)
					}
				}
				fdctQuant(&blk, &e.qt.Chroma, &e.blocks[bi])
				bi++
			}
		}
	}
}

// optimizeTables counts DC/AC symbol frequencies over all blocks and builds
// one optimized table per class and channel.
func (e *encoder) optimizeTables() (dcLuma, acLuma, dcChroma, acChroma *huffmanTable) {
	var dcL, acL, dcC, acC [256]int
	var prevDC [3]int32
	for i := range e.blocks {
		comp := componentOf(i)
		dcf, acf := &dcL, &acL
		if comp > 0 {
			dcf, acf = &dcC, &acC
		}
		prevDC[comp] = countBlock(dcf, acf, &e.blocks[i], prevDC[comp])
	}
	return buildHuffmanFromCounts(&dcL), buildHuffmanFromCounts(&acL),
		buildHuffmanFromCounts(&dcC), buildHuffmanFromCounts(&acC)
}

// componentOf maps a block index within the stream to 0=Y, 1=Cb, 2=Cr.
func componentOf(i int) int {
	switch i % blocksPerMCU {
	case 4:
		return 1
	case 5:
		return 2
	default:
		return 0
	}
}

func countBlock(dcFreq, acFreq *[256]int, blk *[64]int32, prevDC int32) int32 {
	diff := blk[0] - prevDC
	dcFreq[categorize(diff)]++
	run := 0
	for k := 1; k < 64; k++ {
		if blk[k] == 0 {
			run++
			continue
		}
		for run > 15 {
			acFreq[0xF0]++ // ZRL
			run -= 16
		}
		acFreq[run<<4|categorize(blk[k])]++
		run = 0
	}
	if run > 0 {
		acFreq[0x00]++ // EOB
	}
	return blk[0]
}

// categorize returns the SSSS magnitude category of a value.
func categorize(v int32) int {
	if v < 0 {
		v = -v
	}
	ssss := 0
	for v > 0 {
		v >>= 1
		ssss++
	}
	return ssss
}

func (e *encoder) writeMarker(marker int) error {
	_, err := e.w.Write([]byte{byte(marker >> 8), byte(marker)})
	return err
}

func (e *encoder) writeSegment(marker int, payload []byte) error {
	if err := e.writeMarker(marker); err != nil {
		return err
	}
	n := len(payload) + 2
	if _, err := e.w.Write([]byte{byte(n >> 8), byte(n)}); err != nil {
		return err
	}
	_, err := e.w.Write(payload)
	return err
}

func (e *encoder) writeDQT() error {
	payload := make([]byte, 0, 2*65)
	for id, tbl := range []*[64]byte{&e.qt.Luma, &e.qt.Chroma} {
		payload = append(payload, byte(id))
		for i := 0; i < 64; i++ {
			payload = append(payload, tbl[zigzag[i]])
		}
	}
	return e.writeSegment(MarkerDQT, payload)
}

func (e *encoder) writeSOF0() error {
	payload := []byte{
		8, // precision
		byte(e.height >> 8), byte(e.height),
		byte(e.width >> 8), byte(e.width),
		3,             // components
		1, 0x22, 0x00, // Y: H=2 V=2, quant table 0
		2, 0x11, 0x01, // Cb: H=1 V=1, quant table 1
		3, 0x11, 0x01, // Cr
	}
	return e.writeSegment(MarkerSOF0, payload)
}

func (e *encoder) writeDHT(dcLuma, acLuma, dcChroma, acChroma *huffmanTable) error {
	payload := dcLuma.dhtPayload(0, 0)
	payload = append(payload, acLuma.dhtPayload(1, 0)...)
	payload = append(payload, dcChroma.dhtPayload(0, 1)...)
	payload = append(payload, acChroma.dhtPayload(1, 1)...)
	return e.writeSegment(MarkerDHT, payload)
}

func (e *encoder) writeSOS() error {
	payload := []byte{
		3,       // components
		1, 0x00, // Y: DC table 0, AC table 0
		2, 0x11, // Cb: DC table 1, AC table 1
		3, 0x11, // Cr
		0, 63, 0, // Ss, Se, Ah/Al
	}
	return e.writeSegment(MarkerSOS, payload)
}

func (e *encoder) writeScan(dcLuma, acLuma, dcChroma, acChroma *huffmanTable) error {
	bw := newBitWriter(e.w)
	var prevDC [3]int32
	for i := range e.blocks {
		comp := componentOf(i)
		dcT, acT := dcLuma, acLuma
		if comp > 0 {
			dcT, acT = dcChroma, acChroma
		}
		prevDC[comp] = emitBlock(bw, dcT, acT, &e.blocks[i], prevDC[comp])
	}
	return bw.flush()
}

func emitBlock(bw *bitWriter, dcT, acT *huffmanTable, blk *[64]int32, prevDC int32) int32 {
	diff := blk[0] - prevDC
	cat := categorize(diff)
	bw.writeCode(dcT, byte(cat))
	if cat > 0 {
		bw.writeAmplitude(diff, cat)
	}
	run := 0
	for k := 1; k < 64; k++ {
		v := blk[k]
		if v == 0 {
			run++
			continue
		}
		for run > 15 {
			bw.writeCode(acT, 0xF0)
			run -= 16
		}
		cat = categorize(v)
		bw.writeCode(acT, byte(run<<4|cat))
		bw.writeAmplitude(v, cat)
		run = 0
	}
	if run > 0 {
		bw.writeCode(acT, 0x00)
	}
	return blk[0]
}

// bitWriter writes bits MSB-first with 0xFF byte stuffing.
type bitWriter struct {
	w    io.Writer
	buf  uint32
	bits int
	err  error
}

func newBitWriter(w io.Writer) *bitWriter {
	return &bitWriter{w: w}
}

func (b *bitWriter) writeCode(ht *huffmanTable, sym byte) {
	b.writeBits(int32(ht.codes[sym]), int(ht.sizes[sym]))
}

func (b *bitWriter) writeAmplitude(v int32, cat int) {
	if v < 0 {
		v += (1 << cat) - 1
	}
	b.writeBits(v, cat)
}

func (b *bitWriter) writeBits(val int32, n int) {
	if b.err != nil || n == 0 {
		return
	}
	b.buf = (b.buf << n) | uint32(val&((1<<n)-1))
	b.bits += n
	for b.bits >= 8 {
		b.bits -= 8
		byteVal := byte(b.buf >> b.bits)
		if _, err := b.w.Write([]byte{byteVal}); err != nil {
			b.err = err
			return
		}
		if byteVal == 0xFF {
			if _, err := b.w.Write([]byte{0x00}); err != nil {
				b.err = err
				return
			}
		}
	}
}

func (b *bitWriter) flush() error {
	if b.bits > 0 && b.err == nil {
		pad := 8 - b.bits
		b.writeBits((1<<pad)-1, pad)
	}
	return b.err
}
