package jpegbl

// JPEG markers used by the baseline encoder.
const (
	MarkerSOI  = 0xFFD8 // Start of Image
	MarkerEOI  = 0xFFD9 // End of Image
	MarkerSOF0 = 0xFFC0 // Baseline sequential DCT
	MarkerDHT  = 0xFFC4 // Define Huffman Table
	MarkerDQT  = 0xFFDB // Define Quantization Table
	MarkerSOS  = 0xFFDA // Start of Scan
)

// zigzag maps zigzag scan position to natural (row-major) position.
var zigzag = [64]int{
	0, 1, 8, 16, 9, 2, 3, 10,
	17, 24, 32, 25, 18, 11, 4, 5,
	12, 19, 26, 33, 40, 48, 41, 34,
	27, 20, 13, 6, 7, 14, 21, 28,
	35, 42, 49, 56, 57, 50, 43, 36,
	29, 22, 15, 23, 30, 37, 44, 51,
	58, 59, 52, 45, 38, 31, 39, 46,
	53, 60, 61, 54, 47, 55, 62, 63,
}

// Annex K reference quantization tables, natural order.
var baseLumaQuant = [64]int{
	16, 11, 10, 16, 24, 40, 51, 61,
	12, 12, 14, 19, 26, 58, 60, 55,
	14, 13, 16, 24, 40, 57, 69, 56,
	14, 17, 22, 29, 51, 87, 80, 62,
	18, 22, 37, 56, 68, 109, 103, 77,
	24, 35, 55, 64, 81, 104, 113, 92,
	49, 64, 78, 87, 103, 121, 120, 101,
	72, 92, 95, 98, 112, 100, 103, 99,
}

var baseChromaQuant = [64]int{
	17, 18, 24, 47, 99, 99, 99, 99,
	18, 21, 26, 66, 99, 99, 99, 99,
	24, 26, 56, 99, 99, 99, 99, 99,
	47, 66, 99, 99, 99, 99, 99, 99,
	99, 99, 99, 99, 99, 99, 99, 99,
	99, 99, 99, 99, 99, 99, 99, 99,
	99, 99, 99, 99, 99, 99, 99, 99,
	99, 99, 99, 99, 99, 99, 99, 99,
}

// QuantTables is one luminance/chrominance quantization table pair, natural
// order.
type QuantTables struct {
	Luma   [64]byte
	Chroma [64]byte
}

// NewQuantTables scales the Annex K tables to the given quality in [1,100]
// using the classical S(Q) formula.
func NewQuantTables(quality int) *QuantTables {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	scale := 200 - 2*quality
	if quality < 50 {
		scale = 5000 / quality
	}
	qt := &QuantTables{}
	for i := 0; i < 64; i++ {
		qt.Luma[i] = scaleQuant(baseLumaQuant[i], scale)
		qt.Chroma[i] = scaleQuant(baseChromaQuant[i], scale)
	}
	return qt
}

func scaleQuant(base, scale int) byte {
	v := (base*scale + 50) / 100
	if v < 1 {
		v = 1
	}
	if v > 255 {
		v = 255
	}
	return byte(v)
}

// TablesStream renders the pair as a minimal SOI/DQT/DQT/EOI stream, the
// format the TIFF JPEGTables field expects.
func (qt *QuantTables) TablesStream() []byte {
	out := make([]byte, 0, 2+2*69+2)
	out = append(out, 0xFF, 0xD8)
	out = appendDQT(out, 0, &qt.Luma)
	out = appendDQT(out, 1, &qt.Chroma)
	return append(out, 0xFF, 0xD9)
}

func appendDQT(out []byte, id byte, tbl *[64]byte) []byte {
	out = append(out, 0xFF, 0xDB, 0, 67, id)
	for i := 0; i < 64; i++ {
		out = append(out, tbl[zigzag[i]])
	}
	return out
}
