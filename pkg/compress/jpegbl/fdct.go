package jpegbl

import "math"

// cosTable[x][u] = cos((2x+1) * u * pi / 16)
var cosTable [8][8]float64

// cscale[u] = C(u)/2, folding the 1/4 DCT norm into the two passes.
var cscale [8]float64

func init() {
	for x := 0; x < 8; x++ {
		for u := 0; u < 8; u++ {
			cosTable[x][u] = math.Cos(float64(2*x+1) * float64(u) * math.Pi / 16)
		}
	}
	for u := 0; u < 8; u++ {
		cscale[u] = 0.5
	}
	cscale[0] = 1 / (2 * math.Sqrt2)
}

// fdctQuant transforms one level-shifted 8x8 block and quantizes the result
// into zigzag order. src is row-major samples already shifted by -128.
func fdctQuant(src *[64]float64, quant *[64]byte, dst *[64]int32) {
	var tmp [64]float64
	// rows: tmp[y*8+u] = sum_x src[y*8+x] * cos[x][u]
	for y := 0; y < 8; y++ {
		for u := 0; u < 8; u++ {
			var s float64
			for x := 0; x < 8; x++ {
				s += src[y*8+x] * cosTable[x][u]
			}
			tmp[y*8+u] = s
		}
	}
	// columns, scale and quantize
	for v := 0; v < 8; v++ {
		for u := 0; u < 8; u++ {
			var s float64
			for y := 0; y < 8; y++ {
				s += tmp[y*8+u] * cosTable[y][v]
			}
			n := v*8 + u
			coef := s * cscale[u] * cscale[v]
			dst[natToZig[n]] = int32(math.Round(coef / float64(quant[n])))
		}
	}
}

// natToZig is the inverse of zigzag: natural position to scan position.
var natToZig [64]int

func init() {
	for z, n := range zigzag {
		natToZig[n] = z
	}
}
