package motion

import (
	"image"
	"math"
)

// gaussianKernel returns normalized weights for an odd kernel size. The sigma
// derivation matches OpenCV's GaussianBlur with sigma=0.
func gaussianKernel(size int) []float32 {
	sigma := 0.3*((float64(size)-1)*0.5-1) + 0.8
	radius := size / 2
	weights := make([]float64, size)
	var sum float64
	for i := range size {
		x := float64(i - radius)
		weights[i] = math.Exp(-(x * x) / (2 * sigma * sigma))
		sum += weights[i]
	}
	kernel := make([]float32, size)
	for i, w := range weights {
		kernel[i] = float32(w / sum)
	}
	return kernel
}

// reflect101 maps an out-of-range index back into [0, n) mirroring around the
// edge pixel without repeating it (gfedcb|abcdefgh|gfedcba).
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*(n-1) - i
		}
	}
	return i
}

// blurrer applies a separable Gaussian blur, reusing its scratch buffer across
// frames of the same size.
type blurrer struct {
	kernel []float32
	radius int
	tmp    []float32
	// edge index tables for the current width/height
	colIdx []int
	rowIdx []int
	w, h   int
}

func newBlurrer(size int) *blurrer {
	return &blurrer{kernel: gaussianKernel(size), radius: size / 2}
}

func (b *blurrer) resize(w, h int) {
	if b.w == w && b.h == h {
		return
	}
	b.w, b.h = w, h
	b.tmp = make([]float32, w*h)
	b.colIdx = edgeTable(w, b.radius)
	b.rowIdx = edgeTable(h, b.radius)
}

// edgeTable precomputes reflected indices for positions -radius..n+radius-1.
func edgeTable(n, radius int) []int {
	table := make([]int, n+2*radius)
	for i := range table {
		table[i] = reflect101(i-radius, n)
	}
	return table
}

// apply blurs src into dst (allocated when nil or mismatched) and returns dst.
func (b *blurrer) apply(src, dst *image.Gray) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	if dst == nil || dst.Rect.Dx() != w || dst.Rect.Dy() != h {
		dst = image.NewGray(image.Rect(0, 0, w, h))
	}
	if b.radius == 0 {
		for y := range h {
			copy(dst.Pix[y*dst.Stride:][:w], src.Pix[y*src.Stride:][:w])
		}
		return dst
	}
	b.resize(w, h)
	k := b.kernel
	r := b.radius

	for y := range h {
		row := src.Pix[y*src.Stride:][:w]
		out := b.tmp[y*w:][:w]
		for x := range w {
			var acc float32
			if x >= r && x+r < w {
				window := row[x-r : x+r+1]
				for j, weight := range k {
					acc += weight * float32(window[j])
				}
			} else {
				idx := b.colIdx[x : x+2*r+1]
				for j, weight := range k {
					acc += weight * float32(row[idx[j]])
				}
			}
			out[x] = acc
		}
	}

	for y := range h {
		out := dst.Pix[y*dst.Stride:][:w]
		rows := b.rowIdx[y : y+2*r+1]
		for x := range w {
			var acc float32
			for j, weight := range k {
				acc += weight * b.tmp[rows[j]*w+x]
			}
			out[x] = clampByte(acc)
		}
	}
	return dst
}

func clampByte(v float32) uint8 {
	v += 0.5
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}
