package motion

import (
	"image"
	"math"
	"testing"
)

func TestGaussianKernelNormalizedAndSymmetric(t *testing.T) {
	for _, size := range []int{1, 3, 5, 21} {
		k := gaussianKernel(size)
		var sum float64
		for i := range k {
			sum += float64(k[i])
			if k[i] != k[size-1-i] {
				t.Fatalf("size %d: kernel not symmetric at %d", size, i)
			}
		}
		if math.Abs(sum-1) > 1e-5 {
			t.Fatalf("size %d: kernel sums to %v", size, sum)
		}
	}
}

func TestReflect101(t *testing.T) {
	tests := []struct{ i, n, want int }{
		{-1, 5, 1},
		{-2, 5, 2},
		{5, 5, 3},
		{6, 5, 2},
		{2, 5, 2},
		{-3, 1, 0},
		{-10, 4, 2},
	}
	for _, tt := range tests {
		if got := reflect101(tt.i, tt.n); got != tt.want {
			t.Fatalf("reflect101(%d, %d) = %d, want %d", tt.i, tt.n, got, tt.want)
		}
	}
}

func TestBlurPreservesSolidImage(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 7, 5))
	for i := range src.Pix {
		src.Pix[i] = 200
	}
	out := newBlurrer(21).apply(src, nil)
	for i, v := range out.Pix {
		if v != 200 {
			t.Fatalf("pixel %d changed to %d", i, v)
		}
	}
}

func TestBlurSpreadsImpulseSymmetrically(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 9, 9))
	src.Pix[4*src.Stride+4] = 255
	out := newBlurrer(3).apply(src, nil)
	center := out.Pix[4*out.Stride+4]
	if center == 0 || center == 255 {
		t.Fatalf("expected the impulse to spread, center=%d", center)
	}
	left, right := out.Pix[4*out.Stride+3], out.Pix[4*out.Stride+5]
	up, down := out.Pix[3*out.Stride+4], out.Pix[5*out.Stride+4]
	if left != right || up != down || left != up {
		t.Fatalf("asymmetric spread: l=%d r=%d u=%d d=%d", left, right, up, down)
	}
	if out.Pix[0] != 0 {
		t.Fatalf("corner should stay black, got %d", out.Pix[0])
	}
}

func TestToGrayLuma(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 1))
	img.Pix = []uint8{
		255, 255, 255, 255,
		255, 0, 0, 255,
		0, 0, 0, 255,
	}
	gray := toGray(img, nil)
	want := []uint8{255, 76, 0}
	for i, w := range want {
		if gray.Pix[i] != w {
			t.Fatalf("pixel %d: got %d want %d", i, gray.Pix[i], w)
		}
	}
}

func TestDiffSampleCountsChangedPixels(t *testing.T) {
	a := image.NewGray(image.Rect(0, 0, 4, 1))
	b := image.NewGray(image.Rect(0, 0, 4, 1))
	copy(b.Pix, []uint8{25, 26, 0, 200})
	if got := diffSample(a, b, 25, 255); got != 2*255 {
		t.Fatalf("expected %d, got %d", 2*255, got)
	}
	if got := diffSample(a, b, 25, 1); got != 2 {
		t.Fatalf("expected 2 with binary value 1, got %d", got)
	}
}
