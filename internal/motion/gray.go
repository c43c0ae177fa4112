package motion

import (
	"image"
	"image/color"
)

// Fixed-point BT.601 luma weights (scaled by 1<<14), the same integer
// coefficients OpenCV uses for RGB to gray conversion.
const (
	lumaR     = 4899
	lumaG     = 9617
	lumaB     = 1868
	lumaShift = 14
	lumaRound = 1 << (lumaShift - 1)
)

func luma(r, g, b uint32) uint8 {
	return uint8((r*lumaR + g*lumaG + b*lumaB + lumaRound) >> lumaShift)
}

// toGray converts img into dst, reallocating dst when the size differs.
func toGray(img image.Image, dst *image.Gray) *image.Gray {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if dst == nil || dst.Rect.Dx() != w || dst.Rect.Dy() != h {
		dst = image.NewGray(image.Rect(0, 0, w, h))
	}

	switch src := img.(type) {
	case *image.Gray:
		for y := range h {
			srcRow := src.Pix[src.PixOffset(bounds.Min.X, bounds.Min.Y+y):][:w]
			copy(dst.Pix[y*dst.Stride:][:w], srcRow)
		}
	case *image.RGBA:
		for y := range h {
			srcRow := src.Pix[src.PixOffset(bounds.Min.X, bounds.Min.Y+y):][:w*4]
			dstRow := dst.Pix[y*dst.Stride:][:w]
			for x := range w {
				p := srcRow[x*4 : x*4+3 : x*4+3]
				dstRow[x] = luma(uint32(p[0]), uint32(p[1]), uint32(p[2]))
			}
		}
	case *image.NRGBA:
		for y := range h {
			srcRow := src.Pix[src.PixOffset(bounds.Min.X, bounds.Min.Y+y):][:w*4]
			dstRow := dst.Pix[y*dst.Stride:][:w]
			for x := range w {
				p := srcRow[x*4 : x*4+3 : x*4+3]
				dstRow[x] = luma(uint32(p[0]), uint32(p[1]), uint32(p[2]))
			}
		}
	case *image.YCbCr:
		// Y plane is already luma.
		for y := range h {
			off := src.YOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(dst.Pix[y*dst.Stride:][:w], src.Y[off:off+w])
		}
	default:
		for y := range h {
			dstRow := dst.Pix[y*dst.Stride:][:w]
			for x := range w {
				c := color.RGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.RGBA)
				dstRow[x] = luma(uint32(c.R), uint32(c.G), uint32(c.B))
			}
		}
	}
	return dst
}
