package motion

import "image"

// diffSample counts pixels whose absolute difference exceeds pixelThreshold
// and scales the count by binaryValue. prev and cur must share dimensions.
func diffSample(prev, cur *image.Gray, pixelThreshold int, binaryValue int64) int64 {
	w, h := cur.Rect.Dx(), cur.Rect.Dy()
	var changed int64
	for y := range h {
		a := prev.Pix[y*prev.Stride:][:w]
		b := cur.Pix[y*cur.Stride:][:w]
		for x := range w {
			d := int(a[x]) - int(b[x])
			if d < 0 {
				d = -d
			}
			if d > pixelThreshold {
				changed++
			}
		}
	}
	return changed * binaryValue
}
